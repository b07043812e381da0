// Package gateway はforward-authゲートウェイのHTTPサーバーを提供する。
//
// リバースプロキシからのサブリクエスト（GET /_auth）に対してセッションクッキーを検証し、
// ログインフォーム（POST /_auth）ではディレクトリ認証とワンタイムコード検証を経て
// セッショントークンを発行する。ログイン失敗の理由は外部に区別して返さない。
package gateway
