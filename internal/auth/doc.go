// Package auth はフォワード認証ゲートウェイの認証パイプラインを提供する。
//
// ディレクトリサービス（LDAP）への資格情報検証、TOTPワンタイムコードの検証、
// HS256署名付きセッショントークンの発行と検証を行う。
// セッション状態はすべてトークン内に保持され、サーバー側のセッションテーブルは持たない。
// 各コンポーネントは不変の設定のみを保持するため、ロックなしで並行リクエストから共有できる。
package auth
