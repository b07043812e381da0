// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// クッキーに格納したセッショントークンの検証、リクエストIDの付与とアクセスログ、
// パニックリカバリ、CORS設定を含む。
package middleware
