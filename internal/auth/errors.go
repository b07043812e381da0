package auth

import "errors"

// 認証パイプラインのエラー。
// ログイン失敗系のエラーは内部ログ用であり、呼び出し元へ区別して返してはならない。
var (
	// ErrInvalidCredentials はディレクトリがバインドを拒否したことを表す。
	// 未知のユーザーとパスワード誤りを区別しない。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidCode はワンタイムコードが一致しなかったことを表す。
	ErrInvalidCode = errors.New("invalid one-time code")
	// ErrDirectoryUnavailable はディレクトリとの通信失敗またはタイムアウトを表す。
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	// ErrInvalidToken はセッショントークンが不正、署名不一致、または期限切れであることを表す。
	ErrInvalidToken = errors.New("invalid session token")
	// ErrConfiguration は起動時設定が不足または不正であることを表す。
	ErrConfiguration = errors.New("invalid auth configuration")
)
