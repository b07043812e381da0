// Package config はauthgateの起動時設定を読み込む。
//
// YAMLファイルを基に AUTHGATE_* 環境変数で上書きし、必須項目を検証する。
// 不足や不正があれば ErrInvalid をラップしたエラーを返し、起動を中止させる。
// totp_secret はbase32でなければならず、"totp_secret" のような任意の文字列は受け付けない。
package config
