package auth

import (
	"context"
	"fmt"
	"time"
)

// SessionCookieName はセッショントークンを格納するクッキー名。
const SessionCookieName = "access_token"

// Config は認証パイプラインの不変設定。起動時に一度だけ構築する。
type Config struct {
	// TOTPSecret はbase32形式のTOTP共有秘密鍵。
	TOTPSecret string
	// TokenSecret はセッショントークンのHMAC秘密鍵。
	TokenSecret string
	// TokenLifetime はセッショントークンの有効期間。
	TokenLifetime time.Duration
}

// LogoutInstruction はログアウト時に呼び出し元が行うべき処理。
type LogoutInstruction struct {
	// CookieName は削除すべきクッキー名。
	CookieName string
	// RedirectTo はリダイレクト先。
	RedirectTo string
}

// LoginPageDecision はログインページの表示内容。
type LoginPageDecision struct {
	// Authenticated は既に有効なセッションを持っているかどうか。
	Authenticated bool
	// Username は認証済みの場合のユーザー名。
	Username string
}

// Pipeline は資格情報検証、ワンタイムコード検証、トークン発行を束ねる認証パイプライン。
// リクエストをまたぐ可変状態を持たないため、並行して呼び出せる。
type Pipeline struct {
	credentials CredentialVerifier
	codes       CodeVerifier
	tokens      *TokenCodec
	totpSecret  string
	lifetime    time.Duration
	clock       func() time.Time
}

// Option はPipelineの生成オプション。
type Option func(*Pipeline)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithCodeVerifier はワンタイムコードの検証器を差し替える。
func WithCodeVerifier(v CodeVerifier) Option {
	return func(p *Pipeline) {
		p.codes = v
	}
}

// NewPipeline は設定を検証して新しいPipelineを生成する。
// 設定が不正な場合は ErrConfiguration をラップしたエラーを返す。
func NewPipeline(cfg Config, credentials CredentialVerifier, opts ...Option) (*Pipeline, error) {
	if credentials == nil {
		return nil, fmt.Errorf("%w: credential verifier is nil", ErrConfiguration)
	}
	if cfg.TokenLifetime < time.Second {
		return nil, fmt.Errorf("%w: token lifetime must be at least one second", ErrConfiguration)
	}
	tokens, err := NewTokenCodec(cfg.TokenSecret)
	if err != nil {
		return nil, err
	}
	totpVerifier := NewTOTPVerifier()
	if err := totpVerifier.ValidateSecret(cfg.TOTPSecret); err != nil {
		return nil, err
	}

	p := &Pipeline{
		credentials: credentials,
		codes:       totpVerifier,
		tokens:      tokens,
		totpSecret:  cfg.TOTPSecret,
		lifetime:    cfg.TokenLifetime,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// TokenLifetime は発行するトークンの有効期間を返す。
func (p *Pipeline) TokenLifetime() time.Duration {
	return p.lifetime
}

// CheckSession はクッキーのトークンを検証し、認証済みならユーザー名とtrueを返す。
// トークンが空の場合は検証を行わずに未認証とする。
func (p *Pipeline) CheckSession(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	return p.tokens.Verify(token, p.clock())
}

// Login はディレクトリ認証、ワンタイムコード検証、トークン発行を順に行う。
// 最初の失敗で打ち切る。全ステップで入口時点の同じ時刻を使用する。
// 返すエラーは内部ログ用であり、呼び出し元へ原因を区別して返してはならない。
func (p *Pipeline) Login(ctx context.Context, username, password, code string) (string, error) {
	now := p.clock()

	ok, err := p.credentials.Verify(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("login %q: %w", username, err)
	}
	if !ok {
		return "", fmt.Errorf("login %q: %w", username, ErrInvalidCredentials)
	}

	if !p.codes.Verify(p.totpSecret, code, now) {
		return "", fmt.Errorf("login %q: %w", username, ErrInvalidCode)
	}

	token, err := p.tokens.Sign(username, now, p.lifetime)
	if err != nil {
		return "", fmt.Errorf("login %q: %w", username, err)
	}
	return token, nil
}

// Logout はクッキーの削除とリダイレクトを指示する。
// トークンの失効リストは持たないため、発行済みトークンは期限まで有効なままとなる。
func (p *Pipeline) Logout() LogoutInstruction {
	return LogoutInstruction{
		CookieName: SessionCookieName,
		RedirectTo: "/",
	}
}

// LoginPage はログインページに表示すべき状態を決定する。
func (p *Pipeline) LoginPage(token string) LoginPageDecision {
	username, ok := p.CheckSession(token)
	if !ok {
		return LoginPageDecision{}
	}
	return LoginPageDecision{Authenticated: true, Username: username}
}
