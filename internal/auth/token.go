package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims はセッショントークンのペイロード。
// フィールド順は {"user","iat","exp"} のシリアライズ順に一致させる。
type sessionClaims struct {
	// User は認証済みユーザー名。
	User string `json:"user"`
	// IssuedAt は発行時刻（Unix秒）。
	IssuedAt int64 `json:"iat"`
	// ExpiresAt は有効期限（Unix秒）。
	ExpiresAt int64 `json:"exp"`
}

var _ jwt.Claims = sessionClaims{}

// GetExpirationTime は jwt.Claims を実装する。
func (c sessionClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

// GetIssuedAt は jwt.Claims を実装する。
func (c sessionClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

// GetNotBefore は jwt.Claims を実装する。nbf は使用しない。
func (c sessionClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer は jwt.Claims を実装する。
func (c sessionClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject は jwt.Claims を実装する。
func (c sessionClaims) GetSubject() (string, error) {
	return c.User, nil
}

// GetAudience は jwt.Claims を実装する。
func (c sessionClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// TokenCodec はHS256セッショントークンの署名と検証を行う。
// 秘密鍵以外の状態を持たないため、並行して使用できる。
type TokenCodec struct {
	// secret はHMAC署名用の秘密鍵。
	secret []byte
}

// NewTokenCodec は新しいTokenCodecを生成する。
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: token secret is empty", ErrConfiguration)
	}
	return &TokenCodec{secret: []byte(secret)}, nil
}

// Sign はsubjectのセッショントークンを生成する。
// iat は issuedAt のUnix秒、exp は iat に lifetime（秒単位に切り捨て）を加えた値になる。
// 同じ入力に対しては常に同じトークンを返す。
func (c *TokenCodec) Sign(subject string, issuedAt time.Time, lifetime time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is empty")
	}
	seconds := int64(lifetime / time.Second)
	if seconds <= 0 {
		return "", fmt.Errorf("token lifetime must be at least one second: %s", lifetime)
	}

	iat := issuedAt.Unix()
	claims := sessionClaims{
		User:      subject,
		IssuedAt:  iat,
		ExpiresAt: iat + seconds,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたsubjectを返す。
// 構造不正、HS256以外のアルゴリズム、署名不一致、iat が未来、now >= exp のいずれかで ok=false を返す。
// 署名比較は hmac.Equal による定数時間比較で行われる。
func (c *TokenCodec) Verify(token string, now time.Time) (string, bool) {
	subject, err := c.verify(token, now)
	if err != nil {
		return "", false
	}
	return subject, true
}

// verify は失敗原因付きで検証する。原因は外部へ返さない。
func (c *TokenCodec) verify(token string, now time.Time) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.User == "" || claims.ExpiresAt <= claims.IssuedAt {
		return "", ErrInvalidToken
	}
	return claims.User, nil
}
