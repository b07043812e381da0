package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// CodePeriod はTOTPのタイムステップ。
	CodePeriod = 30 * time.Second
	// CodeDigits はTOTPコードの桁数。
	CodeDigits = 6
	// codeSkew は前後に許容するステップ数。
	codeSkew = 1
)

// CodeVerifier はワンタイムコードを検証するインターフェース。
type CodeVerifier interface {
	Verify(secret, code string, now time.Time) bool
}

// TOTPVerifier はRFC 6238のTOTPコードを検証する。
// SHA-1、30秒ステップ、6桁、前後1ステップの許容幅で検証する。
type TOTPVerifier struct {
	opts totp.ValidateOpts
}

var _ CodeVerifier = (*TOTPVerifier)(nil)

// NewTOTPVerifier は新しいTOTPVerifierを生成する。
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{
		opts: totp.ValidateOpts{
			Period:    uint(CodePeriod / time.Second),
			Skew:      codeSkew,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

// Verify は code が now のステップおよび前後1ステップのいずれかと一致する場合にtrueを返す。
// 6桁の数字でないコードは比較を行わずに拒否する。
func (v *TOTPVerifier) Verify(secret, code string, now time.Time) bool {
	if !isCodeShaped(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), v.opts)
	if err != nil {
		return false
	}
	return ok
}

// Generate は now 時点のコードを生成する。テストと運用確認用。
func (v *TOTPVerifier) Generate(secret string, now time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, now.UTC(), v.opts)
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

// ValidateSecret はTOTP共有秘密鍵がbase32として解釈可能であることを検証する。
func (v *TOTPVerifier) ValidateSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: totp secret is empty", ErrConfiguration)
	}
	if _, err := v.Generate(secret, time.Unix(0, 0)); err != nil {
		return fmt.Errorf("%w: totp secret is not valid base32: %v", ErrConfiguration, err)
	}
	return nil
}

// isCodeShaped は code が固定幅の数字列かどうかを返す。
func isCodeShaped(code string) bool {
	if len(code) != CodeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
