package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Binder はディレクトリサービスへのバインド（認証）を1回行うインターフェース。
// 拒否された場合は ErrInvalidCredentials を、通信失敗の場合は ErrDirectoryUnavailable をラップして返す。
type Binder interface {
	Bind(ctx context.Context, dn, password string) error
}

// CredentialVerifier は資格情報を検証するインターフェース。
// AuthPipelineはこのインターフェースにのみ依存する。
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (bool, error)
}

// DirectoryVerifier は cn=<username>,<usersDN> へのバインドで資格情報を検証する。
// ローカルにパスワードを保持せず、ディレクトリを唯一の正とする。
type DirectoryVerifier struct {
	// binder はディレクトリへのバインドを行う。
	binder Binder
	// usersDN はユーザーエントリのベースDN（例: "ou=users,dc=example,dc=com"）。
	usersDN string
}

var _ CredentialVerifier = (*DirectoryVerifier)(nil)

// NewDirectoryVerifier は新しいDirectoryVerifierを生成する。
func NewDirectoryVerifier(binder Binder, usersDN string) (*DirectoryVerifier, error) {
	if binder == nil {
		return nil, fmt.Errorf("%w: directory binder is nil", ErrConfiguration)
	}
	if strings.TrimSpace(usersDN) == "" {
		return nil, fmt.Errorf("%w: directory users DN is empty", ErrConfiguration)
	}
	return &DirectoryVerifier{binder: binder, usersDN: usersDN}, nil
}

// UserDN はユーザー名からDNを組み立てる。ユーザー名はRFC 4514に従ってエスケープする。
func (v *DirectoryVerifier) UserDN(username string) string {
	return "cn=" + ldap.EscapeDN(username) + "," + v.usersDN
}

// Verify はディレクトリへのバインドを1回だけ行い、成功した場合のみtrueを返す。
// 空のユーザー名やパスワードはバインドせずに拒否する（空パスワードの単純バインドは匿名バインドになるため）。
// 自動リトライは行わない。
func (v *DirectoryVerifier) Verify(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, ErrInvalidCredentials
	}

	if err := v.binder.Bind(ctx, v.UserDN(username), password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return false, err
		}
		if errors.Is(err, ErrDirectoryUnavailable) {
			return false, err
		}
		// 分類されていないエラーは通信障害として扱い、フェイルクローズする。
		return false, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return true, nil
}
