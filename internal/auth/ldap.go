package auth

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// DefaultDirectoryTimeout はディレクトリ呼び出しのデフォルトタイムアウト。
const DefaultDirectoryTimeout = 5 * time.Second

// LDAPBinder はLDAPの単純バインドを行うBinder実装。
// 呼び出しごとに接続し、バインド後に切断する。接続プールは持たない。
type LDAPBinder struct {
	// url はディレクトリのURL（例: "ldap://127.0.0.1:389"）。
	url string
	// timeout はダイヤルとバインド全体の上限時間。
	timeout time.Duration
}

var _ Binder = (*LDAPBinder)(nil)

// NewLDAPBinder は新しいLDAPBinderを生成する。
func NewLDAPBinder(url string, timeout time.Duration) (*LDAPBinder, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: directory url is empty", ErrConfiguration)
	}
	if timeout <= 0 {
		timeout = DefaultDirectoryTimeout
	}
	return &LDAPBinder{url: url, timeout: timeout}, nil
}

// Bind は dn と password で単純バインドを行う。
// タイムアウトまたは ctx のキャンセル時は接続を閉じて処理を放棄し、ErrDirectoryUnavailable を返す。
func (b *LDAPBinder) Bind(ctx context.Context, dn, password string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: dial abandoned: %v", ErrDirectoryUnavailable, err)
	}

	// DialURLはctxを受け取らないため、ctxの期限をダイヤラーに渡す
	dialer := &net.Dialer{Timeout: b.timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := ldap.DialURL(b.url, ldap.DialWithDialer(dialer))
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrDirectoryUnavailable, b.url, err)
	}
	defer conn.Close()
	conn.SetTimeout(b.timeout)

	done := make(chan error, 1)
	go func() {
		done <- conn.Bind(dn, password)
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return fmt.Errorf("%w: bind abandoned: %v", ErrDirectoryUnavailable, ctx.Err())
	case err := <-done:
		return classifyBindError(err)
	}
}

// classifyBindError はLDAPのエラーを拒否と通信障害に分類する。
func classifyBindError(err error) error {
	if err == nil {
		return nil
	}
	if ldap.IsErrorAnyOf(err,
		ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultUnwillingToPerform,
	) {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
}
