package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/authgate/internal/auth"
	"gopkg.in/yaml.v3"
)

// ErrInvalid は設定が不足または不正であることを表す。起動時の致命的エラーとして扱う。
var ErrInvalid = errors.New("invalid configuration")

// Config はauthgateの起動時設定。起動後は変更しない。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port int `yaml:"port"`
	// TOTPSecret はbase32形式のTOTP共有秘密鍵（例: "JBSWY3DPEHPK3PXP"）。
	// "totp_secret" のようなbase32として解釈できない値は起動時に拒否する。
	TOTPSecret string `yaml:"totp_secret"`
	// DirectoryURL はLDAPディレクトリのURL（例: "ldap://127.0.0.1:389"）。
	DirectoryURL string `yaml:"directory_url"`
	// DirectoryUsersDN はユーザーエントリのベースDN。
	DirectoryUsersDN string `yaml:"directory_users_dn"`
	// TokenSecret はセッショントークンのHMAC秘密鍵。
	TokenSecret string `yaml:"token_secret"`
	// TokenExpiration はセッショントークンの有効期間（例: "1h"）。
	TokenExpiration time.Duration `yaml:"token_expiration"`
	// DirectoryTimeout はディレクトリ呼び出しの上限時間。省略時は5秒。
	DirectoryTimeout time.Duration `yaml:"directory_timeout"`
	// AuditDB はログイン監査ログのSQLiteファイルパス。空の場合は監査を無効にする。
	AuditDB string `yaml:"audit_db"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `yaml:"allowed_origins"`
	// CookieSecure はセッションクッキーにSecure属性を付けるかどうか。
	CookieSecure bool `yaml:"cookie_secure"`
	// CookieDomain はセッションクッキーのDomain属性。
	CookieDomain string `yaml:"cookie_domain"`
}

// Load はpathのYAMLファイルを読み込み、環境変数で上書きしてから検証する。
// pathが空の場合は環境変数のみから構築する。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse yaml %q: %v", ErrInvalid, path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults はデフォルト値を設定したConfigを返す。
func defaults() *Config {
	return &Config{
		DirectoryTimeout: auth.DefaultDirectoryTimeout,
	}
}

// applyEnv は AUTHGATE_* 環境変数で設定を上書きする。PORT も受け付ける。
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	stringVars := []struct {
		key string
		dst *string
	}{
		{"AUTHGATE_TOTP_SECRET", &cfg.TOTPSecret},
		{"AUTHGATE_DIRECTORY_URL", &cfg.DirectoryURL},
		{"AUTHGATE_DIRECTORY_USERS_DN", &cfg.DirectoryUsersDN},
		{"AUTHGATE_TOKEN_SECRET", &cfg.TokenSecret},
		{"AUTHGATE_AUDIT_DB", &cfg.AuditDB},
		{"AUTHGATE_COOKIE_DOMAIN", &cfg.CookieDomain},
	}
	for _, s := range stringVars {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	for _, key := range []string{"PORT", "AUTHGATE_PORT"} {
		if v, ok := lookup(key); ok && v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
			}
			cfg.Port = port
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"AUTHGATE_TOKEN_EXPIRATION", &cfg.TokenExpiration},
		{"AUTHGATE_DIRECTORY_TIMEOUT", &cfg.DirectoryTimeout},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok && v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, d.key, v, err)
			}
			*d.dst = parsed
		}
	}

	if v, ok := lookup("AUTHGATE_COOKIE_SECURE"); ok && v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: AUTHGATE_COOKIE_SECURE=%q is not a boolean", ErrInvalid, v)
		}
		cfg.CookieSecure = secure
	}

	if v, ok := lookup("AUTHGATE_ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.AllowedOrigins = origins
	}
	return nil
}

// Validate は必須項目と値の範囲を検証する。
func (c *Config) Validate() error {
	var missing []string
	if c.Port == 0 {
		missing = append(missing, "port")
	}
	if c.TOTPSecret == "" {
		missing = append(missing, "totp_secret")
	}
	if c.DirectoryURL == "" {
		missing = append(missing, "directory_url")
	}
	if c.DirectoryUsersDN == "" {
		missing = append(missing, "directory_users_dn")
	}
	if c.TokenSecret == "" {
		missing = append(missing, "token_secret")
	}
	if c.TokenExpiration == 0 {
		missing = append(missing, "token_expiration")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required keys: %s", ErrInvalid, strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d is out of range [1, 65535]", ErrInvalid, c.Port)
	}
	if c.TokenExpiration < time.Second {
		return fmt.Errorf("%w: token_expiration %s must be at least 1s", ErrInvalid, c.TokenExpiration)
	}
	if c.DirectoryTimeout <= 0 {
		return fmt.Errorf("%w: directory_timeout %s must be positive", ErrInvalid, c.DirectoryTimeout)
	}
	if err := auth.NewTOTPVerifier().ValidateSecret(c.TOTPSecret); err != nil {
		return fmt.Errorf("%w: totp_secret: %v", ErrInvalid, err)
	}
	if !strings.HasPrefix(c.DirectoryURL, "ldap://") && !strings.HasPrefix(c.DirectoryURL, "ldaps://") {
		return fmt.Errorf("%w: directory_url %q must use ldap:// or ldaps://", ErrInvalid, c.DirectoryURL)
	}
	return nil
}

// Addr はHTTPサーバーのリッスンアドレスを返す。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
