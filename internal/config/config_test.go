package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/authgate/internal/auth"
)

// validYAML は全ての必須項目を含む設定ファイル。
const validYAML = `
port: 8000
totp_secret: JBSWY3DPEHPK3PXP
directory_url: ldap://127.0.0.1:389
directory_users_dn: ou=users,dc=example,dc=com
token_secret: jwt_secret
token_expiration: 1h
`

// writeConfig は一時ディレクトリに設定ファイルを書き出してパスを返す。
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗: %v", err)
	}
	return path
}

// envMap はapplyEnvに渡すlookup関数をmapから生成する。
func envMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// TestLoad はLoad関数を検証する。
func TestLoad(t *testing.T) {
	t.Run("正常な設定ファイルを読み込めること", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}

		if cfg.Port != 8000 {
			t.Errorf("Port = %d, want %d", cfg.Port, 8000)
		}
		if cfg.TOTPSecret != "JBSWY3DPEHPK3PXP" {
			t.Errorf("TOTPSecret = %q, want %q", cfg.TOTPSecret, "JBSWY3DPEHPK3PXP")
		}
		if cfg.DirectoryURL != "ldap://127.0.0.1:389" {
			t.Errorf("DirectoryURL = %q, want %q", cfg.DirectoryURL, "ldap://127.0.0.1:389")
		}
		if cfg.DirectoryUsersDN != "ou=users,dc=example,dc=com" {
			t.Errorf("DirectoryUsersDN = %q, want %q", cfg.DirectoryUsersDN, "ou=users,dc=example,dc=com")
		}
		if cfg.TokenSecret != "jwt_secret" {
			t.Errorf("TokenSecret = %q, want %q", cfg.TokenSecret, "jwt_secret")
		}
		if cfg.TokenExpiration != time.Hour {
			t.Errorf("TokenExpiration = %v, want %v", cfg.TokenExpiration, time.Hour)
		}
		if cfg.DirectoryTimeout != auth.DefaultDirectoryTimeout {
			t.Errorf("DirectoryTimeout = %v, want %v", cfg.DirectoryTimeout, auth.DefaultDirectoryTimeout)
		}
		if cfg.AuditDB != "" {
			t.Errorf("AuditDB = %q, want empty string", cfg.AuditDB)
		}
		if got := cfg.Addr(); got != ":8000" {
			t.Errorf("Addr() = %q, want %q", got, ":8000")
		}
	})

	t.Run("任意項目を読み込めること", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, validYAML+`
directory_timeout: 2s
audit_db: /tmp/audit.db
allowed_origins:
  - https://app.example.com
cookie_secure: true
cookie_domain: example.com
`))
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}

		if cfg.DirectoryTimeout != 2*time.Second {
			t.Errorf("DirectoryTimeout = %v, want %v", cfg.DirectoryTimeout, 2*time.Second)
		}
		if cfg.AuditDB != "/tmp/audit.db" {
			t.Errorf("AuditDB = %q, want %q", cfg.AuditDB, "/tmp/audit.db")
		}
		if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example.com" {
			t.Errorf("AllowedOrigins = %v, want [https://app.example.com]", cfg.AllowedOrigins)
		}
		if !cfg.CookieSecure {
			t.Error("CookieSecure = false, want true")
		}
		if cfg.CookieDomain != "example.com" {
			t.Errorf("CookieDomain = %q, want %q", cfg.CookieDomain, "example.com")
		}
	})

	t.Run("環境変数で上書きできること", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("AUTHGATE_TOKEN_SECRET", "from-env")
		t.Setenv("AUTHGATE_TOKEN_EXPIRATION", "30m")

		cfg, err := Load(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}

		if cfg.Port != 9000 {
			t.Errorf("Port = %d, want %d", cfg.Port, 9000)
		}
		if cfg.TokenSecret != "from-env" {
			t.Errorf("TokenSecret = %q, want %q", cfg.TokenSecret, "from-env")
		}
		if cfg.TokenExpiration != 30*time.Minute {
			t.Errorf("TokenExpiration = %v, want %v", cfg.TokenExpiration, 30*time.Minute)
		}
	})

	t.Run("存在しないファイルの場合にエラーを返すこと", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("Load()がエラーを返さなかった")
		}
	})

	t.Run("不正なYAMLの場合にErrInvalidを返すこと", func(t *testing.T) {
		_, err := Load(writeConfig(t, "port: [1, 2"))
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("err = %v, want ErrInvalid", err)
		}
	})

	t.Run("必須項目が欠けている場合にErrInvalidを返すこと", func(t *testing.T) {
		_, err := Load(writeConfig(t, "port: 8000\n"))
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("err = %v, want ErrInvalid", err)
		}
	})
}

// TestApplyEnv はapplyEnv関数を検証する。
func TestApplyEnv(t *testing.T) {
	t.Parallel()

	t.Run("全ての環境変数を反映すること", func(t *testing.T) {
		t.Parallel()

		cfg := defaults()
		err := applyEnv(cfg, envMap(map[string]string{
			"AUTHGATE_PORT":               "8443",
			"AUTHGATE_TOTP_SECRET":        "GEZDGNBVGY3TQOJQ",
			"AUTHGATE_DIRECTORY_URL":      "ldaps://ldap.example.com",
			"AUTHGATE_DIRECTORY_USERS_DN": "ou=people,dc=example,dc=com",
			"AUTHGATE_DIRECTORY_TIMEOUT":  "3s",
			"AUTHGATE_AUDIT_DB":           "audit.db",
			"AUTHGATE_ALLOWED_ORIGINS":    "https://a.example.com, https://b.example.com,",
			"AUTHGATE_COOKIE_SECURE":      "true",
			"AUTHGATE_COOKIE_DOMAIN":      "example.com",
		}))
		if err != nil {
			t.Fatalf("applyEnv()でエラーが発生: %v", err)
		}

		if cfg.Port != 8443 {
			t.Errorf("Port = %d, want %d", cfg.Port, 8443)
		}
		if cfg.TOTPSecret != "GEZDGNBVGY3TQOJQ" {
			t.Errorf("TOTPSecret = %q, want %q", cfg.TOTPSecret, "GEZDGNBVGY3TQOJQ")
		}
		if cfg.DirectoryURL != "ldaps://ldap.example.com" {
			t.Errorf("DirectoryURL = %q, want %q", cfg.DirectoryURL, "ldaps://ldap.example.com")
		}
		if cfg.DirectoryUsersDN != "ou=people,dc=example,dc=com" {
			t.Errorf("DirectoryUsersDN = %q, want %q", cfg.DirectoryUsersDN, "ou=people,dc=example,dc=com")
		}
		if cfg.DirectoryTimeout != 3*time.Second {
			t.Errorf("DirectoryTimeout = %v, want %v", cfg.DirectoryTimeout, 3*time.Second)
		}
		if cfg.AuditDB != "audit.db" {
			t.Errorf("AuditDB = %q, want %q", cfg.AuditDB, "audit.db")
		}
		if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
			t.Errorf("AllowedOrigins = %v, want 2 origins", cfg.AllowedOrigins)
		}
		if !cfg.CookieSecure {
			t.Error("CookieSecure = false, want true")
		}
		if cfg.CookieDomain != "example.com" {
			t.Errorf("CookieDomain = %q, want %q", cfg.CookieDomain, "example.com")
		}
	})

	t.Run("空の環境変数は無視すること", func(t *testing.T) {
		t.Parallel()

		cfg := defaults()
		cfg.TokenSecret = "keep"
		if err := applyEnv(cfg, envMap(map[string]string{"AUTHGATE_TOKEN_SECRET": ""})); err != nil {
			t.Fatalf("applyEnv()でエラーが発生: %v", err)
		}
		if cfg.TokenSecret != "keep" {
			t.Errorf("TokenSecret = %q, want %q", cfg.TokenSecret, "keep")
		}
	})

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "数値でないポート", env: map[string]string{"PORT": "http"}},
		{name: "不正な有効期間", env: map[string]string{"AUTHGATE_TOKEN_EXPIRATION": "one hour"}},
		{name: "不正なタイムアウト", env: map[string]string{"AUTHGATE_DIRECTORY_TIMEOUT": "5"}},
		{name: "真偽値でないSecure指定", env: map[string]string{"AUTHGATE_COOKIE_SECURE": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name+"はErrInvalidになること", func(t *testing.T) {
			t.Parallel()

			if err := applyEnv(defaults(), envMap(tt.env)); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

// TestValidate はValidate関数を検証する。
func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Port:             8000,
			TOTPSecret:       "JBSWY3DPEHPK3PXP",
			DirectoryURL:     "ldap://127.0.0.1:389",
			DirectoryUsersDN: "ou=users,dc=example,dc=com",
			TokenSecret:      "jwt_secret",
			TokenExpiration:  time.Hour,
			DirectoryTimeout: auth.DefaultDirectoryTimeout,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "正常な設定", mutate: func(*Config) {}, wantErr: false},
		{name: "ポート未設定", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "範囲外のポート", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "TOTP秘密鍵未設定", mutate: func(c *Config) { c.TOTPSecret = "" }, wantErr: true},
		{name: "base32ではないTOTP秘密鍵", mutate: func(c *Config) { c.TOTPSecret = "totp_secret" }, wantErr: true},
		{name: "別のbase32のTOTP秘密鍵", mutate: func(c *Config) { c.TOTPSecret = "GEZDGNBVGY3TQOJQ" }, wantErr: false},
		{name: "ディレクトリURL未設定", mutate: func(c *Config) { c.DirectoryURL = "" }, wantErr: true},
		{name: "LDAP以外のスキーム", mutate: func(c *Config) { c.DirectoryURL = "http://127.0.0.1" }, wantErr: true},
		{name: "ldapsスキーム", mutate: func(c *Config) { c.DirectoryURL = "ldaps://ldap.example.com:636" }, wantErr: false},
		{name: "ベースDN未設定", mutate: func(c *Config) { c.DirectoryUsersDN = "" }, wantErr: true},
		{name: "トークン秘密鍵未設定", mutate: func(c *Config) { c.TokenSecret = "" }, wantErr: true},
		{name: "有効期間未設定", mutate: func(c *Config) { c.TokenExpiration = 0 }, wantErr: true},
		{name: "1秒未満の有効期間", mutate: func(c *Config) { c.TokenExpiration = 500 * time.Millisecond }, wantErr: true},
		{name: "0以下のタイムアウト", mutate: func(c *Config) { c.DirectoryTimeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}
