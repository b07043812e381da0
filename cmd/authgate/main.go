// authgateのエントリポイント。
// リバースプロキシのforward-auth先として動作し、LDAPディレクトリ認証と
// TOTPによる二要素認証を経てセッショントークンを発行する。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/authgate/internal/audit"
	"github.com/nao1215/authgate/internal/auth"
	"github.com/nao1215/authgate/internal/config"
	"github.com/nao1215/authgate/internal/gateway"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML); environment variables override it")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Error("authgateの実行に失敗", slog.Any("error", err))
		os.Exit(1)
	}
}

// run は設定を読み込んで各コンポーネントを組み立て、ctxが終了するまでサーバーを動かす。
func run(ctx context.Context, configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	logger.Info("設定を読み込みました",
		slog.Int("port", cfg.Port),
		slog.String("directory_url", cfg.DirectoryURL),
		slog.String("directory_users_dn", cfg.DirectoryUsersDN),
		slog.Duration("token_expiration", cfg.TokenExpiration),
		slog.Bool("audit", cfg.AuditDB != ""),
	)

	binder, err := auth.NewLDAPBinder(cfg.DirectoryURL, cfg.DirectoryTimeout)
	if err != nil {
		return err
	}
	verifier, err := auth.NewDirectoryVerifier(binder, cfg.DirectoryUsersDN)
	if err != nil {
		return err
	}
	pipeline, err := auth.NewPipeline(auth.Config{
		TOTPSecret:    cfg.TOTPSecret,
		TokenSecret:   cfg.TokenSecret,
		TokenLifetime: cfg.TokenExpiration,
	}, verifier)
	if err != nil {
		return err
	}

	var recorder audit.Recorder = audit.Nop{}
	if cfg.AuditDB != "" {
		store, err := audit.Open(ctx, cfg.AuditDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("監査DBのクローズに失敗", slog.Any("error", err))
			}
		}()
		recorder = store
	}

	server, err := gateway.NewServer(gateway.Config{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.AllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
		CookieDomain:   cfg.CookieDomain,
	}, pipeline, recorder, logger)
	if err != nil {
		return err
	}

	return server.Run(ctx)
}
