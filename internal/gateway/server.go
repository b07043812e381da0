package gateway

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/authgate/internal/audit"
	"github.com/nao1215/authgate/internal/auth"
	"github.com/nao1215/authgate/pkg/middleware"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templatesFS embed.FS

// loginFailedBody はログイン失敗時のレスポンスボディ。失敗理由によらず常に同一。
const loginFailedBody = "authentication failed"

// HeaderRemoteUser は認証済みユーザー名をリバースプロキシへ伝えるHTTPヘッダーキー。
const HeaderRemoteUser = "Remote-User"

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 10 * time.Second

// recentAttemptsLimit は/api/stateで返す直近のログイン試行の件数。
const recentAttemptsLimit = 5

// Authenticator はゲートウェイが利用する認証操作。auth.Pipelineが実装する。
type Authenticator interface {
	middleware.SessionChecker
	Login(ctx context.Context, username, password, code string) (string, error)
	Logout() auth.LogoutInstruction
	LoginPage(token string) auth.LoginPageDecision
	TokenLifetime() time.Duration
}

// Config はゲートウェイのHTTP設定。
type Config struct {
	// Addr はリッスンアドレス（例: ":8080"）。
	Addr string
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// CookieSecure はセッションクッキーにSecure属性を付けるかどうか。
	CookieSecure bool
	// CookieDomain はセッションクッキーのDomain属性。
	CookieDomain string
}

// Server はforward-authゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はHTTP設定。
	cfg Config
	// authenticator はセッション検証とログインを行う。
	authenticator Authenticator
	// recorder はログイン試行の監査ログを記録する。
	recorder audit.Recorder
	// logger はアプリケーションログの出力先。
	logger *slog.Logger
}

// NewServer は新しいGatewayサーバーを生成する。
// recorderがnilの場合は監査ログを記録しない。
func NewServer(cfg Config, authenticator Authenticator, recorder audit.Recorder, logger *slog.Logger) (*Server, error) {
	if authenticator == nil {
		return nil, errors.New("gateway: authenticatorがnilです")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("gateway: テンプレートの読み込みに失敗: %w", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:        router,
		cfg:           cfg,
		authenticator: authenticator,
		recorder:      recorder,
		logger:        logger,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了するとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Gatewayサービスを起動します", slog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway: サーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway: シャットダウンに失敗: %w", err)
		}
		s.logger.Info("Gatewayサービスを停止しました")
		return nil
	})
	return g.Wait()
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	// forward-authエンドポイント（リバースプロキシのサブリクエスト）
	s.router.GET("/_auth", s.handleCheckSession())
	s.router.POST("/_auth", s.handleLogin())

	s.router.GET("/login", s.handleLoginPage())
	s.router.GET("/logout", s.handleLogout())

	api := s.router.Group("/api")
	api.Use(middleware.SessionAuth(auth.SessionCookieName, s.authenticator))
	{
		api.GET("/state", s.handleState())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "authgate"})
	})
}

// sessionToken はリクエストのセッションクッキーを返す。クッキーが無い場合は空文字列。
func sessionToken(c *gin.Context) string {
	token, err := c.Cookie(auth.SessionCookieName)
	if err != nil {
		return ""
	}
	return token
}

// handleCheckSession はセッションを検証するハンドラを返す。
// 認証済みなら204とRemote-Userヘッダー、未認証なら401を返す。
func (s *Server) handleCheckSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := s.authenticator.CheckSession(sessionToken(c))
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Header(HeaderRemoteUser, username)
		c.Status(http.StatusNoContent)
	}
}

// handleLogin はログインフォームの送信を処理するハンドラを返す。
// 成功時はトークンを本文とクッキーで返す。失敗時は理由によらず同一の401を返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username := c.PostForm("username")

		token, err := s.authenticator.Login(ctx, username, c.PostForm("password"), c.PostForm("token"))
		outcome := audit.OutcomeFromError(err)
		s.recordAttempt(c, username, outcome)

		if err != nil {
			attrs := []any{
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("username", username),
				slog.String("outcome", string(outcome)),
				slog.Any("error", err),
			}
			if outcome == audit.OutcomeDirectoryUnavailable {
				s.logger.ErrorContext(ctx, "ディレクトリに接続できずログインに失敗しました", attrs...)
			} else {
				s.logger.WarnContext(ctx, "ログインに失敗しました", attrs...)
			}
			c.String(http.StatusUnauthorized, loginFailedBody)
			return
		}

		s.setSessionCookie(c, token)
		s.logger.InfoContext(ctx, "ログインに成功しました",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("username", username),
		)
		c.String(http.StatusOK, token)
	}
}

// handleLoginPage はログインページを表示するハンドラを返す。
func (s *Server) handleLoginPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := s.authenticator.LoginPage(sessionToken(c))
		c.HTML(http.StatusOK, "login.html", decision)
	}
}

// handleLogout はセッションクッキーを削除してリダイレクトするハンドラを返す。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		instruction := s.authenticator.Logout()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(instruction.CookieName, "", -1, "/", s.cfg.CookieDomain, s.cfg.CookieSecure, true)
		c.Redirect(http.StatusFound, instruction.RedirectTo)
	}
}

// attemptResponse は/api/stateで返すログイン試行1件。
type attemptResponse struct {
	Outcome    audit.Outcome `json:"outcome"`
	RemoteAddr string        `json:"remote_addr"`
	CreatedAt  time.Time     `json:"created_at"`
}

// handleState は認証済みユーザーの状態と直近のログイン試行を返すハンドラを返す。
// 監査ログの取得に失敗した場合も200を返し、試行一覧は空とする。
func (s *Server) handleState() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username := middleware.GetUsername(c)

		recent := []attemptResponse{}
		attempts, err := s.recorder.Recent(ctx, username, recentAttemptsLimit)
		if err != nil {
			s.logger.WarnContext(ctx, "監査ログの取得に失敗しました",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.Any("error", err),
			)
		}
		for _, a := range attempts {
			recent = append(recent, attemptResponse{
				Outcome:    a.Outcome,
				RemoteAddr: a.RemoteAddr,
				CreatedAt:  a.CreatedAt,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"username":        username,
			"recent_attempts": recent,
		})
	}
}

// setSessionCookie はセッショントークンをHttpOnlyクッキーとして設定する。
func (s *Server) setSessionCookie(c *gin.Context, token string) {
	maxAge := int(s.authenticator.TokenLifetime() / time.Second)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, token, maxAge, "/", s.cfg.CookieDomain, s.cfg.CookieSecure, true)
}

// recordAttempt はログイン試行を監査ログに記録する。記録の失敗はログ出力のみ行う。
func (s *Server) recordAttempt(c *gin.Context, username string, outcome audit.Outcome) {
	ctx := c.Request.Context()
	err := s.recorder.Record(ctx, audit.LoginAttempt{
		Username:   username,
		Outcome:    outcome,
		RemoteAddr: c.ClientIP(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "監査ログの記録に失敗しました",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.Any("error", err),
		)
	}
}
