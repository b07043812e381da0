package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/authgate/internal/auth"
	"github.com/nao1215/authgate/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// Outcome はログイン試行の結果。
type Outcome string

const (
	// OutcomeSuccess はトークンが発行されたことを表す。
	OutcomeSuccess Outcome = "success"
	// OutcomeInvalidCredentials はディレクトリが資格情報を拒否したことを表す。
	OutcomeInvalidCredentials Outcome = "invalid_credentials"
	// OutcomeInvalidCode はワンタイムコードが一致しなかったことを表す。
	OutcomeInvalidCode Outcome = "invalid_code"
	// OutcomeDirectoryUnavailable はディレクトリに到達できなかったことを表す。
	OutcomeDirectoryUnavailable Outcome = "directory_unavailable"
)

// OutcomeFromError はLoginが返したエラーから監査上の結果を決定する。
// 分類できないエラーは資格情報の拒否として記録する。
func OutcomeFromError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, auth.ErrDirectoryUnavailable):
		return OutcomeDirectoryUnavailable
	case errors.Is(err, auth.ErrInvalidCode):
		return OutcomeInvalidCode
	default:
		return OutcomeInvalidCredentials
	}
}

// LoginAttempt は1回のログイン試行の監査レコード。
// パスワードやワンタイムコードは保持しない。
type LoginAttempt struct {
	// ID はレコードの一意識別子。
	ID uuid.UUID
	// Username は試行されたユーザー名。
	Username string
	// Outcome は試行の結果。
	Outcome Outcome
	// RemoteAddr はクライアントのアドレス。
	RemoteAddr string
	// CreatedAt は試行日時（UTC）。
	CreatedAt time.Time
}

// Recorder はログイン試行を記録し、ユーザーごとの直近の試行を返す。
type Recorder interface {
	Record(ctx context.Context, attempt LoginAttempt) error
	Recent(ctx context.Context, username string, limit int) ([]LoginAttempt, error)
}

// Nop は何も記録しないRecorder。監査DBが未設定の場合に使用する。
type Nop struct{}

// Record は何もせずnilを返す。
func (Nop) Record(context.Context, LoginAttempt) error { return nil }

// Recent は常に空の結果を返す。
func (Nop) Recent(context.Context, string, int) ([]LoginAttempt, error) { return nil, nil }

// timeLayout はcreated_at（TEXT列）の保存形式。固定長のため文字列比較で時系列順に並ぶ。
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store はSQLiteに保存するRecorder。
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open はpathのSQLiteデータベースを開き、マイグレーションを適用する。
// ":memory:" を指定するとインメモリデータベースを使用する。
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit: データベースのパスが空です")
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: データベース接続に失敗: %w", err)
	}
	if path == ":memory:" {
		// インメモリDBは接続ごとに独立するため、接続を1本に固定する
		db.SetMaxOpenConns(1)
	}

	if err := migration.Run(ctx, db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: スキーマ初期化に失敗: %w", err)
	}

	return &Store{db: db, clock: time.Now}, nil
}

var _ Recorder = (*Store)(nil)

// Record はログイン試行を1件追記する。IDとCreatedAtが未設定の場合は補完する。
func (s *Store) Record(ctx context.Context, attempt LoginAttempt) error {
	if attempt.Outcome == "" {
		return errors.New("audit: 結果が空です")
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.clock()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (id, username, outcome, remote_addr, created_at) VALUES (?, ?, ?, ?, ?)`,
		attempt.ID.String(),
		attempt.Username,
		string(attempt.Outcome),
		attempt.RemoteAddr,
		attempt.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("audit: ログイン試行の記録に失敗: %w", err)
	}
	return nil
}

// Recent はusernameの直近のログイン試行を新しい順に最大limit件返す。
func (s *Store) Recent(ctx context.Context, username string, limit int) ([]LoginAttempt, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, outcome, remote_addr, created_at
		   FROM login_attempts
		  WHERE username = ?
		  ORDER BY created_at DESC, rowid DESC
		  LIMIT ?`,
		username, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: ログイン試行の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []LoginAttempt
	for rows.Next() {
		var (
			id        string
			outcome   string
			createdAt string
			a         LoginAttempt
		)
		if err := rows.Scan(&id, &a.Username, &outcome, &a.RemoteAddr, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: 行の読み取りに失敗: %w", err)
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("audit: 不正なID %q: %w", id, err)
		}
		if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("audit: 不正な日時 %q: %w", createdAt, err)
		}
		a.Outcome = Outcome(outcome)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}
