package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taskpilot/taskpilot/checkpoint"
	"github.com/taskpilot/taskpilot/conversation"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

// Store keeps one row per conversation thread, overwritten on every
// checkpoint. SQLite is the default backend: a single local file with no
// external service to run.
type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, threadID string, state *conversation.State) error {
	if strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("thread_id is required")
	}
	if state == nil {
		return fmt.Errorf("state is required")
	}

	raw, err := state.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	const q = `
INSERT INTO threads (thread_id, user_id, state, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(thread_id) DO UPDATE SET
  user_id=excluded.user_id,
  state=excluded.state,
  updated_at=excluded.updated_at;
`
	if _, err := s.db.ExecContext(ctx, q, threadID, state.UserID, string(raw), now, now); err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, threadID string) (*conversation.State, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("thread_id is required")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM threads WHERE thread_id = ?;", threadID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	state, err := conversation.Restore([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode state for thread %q: %w", threadID, err)
	}
	return state, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
