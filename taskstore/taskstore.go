// Package taskstore persists the to-do list. Every query is scoped by user
// so one user can never see or mutate another user's tasks.
package taskstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

// Task is one to-do row. DueDate and CalendarEventID are empty for plain
// tasks that were added without a schedule.
type Task struct {
	ID              int64
	UserID          string
	Description     string
	Done            bool
	CreatedAt       string
	DueDate         string
	CalendarEventID string
	Timezone        string
}

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
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

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
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
	db.SetMaxOpenConns(1)
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

// CreateTask adds an unscheduled task and returns its id.
func (s *Store) CreateTask(ctx context.Context, userID, description string) (int64, error) {
	return s.insert(ctx, userID, description, "", "UTC")
}

// CreateScheduledTask adds a task with a due date stored as RFC 3339 along
// with the timezone it was expressed in.
func (s *Store) CreateScheduledTask(ctx context.Context, userID, description, dueDate, timezone string) (int64, error) {
	if strings.TrimSpace(dueDate) == "" {
		return 0, fmt.Errorf("due_date is required")
	}
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}
	return s.insert(ctx, userID, description, dueDate, timezone)
}

func (s *Store) insert(ctx context.Context, userID, description, dueDate, timezone string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(description) == "" {
		return 0, fmt.Errorf("description is required")
	}

	const q = `
INSERT INTO tasks (user_id, description, done, created_at, due_date, timezone)
VALUES (?, ?, 0, ?, ?, ?);
`
	now := time.Now().UTC().Format(time.RFC3339)
	var due any
	if dueDate != "" {
		due = dueDate
	}
	res, err := s.db.ExecContext(ctx, q, userID, description, now, due, timezone)
	if err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read task id: %w", err)
	}
	return id, nil
}

// ListTasks returns the user's tasks filtered by done status, oldest first.
// The returned order defines the 1-indexed task numbers shown in chat.
func (s *Store) ListTasks(ctx context.Context, userID string, done bool) ([]Task, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	const q = `
SELECT id, user_id, description, done, created_at, due_date, calendar_event_id, timezone
FROM tasks
WHERE user_id = ? AND done = ?
ORDER BY created_at, id;
`
	doneInt := 0
	if done {
		doneInt = 1
	}
	rows, err := s.db.QueryContext(ctx, q, userID, doneInt)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			t        Task
			doneCol  int
			due      sql.NullString
			eventID  sql.NullString
			timezone sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Description, &doneCol, &t.CreatedAt, &due, &eventID, &timezone); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Done = doneCol != 0
		t.DueDate = due.String
		t.CalendarEventID = eventID.String
		t.Timezone = timezone.String
		if t.Timezone == "" {
			t.Timezone = "UTC"
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	return tasks, nil
}

// MarkDone flips a task to done. Returns false when the task does not exist
// or belongs to another user.
func (s *Store) MarkDone(ctx context.Context, taskID int64, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("user_id is required")
	}

	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET done = 1 WHERE id = ? AND user_id = ?;", taskID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark task done: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// SetCalendarEventID links a task to its calendar event.
func (s *Store) SetCalendarEventID(ctx context.Context, taskID int64, userID, eventID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user_id is required")
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET calendar_event_id = ? WHERE id = ? AND user_id = ?;",
		eventID, taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to set calendar event id: %w", err)
	}
	return nil
}

// ClearAll deletes every task for the user and returns the count removed.
func (s *Store) ClearAll(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user_id is required")
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE user_id = ?;", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
