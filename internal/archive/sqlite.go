// Package archive keeps a durable history of engine events in SQLite. The
// engine itself stays in memory; the archive only listens.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"intelliqueue/internal/domain"
	"intelliqueue/internal/notify"
)

const defaultBuffer = 1024

// Open opens (creating if needed) the archive database at path and ensures
// the schema exists.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  payload TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('PENDING','PROCESSING','COMPLETED','FAILED')),
  retry_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL,
  completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, updated_at);
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  ts DATETIME NOT NULL,
  type TEXT NOT NULL,
  message TEXT NOT NULL,
  task_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_notifications_ts ON notifications(ts);
`
	_, err := db.Exec(schema)
	return err
}

// Recorder subscribes to engine events and writes them to SQLite on its own
// goroutine.
type Recorder struct {
	db     *sql.DB
	events chan notify.Event
	logger *zerolog.Logger
}

func NewRecorder(db *sql.DB, buffer int, logger *zerolog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = &log.Logger
	}
	l := logger.With().Str("component", "archive").Logger()
	return &Recorder{db: db, events: make(chan notify.Event, buffer), logger: &l}
}

func (r *Recorder) HandleEvent(_ context.Context, ev notify.Event) error {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn().Str("notification_id", ev.Notification.ID).Msg("archive buffer full, dropping event")
	}
	return nil
}

// Run writes buffered events until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case ev := <-r.events:
			r.write(ctx, ev)
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-r.events:
			r.write(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, ev notify.Event) {
	if err := r.Record(ctx, ev); err != nil {
		r.logger.Error().Err(err).Str("notification_id", ev.Notification.ID).Msg("failed to archive event")
	}
}

// Record writes one event synchronously: the notification row and, when the
// event carries a task, the latest state of that task.
func (r *Recorder) Record(ctx context.Context, ev notify.Event) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if t := ev.Task; t != nil {
		var completed any
		if t.CompletedAt != nil {
			completed = t.CompletedAt.UTC()
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO tasks (id,type,payload,status,retry_count,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  status=excluded.status,
  retry_count=excluded.retry_count,
  updated_at=excluded.updated_at,
  completed_at=excluded.completed_at
`, t.ID, string(t.Type), t.Payload, string(t.Status), t.RetryCount, t.CreatedAt.UTC(), t.UpdatedAt.UTC(), completed)
		if err != nil {
			return fmt.Errorf("upsert task %s: %w", t.ID, err)
		}
	}

	n := ev.Notification
	var taskID any
	if n.TaskID != "" {
		taskID = n.TaskID
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO notifications (id,ts,type,message,task_id) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO NOTHING
`, n.ID, n.Timestamp.UTC(), string(n.Type), n.Message, taskID)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", n.ID, err)
	}
	return tx.Commit()
}

// ListTasks returns archived tasks, most recently updated first. An empty
// status lists every task.
func (r *Recorder) ListTasks(ctx context.Context, status domain.Status, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,type,payload,status,retry_count,created_at,updated_at,completed_at FROM tasks`
	args := []any{}
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, status)
		}
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		var t domain.Task
		var completed sql.NullTime
		if err := rows.Scan(&t.ID, &t.Type, &t.Payload, &t.Status, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt, &completed); err != nil {
			return nil, err
		}
		if completed.Valid {
			at := completed.Time
			t.CompletedAt = &at
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Recorder) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,type,payload,status,retry_count,created_at,updated_at,completed_at FROM tasks WHERE id = ?`, id)
	var t domain.Task
	var completed sql.NullTime
	err := row.Scan(&t.ID, &t.Type, &t.Payload, &t.Status, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("archived task %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, err
	}
	if completed.Valid {
		at := completed.Time
		t.CompletedAt = &at
	}
	return t, nil
}

// Stats counts archived tasks by their last recorded status.
func (r *Recorder) Stats(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[domain.Status]int{
		domain.StatusPending:    0,
		domain.StatusProcessing: 0,
		domain.StatusCompleted:  0,
		domain.StatusFailed:     0,
	}
	for rows.Next() {
		var status domain.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ListNotifications returns archived notifications, most recent first.
func (r *Recorder) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id,ts,type,message,task_id FROM notifications ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var taskID sql.NullString
		if err := rows.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Message, &taskID); err != nil {
			return nil, err
		}
		n.TaskID = taskID.String
		out = append(out, n)
	}
	return out, rows.Err()
}
