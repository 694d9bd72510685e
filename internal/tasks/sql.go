package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/loomlabs/loom/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql, sharing the portable-schema
// approach of the trace store: JSON columns as TEXT, so postgres and the
// cgo-free sqlite driver both work.
type SQLStore struct {
	db *sql.DB
}

const tasksSchema = `
CREATE TABLE IF NOT EXISTS background_tasks (
	id           TEXT PRIMARY KEY,
	task_type    TEXT NOT NULL,
	status       TEXT NOT NULL,
	trace_id     TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT 'null',
	result       TEXT NOT NULL DEFAULT 'null',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP
)`

// NewPostgresStore opens a postgres-backed task store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	return newSQLStore("postgres", dsn)
}

// NewSQLiteStore opens a sqlite-backed task store at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return newSQLStore("sqlite", path)
}

// NewSQLStoreFromDB wraps an existing connection (used by tests).
func NewSQLStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func newSQLStore(driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("tasks: dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("tasks: open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("tasks: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, tasksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("tasks: ensure schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// Insert implements Store.
func (s *SQLStore) Insert(ctx context.Context, task *models.BackgroundTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO background_tasks (
			id, task_type, status, trace_id, metadata, result, error,
			created_at, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		task.ID, task.TaskType, string(task.Status), task.TraceID,
		jsonOrNull(task.Metadata), jsonOrNull(task.Result), task.Error,
		task.CreatedAt, nullTime(task.StartedAt), nullTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("tasks: insert: %w", err)
	}
	return nil
}

// Update implements Store.
func (s *SQLStore) Update(ctx context.Context, task *models.BackgroundTask) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_tasks SET
			status = $2, trace_id = $3, metadata = $4, result = $5, error = $6,
			started_at = $7, completed_at = $8
		WHERE id = $1`,
		task.ID, string(task.Status), task.TraceID,
		jsonOrNull(task.Metadata), jsonOrNull(task.Result), task.Error,
		nullTime(task.StartedAt), nullTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("tasks: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_type, status, trace_id, metadata, result, error,
			created_at, started_at, completed_at
		FROM background_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return task, err
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, limit int) ([]*models.BackgroundTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_type, status, trace_id, metadata, result, error,
			created_at, started_at, completed_at
		FROM background_tasks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}
	defer rows.Close()

	var out []*models.BackgroundTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.BackgroundTask, error) {
	var task models.BackgroundTask
	var status string
	var metadata, result []byte
	var started, completed sql.NullTime
	err := row.Scan(
		&task.ID, &task.TaskType, &status, &task.TraceID, &metadata, &result,
		&task.Error, &task.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	if string(metadata) != "null" {
		task.Metadata = metadata
	}
	if string(result) != "null" {
		task.Result = result
	}
	if started.Valid {
		task.StartedAt = started.Time
	}
	if completed.Valid {
		task.CompletedAt = completed.Time
	}
	return &task, nil
}

func jsonOrNull(raw []byte) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
