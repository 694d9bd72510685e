package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/loomlabs/loom/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql. Postgres backs server
// deployments; the cgo-free sqlite driver backs single-binary local runs.
// Structured fields (steps, llm_calls, skills_used) are stored as JSON text
// so the schema works on both engines.
type SQLStore struct {
	db *sql.DB
}

const tracesSchema = `
CREATE TABLE IF NOT EXISTS traces (
	id                  TEXT PRIMARY KEY,
	request             TEXT NOT NULL,
	skills_used         TEXT NOT NULL DEFAULT '[]',
	model_provider      TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	success             BOOLEAN NOT NULL DEFAULT FALSE,
	answer              TEXT NOT NULL DEFAULT '',
	error               TEXT NOT NULL DEFAULT '',
	total_turns         INTEGER NOT NULL DEFAULT 0,
	total_input_tokens  INTEGER NOT NULL DEFAULT 0,
	total_output_tokens INTEGER NOT NULL DEFAULT 0,
	steps               TEXT NOT NULL DEFAULT '[]',
	llm_calls           TEXT NOT NULL DEFAULT '[]',
	duration_ms         INTEGER NOT NULL DEFAULT 0,
	executor_name       TEXT NOT NULL DEFAULT '',
	session_id          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMP NOT NULL
)`

// NewPostgresStore opens a postgres-backed trace store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	return newSQLStore("postgres", dsn)
}

// NewSQLiteStore opens a sqlite-backed trace store at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return newSQLStore("sqlite", path)
}

// NewSQLStoreFromDB wraps an existing connection (used by tests).
func NewSQLStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func newSQLStore(driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("trace: dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("trace: open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, tracesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: ensure schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// Insert implements Store.
func (s *SQLStore) Insert(ctx context.Context, tr *models.Trace) error {
	skills, steps, calls, err := encodeTimelines(tr)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO traces (
			id, request, skills_used, model_provider, model, status, success,
			answer, error, total_turns, total_input_tokens, total_output_tokens,
			steps, llm_calls, duration_ms, executor_name, session_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		tr.ID, tr.Request, skills, tr.ModelProvider, tr.Model, string(tr.Status), tr.Success,
		tr.Answer, tr.Error, tr.TotalTurns, tr.TotalInputTokens, tr.TotalOutputTokens,
		steps, calls, tr.DurationMS, tr.ExecutorName, tr.SessionID, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("trace: insert: %w", err)
	}
	return nil
}

// Update implements Store.
func (s *SQLStore) Update(ctx context.Context, tr *models.Trace) error {
	skills, steps, calls, err := encodeTimelines(tr)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE traces SET
			skills_used = $2, status = $3, success = $4, answer = $5, error = $6,
			total_turns = $7, total_input_tokens = $8, total_output_tokens = $9,
			steps = $10, llm_calls = $11, duration_ms = $12
		WHERE id = $1`,
		tr.ID, skills, string(tr.Status), tr.Success, tr.Answer, tr.Error,
		tr.TotalTurns, tr.TotalInputTokens, tr.TotalOutputTokens,
		steps, calls, tr.DurationMS)
	if err != nil {
		return fmt.Errorf("trace: update: %w", err)
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
func (s *SQLStore) Get(ctx context.Context, id string) (*models.Trace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request, skills_used, model_provider, model, status, success,
			answer, error, total_turns, total_input_tokens, total_output_tokens,
			steps, llm_calls, duration_ms, executor_name, session_id, created_at
		FROM traces WHERE id = $1`, id)
	tr, err := scanTrace(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return tr, err
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, limit int) ([]*models.Trace, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request, skills_used, model_provider, model, status, success,
			answer, error, total_turns, total_input_tokens, total_output_tokens,
			steps, llm_calls, duration_ms, executor_name, session_id, created_at
		FROM traces ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("trace: list: %w", err)
	}
	defer rows.Close()

	var out []*models.Trace
	for rows.Next() {
		tr, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(row scanner) (*models.Trace, error) {
	var tr models.Trace
	var status string
	var skills, steps, calls []byte
	err := row.Scan(
		&tr.ID, &tr.Request, &skills, &tr.ModelProvider, &tr.Model, &status, &tr.Success,
		&tr.Answer, &tr.Error, &tr.TotalTurns, &tr.TotalInputTokens, &tr.TotalOutputTokens,
		&steps, &calls, &tr.DurationMS, &tr.ExecutorName, &tr.SessionID, &tr.CreatedAt)
	if err != nil {
		return nil, err
	}
	tr.Status = models.TraceStatus(status)
	if err := json.Unmarshal(skills, &tr.SkillsUsed); err != nil {
		return nil, fmt.Errorf("trace: decode skills_used: %w", err)
	}
	if err := json.Unmarshal(steps, &tr.Steps); err != nil {
		return nil, fmt.Errorf("trace: decode steps: %w", err)
	}
	if err := json.Unmarshal(calls, &tr.LLMCalls); err != nil {
		return nil, fmt.Errorf("trace: decode llm_calls: %w", err)
	}
	return &tr, nil
}

func encodeTimelines(tr *models.Trace) (skills, steps, calls []byte, err error) {
	if skills, err = json.Marshal(orEmptyStrings(tr.SkillsUsed)); err != nil {
		return nil, nil, nil, fmt.Errorf("trace: encode skills_used: %w", err)
	}
	if tr.Steps == nil {
		tr.Steps = []models.Step{}
	}
	if steps, err = json.Marshal(tr.Steps); err != nil {
		return nil, nil, nil, fmt.Errorf("trace: encode steps: %w", err)
	}
	if tr.LLMCalls == nil {
		tr.LLMCalls = []models.LLMCall{}
	}
	if calls, err = json.Marshal(tr.LLMCalls); err != nil {
		return nil, nil, nil, fmt.Errorf("trace: encode llm_calls: %w", err)
	}
	return skills, steps, calls, nil
}

func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
