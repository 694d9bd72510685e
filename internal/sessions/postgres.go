package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/loomlabs/loom/pkg/models"
)

// PostgresStore implements Store on PostgreSQL. Display history and agent
// context are stored as JSONB columns on one row per (agent_id, session_id).
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds connection settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	agent_id      TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	messages      JSONB NOT NULL DEFAULT '[]',
	agent_context JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (agent_id, session_id)
)`

// NewPostgresStore opens the database, verifies connectivity and ensures the
// schema exists.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sessions: dsn is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sessions: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sessionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection (used by tests).
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Load implements Store, inserting an empty row when the session is new.
func (s *PostgresStore) Load(ctx context.Context, agentID, sessionID string) (*models.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (agent_id, session_id)
		VALUES ($1, $2)
		ON CONFLICT (agent_id, session_id) DO UPDATE SET agent_id = sessions.agent_id
		RETURNING messages, agent_context, created_at, updated_at`,
		agentID, sessionID)

	var messagesJSON []byte
	var contextJSON sql.Null[[]byte]
	rec := &models.SessionRecord{AgentID: agentID, SessionID: sessionID}
	if err := row.Scan(&messagesJSON, &contextJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("sessions: load: %w", err)
	}
	if err := json.Unmarshal(messagesJSON, &rec.Messages); err != nil {
		return nil, fmt.Errorf("sessions: decode messages: %w", err)
	}
	if contextJSON.Valid && len(contextJSON.V) > 0 {
		if err := json.Unmarshal(contextJSON.V, &rec.AgentContext); err != nil {
			return nil, fmt.Errorf("sessions: decode agent context: %w", err)
		}
	}
	return rec, nil
}

// AppendDisplay implements Store with a JSONB concatenation so concurrent
// appends from different requests interleave instead of overwriting.
func (s *PostgresStore) AppendDisplay(ctx context.Context, agentID, sessionID string, msgs []models.Message) error {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("sessions: encode messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET messages = messages || $3::jsonb, updated_at = now()
		WHERE agent_id = $1 AND session_id = $2`,
		agentID, sessionID, payload)
	if err != nil {
		return fmt.Errorf("sessions: append display: %w", err)
	}
	return requireRow(res)
}

// SaveCheckpoint implements Store. Last writer wins.
func (s *PostgresStore) SaveCheckpoint(ctx context.Context, agentID, sessionID string, agentContext []models.Message) error {
	payload, err := json.Marshal(agentContext)
	if err != nil {
		return fmt.Errorf("sessions: encode agent context: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET agent_context = $3::jsonb, updated_at = now()
		WHERE agent_id = $1 AND session_id = $2`,
		agentID, sessionID, payload)
	if err != nil {
		return fmt.Errorf("sessions: save checkpoint: %w", err)
	}
	return requireRow(res)
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, agentID, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE agent_id = $1 AND session_id = $2`,
		agentID, sessionID)
	if err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
