package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loomlabs/loom/pkg/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func TestPostgresLoadDecodesRow(t *testing.T) {
	store, mock := newMockStore(t)

	messages := []models.Message{models.NewUserText("hi"), models.NewAssistantText("hello")}
	messagesJSON, _ := json.Marshal(messages)
	contextJSON, _ := json.Marshal([]models.Message{models.NewUserText("working")})
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO sessions`).
		WithArgs("agent", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"messages", "agent_context", "created_at", "updated_at"}).
			AddRow(messagesJSON, contextJSON, now, now))

	rec, err := store.Load(context.Background(), "agent", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Messages) != 2 || rec.Messages[1].Text() != "hello" {
		t.Errorf("messages = %v", rec.Messages)
	}
	if len(rec.AgentContext) != 1 || rec.AgentContext[0].Text() != "working" {
		t.Errorf("agent context = %v", rec.AgentContext)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresLoadNewSessionHasNullContext(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO sessions`).
		WithArgs("agent", "fresh").
		WillReturnRows(sqlmock.NewRows([]string{"messages", "agent_context", "created_at", "updated_at"}).
			AddRow([]byte(`[]`), nil, now, now))

	rec, err := store.Load(context.Background(), "agent", "fresh")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Messages) != 0 || rec.AgentContext != nil {
		t.Errorf("fresh session = %+v", rec)
	}
}

func TestPostgresAppendDisplayConcatenatesJSONB(t *testing.T) {
	store, mock := newMockStore(t)

	msgs := []models.Message{models.NewUserText("q"), models.NewAssistantText("a")}
	payload, _ := json.Marshal(msgs)

	mock.ExpectExec(`UPDATE sessions\s+SET messages = messages \|\| \$3::jsonb`).
		WithArgs("agent", "s1", payload).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.AppendDisplay(context.Background(), "agent", "s1", msgs); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAppendDisplayMissingSession(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.AppendDisplay(context.Background(), "agent", "gone", []models.Message{models.NewUserText("q")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresSaveCheckpointReplacesContext(t *testing.T) {
	store, mock := newMockStore(t)

	working := []models.Message{models.NewUserText("compressed")}
	payload, _ := json.Marshal(working)

	mock.ExpectExec(`UPDATE sessions\s+SET agent_context = \$3::jsonb`).
		WithArgs("agent", "s1", payload).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveCheckpoint(context.Background(), "agent", "s1", working); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("agent", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Delete(context.Background(), "agent", "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("agent", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Delete(context.Background(), "agent", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
