package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loomlabs/loom/pkg/models"
)

func newMockSQLStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStoreFromDB(db), mock
}

func TestSQLStoreInsertPendingTask(t *testing.T) {
	store, mock := newMockSQLStore(t)

	task := &models.BackgroundTask{
		ID:        "t1",
		TaskType:  "agent_run",
		Status:    models.TaskPending,
		Metadata:  []byte(`{"request":"hi"}`),
		CreatedAt: time.Now().UTC(),
	}

	// Unset JSON columns persist as the literal "null"; unset timestamps as NULL.
	mock.ExpectExec(`INSERT INTO background_tasks`).
		WithArgs(
			"t1", "agent_run", "pending", "",
			`{"request":"hi"}`, "null", "",
			task.CreatedAt, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Insert(context.Background(), task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLStoreUpdateMissing(t *testing.T) {
	store, mock := newMockSQLStore(t)

	mock.ExpectExec(`UPDATE background_tasks SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), &models.BackgroundTask{ID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLStoreGetDecodesRow(t *testing.T) {
	store, mock := newMockSQLStore(t)

	cols := []string{
		"id", "task_type", "status", "trace_id", "metadata", "result", "error",
		"created_at", "started_at", "completed_at",
	}
	created := time.Now().UTC()
	started := created.Add(time.Second)
	mock.ExpectQuery(`SELECT .+ FROM background_tasks WHERE id = \$1`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"t1", "agent_run", "completed", "trace-9",
			[]byte(`{"request":"hi"}`), []byte(`{"answer":"ok"}`), "",
			created, started, started.Add(time.Second),
		))

	task, err := store.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != models.TaskCompleted || task.TraceID != "trace-9" {
		t.Errorf("task = %+v", task)
	}
	if string(task.Result) != `{"answer":"ok"}` {
		t.Errorf("result = %s", task.Result)
	}
	if task.StartedAt.IsZero() || task.CompletedAt.IsZero() {
		t.Error("timestamps lost in scan")
	}
}

func TestSQLStoreGetNullColumns(t *testing.T) {
	store, mock := newMockSQLStore(t)

	cols := []string{
		"id", "task_type", "status", "trace_id", "metadata", "result", "error",
		"created_at", "started_at", "completed_at",
	}
	mock.ExpectQuery(`SELECT .+ FROM background_tasks WHERE id = \$1`).
		WithArgs("t2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"t2", "agent_run", "pending", "",
			[]byte(`null`), []byte(`null`), "",
			time.Now().UTC(), nil, nil,
		))

	task, err := store.Get(context.Background(), "t2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Metadata != nil || task.Result != nil {
		t.Errorf("null JSON must stay nil: %+v", task)
	}
	if !task.StartedAt.IsZero() || !task.CompletedAt.IsZero() {
		t.Errorf("null timestamps must stay zero: %+v", task)
	}
}
