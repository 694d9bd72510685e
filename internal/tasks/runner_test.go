package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/loomlabs/loom/pkg/models"
)

func waitForStatus(t *testing.T, store Store, id string, want models.TaskStatus) *models.BackgroundTask {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
	return nil
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	runner := NewRunner(NewMemoryStore(), nil)
	_, err := runner.Submit(context.Background(), "mystery", nil)
	if err == nil {
		t.Fatal("unknown task type must be rejected before persistence")
	}
}

func TestRunnerCompletesTask(t *testing.T) {
	store := NewMemoryStore()
	runner := NewRunner(store, nil)
	runner.RegisterHandler("echo", func(ctx context.Context, task *models.BackgroundTask) (json.RawMessage, string, error) {
		return json.RawMessage(`{"echoed":true}`), "trace-1", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx, 1)

	task, err := runner.Submit(ctx, "echo", json.RawMessage(`{"input":"x"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Status != models.TaskPending {
		t.Errorf("submitted status = %s", task.Status)
	}

	done := waitForStatus(t, store, task.ID, models.TaskCompleted)
	if done.TraceID != "trace-1" {
		t.Errorf("trace_id = %q", done.TraceID)
	}
	if string(done.Result) != `{"echoed":true}` {
		t.Errorf("result = %s", done.Result)
	}
	if done.StartedAt.IsZero() || done.CompletedAt.IsZero() {
		t.Error("timestamps not recorded")
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := NewMemoryStore()
	runner := NewRunner(store, nil)
	runner.RegisterHandler("boom", func(ctx context.Context, task *models.BackgroundTask) (json.RawMessage, string, error) {
		// Handlers return their partial result alongside the error.
		return json.RawMessage(`{"partial":true}`), "trace-2", errors.New("run failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx, 1)

	task, err := runner.Submit(ctx, "boom", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	failed := waitForStatus(t, store, task.ID, models.TaskFailed)
	if failed.Error != "run failed" {
		t.Errorf("error = %q", failed.Error)
	}
	if string(failed.Result) != `{"partial":true}` {
		t.Errorf("failed task must keep its result: %s", failed.Result)
	}
	if failed.TraceID != "trace-2" {
		t.Errorf("trace_id = %q", failed.TraceID)
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		store.Insert(ctx, &models.BackgroundTask{
			ID:        string(rune('a' + i)),
			TaskType:  "echo",
			Status:    models.TaskPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	out, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].ID != "c" || out[1].ID != "b" {
		t.Errorf("list = %v", out)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
