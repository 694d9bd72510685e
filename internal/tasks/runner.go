package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loomlabs/loom/pkg/models"
)

// Handler performs the work of one task type. The returned trace id links
// the task to the engine run it wrapped; a non-nil error fails the task.
type Handler func(ctx context.Context, task *models.BackgroundTask) (result json.RawMessage, traceID string, err error)

const defaultQueueSize = 128

// Runner drains submitted tasks on worker goroutines. Status transitions are
// persisted at each step so pollers always see the current state.
type Runner struct {
	store    Store
	logger   *slog.Logger
	queue    chan *models.BackgroundTask
	handlers map[string]Handler

	mu sync.RWMutex
	wg sync.WaitGroup
}

// NewRunner creates a runner over the store.
func NewRunner(store Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    store,
		logger:   logger,
		queue:    make(chan *models.BackgroundTask, defaultQueueSize),
		handlers: map[string]Handler{},
	}
}

// RegisterHandler binds a task type to its handler. Must be called before
// tasks of that type are submitted.
func (r *Runner) RegisterHandler(taskType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = handler
}

// Submit persists a pending task and enqueues it.
func (r *Runner) Submit(ctx context.Context, taskType string, metadata json.RawMessage) (*models.BackgroundTask, error) {
	r.mu.RLock()
	_, ok := r.handlers[taskType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tasks: no handler for task type %q", taskType)
	}

	task := &models.BackgroundTask{
		ID:        uuid.NewString(),
		TaskType:  taskType,
		Status:    models.TaskPending,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, task); err != nil {
		return nil, err
	}

	select {
	case r.queue <- task:
	default:
		return nil, fmt.Errorf("tasks: queue full")
	}
	return task, nil
}

// Start launches worker goroutines that run until ctx is cancelled.
func (r *Runner) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-r.queue:
					r.execute(ctx, task)
				}
			}
		}()
	}
}

// Wait blocks until all workers have stopped.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) execute(ctx context.Context, task *models.BackgroundTask) {
	r.mu.RLock()
	handler := r.handlers[task.TaskType]
	r.mu.RUnlock()

	task.Status = models.TaskRunning
	task.StartedAt = time.Now().UTC()
	if err := r.store.Update(ctx, task); err != nil {
		r.logger.Warn("task update failed", "task_id", task.ID, "error", err)
	}
	r.logger.Info("task started", "task_id", task.ID, "task_type", task.TaskType)

	result, traceID, err := handler(ctx, task)
	task.CompletedAt = time.Now().UTC()
	task.TraceID = traceID
	task.Result = result
	if err != nil {
		task.Status = models.TaskFailed
		task.Error = err.Error()
	} else {
		task.Status = models.TaskCompleted
	}
	if err := r.store.Update(ctx, task); err != nil {
		r.logger.Warn("task update failed", "task_id", task.ID, "error", err)
	}
	r.logger.Info("task finished", "task_id", task.ID, "status", task.Status)
}
