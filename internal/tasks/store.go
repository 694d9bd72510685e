// Package tasks wraps long-running engine invocations in pollable
// background task records. A task moves pending → running → completed or
// failed; its terminal status mirrors the outcome of the trace produced by
// the wrapped run.
package tasks

import (
	"context"
	"errors"

	"github.com/loomlabs/loom/pkg/models"
)

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Store persists background tasks.
type Store interface {
	// Insert creates the task row.
	Insert(ctx context.Context, task *models.BackgroundTask) error

	// Update replaces the task row by id.
	Update(ctx context.Context, task *models.BackgroundTask) error

	// Get returns the task by id.
	Get(ctx context.Context, id string) (*models.BackgroundTask, error)

	// List returns recent tasks, newest first.
	List(ctx context.Context, limit int) ([]*models.BackgroundTask, error)
}
