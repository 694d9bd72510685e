// Package trace records one durable audit row per engine run. The row is
// inserted with status running before the turn loop starts and finalized
// with the outcome when the run ends, so a crash mid-run leaves a visible
// running row rather than nothing.
package trace

import (
	"context"
	"errors"

	"github.com/loomlabs/loom/pkg/models"
)

// ErrNotFound is returned when a trace id does not exist.
var ErrNotFound = errors.New("trace not found")

// Store persists traces.
type Store interface {
	// Insert creates the trace row.
	Insert(ctx context.Context, tr *models.Trace) error

	// Update replaces the trace row by id.
	Update(ctx context.Context, tr *models.Trace) error

	// Get returns the trace by id.
	Get(ctx context.Context, id string) (*models.Trace, error)

	// List returns recent traces, newest first.
	List(ctx context.Context, limit int) ([]*models.Trace, error)
}
