package trace

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loomlabs/loom/pkg/models"
)

// Recorder creates the running trace row before a run starts and finalizes
// it when the run ends. Store failures are logged, never fatal to the run.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a recorder over the store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Begin inserts a running trace row and returns it. Callers can poll the id
// immediately, before the turn loop makes progress.
func (r *Recorder) Begin(ctx context.Context, request, provider, model, executorName, sessionID string) *models.Trace {
	tr := &models.Trace{
		ID:            uuid.NewString(),
		Request:       request,
		ModelProvider: provider,
		Model:         model,
		Status:        models.TraceRunning,
		ExecutorName:  executorName,
		SessionID:     sessionID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, tr); err != nil {
		r.logger.Warn("trace insert failed", "trace_id", tr.ID, "error", err)
	}
	return tr
}

// Finish finalizes the trace row from the run result.
func (r *Recorder) Finish(ctx context.Context, tr *models.Trace, result *models.AgentResult, started time.Time) {
	tr.Status = models.TraceCompleted
	if !result.Success {
		tr.Status = models.TraceFailed
	}
	tr.Success = result.Success
	tr.Answer = result.Answer
	tr.Error = result.Error
	tr.TotalTurns = result.TotalTurns
	tr.TotalInputTokens = result.TotalInputTokens
	tr.TotalOutputTokens = result.TotalOutputTokens
	tr.Steps = result.Steps
	tr.LLMCalls = result.LLMCalls
	tr.SkillsUsed = result.SkillsUsed
	tr.DurationMS = time.Since(started).Milliseconds()

	if err := r.store.Update(ctx, tr); err != nil {
		r.logger.Warn("trace update failed", "trace_id", tr.ID, "error", err)
	}
}
