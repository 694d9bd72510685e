package sessions

import (
	"context"
	"log/slog"

	"github.com/loomlabs/loom/internal/compressor"
)

// PreCompressIfNeeded compresses the loaded agent context once up-front when
// its estimated size predicts a threshold crossing on the next LLM call, and
// persists the compressed context. Returns the summary token cost. Failures
// are non-fatal for the caller; the turn loop compresses again mid-run if
// needed.
func PreCompressIfNeeded(ctx context.Context, store Store, comp *compressor.Compressor, agentID, sessionID string, contextLimit int, logger *slog.Logger) (tokensIn, tokensOut int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	rec, err := store.Load(ctx, agentID, sessionID)
	if err != nil {
		return 0, 0, err
	}
	working := WorkingContext(rec)
	estimated := compressor.EstimateTokens(working)
	if !compressor.ShouldCompress(estimated, contextLimit) {
		return 0, 0, nil
	}

	result, err := comp.Compress(ctx, working, contextLimit)
	if err != nil || !result.Compressed {
		return 0, 0, err
	}
	if err := store.SaveCheckpoint(ctx, agentID, sessionID, result.Messages); err != nil {
		logger.Warn("pre-compression checkpoint failed", "session_id", sessionID, "error", err)
		return result.SummaryTokensIn, result.SummaryTokensOut, err
	}
	logger.Info("pre-compressed session context",
		"session_id", sessionID,
		"estimated_tokens", estimated,
		"context_limit", contextLimit)
	return result.SummaryTokensIn, result.SummaryTokensOut, nil
}
