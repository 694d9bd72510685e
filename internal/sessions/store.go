// Package sessions persists the dual conversation state: the append-only
// display history the user sees, and the mutable agent context the engine
// feeds the LLM. Display messages never shrink and never contain summaries;
// the agent context is replaced wholesale at each checkpoint.
package sessions

import (
	"context"
	"errors"

	"github.com/loomlabs/loom/pkg/models"
)

// ErrNotFound is returned for lookups of sessions that do not exist. Load
// never returns it; Load creates missing sessions.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence.
type Store interface {
	// Load returns the session, creating an empty one when missing.
	Load(ctx context.Context, agentID, sessionID string) (*models.SessionRecord, error)

	// AppendDisplay appends messages to the display history. Append-only.
	AppendDisplay(ctx context.Context, agentID, sessionID string, msgs []models.Message) error

	// SaveCheckpoint replaces the agent context. Last writer wins.
	SaveCheckpoint(ctx context.Context, agentID, sessionID string, agentContext []models.Message) error

	// Delete removes the session.
	Delete(ctx context.Context, agentID, sessionID string) error
}

// WorkingContext returns the message list the engine should feed the LLM:
// the checkpointed agent context when set, the display history otherwise.
func WorkingContext(rec *models.SessionRecord) []models.Message {
	if len(rec.AgentContext) > 0 {
		return rec.AgentContext
	}
	return rec.Messages
}
