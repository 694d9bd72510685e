package models

import "time"

// SessionRecord is the persistent dual-store for one conversation.
//
// Messages is the append-only user-visible display history: it grows on each
// request and is never compressed or rewritten. AgentContext is the mutable
// working memory the engine actually feeds the model; it may contain summary
// blocks in place of old turns and is replaced wholesale after each request.
// When AgentContext is nil the engine falls back to Messages.
type SessionRecord struct {
	SessionID    string    `json:"session_id"`
	AgentID      string    `json:"agent_id"`
	Messages     []Message `json:"messages"`
	AgentContext []Message `json:"agent_context,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
