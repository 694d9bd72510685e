package agent

import (
	"github.com/loomlabs/loom/internal/tools"
	"github.com/loomlabs/loom/pkg/models"
)

// Turn budget bounds. MaxTurns outside [MinTurns, MaxTurnsCeiling] is clamped.
const (
	DefaultMaxTurns = 60
	MinTurns        = 1
	MaxTurnsCeiling = 60000
)

// RunOptions configures one engine run.
type RunOptions struct {
	// MaxTurns bounds the loop. Zero means DefaultMaxTurns.
	MaxTurns int

	// ModelProvider and Model select the LLM backend and its context limit.
	ModelProvider string
	Model         string

	// ConversationHistory seeds the message list before the new request.
	ConversationHistory []models.Message

	// ImageContents are provider-format image blocks attached to the request.
	ImageContents []models.ImageBlock

	// SkillsAllowlist restricts which skills list_skills/get_skill expose.
	// Nil means all.
	SkillsAllowlist []string

	// ToolsAllowlist restricts the builtin tool set. Nil means all. MCP
	// tools from equipped servers always pass through.
	ToolsAllowlist []string

	// MCPServers equips remote toolsets for this run.
	MCPServers []tools.MCPConfig

	// CustomSystemPrompt is appended to the base system prompt.
	CustomSystemPrompt string

	// ExecutorName selects a remote code-execution target, recorded on the
	// trace.
	ExecutorName string

	// SessionID continues a stored conversation. Empty runs statelessly.
	SessionID string

	// AgentID namespaces the session. Defaults to "default".
	AgentID string

	// MaxTokens caps each LLM response. Zero means the engine default.
	MaxTokens int
}

// clampTurns applies the default and the [MinTurns, MaxTurnsCeiling] bound.
func clampTurns(n int) int {
	if n == 0 {
		return DefaultMaxTurns
	}
	if n < MinTurns {
		return MinTurns
	}
	if n > MaxTurnsCeiling {
		return MaxTurnsCeiling
	}
	return n
}

func (o *RunOptions) agentID() string {
	if o.AgentID == "" {
		return "default"
	}
	return o.AgentID
}
