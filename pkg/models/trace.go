package models

import "time"

// TraceStatus is the lifecycle state of a trace row.
type TraceStatus string

const (
	TraceRunning   TraceStatus = "running"
	TraceCompleted TraceStatus = "completed"
	TraceFailed    TraceStatus = "failed"
)

// Trace is the persistent audit record of one engine run. The row is created
// before the turn loop starts so callers can poll by id immediately, and is
// updated with the outcome, token totals, and timelines on completion.
type Trace struct {
	ID                string      `json:"id"`
	Request           string      `json:"request"`
	SkillsUsed        []string    `json:"skills_used"`
	ModelProvider     string      `json:"model_provider"`
	Model             string      `json:"model"`
	Status            TraceStatus `json:"status"`
	Success           bool        `json:"success"`
	Answer            string      `json:"answer,omitempty"`
	Error             string      `json:"error,omitempty"`
	TotalTurns        int         `json:"total_turns"`
	TotalInputTokens  int         `json:"total_input_tokens"`
	TotalOutputTokens int         `json:"total_output_tokens"`
	Steps             []Step      `json:"steps"`
	LLMCalls          []LLMCall   `json:"llm_calls"`
	DurationMS        int64       `json:"duration_ms"`
	ExecutorName      string      `json:"executor_name,omitempty"`
	SessionID         string      `json:"session_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}
