package models

import (
	"encoding/json"
	"time"
)

// Step records one tool invocation in the run timeline.
type Step struct {
	Turn       int             `json:"turn"`
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolResult string          `json:"tool_result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
}

// LLMCall records one model invocation in the run timeline.
type LLMCall struct {
	Turn         int    `json:"turn"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	StopReason   string `json:"stop_reason,omitempty"`
	Streaming    bool   `json:"streaming,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

// OutputFile describes a file produced by a tool during the run.
type OutputFile struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	Path        string `json:"path,omitempty"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// AgentResult is the aggregated outcome of one engine run.
type AgentResult struct {
	Success           bool         `json:"success"`
	Answer            string       `json:"answer"`
	Steps             []Step       `json:"steps"`
	LLMCalls          []LLMCall    `json:"llm_calls"`
	TotalTurns        int          `json:"total_turns"`
	TotalInputTokens  int          `json:"total_input_tokens"`
	TotalOutputTokens int          `json:"total_output_tokens"`
	Error             string       `json:"error,omitempty"`
	SkillsUsed        []string     `json:"skills_used"`
	OutputFiles       []OutputFile `json:"output_files"`
	FinalMessages     []Message    `json:"final_messages"`
}

// Run terminal error tags.
const (
	ErrTagCancelled        = "cancelled"
	ErrTagMaxTurnsExceeded = "max_turns_exceeded"
)
