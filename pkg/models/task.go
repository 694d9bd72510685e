package models

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// BackgroundTask wraps a long-running engine invocation (skill creation,
// skill evolution) in a pollable record. Its status mirrors the outcome of
// the trace produced by the wrapped run.
type BackgroundTask struct {
	ID          string          `json:"id"`
	TaskType    string          `json:"task_type"`
	Status      TaskStatus      `json:"status"`
	TraceID     string          `json:"trace_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
}
