// Package tools implements the tool catalog and invoker: builtin tools for
// skills, files, shell, code execution and web access, MCP toolsets, schema
// validation on dispatch, and per-request scratch workspaces.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one capability offered to the model.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Tool failures are reported via Result.IsError,
	// not the error return; a non-nil error means the invocation machinery
	// itself broke.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is the output of one tool execution.
type Result struct {
	// Content is the tool output serialized for the model.
	Content string `json:"content"`

	// IsError marks the result as a failure the model should react to.
	IsError bool `json:"is_error,omitempty"`
}

// Errorf builds an error result with a JSON error payload.
func Errorf(format string, args ...any) *Result {
	message := fmt.Sprintf(format, args...)
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &Result{Content: message, IsError: true}
	}
	return &Result{Content: string(payload), IsError: true}
}

// JSONResult marshals v as an indented JSON result.
func JSONResult(v any) *Result {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Errorf("encode result: %v", err)
	}
	return &Result{Content: string(payload)}
}

func mustSchema(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
