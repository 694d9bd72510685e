package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/pkg/models"
)

// AgentTaskMetadata is the metadata payload for engine-backed tasks.
type AgentTaskMetadata struct {
	Request            string   `json:"request"`
	ModelProvider      string   `json:"model_provider,omitempty"`
	Model              string   `json:"model,omitempty"`
	MaxTurns           int      `json:"max_turns,omitempty"`
	SessionID          string   `json:"session_id,omitempty"`
	SkillsAllowlist    []string `json:"skills_allowlist,omitempty"`
	ToolsAllowlist     []string `json:"tools_allowlist,omitempty"`
	CustomSystemPrompt string   `json:"custom_system_prompt,omitempty"`
	ExecutorName       string   `json:"executor_name,omitempty"`
}

// AgentHandler wraps an engine run as a task handler. The task result is the
// serialized AgentResult; the task status mirrors the run outcome.
func AgentHandler(a *agent.Agent) Handler {
	return func(ctx context.Context, task *models.BackgroundTask) (json.RawMessage, string, error) {
		var meta AgentTaskMetadata
		if err := json.Unmarshal(task.Metadata, &meta); err != nil {
			return nil, "", fmt.Errorf("decode task metadata: %w", err)
		}
		if meta.Request == "" {
			return nil, "", errors.New("task metadata has no request")
		}

		// Drain a stream to capture the trace id from run_started.
		stream := agent.NewEventStream()
		var traceID string
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for event := range stream.Events() {
				if event.Type == models.EventRunStarted {
					traceID, _ = event.Data["trace_id"].(string)
				}
			}
		}()

		result := a.Run(ctx, meta.Request, agent.RunOptions{
			ModelProvider:      meta.ModelProvider,
			Model:              meta.Model,
			MaxTurns:           meta.MaxTurns,
			SessionID:          meta.SessionID,
			SkillsAllowlist:    meta.SkillsAllowlist,
			ToolsAllowlist:     meta.ToolsAllowlist,
			CustomSystemPrompt: meta.CustomSystemPrompt,
			ExecutorName:       meta.ExecutorName,
		}, stream)
		<-drained

		payload, err := json.Marshal(result)
		if err != nil {
			return nil, traceID, fmt.Errorf("encode task result: %w", err)
		}
		if !result.Success {
			errMsg := result.Error
			if errMsg == "" {
				errMsg = "run did not succeed"
			}
			return payload, traceID, errors.New(errMsg)
		}
		return payload, traceID, nil
	}
}
