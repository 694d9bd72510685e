package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"
)

const maxShellOutputBytes = 100_000

// BashTool runs shell commands inside the workspace.
type BashTool struct {
	workspace string
}

// NewBashTool creates a bash tool rooted at the workspace.
func NewBashTool(workspace string) *BashTool {
	return &BashTool{workspace: workspace}
}

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Run a shell command in the workspace and return stdout, stderr and exit code."
}

func (t *BashTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (default: tool timeout).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	})
}

func (t *BashTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return Errorf("command is required"), nil
	}
	runCtx := ctx
	if input.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	snapshot := SnapshotDir(t.workspace)
	result := runShell(runCtx, t.workspace, command)
	result["new_files"] = NewFilesSince(t.workspace, snapshot)
	return JSONResult(result), nil
}

// runShell executes a command under /bin/sh with capped output buffers.
func runShell(ctx context.Context, dir, command string) map[string]any {
	start := time.Now()
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	result := map[string]any{
		"stdout":      capOutput(stdout.String()),
		"stderr":      capOutput(stderr.String()),
		"exit_code":   exitCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if ctx.Err() == context.DeadlineExceeded {
		result["timed_out"] = true
	} else if err != nil && exitCode == -1 {
		result["error"] = err.Error()
	}
	return result
}

func capOutput(s string) string {
	if len(s) > maxShellOutputBytes {
		return s[:maxShellOutputBytes] + "\n... [output truncated]"
	}
	return s
}
