package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// languageRunners maps execute_code languages to interpreter invocations.
// %s is replaced with the script path.
var languageRunners = map[string]struct {
	extension string
	command   string
}{
	"python":     {".py", "python3 %s"},
	"javascript": {".js", "node %s"},
	"bash":       {".sh", "/bin/sh %s"},
}

// ExecuteCodeTool writes a script into the workspace and runs it with the
// matching interpreter. Files the script creates are reported as new_files.
type ExecuteCodeTool struct {
	workspace string
}

// NewExecuteCodeTool creates a code execution tool rooted at the workspace.
func NewExecuteCodeTool(workspace string) *ExecuteCodeTool {
	return &ExecuteCodeTool{workspace: workspace}
}

func (t *ExecuteCodeTool) Name() string { return "execute_code" }

func (t *ExecuteCodeTool) Description() string {
	return "Execute a code snippet (python, javascript or bash) in the workspace and return its output and any files it created."
}

func (t *ExecuteCodeTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"language": map[string]any{
				"type":        "string",
				"enum":        []string{"python", "javascript", "bash"},
				"description": "Language of the code snippet.",
			},
			"code": map[string]any{
				"type":        "string",
				"description": "Code to execute.",
			},
		},
		"required": []string{"language", "code"},
	})
}

func (t *ExecuteCodeTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Language string `json:"language"`
		Code     string `json:"code"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	runner, ok := languageRunners[input.Language]
	if !ok {
		return Errorf("unsupported language: %s", input.Language), nil
	}
	if input.Code == "" {
		return Errorf("code is required"), nil
	}

	scriptDir := filepath.Join(t.workspace, ".scripts")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		return Errorf("create script dir: %v", err), nil
	}
	scriptPath := filepath.Join(scriptDir, "snippet-"+uuid.NewString()[:8]+runner.extension)
	if err := os.WriteFile(scriptPath, []byte(input.Code), 0o644); err != nil {
		return Errorf("write script: %v", err), nil
	}
	defer os.Remove(scriptPath)

	snapshot := SnapshotDir(t.workspace)
	result := runShell(ctx, t.workspace, fmt.Sprintf(runner.command, scriptPath))
	newFiles := NewFilesSince(t.workspace, snapshot)

	// The transient script itself never counts as output.
	filtered := newFiles[:0]
	for _, f := range newFiles {
		if filepath.Dir(f) != ".scripts" {
			filtered = append(filtered, f)
		}
	}
	result["new_files"] = filtered
	result["language"] = input.Language
	return JSONResult(result), nil
}
