package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path inside the workspace root.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return targetAbs, nil
}

// FileConfig controls filesystem tool defaults.
type FileConfig struct {
	Workspace    string
	MaxReadBytes int
}

// ReadTool reads files from the workspace.
type ReadTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg FileConfig) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200000
	}
	return &ReadTool{resolver: Resolver{Root: cfg.Workspace}, maxBytes: limit}
}

func (t *ReadTool) Name() string { return "read" }

func (t *ReadTool) Description() string {
	return "Read a file from the workspace with optional offset and byte limit."
}

func (t *ReadTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file (relative to workspace).",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Byte offset to start reading from (default: 0).",
				"minimum":     0,
			},
			"max_bytes": map[string]any{
				"type":        "integer",
				"description": "Maximum bytes to read (capped by tool default).",
				"minimum":     0,
			},
		},
		"required": []string{"path"},
	})
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return Errorf("%v", err), nil
	}
	file, err := os.Open(resolved)
	if err != nil {
		return Errorf("open file: %v", err), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Errorf("stat file: %v", err), nil
	}
	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return Errorf("seek file: %v", err), nil
		}
	}
	limit := t.maxBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return Errorf("read file: %v", err), nil
	}
	return JSONResult(map[string]any{
		"path":      input.Path,
		"content":   string(buf),
		"offset":    input.Offset,
		"bytes":     len(buf),
		"truncated": input.Offset+int64(len(buf)) < info.Size(),
	}), nil
}

// WriteTool creates or overwrites workspace files.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg FileConfig) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string { return "write" }

func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace, creating parent directories as needed."
}

func (t *WriteTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file (relative to workspace).",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full file content to write.",
			},
		},
		"required": []string{"path", "content"},
	})
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return Errorf("%v", err), nil
	}
	_, statErr := os.Stat(resolved)
	created := os.IsNotExist(statErr)

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return Errorf("create directories: %v", err), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return Errorf("write file: %v", err), nil
	}
	result := map[string]any{
		"path":  input.Path,
		"bytes": len(input.Content),
	}
	// New files are harvested by the run loop as output files.
	if created {
		result["new_files"] = []string{input.Path}
	}
	return JSONResult(result), nil
}

// EditTool performs exact string replacement in a workspace file.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg FileConfig) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditTool) Name() string { return "edit" }

func (t *EditTool) Description() string {
	return "Replace an exact string in a workspace file. The old string must appear exactly once unless replace_all is set."
}

func (t *EditTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file (relative to workspace).",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "Exact text to replace.",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "Replacement text.",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace every occurrence instead of requiring a unique match.",
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	})
}

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Path       string `json:"path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	if input.OldString == "" {
		return Errorf("old_string is required"), nil
	}
	if input.OldString == input.NewString {
		return Errorf("old_string and new_string are identical"), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return Errorf("%v", err), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Errorf("read file: %v", err), nil
	}
	content := string(data)
	count := strings.Count(content, input.OldString)
	if count == 0 {
		return Errorf("old_string not found in %s", input.Path), nil
	}
	if count > 1 && !input.ReplaceAll {
		return Errorf("old_string appears %d times in %s; pass replace_all or make it unique", count, input.Path), nil
	}
	replacements := 1
	if input.ReplaceAll {
		replacements = count
	}
	content = strings.Replace(content, input.OldString, input.NewString, replacements)
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return Errorf("write file: %v", err), nil
	}
	return JSONResult(map[string]any{
		"path":         input.Path,
		"replacements": replacements,
	}), nil
}

// GlobTool matches workspace files against a glob pattern.
type GlobTool struct {
	resolver Resolver
}

// NewGlobTool creates a glob tool scoped to the workspace.
func NewGlobTool(cfg FileConfig) *GlobTool {
	return &GlobTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *GlobTool) Name() string { return "glob" }

func (t *GlobTool) Description() string {
	return "Find workspace files matching a glob pattern. Supports ** for recursive matches."
}

func (t *GlobTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern, e.g. **/*.go or data/*.csv.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum matches to return (default: 200).",
				"minimum":     0,
			},
		},
		"required": []string{"pattern"},
	})
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Limit   int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return Errorf("pattern is required"), nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 200
	}
	root, err := t.resolver.Resolve(".")
	if err != nil {
		return Errorf("%v", err), nil
	}
	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		if len(matches) >= limit {
			return fs.SkipAll
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if matchGlob(input.Pattern, filepath.ToSlash(rel)) {
			matches = append(matches, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return Errorf("walk workspace: %v", err), nil
	}
	return JSONResult(map[string]any{
		"pattern": input.Pattern,
		"matches": matches,
		"count":   len(matches),
	}), nil
}

// matchGlob matches a slash-separated relative path against a pattern where
// ** crosses directory boundaries and * stays within one segment.
func matchGlob(pattern, path string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

// GrepTool searches workspace file contents with a regular expression.
type GrepTool struct {
	resolver Resolver
}

// NewGrepTool creates a grep tool scoped to the workspace.
func NewGrepTool(cfg FileConfig) *GrepTool {
	return &GrepTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Search workspace file contents with a Go regular expression and return matching lines."
}

func (t *GrepTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Go regular expression to search for.",
			},
			"glob": map[string]any{
				"type":        "string",
				"description": "Optional glob restricting which files are searched.",
			},
			"max_matches": map[string]any{
				"type":        "integer",
				"description": "Maximum matching lines to return (default: 100).",
				"minimum":     0,
			},
		},
		"required": []string{"pattern"},
	})
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Pattern    string `json:"pattern"`
		Glob       string `json:"glob"`
		MaxMatches int    `json:"max_matches"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return Errorf("invalid pattern: %v", err), nil
	}
	limit := input.MaxMatches
	if limit <= 0 {
		limit = 100
	}
	root, err := t.resolver.Resolve(".")
	if err != nil {
		return Errorf("%v", err), nil
	}

	type match struct {
		File string `json:"file"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var matches []match
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		if len(matches) >= limit {
			return fs.SkipAll
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if input.Glob != "" && !matchGlob(input.Glob, rel) {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if len(matches) >= limit {
				break
			}
			if re.MatchString(line) {
				text := line
				if len(text) > 500 {
					text = text[:500]
				}
				matches = append(matches, match{File: rel, Line: i + 1, Text: text})
			}
		}
		return nil
	})
	if err != nil {
		return Errorf("walk workspace: %v", err), nil
	}
	return JSONResult(map[string]any{
		"pattern": input.Pattern,
		"matches": matches,
		"count":   len(matches),
	}), nil
}
