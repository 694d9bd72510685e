package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/loomlabs/loom/internal/llm"
)

// Parameter limits applied before dispatch.
const (
	// MaxToolNameLength bounds tool names.
	MaxToolNameLength = 256

	// MaxToolParamsSize bounds tool parameter JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// Registry manages available tools with thread-safe registration, lookup and
// schema-validated execution.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the registry as LLM tool specs, sorted by name for a stable
// prompt layout.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Filtered returns a new registry containing only the allowed names. A nil
// allowlist keeps everything. The result is always an independent copy, so
// per-run registrations on it never reach the source registry.
func (r *Registry) Filtered(allowed []string) *Registry {
	var allowSet map[string]bool
	if allowed != nil {
		allowSet = make(map[string]bool, len(allowed))
		for _, name := range allowed {
			allowSet[name] = true
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewRegistry()
	for name, tool := range r.tools {
		if allowSet == nil || allowSet[name] {
			out.tools[name] = tool
		}
	}
	return out
}

// Execute validates params against the tool's schema and runs it. Unknown
// tools and invalid parameters become error results so the model can recover.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	if len(name) > MaxToolNameLength {
		return Errorf("tool name exceeds maximum length of %d characters", MaxToolNameLength), nil
	}
	if len(params) > MaxToolParamsSize {
		return Errorf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize), nil
	}
	tool, ok := r.Get(name)
	if !ok {
		return Errorf("tool not found: %s", name), nil
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := validateParams(tool.Schema(), params); err != nil {
		return Errorf("invalid parameters for %s: %v", name, err), nil
	}
	return tool.Execute(ctx, params)
}

var schemaCache sync.Map

// validateParams checks params against the tool schema, compiled once per
// distinct schema.
func validateParams(schema json.RawMessage, params json.RawMessage) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return compiled.Validate(decoded)
}

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
