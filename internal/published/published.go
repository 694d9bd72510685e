// Package published exposes preset-bound chat agents. A preset pins the
// model, tool and skill allowlists, and the transport mode; the front
// resolves it, enforces publication and transport, and drives the engine.
package published

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/internal/tools"
	"github.com/loomlabs/loom/pkg/models"
)

// ResponseMode selects the transport a published preset serves.
type ResponseMode string

const (
	// ModeStreaming serves SSE only.
	ModeStreaming ResponseMode = "streaming"

	// ModeSync serves request/response only.
	ModeSync ResponseMode = "sync"
)

// Typed rejection errors, mapped to 4xx by the transport layer.
var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrNotPublished   = errors.New("preset is not published")
)

// TransportError rejects a request whose transport does not match the
// preset's response mode.
type TransportError struct {
	PresetID string
	Want     ResponseMode
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("preset %s only serves %s requests", e.PresetID, e.Want)
}

// Preset is a published agent configuration.
type Preset struct {
	ID                 string            `json:"id" yaml:"id"`
	Name               string            `json:"name" yaml:"name"`
	Published          bool              `json:"published" yaml:"published"`
	APIResponseMode    ResponseMode      `json:"api_response_mode" yaml:"api_response_mode"`
	ModelProvider      string            `json:"model_provider,omitempty" yaml:"model_provider"`
	Model              string            `json:"model,omitempty" yaml:"model"`
	MaxTurns           int               `json:"max_turns,omitempty" yaml:"max_turns"`
	SkillsAllowlist    []string          `json:"skills_allowlist,omitempty" yaml:"skills_allowlist"`
	ToolsAllowlist     []string          `json:"tools_allowlist,omitempty" yaml:"tools_allowlist"`
	MCPServers         []tools.MCPConfig `json:"mcp_servers,omitempty" yaml:"mcp_servers"`
	CustomSystemPrompt string            `json:"custom_system_prompt,omitempty" yaml:"custom_system_prompt"`
	ExecutorName       string            `json:"executor_name,omitempty" yaml:"executor_name"`
}

// PresetStore resolves presets by id.
type PresetStore interface {
	Get(ctx context.Context, id string) (*Preset, error)
	List(ctx context.Context) ([]*Preset, error)
}

// MemoryPresetStore is an in-memory PresetStore.
type MemoryPresetStore struct {
	mu      sync.RWMutex
	presets map[string]*Preset
}

// NewMemoryPresetStore creates a store seeded with the given presets.
func NewMemoryPresetStore(presets ...*Preset) *MemoryPresetStore {
	s := &MemoryPresetStore{presets: map[string]*Preset{}}
	for _, p := range presets {
		s.presets[p.ID] = p
	}
	return s
}

// Put adds or replaces a preset.
func (s *MemoryPresetStore) Put(p *Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[p.ID] = p
}

// Get implements PresetStore.
func (s *MemoryPresetStore) Get(ctx context.Context, id string) (*Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[id]
	if !ok {
		return nil, ErrPresetNotFound
	}
	clone := *p
	return &clone, nil
}

// List implements PresetStore.
func (s *MemoryPresetStore) List(ctx context.Context) ([]*Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Preset, 0, len(s.presets))
	for _, p := range s.presets {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Front serves chat requests against published presets.
type Front struct {
	presets PresetStore
	agent   *agent.Agent
	logger  *slog.Logger
}

// NewFront creates a published chat front.
func NewFront(presets PresetStore, a *agent.Agent, logger *slog.Logger) *Front {
	if logger == nil {
		logger = slog.Default()
	}
	return &Front{presets: presets, agent: a, logger: logger}
}

// resolve returns the preset after the publication and transport checks.
func (f *Front) resolve(ctx context.Context, presetID string, streaming bool) (*Preset, error) {
	preset, err := f.presets.Get(ctx, presetID)
	if err != nil {
		return nil, err
	}
	if !preset.Published {
		return nil, ErrNotPublished
	}
	switch preset.APIResponseMode {
	case ModeStreaming:
		if !streaming {
			return nil, &TransportError{PresetID: presetID, Want: ModeStreaming}
		}
	case ModeSync:
		if streaming {
			return nil, &TransportError{PresetID: presetID, Want: ModeSync}
		}
	}
	return preset, nil
}

func (f *Front) options(preset *Preset, sessionID string) agent.RunOptions {
	return agent.RunOptions{
		MaxTurns:           preset.MaxTurns,
		ModelProvider:      preset.ModelProvider,
		Model:              preset.Model,
		SkillsAllowlist:    preset.SkillsAllowlist,
		ToolsAllowlist:     preset.ToolsAllowlist,
		MCPServers:         preset.MCPServers,
		CustomSystemPrompt: preset.CustomSystemPrompt,
		ExecutorName:       preset.ExecutorName,
		SessionID:          sessionID,
		AgentID:            preset.ID,
	}
}

// Chat runs a non-streaming request against a published preset.
func (f *Front) Chat(ctx context.Context, presetID, sessionID, request string) (*models.AgentResult, error) {
	preset, err := f.resolve(ctx, presetID, false)
	if err != nil {
		return nil, err
	}
	f.logger.Info("published chat", "preset_id", presetID, "session_id", sessionID)
	return f.agent.Run(ctx, request, f.options(preset, sessionID), nil), nil
}

// ChatStream runs a streaming request against a published preset. Events
// arrive on the returned stream; the final result is delivered on the
// returned channel after the stream closes.
func (f *Front) ChatStream(ctx context.Context, presetID, sessionID, request string) (*agent.EventStream, <-chan *models.AgentResult, error) {
	preset, err := f.resolve(ctx, presetID, true)
	if err != nil {
		return nil, nil, err
	}
	f.logger.Info("published chat stream", "preset_id", presetID, "session_id", sessionID)

	stream := agent.NewEventStream()
	done := make(chan *models.AgentResult, 1)
	go func() {
		done <- f.agent.Run(ctx, request, f.options(preset, sessionID), stream)
		close(done)
	}()
	return stream, done, nil
}
