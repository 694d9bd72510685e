package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/loomlabs/loom/internal/skills"
)

// ListSkillsTool lists the skill catalog.
type ListSkillsTool struct {
	registry skills.Registry
	allowed  map[string]bool
}

// NewListSkillsTool creates a list_skills tool. A non-nil allowlist hides
// skills outside it.
func NewListSkillsTool(registry skills.Registry, allowlist []string) *ListSkillsTool {
	return &ListSkillsTool{registry: registry, allowed: allowSet(allowlist)}
}

func (t *ListSkillsTool) Name() string { return "list_skills" }

func (t *ListSkillsTool) Description() string {
	return "List available skills with their names and descriptions."
}

func (t *ListSkillsTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
}

func (t *ListSkillsTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	list, err := t.registry.List(ctx)
	if err != nil {
		return Errorf("list skills: %v", err), nil
	}
	filtered := make([]skills.Skill, 0, len(list))
	for _, s := range list {
		if t.allowed == nil || t.allowed[s.Name] {
			filtered = append(filtered, s)
		}
	}
	return JSONResult(map[string]any{"skills": filtered}), nil
}

// GetSkillTool fetches the full content of one skill. Fetches are recorded so
// the run result can report which skills were used.
type GetSkillTool struct {
	registry skills.Registry
	allowed  map[string]bool
	onFetch  func(name string)
}

// NewGetSkillTool creates a get_skill tool. onFetch, if non-nil, fires on
// every successful fetch.
func NewGetSkillTool(registry skills.Registry, allowlist []string, onFetch func(name string)) *GetSkillTool {
	return &GetSkillTool{registry: registry, allowed: allowSet(allowlist), onFetch: onFetch}
}

func (t *GetSkillTool) Name() string { return "get_skill" }

func (t *GetSkillTool) Description() string {
	return "Fetch the full instructions of a skill by name."
}

func (t *GetSkillTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"skill_name": map[string]any{
				"type":        "string",
				"description": "Skill name, as returned by list_skills.",
			},
		},
		"required": []string{"skill_name"},
	})
}

func (t *GetSkillTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		SkillName string `json:"skill_name"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	name := strings.TrimSpace(input.SkillName)
	if name == "" {
		return Errorf("skill_name is required"), nil
	}
	if t.allowed != nil && !t.allowed[name] {
		return Errorf("skill not available: %s", name), nil
	}
	skill, err := t.registry.Fetch(ctx, name)
	if err != nil {
		return Errorf("%v", err), nil
	}
	if t.onFetch != nil {
		t.onFetch(skill.Name)
	}
	return JSONResult(skill), nil
}

func allowSet(allowlist []string) map[string]bool {
	if allowlist == nil {
		return nil
	}
	set := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		set[name] = true
	}
	return set
}
