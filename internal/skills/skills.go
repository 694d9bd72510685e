// Package skills stores reusable instruction documents an agent can list and
// fetch at runtime. A skill is a named markdown body with a short description
// surfaced in the tool catalog.
package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Skill is one instruction document.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Registry exposes the skill catalog.
type Registry interface {
	// List returns all skills with content omitted, sorted by name.
	List(ctx context.Context) ([]Skill, error)

	// Fetch returns the full skill by name.
	Fetch(ctx context.Context, name string) (*Skill, error)
}

// MemoryRegistry is an in-memory Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewMemoryRegistry creates a registry seeded with the given skills.
func NewMemoryRegistry(skills ...Skill) *MemoryRegistry {
	r := &MemoryRegistry{skills: make(map[string]Skill, len(skills))}
	for _, s := range skills {
		r.skills[s.Name] = s
	}
	return r
}

// Add inserts or replaces a skill.
func (r *MemoryRegistry) Add(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = s
}

// List implements Registry.
func (r *MemoryRegistry) List(ctx context.Context) ([]Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		s.Content = ""
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Fetch implements Registry.
func (r *MemoryRegistry) Fetch(ctx context.Context, name string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("skills: unknown skill %q", name)
	}
	return &s, nil
}

// DirRegistry reads skills from a directory. Each skill lives at
// <root>/<name>/SKILL.md; the first non-heading line is its description.
type DirRegistry struct {
	Root string
}

// List implements Registry.
func (r *DirRegistry) List(ctx context.Context) ([]Skill, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("skills: read dir: %w", err)
	}
	var out []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.Root, entry.Name(), "SKILL.md"))
		if err != nil {
			continue
		}
		out = append(out, Skill{
			Name:        entry.Name(),
			Description: skillDescription(string(data)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Fetch implements Registry.
func (r *DirRegistry) Fetch(ctx context.Context, name string) (*Skill, error) {
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return nil, fmt.Errorf("skills: invalid skill name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(r.Root, name, "SKILL.md"))
	if err != nil {
		return nil, fmt.Errorf("skills: unknown skill %q", name)
	}
	content := string(data)
	return &Skill{
		Name:        name,
		Description: skillDescription(content),
		Content:     content,
	}, nil
}

func skillDescription(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > 200 {
			line = line[:200]
		}
		return line
	}
	return ""
}
