package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/loomlabs/loom/internal/skills"
)

func testSkillRegistry() skills.Registry {
	return skills.NewMemoryRegistry(
		skills.Skill{Name: "pdf-report", Description: "build PDF reports", Content: "use pypdf"},
		skills.Skill{Name: "csv-import", Description: "import CSVs", Content: "use csv"},
	)
}

func TestGetSkillToolFetchesBySkillName(t *testing.T) {
	var fetched []string
	tool := NewGetSkillTool(testSkillRegistry(), nil, func(name string) {
		fetched = append(fetched, name)
	})

	// Dispatch through a registry so the schema is enforced too.
	reg := NewRegistry(tool)
	res, err := reg.Execute(context.Background(), "get_skill", json.RawMessage(`{"skill_name":"pdf-report"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("fetch failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, "use pypdf") {
		t.Errorf("content = %s", res.Content)
	}
	if len(fetched) != 1 || fetched[0] != "pdf-report" {
		t.Errorf("fetch tracking = %v", fetched)
	}
}

func TestGetSkillToolRequiresSkillName(t *testing.T) {
	tool := NewGetSkillTool(testSkillRegistry(), nil, nil)
	reg := NewRegistry(tool)

	res, err := reg.Execute(context.Background(), "get_skill", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Error("missing skill_name must produce an error result")
	}
}

func TestGetSkillToolHonorsAllowlist(t *testing.T) {
	tool := NewGetSkillTool(testSkillRegistry(), []string{"csv-import"}, nil)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"skill_name":"pdf-report"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "not available") {
		t.Errorf("result = %+v", res)
	}
}

func TestListSkillsToolFiltersAllowlist(t *testing.T) {
	tool := NewListSkillsTool(testSkillRegistry(), []string{"csv-import"})

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Contains(res.Content, "pdf-report") {
		t.Errorf("allowlist leaked: %s", res.Content)
	}
	if !strings.Contains(res.Content, "csv-import") {
		t.Errorf("allowed skill missing: %s", res.Content)
	}
}
