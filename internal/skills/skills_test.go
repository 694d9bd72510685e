package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryRegistryListOmitsContent(t *testing.T) {
	reg := NewMemoryRegistry(
		Skill{Name: "zeta", Description: "last", Content: "body z"},
		Skill{Name: "alpha", Description: "first", Content: "body a"},
	)

	out, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].Name != "alpha" || out[1].Name != "zeta" {
		t.Errorf("list = %+v", out)
	}
	for _, s := range out {
		if s.Content != "" {
			t.Errorf("list leaked content for %s", s.Name)
		}
	}

	full, err := reg.Fetch(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if full.Content != "body a" {
		t.Errorf("content = %q", full.Content)
	}
}

func TestMemoryRegistryFetchUnknown(t *testing.T) {
	reg := NewMemoryRegistry()
	if _, err := reg.Fetch(context.Background(), "ghost"); err == nil {
		t.Error("unknown skill must error")
	}
}

func writeSkill(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirRegistryListAndFetch(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "pdf-report", "# PDF Report\n\nBuilds PDF reports from query results.\n\n## Steps\n")
	writeSkill(t, root, "csv-import", "Imports CSV files into the workspace.\n")
	// A stray file at the root is not a skill.
	os.WriteFile(filepath.Join(root, "README.md"), []byte("not a skill"), 0o644)

	reg := &DirRegistry{Root: root}
	out, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].Name != "csv-import" || out[1].Name != "pdf-report" {
		t.Fatalf("list = %+v", out)
	}
	if out[1].Description != "Builds PDF reports from query results." {
		t.Errorf("description = %q", out[1].Description)
	}

	full, err := reg.Fetch(context.Background(), "pdf-report")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if full.Content == "" || full.Description == "" {
		t.Errorf("fetch = %+v", full)
	}
}

func TestDirRegistryMissingRootIsEmpty(t *testing.T) {
	reg := &DirRegistry{Root: "/nonexistent/skills"}
	out, err := reg.List(context.Background())
	if err != nil || len(out) != 0 {
		t.Errorf("list = %v, %v", out, err)
	}
}

func TestDirRegistryFetchRejectsTraversal(t *testing.T) {
	reg := &DirRegistry{Root: t.TempDir()}
	for _, name := range []string{"../secrets", "a/b", `a\b`, ".", ".."} {
		if _, err := reg.Fetch(context.Background(), name); err == nil {
			t.Errorf("name %q must be rejected", name)
		}
	}
}
