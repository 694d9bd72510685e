package tools

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// WorkspaceManager hands out per-request scratch directories and reaps the
// ones left behind by finished runs.
type WorkspaceManager struct {
	root string
}

// NewWorkspaceManager creates a manager rooted at dir (created on demand).
func NewWorkspaceManager(dir string) *WorkspaceManager {
	return &WorkspaceManager{root: dir}
}

// Create allocates a fresh workspace directory and returns its path.
func (m *WorkspaceManager) Create() (string, error) {
	dir := filepath.Join(m.root, "ws-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Remove deletes a workspace directory.
func (m *WorkspaceManager) Remove(dir string) error {
	resolved, err := (Resolver{Root: m.root}).Resolve(dir)
	if err != nil {
		return err
	}
	return os.RemoveAll(resolved)
}

// ReapStale removes workspaces not modified within maxAge and returns how
// many were deleted.
func (m *WorkspaceManager) ReapStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// SnapshotDir records the set of regular files under dir, keyed by path
// relative to dir. Used to report new_files after shell and code runs.
func SnapshotDir(dir string) map[string]struct{} {
	snapshot := make(map[string]struct{})
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		snapshot[rel] = struct{}{}
		return nil
	})
	return snapshot
}

// NewFilesSince returns files under dir absent from the snapshot, sorted.
func NewFilesSince(dir string, snapshot map[string]struct{}) []string {
	var created []string
	for rel := range SnapshotDir(dir) {
		if _, ok := snapshot[rel]; !ok {
			created = append(created, rel)
		}
	}
	sort.Strings(created)
	return created
}
