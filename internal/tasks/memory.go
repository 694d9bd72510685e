package tasks

import (
	"context"
	"sort"
	"sync"

	"github.com/loomlabs/loom/pkg/models"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.BackgroundTask
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: map[string]*models.BackgroundTask{}}
}

// Insert implements Store.
func (m *MemoryStore) Insert(ctx context.Context, task *models.BackgroundTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, task *models.BackgroundTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *task
	return &clone, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, limit int) ([]*models.BackgroundTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.BackgroundTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		clone := *task
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
