package trace

import (
	"context"
	"sort"
	"sync"

	"github.com/loomlabs/loom/pkg/models"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	traces map[string]*models.Trace
}

// NewMemoryStore creates an empty in-memory trace store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traces: map[string]*models.Trace{}}
}

// Insert implements Store.
func (m *MemoryStore) Insert(ctx context.Context, tr *models.Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *tr
	m.traces[tr.ID] = &clone
	return nil
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, tr *models.Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.traces[tr.ID]; !ok {
		return ErrNotFound
	}
	clone := *tr
	m.traces[tr.ID] = &clone
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.traces[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *tr
	return &clone, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, limit int) ([]*models.Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Trace, 0, len(m.traces))
	for _, tr := range m.traces {
		clone := *tr
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
