package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/loomlabs/loom/pkg/models"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionRecord
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*models.SessionRecord{}}
}

func sessionKey(agentID, sessionID string) string {
	return agentID + ":" + sessionID
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, agentID, sessionID string) (*models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionKey(agentID, sessionID)]
	if !ok {
		now := time.Now().UTC()
		rec = &models.SessionRecord{
			SessionID: sessionID,
			AgentID:   agentID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.sessions[sessionKey(agentID, sessionID)] = rec
	}
	return cloneRecord(rec), nil
}

// AppendDisplay implements Store.
func (m *MemoryStore) AppendDisplay(ctx context.Context, agentID, sessionID string, msgs []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionKey(agentID, sessionID)]
	if !ok {
		return ErrNotFound
	}
	rec.Messages = append(rec.Messages, msgs...)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveCheckpoint implements Store.
func (m *MemoryStore) SaveCheckpoint(ctx context.Context, agentID, sessionID string, agentContext []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionKey(agentID, sessionID)]
	if !ok {
		return ErrNotFound
	}
	rec.AgentContext = append([]models.Message(nil), agentContext...)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, agentID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(agentID, sessionID)
	if _, ok := m.sessions[key]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, key)
	return nil
}

func cloneRecord(rec *models.SessionRecord) *models.SessionRecord {
	clone := *rec
	clone.Messages = append([]models.Message(nil), rec.Messages...)
	clone.AgentContext = append([]models.Message(nil), rec.AgentContext...)
	return &clone
}
