package sessions

import (
	"context"
	"sync"
)

// MemoryRepository keeps sessions and locks in process memory. Used by the
// slim gateway binary and unit tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*EditingSession
	locks    map[string]*Lock
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*EditingSession),
		locks:    make(map[string]*Lock),
	}
}

func (m *MemoryRepository) SaveSession(ctx context.Context, s *EditingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.Key] = &cp
	return nil
}

func (m *MemoryRepository) GetSession(ctx context.Context, key string) (*EditingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) DeleteSession(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryRepository) ListSessions(ctx context.Context) ([]*EditingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*EditingSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryRepository) GetLock(ctx context.Context, documentID string) (*Lock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locks[documentID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryRepository) SetLock(ctx context.Context, l *Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.locks[l.DocumentID] = &cp
	return nil
}

func (m *MemoryRepository) DeleteLock(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, documentID)
	return nil
}
