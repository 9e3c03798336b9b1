package repository

import (
	"context"
	"sync"
	"time"

	"github.com/docugate/docugate/internal/document"
)

// MemoryRepo is a simple in-memory catalog used by the slim gateway binary
// and unit tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = "doc_" + time.Now().Format("20060102T150405.000000000")
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	cp := *doc
	m.store[doc.ID] = &cp
	return doc.ID, nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, document.ErrNotFound
}

func (m *MemoryRepo) List(ctx context.Context, tenantID string) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		if tenantID != "" && d.TenantID != tenantID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryRepo) AdvanceVersion(ctx context.Context, id string, fromVersion, toVersion int, storageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return document.ErrNotFound
	}
	if d.CurrentVersion != fromVersion {
		return document.ErrVersionConflict
	}
	d.CurrentVersion = toVersion
	d.StorageKey = storageKey
	d.UpdatedAt = time.Now()
	return nil
}
