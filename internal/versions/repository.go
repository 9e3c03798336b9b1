package versions

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNoVersions is returned for documents never saved through the gateway.
var ErrNoVersions = errors.New("document has no versions")

// MetadataRepository persists version records. Number allocation and inserts
// are serialized per document by the callback machine's critical section.
type MetadataRepository interface {
	NextNumber(ctx context.Context, documentID string) (int, error)
	Insert(ctx context.Context, rec *VersionRecord) error

	// LatestCommitted returns the highest-numbered committed record, or
	// ErrNoVersions.
	LatestCommitted(ctx context.Context, documentID string) (*VersionRecord, error)

	// GetCommitted returns the committed record with the given number, or
	// ErrNoVersions.
	GetCommitted(ctx context.Context, documentID string, number int) (*VersionRecord, error)

	// List returns all records for the document, oldest to newest.
	List(ctx context.Context, documentID string) ([]*VersionRecord, error)
}

// MemoryMetadataRepo keeps version records in process memory.
type MemoryMetadataRepo struct {
	mu       sync.RWMutex
	records  map[string][]*VersionRecord
	counters map[string]int
}

func NewMemoryMetadataRepo() *MemoryMetadataRepo {
	return &MemoryMetadataRepo{
		records:  make(map[string][]*VersionRecord),
		counters: make(map[string]int),
	}
}

func (m *MemoryMetadataRepo) NextNumber(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[documentID]++
	return m.counters[documentID], nil
}

func (m *MemoryMetadataRepo) Insert(ctx context.Context, rec *VersionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.DocumentID] = append(m.records[rec.DocumentID], &cp)
	return nil
}

func (m *MemoryMetadataRepo) LatestCommitted(ctx context.Context, documentID string) (*VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[documentID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Status == StatusCommitted {
			cp := *recs[i]
			return &cp, nil
		}
	}
	return nil, ErrNoVersions
}

func (m *MemoryMetadataRepo) GetCommitted(ctx context.Context, documentID string, number int) (*VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records[documentID] {
		if r.Number == number && r.Status == StatusCommitted {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNoVersions
}

func (m *MemoryMetadataRepo) List(ctx context.Context, documentID string) ([]*VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[documentID]
	out := make([]*VersionRecord, 0, len(recs))
	for _, r := range recs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
