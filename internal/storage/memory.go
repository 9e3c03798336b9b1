package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStorage is an in-memory ObjectStore used by the slim gateway binary
// and unit tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string

	// FailPuts makes Put return an error (test hook for write failures).
	FailPuts bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *MemoryStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.FailPuts {
		return io.ErrClosedPipe
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	s.types[key] = contentType
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemoryStorage) Size(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return 0, ErrObjectNotFound
	}
	return int64(len(b)), nil
}

func (s *MemoryStorage) Promote(ctx context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[src]
	if !ok {
		return ErrObjectNotFound
	}
	s.objects[dst] = b
	s.types[dst] = s.types[src]
	delete(s.objects, src)
	delete(s.types, src)
	return nil
}

func (s *MemoryStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.types, key)
	return nil
}
