package versions

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docugate/docugate/internal/storage"
)

// ErrStorageWrite wraps blob-store I/O failures during version creation.
var ErrStorageWrite = errors.New("version storage write failed")

// Store is the append-only version history. Bytes go to the object store,
// metadata to the repository. CreateVersion is all-or-nothing: bytes are
// staged under a temporary key, verified, then promoted to the published key
// before any record is written.
type Store struct {
	meta  MetadataRepository
	blobs storage.ObjectStore
}

func NewStore(meta MetadataRepository, blobs storage.ObjectStore) *Store {
	return &Store{meta: meta, blobs: blobs}
}

// HashBytes returns the hex sha256 content hash used for version records and
// commit idempotency checks.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func versionKey(documentID string, number int) string {
	return fmt.Sprintf("versions/%s/v%d", documentID, number)
}

func stagingKey(documentID string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("versions/%s/.staging/%s", documentID, hex.EncodeToString(b)), nil
}

// CreateVersion persists data as the document's next committed version.
// The caller (the callback machine) holds the document's critical section.
func (s *Store) CreateVersion(ctx context.Context, documentID string, data []byte, authorSessionKey, contentType string) (*VersionRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrStorageWrite)
	}
	hash := HashBytes(data)

	stage, err := stagingKey(documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := s.blobs.Put(ctx, stage, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	size, err := s.blobs.Size(ctx, stage)
	if err != nil || size != int64(len(data)) {
		_ = s.blobs.Remove(ctx, stage)
		if err == nil {
			err = fmt.Errorf("staged %d bytes, expected %d", size, len(data))
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	number, err := s.meta.NextNumber(ctx, documentID)
	if err != nil {
		_ = s.blobs.Remove(ctx, stage)
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	key := versionKey(documentID, number)
	if err := s.blobs.Promote(ctx, stage, key); err != nil {
		_ = s.blobs.Remove(ctx, stage)
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	rec := &VersionRecord{
		DocumentID:       documentID,
		Number:           number,
		StorageKey:       key,
		ContentHash:      hash,
		SizeBytes:        int64(len(data)),
		AuthorSessionKey: authorSessionKey,
		CreatedAt:        time.Now().UTC(),
		Status:           StatusCommitted,
	}
	if err := s.meta.Insert(ctx, rec); err != nil {
		// the published blob stays behind; the record is the source of truth
		// and an unreferenced blob is collected by retention tooling
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return rec, nil
}

// MarkDiscarded appends a discarded-corrupt record so a rejected save leaves
// an audit trail. No bytes are stored and the current-version pointer never
// advances to it.
func (s *Store) MarkDiscarded(ctx context.Context, documentID, authorSessionKey string) (*VersionRecord, error) {
	number, err := s.meta.NextNumber(ctx, documentID)
	if err != nil {
		return nil, err
	}
	rec := &VersionRecord{
		DocumentID:       documentID,
		Number:           number,
		AuthorSessionKey: authorSessionKey,
		CreatedAt:        time.Now().UTC(),
		Status:           StatusDiscardedCorrupt,
	}
	if err := s.meta.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CurrentVersion returns the latest committed record.
func (s *Store) CurrentVersion(ctx context.Context, documentID string) (*VersionRecord, error) {
	return s.meta.LatestCommitted(ctx, documentID)
}

// GetVersion returns the committed record with the given number.
func (s *Store) GetVersion(ctx context.Context, documentID string, number int) (*VersionRecord, error) {
	return s.meta.GetCommitted(ctx, documentID, number)
}

// ListVersions returns all records for the document, oldest to newest.
func (s *Store) ListVersions(ctx context.Context, documentID string) ([]*VersionRecord, error) {
	return s.meta.List(ctx, documentID)
}

// OpenVersion streams a committed version's bytes.
func (s *Store) OpenVersion(ctx context.Context, rec *VersionRecord) (io.ReadCloser, error) {
	if rec.Status != StatusCommitted || rec.StorageKey == "" {
		return nil, ErrNoVersions
	}
	return s.blobs.Get(ctx, rec.StorageKey)
}
