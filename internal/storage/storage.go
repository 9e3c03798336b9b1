package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the byte-level storage used for document contents and
// committed versions. The two-step Put/Promote pair lets the version store
// stage bytes under a temporary key and publish them atomically: readers
// never observe a partially written object under a published key.
type ObjectStore interface {
	// Put writes the object under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get returns a reader for the stored object.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Size returns the stored object's byte size.
	Size(ctx context.Context, key string) (int64, error)

	// Promote publishes the object at src under dst and removes src.
	Promote(ctx context.Context, src, dst string) error

	// Remove deletes the object under key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
