package document

import (
	"context"
	"errors"
)

// ErrVersionConflict signals a concurrent pointer advance lost the race.
var ErrVersionConflict = errors.New("document version pointer moved concurrently")

// Repository provides catalog persistence operations. Implementations live in
// document/repository (Mongo and in-memory) and return ErrNotFound and
// ErrVersionConflict from this package.
type Repository interface {
	Create(ctx context.Context, doc *Document) (string, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, tenantID string) ([]*Document, error)

	// AdvanceVersion moves the current-version pointer and storage key,
	// conditional on the pointer still being at fromVersion (compare-and-swap).
	AdvanceVersion(ctx context.Context, id string, fromVersion, toVersion int, storageKey string) error
}
