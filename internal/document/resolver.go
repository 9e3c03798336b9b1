package document

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docugate/docugate/internal/models"
	"github.com/docugate/docugate/internal/storage"
	"github.com/docugate/docugate/internal/tokens"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrForbidden          = errors.New("document access forbidden")
	ErrStorageUnavailable = errors.New("document storage unavailable")
)

// Resolver maps opaque document ids to byte-serving capabilities while
// enforcing tenant scoping. The authorization decision is taken before any
// storage access so a guessed id never leaks bytes across tenants.
type Resolver struct {
	repo  Repository
	store storage.ObjectStore
}

func NewResolver(repo Repository, store storage.ObjectStore) *Resolver {
	return &Resolver{repo: repo, store: store}
}

// Resolve returns an authorization-checked handle for the document.
func (r *Resolver) Resolve(ctx context.Context, documentID string, user *models.User) (*Ref, error) {
	d, err := r.repo.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve %s: %w", documentID, err)
	}
	if user == nil {
		return nil, ErrForbidden
	}
	if d.TenantID != user.TenantID && !user.HasRole(models.RoleCrossTenantAdmin) {
		return nil, ErrForbidden
	}
	return &Ref{
		DocumentID:     d.ID,
		TenantID:       d.TenantID,
		StorageKey:     d.StorageKey,
		MimeType:       d.MimeType,
		CurrentVersion: d.CurrentVersion,
	}, nil
}

// ResolveForToken returns a handle for a request authenticated by a verified
// editor token instead of a platform user (the Document Server fetching file
// bytes). The token must be bound to the requested document and tenant.
func (r *Resolver) ResolveForToken(ctx context.Context, documentID string, claims *tokens.EditorClaims) (*Ref, error) {
	if claims.DocumentID != documentID {
		return nil, ErrForbidden
	}
	d, err := r.repo.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve %s: %w", documentID, err)
	}
	if d.TenantID != claims.TenantID {
		return nil, ErrForbidden
	}
	return &Ref{
		DocumentID:     d.ID,
		TenantID:       d.TenantID,
		StorageKey:     d.StorageKey,
		MimeType:       d.MimeType,
		CurrentVersion: d.CurrentVersion,
	}, nil
}

// OpenReader streams the document's current bytes. Callers own the returned
// reader and must close it.
func (r *Resolver) OpenReader(ctx context.Context, ref *Ref) (io.ReadCloser, int64, error) {
	size, err := r.store.Size(ctx, ref.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	rc, err := r.store.Get(ctx, ref.StorageKey)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return rc, size, nil
}
