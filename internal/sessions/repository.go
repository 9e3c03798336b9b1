package sessions

import "context"

// Repository provides session and lock persistence. Lookups return (nil, nil)
// when the record does not exist.
//
// Implementations do not serialize callers; the Manager holds a per-document
// critical section around every read-modify-write.
type Repository interface {
	SaveSession(ctx context.Context, s *EditingSession) error
	GetSession(ctx context.Context, key string) (*EditingSession, error)
	DeleteSession(ctx context.Context, key string) error
	ListSessions(ctx context.Context) ([]*EditingSession, error)

	GetLock(ctx context.Context, documentID string) (*Lock, error)
	SetLock(ctx context.Context, l *Lock) error
	DeleteLock(ctx context.Context, documentID string) error
}
