package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/docugate/docugate/internal/tokens"
	"github.com/docugate/docugate/pkg/metrics"
)

// Manager is the session and lock bookkeeping service. Every read-modify-write
// on a document's lock or sessions runs inside a per-document critical section
// so that no two concurrent AcquireLock calls for the same document can both
// succeed. Operations on different documents proceed independently.
//
// The critical section is an in-process keyed mutex, which is correct for a
// single gateway instance. The Repository behind it may still live in Redis
// so session state survives restarts.
type Manager struct {
	repo       Repository
	inactivity time.Duration

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

func NewManager(repo Repository, inactivity time.Duration) *Manager {
	return &Manager{
		repo:       repo,
		inactivity: inactivity,
		docLocks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(documentID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.docLocks[documentID]
	if !ok {
		l = &sync.Mutex{}
		m.docLocks[documentID] = l
	}
	return l
}

// WithDocumentLock runs fn inside the document's critical section. The
// callback commit path uses this so version creation and pointer advance are
// serialized per document.
func (m *Manager) WithDocumentLock(documentID string, fn func() error) error {
	l := m.lockFor(documentID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func newSessionKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// OpenSession creates a session record for the user. Creation always
// succeeds; when edit permissions are requested and another live session
// already holds the document's lock, the stored permission set is downgraded
// to read-only and no lock is taken.
func (m *Manager) OpenSession(ctx context.Context, documentID, userID string, perms tokens.Permissions) (*EditingSession, error) {
	key, err := newSessionKey()
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	now := time.Now().UTC()
	s := &EditingSession{
		Key:          key,
		DocumentID:   documentID,
		UserID:       userID,
		Permissions:  perms,
		CreatedAt:    now,
		LastActivity: now,
	}

	err = m.WithDocumentLock(documentID, func() error {
		if perms.Edit {
			ok, lerr := m.acquireLockLocked(ctx, documentID, key, now)
			if lerr != nil {
				return lerr
			}
			if !ok {
				s.Permissions = perms.ReadOnly()
				metrics.LockConflicts.Inc()
			}
		}
		return m.repo.SaveSession(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AcquireLock grants the document's write lock to the session unless a live
// session other than the caller already holds it. A lock whose holder session
// has gone stale is reclaimed.
func (m *Manager) AcquireLock(ctx context.Context, documentID, sessionKey string) (bool, error) {
	var ok bool
	err := m.WithDocumentLock(documentID, func() error {
		var ierr error
		ok, ierr = m.acquireLockLocked(ctx, documentID, sessionKey, time.Now().UTC())
		return ierr
	})
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.LockConflicts.Inc()
	}
	return ok, nil
}

// acquireLockLocked must run inside the document's critical section.
func (m *Manager) acquireLockLocked(ctx context.Context, documentID, sessionKey string, now time.Time) (bool, error) {
	cur, err := m.repo.GetLock(ctx, documentID)
	if err != nil {
		return false, err
	}
	if cur != nil && cur.SessionKey != sessionKey {
		holder, err := m.repo.GetSession(ctx, cur.SessionKey)
		if err != nil {
			return false, err
		}
		if holder != nil && now.Sub(holder.LastActivity) < m.inactivity {
			return false, nil
		}
		// holder gone or stale: reclaim
	}
	l := &Lock{DocumentID: documentID, SessionKey: sessionKey, AcquiredAt: now}
	if err := m.repo.SetLock(ctx, l); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseLock removes the lock when held by the given session. Releasing a
// lock the session does not hold is a no-op.
func (m *Manager) ReleaseLock(ctx context.Context, documentID, sessionKey string) error {
	return m.WithDocumentLock(documentID, func() error {
		cur, err := m.repo.GetLock(ctx, documentID)
		if err != nil {
			return err
		}
		if cur == nil || cur.SessionKey != sessionKey {
			return nil
		}
		return m.repo.DeleteLock(ctx, documentID)
	})
}

// Get returns the tracked session, or nil when unknown.
func (m *Manager) Get(ctx context.Context, sessionKey string) (*EditingSession, error) {
	return m.repo.GetSession(ctx, sessionKey)
}

// Touch refreshes the session's last-activity timestamp. The write runs
// inside the document's critical section with a re-read so a ping racing a
// concurrent commit cannot save a snapshot without the commit markers.
func (m *Manager) Touch(ctx context.Context, sessionKey string) error {
	s, err := m.repo.GetSession(ctx, sessionKey)
	if err != nil || s == nil {
		return err
	}
	return m.WithDocumentLock(s.DocumentID, func() error {
		cur, err := m.repo.GetSession(ctx, sessionKey)
		if err != nil || cur == nil {
			return err
		}
		cur.LastActivity = time.Now().UTC()
		return m.repo.SaveSession(ctx, cur)
	})
}

// MarkCommitted records the version a session last committed. Runs inside the
// document's critical section held by the caller (the callback machine).
func (m *Manager) MarkCommitted(ctx context.Context, sessionKey string, version int, contentHash string) error {
	s, err := m.repo.GetSession(ctx, sessionKey)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	s.LastCommittedVersion = version
	s.LastCommittedHash = contentHash
	s.LastActivity = time.Now().UTC()
	return m.repo.SaveSession(ctx, s)
}

// CloseSession releases the session's lock and removes the session record.
func (m *Manager) CloseSession(ctx context.Context, sessionKey string) error {
	s, err := m.repo.GetSession(ctx, sessionKey)
	if err != nil || s == nil {
		return err
	}
	return m.WithDocumentLock(s.DocumentID, func() error {
		cur, err := m.repo.GetLock(ctx, s.DocumentID)
		if err != nil {
			return err
		}
		if cur != nil && cur.SessionKey == sessionKey {
			if err := m.repo.DeleteLock(ctx, s.DocumentID); err != nil {
				return err
			}
		}
		return m.repo.DeleteSession(ctx, sessionKey)
	})
}

// ExpireStaleSessions releases locks and removes sessions idle past the
// inactivity timeout. Invoked periodically by the reaper goroutine in main,
// and safe to call opportunistically. Returns the number of sessions reaped.
func (m *Manager) ExpireStaleSessions(ctx context.Context, now time.Time) (int, error) {
	all, err := m.repo.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, s := range all {
		if now.Sub(s.LastActivity) < m.inactivity {
			continue
		}
		key := s.Key
		docID := s.DocumentID
		err := m.WithDocumentLock(docID, func() error {
			// re-read inside the critical section; the session may have
			// been touched or closed meanwhile
			cur, err := m.repo.GetSession(ctx, key)
			if err != nil {
				return err
			}
			if cur == nil || now.Sub(cur.LastActivity) < m.inactivity {
				return nil
			}
			l, err := m.repo.GetLock(ctx, docID)
			if err != nil {
				return err
			}
			if l != nil && l.SessionKey == key {
				if err := m.repo.DeleteLock(ctx, docID); err != nil {
					return err
				}
			}
			if err := m.repo.DeleteSession(ctx, key); err != nil {
				return err
			}
			reaped++
			return nil
		})
		if err != nil {
			return reaped, err
		}
	}
	if reaped > 0 {
		metrics.SessionsReaped.Add(float64(reaped))
	}
	return reaped, nil
}
