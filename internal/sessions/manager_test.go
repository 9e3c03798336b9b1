package sessions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docugate/docugate/internal/tokens"
)

func editPerms() tokens.Permissions {
	return tokens.Permissions{Edit: true, Download: true, Print: true}
}

func TestOpenSession_GrantsLockToFirstEditor(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 30*time.Minute)
	ctx := context.Background()

	a, err := m.OpenSession(ctx, "doc-1", "user-a", editPerms())
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	if !a.Permissions.Edit {
		t.Fatalf("first editor should keep edit permissions: %+v", a.Permissions)
	}

	b, err := m.OpenSession(ctx, "doc-1", "user-b", editPerms())
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	if b.Permissions.Edit {
		t.Fatalf("second editor should be downgraded to read-only: %+v", b.Permissions)
	}
	if !b.Permissions.Download {
		t.Fatalf("downgrade should keep view permissions: %+v", b.Permissions)
	}
}

func TestAcquireLock_Linearizable(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 30*time.Minute)
	ctx := context.Background()

	const n = 32
	keys := make([]string, n)
	for i := range keys {
		s := &EditingSession{Key: newKeyT(t), DocumentID: "doc-race", UserID: "u", LastActivity: time.Now()}
		if err := m.repo.SaveSession(ctx, s); err != nil {
			t.Fatalf("seed session: %v", err)
		}
		keys[i] = s.Key
	}

	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			<-start
			ok, err := m.AcquireLock(ctx, "doc-race", key)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}(keys[i])
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestTouch_DoesNotClobberCommitMarkers(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 30*time.Minute)
	ctx := context.Background()

	s, err := m.OpenSession(ctx, "doc-touch", "user-a", editPerms())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// activity pings race commit-marker writes; both are read-modify-writes
	// on the session record and must serialize per document
	const rounds = 64
	for i := 1; i <= rounds; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		hash := newKeyT(t)
		go func(v int, h string) {
			defer wg.Done()
			if err := m.WithDocumentLock("doc-touch", func() error {
				return m.MarkCommitted(ctx, s.Key, v, h)
			}); err != nil {
				t.Errorf("mark committed: %v", err)
			}
		}(i, hash)
		go func() {
			defer wg.Done()
			if err := m.Touch(ctx, s.Key); err != nil {
				t.Errorf("touch: %v", err)
			}
		}()
		wg.Wait()

		cur, err := m.Get(ctx, s.Key)
		if err != nil || cur == nil {
			t.Fatalf("get: %v", err)
		}
		if cur.LastCommittedVersion != i || cur.LastCommittedHash != hash {
			t.Fatalf("round %d: commit markers lost: version=%d hash=%q", i, cur.LastCommittedVersion, cur.LastCommittedHash)
		}
	}
}

func newKeyT(t *testing.T) string {
	t.Helper()
	k, err := newSessionKey()
	if err != nil {
		t.Fatalf("session key: %v", err)
	}
	return k
}

func TestAcquireLock_ReacquireBySameSession(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 30*time.Minute)
	ctx := context.Background()

	s, err := m.OpenSession(ctx, "doc-2", "user-a", editPerms())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ok, err := m.AcquireLock(ctx, "doc-2", s.Key)
	if err != nil || !ok {
		t.Fatalf("holder should reacquire its own lock: ok=%v err=%v", ok, err)
	}
}

func TestReleaseLock_Idempotent(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 30*time.Minute)
	ctx := context.Background()

	s, err := m.OpenSession(ctx, "doc-3", "user-a", editPerms())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.ReleaseLock(ctx, "doc-3", s.Key); err != nil {
		t.Fatalf("release: %v", err)
	}
	// second release and release by a non-holder are both no-ops
	if err := m.ReleaseLock(ctx, "doc-3", s.Key); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if err := m.ReleaseLock(ctx, "doc-3", "someone-else"); err != nil {
		t.Fatalf("non-holder release: %v", err)
	}
}

func TestExpireStaleSessions_FreesLock(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 10*time.Minute)
	ctx := context.Background()

	a, err := m.OpenSession(ctx, "doc-4", "user-a", editPerms())
	if err != nil {
		t.Fatalf("open a: %v", err)
	}

	// a new editor cannot take the lock while a is live
	b, err := m.OpenSession(ctx, "doc-4", "user-b", editPerms())
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	if b.Permissions.Edit {
		t.Fatalf("b should be read-only while a holds the lock")
	}

	// age a past the inactivity timeout
	sess, err := m.repo.GetSession(ctx, a.Key)
	if err != nil || sess == nil {
		t.Fatalf("load a: %v", err)
	}
	sess.LastActivity = time.Now().UTC().Add(-time.Hour)
	if err := m.repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("age a: %v", err)
	}

	reaped, err := m.ExpireStaleSessions(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected one reaped session, got %d", reaped)
	}

	ok, err := m.AcquireLock(ctx, "doc-4", b.Key)
	if err != nil || !ok {
		t.Fatalf("b should acquire the freed lock: ok=%v err=%v", ok, err)
	}
}

func TestAcquireLock_ReclaimsStaleHolder(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 10*time.Minute)
	ctx := context.Background()

	a, err := m.OpenSession(ctx, "doc-5", "user-a", editPerms())
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	sess, _ := m.repo.GetSession(ctx, a.Key)
	sess.LastActivity = time.Now().UTC().Add(-time.Hour)
	if err := m.repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("age a: %v", err)
	}

	// opportunistic reclaim without running the reaper
	s := &EditingSession{Key: newKeyT(t), DocumentID: "doc-5", UserID: "user-b", LastActivity: time.Now()}
	if err := m.repo.SaveSession(ctx, s); err != nil {
		t.Fatalf("seed b: %v", err)
	}
	ok, err := m.AcquireLock(ctx, "doc-5", s.Key)
	if err != nil || !ok {
		t.Fatalf("expected stale lock reclaim: ok=%v err=%v", ok, err)
	}
}

func TestCloseSession_RemovesLockAndSession(t *testing.T) {
	m := NewManager(NewMemoryRepository(), 30*time.Minute)
	ctx := context.Background()

	s, err := m.OpenSession(ctx, "doc-6", "user-a", editPerms())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.CloseSession(ctx, s.Key); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := m.Get(ctx, s.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected session removed")
	}
	l, err := m.repo.GetLock(ctx, "doc-6")
	if err != nil {
		t.Fatalf("get lock: %v", err)
	}
	if l != nil {
		t.Fatalf("expected lock removed")
	}
}
