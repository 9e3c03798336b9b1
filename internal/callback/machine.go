package callback

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/docugate/docugate/internal/document"
	"github.com/docugate/docugate/internal/sessions"
	"github.com/docugate/docugate/internal/tokens"
	"github.com/docugate/docugate/internal/versions"
	"github.com/docugate/docugate/pkg/logger"
	"github.com/docugate/docugate/pkg/metrics"
)

// Save-notification status codes reported by the external Document Server.
const (
	StatusEditing         = 1 // still being edited, no save yet
	StatusSave            = 2 // editing finished, document saved
	StatusSaveError       = 3 // saving error occurred upstream
	StatusClosedNoChanges = 4 // editing finished, nothing changed
	StatusForceSave       = 6 // force-save while still editing
	StatusForceSaveError  = 7 // force-save failed upstream
)

var (
	// ErrProtocol marks malformed callback payloads. Never retried.
	ErrProtocol = errors.New("malformed callback event")

	// ErrUpstreamSave acknowledges a save failure the Document Server
	// reported about itself. State is left unchanged.
	ErrUpstreamSave = errors.New("document server reported a save failure")
)

// Event is one inbound save-notification callback. Consumed once; nothing is
// persisted beyond the state transitions it triggers.
type Event struct {
	Token  string
	Status int
	Key    string // session key, must match the token's claim
	URL    string // changed-bytes download URL (statuses 2 and 6)
	Users  []string
}

// Result reports what a processed event did, mostly for logging and tests.
type Result struct {
	Outcome   string // "noop" | "refreshed" | "committed" | "closed" | "stale"
	Committed *versions.VersionRecord
}

// Machine interprets callback events and drives session, lock and version
// state. Commits are idempotent: duplicate deliveries of the same save (same
// session, same content hash) create exactly one version record.
type Machine struct {
	codec   *tokens.Codec
	manager *sessions.Manager
	store   *versions.Store
	docs    document.Repository
	fetcher Fetcher
}

func NewMachine(codec *tokens.Codec, manager *sessions.Manager, store *versions.Store, docs document.Repository, fetcher Fetcher) *Machine {
	return &Machine{codec: codec, manager: manager, store: store, docs: docs, fetcher: fetcher}
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// Process validates the event's token and applies the transition for its
// status code. Every error return maps to a non-zero protocol acknowledgment
// in the HTTP layer; a nil error means the Document Server gets {error: 0}.
func (m *Machine) Process(ctx context.Context, ev *Event) (*Result, error) {
	claims, err := m.codec.Verify(ev.Token)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(statusLabel(ev.Status), "auth_error").Inc()
		return nil, err
	}
	if ev.Key != "" && ev.Key != claims.SessionKey {
		metrics.CallbacksTotal.WithLabelValues(statusLabel(ev.Status), "auth_error").Inc()
		return nil, fmt.Errorf("%w: event key does not match token session", tokens.ErrInvalidSignature)
	}

	sess, err := m.manager.Get(ctx, claims.SessionKey)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		// the session was closed or reaped; a late or duplicate delivery
		// must not mutate anything
		logger.Debugf("callback for untracked session %s (status %d), ignoring", claims.SessionKey, ev.Status)
		metrics.CallbacksTotal.WithLabelValues(statusLabel(ev.Status), "stale").Inc()
		return &Result{Outcome: "stale"}, nil
	}

	switch ev.Status {
	case StatusEditing:
		if err := m.manager.Touch(ctx, sess.Key); err != nil {
			return nil, err
		}
		metrics.CallbacksTotal.WithLabelValues(statusLabel(ev.Status), "ok").Inc()
		return &Result{Outcome: "refreshed"}, nil

	case StatusSaveError, StatusForceSaveError:
		logger.Warnf("document server save failure for document %s session %s (status %d)", sess.DocumentID, sess.Key, ev.Status)
		metrics.CallbacksTotal.WithLabelValues(statusLabel(ev.Status), "upstream_error").Inc()
		return nil, ErrUpstreamSave

	case StatusClosedNoChanges:
		if err := m.manager.CloseSession(ctx, sess.Key); err != nil {
			return nil, err
		}
		metrics.CallbacksTotal.WithLabelValues(statusLabel(ev.Status), "closed").Inc()
		return &Result{Outcome: "closed"}, nil

	case StatusSave, StatusForceSave:
		res, err := m.commit(ctx, ev, claims, sess)
		if err != nil {
			return nil, err
		}
		return res, nil

	default:
		metrics.CallbacksTotal.WithLabelValues(statusLabel(ev.Status), "protocol_error").Inc()
		return nil, fmt.Errorf("%w: unknown status %d", ErrProtocol, ev.Status)
	}
}

// commit handles statuses 2 and 6: fetch the changed bytes, create a version,
// advance the document pointer, then release or keep the lock depending on
// whether the editor closed. The fetch runs outside the document's critical
// section; everything that mutates state runs inside it.
func (m *Machine) commit(ctx context.Context, ev *Event, claims *tokens.EditorClaims, sess *sessions.EditingSession) (*Result, error) {
	label := statusLabel(ev.Status)
	if ev.URL == "" {
		metrics.CallbacksTotal.WithLabelValues(label, "protocol_error").Inc()
		return nil, fmt.Errorf("%w: save callback without download url", ErrProtocol)
	}

	data, err := m.fetcher.Fetch(ctx, ev.URL)
	if err != nil {
		switch {
		case errors.Is(err, ErrCorruptPayload):
			m.discard(ctx, sess, label)
		case errors.Is(err, ErrProtocol):
			metrics.CallbacksTotal.WithLabelValues(label, "protocol_error").Inc()
		default:
			metrics.CallbacksTotal.WithLabelValues(label, "fetch_failed").Inc()
		}
		return nil, err
	}
	if len(data) == 0 {
		m.discard(ctx, sess, label)
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptPayload)
	}
	hash := versions.HashBytes(data)

	var result *Result
	err = m.manager.WithDocumentLock(sess.DocumentID, func() error {
		// re-read inside the critical section: a concurrent duplicate
		// delivery may already have committed these bytes
		cur, err := m.manager.Get(ctx, sess.Key)
		if err != nil {
			return err
		}
		if cur == nil {
			result = &Result{Outcome: "stale"}
			return nil
		}
		if cur.LastCommittedHash == hash {
			logger.Infof("duplicate save callback for session %s, already committed v%d", cur.Key, cur.LastCommittedVersion)
			result = &Result{Outcome: "noop"}
			return nil
		}

		doc, err := m.docs.Get(ctx, sess.DocumentID)
		if err != nil {
			return err
		}
		rec, err := m.store.CreateVersion(ctx, sess.DocumentID, data, sess.Key, doc.MimeType)
		if err != nil {
			return err
		}
		if err := m.docs.AdvanceVersion(ctx, doc.ID, doc.CurrentVersion, rec.Number, rec.StorageKey); err != nil {
			return err
		}
		if err := m.manager.MarkCommitted(ctx, cur.Key, rec.Number, hash); err != nil {
			return err
		}
		result = &Result{Outcome: "committed", Committed: rec}
		return nil
	})
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(label, "commit_failed").Inc()
		return nil, err
	}
	switch result.Outcome {
	case "stale":
		metrics.CallbacksTotal.WithLabelValues(label, "stale").Inc()
		return result, nil
	case "noop":
		metrics.CallbacksTotal.WithLabelValues(label, "noop").Inc()
	default:
		metrics.VersionsCommitted.Inc()
		metrics.CallbacksTotal.WithLabelValues(label, "committed").Inc()
		logger.Infof("committed v%d for document %s (session %s, status %d)", result.Committed.Number, sess.DocumentID, sess.Key, ev.Status)
	}

	// Status 2 ends the session even when the bytes were already committed
	// by an earlier force-save: the lock must not outlive the editor.
	if ev.Status == StatusSave {
		if err := m.manager.CloseSession(ctx, sess.Key); err != nil {
			return nil, err
		}
	} else {
		// force-save: the editor stays open, the lock stays held
		if err := m.manager.Touch(ctx, sess.Key); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// discard records a corrupt save for audit without touching the document's
// current-version pointer, lock or session.
func (m *Machine) discard(ctx context.Context, sess *sessions.EditingSession, label string) {
	if _, err := m.store.MarkDiscarded(ctx, sess.DocumentID, sess.Key); err != nil {
		logger.Errorf("failed to record discarded save for document %s: %v", sess.DocumentID, err)
	}
	metrics.SavesDiscarded.Inc()
	metrics.CallbacksTotal.WithLabelValues(label, "discarded").Inc()
}
