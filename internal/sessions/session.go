package sessions

import (
	"time"

	"github.com/docugate/docugate/internal/tokens"
)

// EditingSession is one open editor instance for a document. Created when an
// edit token is issued, destroyed when the Document Server reports the editor
// closed or when the inactivity reaper collects it.
type EditingSession struct {
	Key          string             `json:"key"`
	DocumentID   string             `json:"documentId"`
	UserID       string             `json:"userId"`
	Permissions  tokens.Permissions `json:"permissions"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastActivity time.Time          `json:"lastActivity"`

	// Commit markers used by the callback machine for idempotency: a
	// duplicate save callback carrying bytes already committed by this
	// session becomes a no-op.
	LastCommittedVersion int    `json:"lastCommittedVersion,omitempty"`
	LastCommittedHash    string `json:"lastCommittedHash,omitempty"`
}

// Lock is the single-writer reservation on a document. At most one active
// Lock exists per document id.
type Lock struct {
	DocumentID string    `json:"documentId"`
	SessionKey string    `json:"sessionKey"`
	AcquiredAt time.Time `json:"acquiredAt"`
}
