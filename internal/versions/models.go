package versions

import "time"

// Status of a version record. The document's current-version pointer only
// ever advances to committed records.
type Status string

const (
	StatusCommitted        Status = "committed"
	StatusDiscardedCorrupt Status = "discarded-corrupt"
)

// VersionRecord is one immutable snapshot of a document's bytes. Records are
// append-only; numbers increase monotonically per document.
type VersionRecord struct {
	DocumentID       string    `json:"documentId" bson:"documentId"`
	Number           int       `json:"number" bson:"number"`
	StorageKey       string    `json:"storageKey,omitempty" bson:"storageKey,omitempty"`
	ContentHash      string    `json:"contentHash,omitempty" bson:"contentHash,omitempty"`
	SizeBytes        int64     `json:"sizeBytes" bson:"sizeBytes"`
	AuthorSessionKey string    `json:"authorSessionKey" bson:"authorSessionKey"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	Status           Status    `json:"status" bson:"status"`
}
