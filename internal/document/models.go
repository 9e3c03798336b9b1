package document

import "time"

// Document is the catalog entry the gateway operates on. The portal's
// catalog owns the full record; the gateway reads it and advances the
// storage key and current-version pointer when edits are committed.
type Document struct {
	ID             string    `json:"id" bson:"_id,omitempty"`
	TenantID       string    `json:"tenantId" bson:"tenantId"`
	Title          string    `json:"title" bson:"title"`
	StorageKey     string    `json:"storageKey" bson:"storageKey"`
	MimeType       string    `json:"mimeType" bson:"mimeType"`
	CurrentVersion int       `json:"currentVersion" bson:"currentVersion"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Ref is a resolved, authorization-checked handle to a document's bytes.
type Ref struct {
	DocumentID     string
	TenantID       string
	StorageKey     string
	MimeType       string
	CurrentVersion int
}
