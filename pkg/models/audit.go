package models

import "time"

// Audit action names recorded by the core.
const (
	ActionItemCreated        = "item.created"
	ActionItemRenamed        = "item.renamed"
	ActionItemMoved          = "item.moved"
	ActionItemUpdated        = "item.updated"
	ActionItemDeleted        = "item.deleted"
	ActionItemRestored       = "item.restored"
	ActionUploadRequested    = "upload.requested"
	ActionUploadScanned      = "upload.scanned"
	ActionUploadPromoted     = "upload.promoted"
	ActionDownloadURLIssued  = "download.url_issued"
	ActionItemShared         = "item.shared"
	ActionItemUnshared       = "item.unshared"
	ActionShareLinkCreated   = "share_link.created"
	ActionShareLinkAccessed  = "share_link.accessed"
	ActionShareLinkRejected  = "share_link.rejected"
)

// AuditEntry is an immutable, append-only record of a mutating or access
// operation. The core never updates or deletes entries; retention is an
// external concern.
type AuditEntry struct {
	ID         int64          `json:"id"`
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	ItemID     *string        `json:"itemId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Suspicious bool           `json:"suspicious"`
	Timestamp  time.Time      `json:"timestamp"`
}
