// Package audit writes the vault's append-only audit trail.
package audit

import (
	"context"
	"time"

	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
	"github.com/rs/zerolog/log"
)

// Recorder appends audit entries. Writes are fire-and-forget: a failed
// audit write is logged but never surfaced, so audit trouble cannot block
// a user-visible operation.
type Recorder struct {
	store storage.Backend
}

// NewRecorder creates a Recorder backed by the given storage.
func NewRecorder(store storage.Backend) *Recorder {
	return &Recorder{store: store}
}

// Record appends one audit entry.
func (r *Recorder) Record(ctx context.Context, actor, action string, itemID *string, metadata map[string]any, suspicious bool) {
	entry := &models.AuditEntry{
		ActorID:    actor,
		Action:     action,
		ItemID:     itemID,
		Metadata:   metadata,
		Suspicious: suspicious,
		Timestamp:  time.Now().UTC(),
	}
	if err := r.store.WriteAuditEntry(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

// Query retrieves audit entries for reporting.
func (r *Recorder) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error) {
	return r.store.QueryAuditLog(ctx, filter)
}
