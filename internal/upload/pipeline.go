// Package upload implements the quarantine upload pipeline: register a
// durable item record, stage the object into quarantine via a short-lived
// upload credential, track scan status, and promote clean objects to
// their permanent location.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/org/docvault/internal/audit"
	"github.com/org/docvault/internal/item"
	"github.com/org/docvault/internal/provider"
	"github.com/org/docvault/internal/quota"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFile is returned when a pipeline operation targets a folder.
	ErrNotFile = errors.New("item is not a file")
	// ErrNotClean is returned when promoting an item that has not passed
	// scanning.
	ErrNotClean = errors.New("file has not passed scanning")
	// ErrInvalidScanStatus is returned for an unknown scan status value.
	ErrInvalidScanStatus = errors.New("invalid scan status")
)

// QuotaError carries the validator's denial reasons.
type QuotaError struct {
	Reasons []string
}

func (e *QuotaError) Error() string {
	return "upload rejected: " + strings.Join(e.Reasons, "; ")
}

// uploadTTL is the lifetime of a staged upload credential. A quarantine
// URL is a one-shot transfer window, not a durable capability.
const uploadTTL = 15 * time.Minute

// Request describes one upload registration.
type Request struct {
	FileName  string
	MimeType  string
	FileSize  int64
	ParentID  *string
	Encrypted bool
}

// Ticket is the caller's handle for a staged upload.
type Ticket struct {
	ItemID    string    `json:"itemId"`
	UploadURL string    `json:"uploadUrl"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Pipeline drives the registered → staged → scanned → promoted state
// machine.
type Pipeline struct {
	store     storage.Backend
	providers *provider.Registry
	items     *item.Service
	validator quota.Validator
	auditor   *audit.Recorder
}

// NewPipeline creates an upload Pipeline.
func NewPipeline(store storage.Backend, providers *provider.Registry, items *item.Service, validator quota.Validator, auditor *audit.Recorder) *Pipeline {
	return &Pipeline{
		store:     store,
		providers: providers,
		items:     items,
		validator: validator,
		auditor:   auditor,
	}
}

// Register validates the upload, creates the item record, and stages a
// quarantine upload credential. Quota and file-type validation run
// strictly before any persisted write: a denied upload leaves no record
// behind.
func (p *Pipeline) Register(ctx context.Context, principal string, req Request) (*Ticket, error) {
	res, err := p.validator.Validate(ctx, principal, req.FileName, req.MimeType, req.FileSize)
	if err != nil {
		return nil, fmt.Errorf("validating upload: %w", err)
	}
	if !res.IsValid {
		return nil, &QuotaError{Reasons: res.Errors}
	}
	for _, w := range res.Warnings {
		log.Info().Str("principal", principal).Str("warning", w).Msg("upload quota warning")
	}

	// Quarantine keys are owner-prefixed and timestamped; they are never
	// the permanent path, so an unscanned object is unreachable through
	// any share or download surface.
	backend := p.providers.Default()
	quarantineKey := fmt.Sprintf("quarantine/%s/%d-%s", principal, time.Now().UnixNano(), path.Base(strings.ReplaceAll(req.FileName, "\\", "/")))
	it, err := p.items.CreateFile(ctx, principal, req.FileName, req.ParentID, item.FileMeta{
		Size:          req.FileSize,
		MimeType:      req.MimeType,
		Provider:      backend.Name(),
		QuarantineKey: quarantineKey,
		Encrypted:     req.Encrypted,
	})
	if err != nil {
		return nil, err
	}

	url, err := backend.GenerateUploadURL(ctx, quarantineKey, req.MimeType, uploadTTL, map[string]string{
		"owner": principal,
		"item":  it.ID,
	})
	if err != nil {
		// The registration is considered not to have happened.
		if delErr := p.store.HardDeleteItem(ctx, it.ID); delErr != nil {
			log.Warn().Err(delErr).Str("item", it.ID).Msg("cleanup of failed registration failed")
		}
		return nil, fmt.Errorf("staging upload: %w", err)
	}

	expiry := time.Now().Add(uploadTTL).UTC()
	if err := p.store.CacheUploadURL(ctx, it.ID, url, expiry); err != nil {
		return nil, fmt.Errorf("caching upload url: %w", err)
	}

	p.auditor.Record(ctx, principal, models.ActionUploadRequested, &it.ID, map[string]any{
		"fileName": it.Name,
		"size":     req.FileSize,
		"mimeType": req.MimeType,
		"provider": backend.Name(),
	}, false)

	return &Ticket{
		ItemID:    it.ID,
		UploadURL: url,
		Provider:  backend.Name(),
		ExpiresAt: expiry,
	}, nil
}

// SetScanResult records the external scanner's verdict. Infected verdicts
// are flagged suspicious in the audit trail.
func (p *Pipeline) SetScanResult(ctx context.Context, id string, status models.ScanStatus) error {
	switch status {
	case models.ScanScanning, models.ScanClean, models.ScanInfected, models.ScanError:
	default:
		return ErrInvalidScanStatus
	}
	it, err := p.store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if it.Kind != models.KindFile {
		return ErrNotFile
	}
	if err := p.store.SetScanStatus(ctx, id, status); err != nil {
		return err
	}
	p.auditor.Record(ctx, "scanner", models.ActionUploadScanned, &id, map[string]any{
		"status": string(status),
	}, status == models.ScanInfected)
	return nil
}

// Promote moves a clean object from quarantine to its permanent location
// and flips the provider/key fields. Idempotent: promoting an
// already-promoted item is a no-op, not an error.
func (p *Pipeline) Promote(ctx context.Context, actor, id string) (*models.VaultItem, error) {
	it, err := p.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.Kind != models.KindFile {
		return nil, ErrNotFile
	}
	if it.Promoted() {
		return it, nil
	}
	if it.ScanStatus != models.ScanClean {
		return nil, ErrNotClean
	}

	backend := p.providers.For(it.Provider)
	permanentKey := fmt.Sprintf("%s/%s/%s", it.OwnerID, it.ID, it.Name)
	if err := backend.Move(ctx, *it.QuarantineKey, permanentKey); err != nil {
		return nil, fmt.Errorf("promoting object: %w", err)
	}
	if err := p.store.PromoteItem(ctx, id, backend.Name(), permanentKey); err != nil {
		return nil, err
	}
	p.auditor.Record(ctx, actor, models.ActionUploadPromoted, &id, map[string]any{
		"storageKey": permanentKey,
	}, false)

	it.Provider = backend.Name()
	it.StorageKey = permanentKey
	it.QuarantineKey = nil
	return it, nil
}
