// Package download issues time-limited download URLs for vault files,
// reusing cached credentials while they have useful life left.
package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/audit"
	"github.com/org/docvault/internal/provider"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFile is returned when a download is requested for a folder.
	ErrNotFile = errors.New("item is not a file")
	// ErrNotClean is returned when scanning is mandatory and the file has
	// not passed it.
	ErrNotClean = errors.New("file has not passed scanning")
)

const (
	// downloadTTL is the lifetime of a freshly issued download URL.
	downloadTTL = time.Hour
	// reuseWindow is the minimum remaining life a cached URL needs to be
	// handed out again. Below it a fresh URL is issued; reuse above it
	// avoids credential churn and repeated audit writes.
	reuseWindow = 5 * time.Minute
)

// Service issues and caches download URLs.
type Service struct {
	store       storage.Backend
	providers   *provider.Registry
	access      *access.Engine
	auditor     *audit.Recorder
	requireScan bool
}

// NewService creates a download Service. When requireScan is set, files
// that have not been scanned clean cannot be downloaded.
func NewService(store storage.Backend, providers *provider.Registry, engine *access.Engine, auditor *audit.Recorder, requireScan bool) *Service {
	return &Service{
		store:       store,
		providers:   providers,
		access:      engine,
		auditor:     auditor,
		requireScan: requireScan,
	}
}

// GetURL resolves the item, authorizes the principal for read, and
// returns a download URL. A denied read surfaces as storage.ErrNotFound:
// callers learn nothing about items they cannot see. Exactly one of
// itemID and legacyPath must be set; legacyPath is the pre-ID addressing
// scheme and resolves only within the caller's own tree.
func (s *Service) GetURL(ctx context.Context, principal, itemID, legacyPath string) (string, error) {
	if itemID == "" {
		it, err := s.store.GetItemByPath(ctx, principal, legacyPath)
		if err != nil {
			return "", err
		}
		itemID = it.ID
	}

	dec, err := s.access.Authorize(ctx, itemID, principal, access.LevelRead)
	if err != nil {
		return "", err
	}
	if !dec.Allowed {
		return "", storage.ErrNotFound
	}
	it := dec.Item
	if it.Kind != models.KindFile {
		return "", ErrNotFile
	}
	if s.requireScan && it.ScanStatus != models.ScanClean {
		return "", ErrNotClean
	}

	url, fresh, err := s.issue(ctx, it)
	if err != nil {
		return "", err
	}
	if fresh {
		s.auditor.Record(ctx, principal, models.ActionDownloadURLIssued, &it.ID, map[string]any{
			"fileName":    it.Name,
			"provider":    it.Provider,
			"encrypted":   it.Encrypted,
			"accessLevel": string(dec.Level),
		}, false)
	}
	return url, nil
}

// IssueForLink hands out a download URL for a share-link access. The link
// itself is the capability, so no principal check happens here; the scan
// gate still applies.
func (s *Service) IssueForLink(ctx context.Context, it *models.VaultItem) (string, error) {
	if it.Kind != models.KindFile {
		return "", ErrNotFile
	}
	if s.requireScan && it.ScanStatus != models.ScanClean {
		return "", ErrNotClean
	}
	url, _, err := s.issue(ctx, it)
	return url, err
}

// issue returns a cached URL when it has more than reuseWindow of life
// left, otherwise generates and caches a fresh one. Caching never bumps
// UpdatedAt: a credential refresh is not a content mutation.
func (s *Service) issue(ctx context.Context, it *models.VaultItem) (string, bool, error) {
	if it.DownloadURL != "" && time.Until(it.DownloadURLExpiry) > reuseWindow {
		return it.DownloadURL, false, nil
	}

	key := it.StorageKey
	if it.QuarantineKey != nil {
		key = *it.QuarantineKey
	}
	url, err := s.providers.For(it.Provider).GenerateDownloadURL(ctx, key, downloadTTL)
	if err != nil {
		return "", false, fmt.Errorf("generating download url: %w", err)
	}
	// The URL is already good; a failed cache write only costs the next
	// request a reuse.
	expiry := time.Now().Add(downloadTTL).UTC()
	if err := s.store.CacheDownloadURL(ctx, it.ID, url, expiry); err != nil {
		log.Warn().Err(err).Str("itemId", it.ID).Msg("failed to cache download url")
	}
	return url, true, nil
}
