// Package share manages the two sharing surfaces: per-item ACL grants to
// known principals, and standalone share links that act as bearer
// capabilities.
package share

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/org/docvault/internal/audit"
	"github.com/org/docvault/internal/download"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotOwner is returned when a non-owner tries to manage sharing.
	ErrNotOwner = errors.New("only the owner may manage sharing")
	// ErrSelfShare is returned when an owner tries to share with themselves.
	ErrSelfShare = errors.New("cannot share an item with its owner")
	// ErrUnknownPrincipals is returned when a grant names principals that
	// do not exist.
	ErrUnknownPrincipals = errors.New("unknown principals")
	// ErrLinkExpired is returned when accessing a link past its expiry.
	ErrLinkExpired = errors.New("share link has expired")
	// ErrLinkExhausted is returned when a link's access ceiling is reached.
	ErrLinkExhausted = errors.New("share link access limit reached")
	// ErrPasswordRequired is returned when a password-gated link is
	// accessed without the right password.
	ErrPasswordRequired = errors.New("share link password required or incorrect")
)

// principalChunkSize bounds each existence-lookup query. Grants larger
// than one chunk are verified across several queries.
const principalChunkSize = 30

// Grant describes one ACL update for an item.
type Grant struct {
	Principals  []string
	Level       models.AccessLevel // read or write
	ShareExpiry *time.Time
}

// LinkSpec describes a share link to create.
type LinkSpec struct {
	Password       string
	ExpiresAt      *time.Time
	MaxAccessCount *int64
}

// Service manages ACL grants and share links.
type Service struct {
	store     storage.Backend
	downloads *download.Service
	auditor   *audit.Recorder
}

// NewService creates a sharing Service.
func NewService(store storage.Backend, downloads *download.Service, auditor *audit.Recorder) *Service {
	return &Service{store: store, downloads: downloads, auditor: auditor}
}

// ShareWithUsers grants the named principals access to an item. Owner
// only. Write implies read: write grantees land in both permission sets.
// Granting to an already-granted principal is idempotent.
func (s *Service) ShareWithUsers(ctx context.Context, owner, itemID string, grant Grant) (*models.VaultItem, error) {
	it, err := s.ownedItem(ctx, owner, itemID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(grant.Principals, owner) {
		return nil, ErrSelfShare
	}
	if err := s.verifyPrincipals(ctx, grant.Principals); err != nil {
		return nil, err
	}

	sharedWith := mergeSet(it.SharedWith, grant.Principals)
	canRead := it.CanRead
	canWrite := it.CanWrite
	switch grant.Level {
	case models.AccessWrite:
		canWrite = mergeSet(canWrite, grant.Principals)
		canRead = mergeSet(canRead, grant.Principals)
	default:
		canRead = mergeSet(canRead, grant.Principals)
	}

	expiry := it.ShareExpiry
	if grant.ShareExpiry != nil {
		expiry = grant.ShareExpiry
	}
	if err := s.store.SetACLs(ctx, it.ID, sharedWith, canRead, canWrite, expiry); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, owner, models.ActionItemShared, &it.ID, map[string]any{
		"principals": grant.Principals,
		"level":      string(grant.Level),
	}, false)

	it.SharedWith = sharedWith
	it.CanRead = canRead
	it.CanWrite = canWrite
	it.ShareExpiry = expiry
	return it, nil
}

// Unshare revokes the named principals from every permission set. Owner
// only. Revoking a principal that was never granted is a no-op.
func (s *Service) Unshare(ctx context.Context, owner, itemID string, principals []string) (*models.VaultItem, error) {
	it, err := s.ownedItem(ctx, owner, itemID)
	if err != nil {
		return nil, err
	}

	sharedWith := removeSet(it.SharedWith, principals)
	canRead := removeSet(it.CanRead, principals)
	canWrite := removeSet(it.CanWrite, principals)
	expiry := it.ShareExpiry
	if len(sharedWith) == 0 {
		expiry = nil
	}
	if err := s.store.SetACLs(ctx, it.ID, sharedWith, canRead, canWrite, expiry); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, owner, models.ActionItemUnshared, &it.ID, map[string]any{
		"principals": principals,
	}, false)

	it.SharedWith = sharedWith
	it.CanRead = canRead
	it.CanWrite = canWrite
	it.ShareExpiry = expiry
	return it, nil
}

// CreateLink mints a share link for an item. Owner only. The password, if
// any, is stored as a bcrypt hash.
func (s *Service) CreateLink(ctx context.Context, owner, itemID string, spec LinkSpec) (*models.ShareLink, error) {
	it, err := s.ownedItem(ctx, owner, itemID)
	if err != nil {
		return nil, err
	}

	var hash []byte
	if spec.Password != "" {
		hash, err = bcrypt.GenerateFromPassword([]byte(spec.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing link password: %w", err)
		}
	}

	link := &models.ShareLink{
		ID:             uuid.NewString(),
		ItemID:         it.ID,
		CreatedBy:      owner,
		PasswordHash:   hash,
		ExpiresAt:      spec.ExpiresAt,
		MaxAccessCount: spec.MaxAccessCount,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateShareLink(ctx, link); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, owner, models.ActionShareLinkCreated, &it.ID, map[string]any{
		"linkId":      link.ID,
		"hasPassword": link.HasPassword(),
		"maxAccesses": spec.MaxAccessCount,
	}, false)
	return link, nil
}

// ListLinks returns the links minted for an item. Owner only.
func (s *Service) ListLinks(ctx context.Context, owner, itemID string) ([]*models.ShareLink, error) {
	if _, err := s.ownedItem(ctx, owner, itemID); err != nil {
		return nil, err
	}
	return s.store.ListShareLinks(ctx, itemID)
}

// LinkInfo returns a link and its item for the public landing view: name
// and kind only, no ACLs or storage details, and no access is consumed.
func (s *Service) LinkInfo(ctx context.Context, linkID string) (*models.ShareLink, *models.VaultItem, error) {
	link, err := s.store.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, nil, err
	}
	it, err := s.store.GetItem(ctx, link.ItemID)
	if err != nil {
		return nil, nil, err
	}
	if it.IsDeleted {
		return nil, nil, storage.ErrNotFound
	}
	return link, it, nil
}

// AccessLink redeems a share link: checks expiry, password, and the
// access ceiling, consumes one access atomically, and returns the item
// with a download URL. Rejections are audited as suspicious so repeated
// probing shows up in the trail.
func (s *Service) AccessLink(ctx context.Context, linkID, password string) (*models.VaultItem, string, error) {
	link, err := s.store.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, "", err
	}

	if link.Expired(time.Now()) {
		s.recordRejection(ctx, link, "expired")
		return nil, "", ErrLinkExpired
	}
	if link.HasPassword() {
		if bcrypt.CompareHashAndPassword(link.PasswordHash, []byte(password)) != nil {
			s.recordRejection(ctx, link, "bad password")
			return nil, "", ErrPasswordRequired
		}
	}

	// The item is checked before the counter: a dead item must not burn
	// an access on a max-count link.
	it, err := s.store.GetItem(ctx, link.ItemID)
	if err != nil {
		return nil, "", err
	}
	if it.IsDeleted {
		return nil, "", storage.ErrNotFound
	}

	// The counter is consumed before the URL is issued; two racing
	// redemptions of a one-shot link cannot both get through.
	ok, err := s.store.ConsumeShareLink(ctx, linkID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		s.recordRejection(ctx, link, "exhausted")
		return nil, "", ErrLinkExhausted
	}
	url, err := s.downloads.IssueForLink(ctx, it)
	if err != nil {
		return nil, "", err
	}

	s.auditor.Record(ctx, "anonymous", models.ActionShareLinkAccessed, &it.ID, map[string]any{
		"linkId": link.ID,
	}, false)
	return it, url, nil
}

// Analytics summarizes link creation and access activity for one owner's
// items from the audit trail over the past windowDays days. Activity on
// other owners' items never shows up in the report.
func (s *Service) Analytics(ctx context.Context, owner string, windowDays int) (*models.ShareAnalytics, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().AddDate(0, 0, -windowDays).UTC()

	created, err := s.store.QueryAuditLog(ctx, storage.AuditFilter{
		ActorID: owner,
		Action:  models.ActionShareLinkCreated,
		Since:   &since,
	})
	if err != nil {
		return nil, err
	}
	accessed, err := s.store.QueryAuditLog(ctx, storage.AuditFilter{
		Action: models.ActionShareLinkAccessed,
		Since:  &since,
	})
	if err != nil {
		return nil, err
	}

	// Accesses are recorded by the anonymous redeemer, so each one is
	// attributed through the item it touched.
	owned := make(map[string]bool)
	ownsItem := func(id string) bool {
		if v, ok := owned[id]; ok {
			return v
		}
		it, err := s.store.GetItem(ctx, id)
		v := err == nil && it.OwnerID == owner
		owned[id] = v
		return v
	}

	var accesses int64
	byDay := make(map[string]int64)
	byItem := make(map[string]int64)
	for _, e := range accessed {
		if e.ItemID == nil || !ownsItem(*e.ItemID) {
			continue
		}
		accesses++
		byDay[e.Timestamp.UTC().Format("2006-01-02")]++
		byItem[*e.ItemID]++
	}

	top := make([]models.ItemAccess, 0, len(byItem))
	for id, n := range byItem {
		top = append(top, models.ItemAccess{ItemID: id, Accesses: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Accesses != top[j].Accesses {
			return top[i].Accesses > top[j].Accesses
		}
		return top[i].ItemID < top[j].ItemID
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return &models.ShareAnalytics{
		WindowDays:    windowDays,
		LinksCreated:  int64(len(created)),
		LinkAccesses:  accesses,
		AccessesByDay: byDay,
		TopItems:      top,
	}, nil
}

// ownedItem loads a live item and verifies ownership. Non-owners get
// ErrNotOwner even for items shared with them: sharing is an
// owner-delegated right, never transitive.
func (s *Service) ownedItem(ctx context.Context, owner, itemID string) (*models.VaultItem, error) {
	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.IsDeleted {
		return nil, storage.ErrNotFound
	}
	if it.OwnerID != owner {
		return nil, ErrNotOwner
	}
	return it, nil
}

// verifyPrincipals checks every id in the grant against the principal
// directory, chunking the lookup.
func (s *Service) verifyPrincipals(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	missing := make([]string, 0)
	for start := 0; start < len(ids); start += principalChunkSize {
		end := min(start+principalChunkSize, len(ids))
		chunk := ids[start:end]
		found, err := s.store.LookupPrincipals(ctx, chunk)
		if err != nil {
			return fmt.Errorf("verifying principals: %w", err)
		}
		for _, id := range chunk {
			if !slices.Contains(found, id) {
				missing = append(missing, id)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnknownPrincipals, missing)
	}
	return nil
}

func (s *Service) recordRejection(ctx context.Context, link *models.ShareLink, reason string) {
	s.auditor.Record(ctx, "anonymous", models.ActionShareLinkRejected, &link.ItemID, map[string]any{
		"linkId": link.ID,
		"reason": reason,
	}, true)
}

// mergeSet unions add into set, preserving order and dropping duplicates.
func mergeSet(set, add []string) []string {
	out := slices.Clone(set)
	for _, v := range add {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// removeSet drops every element of remove from set.
func removeSet(set, remove []string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if !slices.Contains(remove, v) {
			out = append(out, v)
		}
	}
	return out
}
