package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/docvault/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when trying to create a resource that already exists.
var ErrAlreadyExists = errors.New("already exists")

// Backend is the document-database boundary: a collection/document store
// with per-document updates and field-filtered queries. The vault core
// never assumes anything beyond this contract.
type Backend interface {
	// Items
	CreateItem(ctx context.Context, item *models.VaultItem) error
	GetItem(ctx context.Context, id string) (*models.VaultItem, error)
	GetItemByPath(ctx context.Context, ownerID, path string) (*models.VaultItem, error)
	// GetChildByName resolves a non-deleted child of parentID (nil = root)
	// by name for the sibling-uniqueness check.
	GetChildByName(ctx context.Context, ownerID string, parentID *string, name string) (*models.VaultItem, error)
	// ListOwned returns non-deleted items owned by ownerID directly under
	// parentID (nil = root).
	ListOwned(ctx context.Context, ownerID string, parentID *string) ([]*models.VaultItem, error)
	// ListSharedWith returns non-deleted items shared with the principal
	// directly under parentID (nil = root).
	ListSharedWith(ctx context.Context, principal string, parentID *string) ([]*models.VaultItem, error)
	// ListChildren returns every non-deleted child of a folder regardless
	// of sharing, for path propagation.
	ListChildren(ctx context.Context, parentID string) ([]*models.VaultItem, error)

	RenameItem(ctx context.Context, id, name, path string) error
	MoveItem(ctx context.Context, id string, parentID *string, path string) error
	UpdateItemMeta(ctx context.Context, id string, description *string, tags []string) error
	UpdateItemPath(ctx context.Context, id, path string) error
	SetScanStatus(ctx context.Context, id string, status models.ScanStatus) error
	// PromoteItem flips provider/key fields to the permanent location and
	// clears the quarantine record.
	PromoteItem(ctx context.Context, id, provider, storageKey string) error
	// CacheDownloadURL and CacheUploadURL persist presigned URLs without
	// touching UpdatedAt; a cache refresh is not a semantic mutation.
	CacheDownloadURL(ctx context.Context, id, url string, expiry time.Time) error
	CacheUploadURL(ctx context.Context, id, url string, expiry time.Time) error
	SetACLs(ctx context.Context, id string, sharedWith, canRead, canWrite []string, shareExpiry *time.Time) error

	SoftDeleteItem(ctx context.Context, id string, at time.Time) error
	RestoreItem(ctx context.Context, id string) error
	// HardDeleteItem removes the record and dependent rows (share links).
	// Object bytes are reclaimed out of process via the reclamation queue.
	HardDeleteItem(ctx context.Context, id string) error
	EnqueueReclamation(ctx context.Context, provider, storageKey string) error

	// Share links
	CreateShareLink(ctx context.Context, link *models.ShareLink) error
	GetShareLink(ctx context.Context, id string) (*models.ShareLink, error)
	ListShareLinks(ctx context.Context, itemID string) ([]*models.ShareLink, error)
	// ConsumeShareLink atomically increments the access counter, refusing
	// the increment once the max-access ceiling is reached. Returns false
	// when the link is exhausted.
	ConsumeShareLink(ctx context.Context, id string) (bool, error)

	// Principals
	CreatePrincipal(ctx context.Context, p *models.Principal) error
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)
	// LookupPrincipals returns the subset of ids that exist. Callers chunk
	// the id list to the query engine's IN-clause limit.
	LookupPrincipals(ctx context.Context, ids []string) ([]string, error)

	// API tokens (authentication boundary)
	WriteAPIToken(ctx context.Context, tokenHash, principalID string, createdAt time.Time) error
	GetAPITokenPrincipal(ctx context.Context, tokenHash string) (string, error)

	// Audit
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	// Metrics and quota helpers
	CountItems(ctx context.Context) (int64, error)
	CountShareLinks(ctx context.Context) (int64, error)
	SumFileSizes(ctx context.Context, ownerID string) (int64, error)

	// Lifecycle
	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
type AuditFilter struct {
	ActorID string
	Action  string
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}
