package storage

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/org/docvault/pkg/models"
)

// MemoryBackend is an in-memory implementation of Backend. It backs unit
// tests and local development without a database. Safe for concurrent use.
type MemoryBackend struct {
	mu          sync.RWMutex
	items       map[string]*models.VaultItem
	links       map[string]*models.ShareLink
	principals  map[string]*models.Principal
	tokens      map[string]string // token_hash -> principal id
	audit       []*models.AuditEntry
	reclamation []string // "provider/key"
	nextAuditID int64
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items:      map[string]*models.VaultItem{},
		links:      map[string]*models.ShareLink{},
		principals: map[string]*models.Principal{},
		tokens:     map[string]string{},
	}
}

func (m *MemoryBackend) Close() {}

func cloneItem(it *models.VaultItem) *models.VaultItem {
	cp := *it
	cp.Tags = slices.Clone(it.Tags)
	cp.SharedWith = slices.Clone(it.SharedWith)
	cp.CanRead = slices.Clone(it.CanRead)
	cp.CanWrite = slices.Clone(it.CanWrite)
	return &cp
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *MemoryBackend) siblingTaken(ownerID string, parentID *string, name, excludeID string) bool {
	for _, it := range m.items {
		if it.ID != excludeID && it.OwnerID == ownerID && !it.IsDeleted &&
			sameParent(it.ParentID, parentID) && it.Name == name {
			return true
		}
	}
	return false
}

// --- Items ---

func (m *MemoryBackend) CreateItem(ctx context.Context, item *models.VaultItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; ok {
		return ErrAlreadyExists
	}
	if m.siblingTaken(item.OwnerID, item.ParentID, item.Name, item.ID) {
		return ErrAlreadyExists
	}
	m.items[item.ID] = cloneItem(item)
	return nil
}

func (m *MemoryBackend) GetItem(ctx context.Context, id string) (*models.VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(it), nil
}

func (m *MemoryBackend) GetItemByPath(ctx context.Context, ownerID, path string) (*models.VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.OwnerID == ownerID && it.Path == path && !it.IsDeleted {
			return cloneItem(it), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryBackend) GetChildByName(ctx context.Context, ownerID string, parentID *string, name string) (*models.VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.OwnerID == ownerID && !it.IsDeleted && sameParent(it.ParentID, parentID) && it.Name == name {
			return cloneItem(it), nil
		}
	}
	return nil, ErrNotFound
}

func sortByName(items []*models.VaultItem) {
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}

func (m *MemoryBackend) ListOwned(ctx context.Context, ownerID string, parentID *string) ([]*models.VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.VaultItem
	for _, it := range m.items {
		if it.OwnerID == ownerID && !it.IsDeleted && sameParent(it.ParentID, parentID) {
			out = append(out, cloneItem(it))
		}
	}
	sortByName(out)
	return out, nil
}

func (m *MemoryBackend) ListSharedWith(ctx context.Context, principal string, parentID *string) ([]*models.VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.VaultItem
	for _, it := range m.items {
		if !it.IsDeleted && sameParent(it.ParentID, parentID) && slices.Contains(it.SharedWith, principal) {
			out = append(out, cloneItem(it))
		}
	}
	sortByName(out)
	return out, nil
}

func (m *MemoryBackend) ListChildren(ctx context.Context, parentID string) ([]*models.VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.VaultItem
	for _, it := range m.items {
		if !it.IsDeleted && it.ParentID != nil && *it.ParentID == parentID {
			out = append(out, cloneItem(it))
		}
	}
	sortByName(out)
	return out, nil
}

func (m *MemoryBackend) RenameItem(ctx context.Context, id, name, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if m.siblingTaken(it.OwnerID, it.ParentID, name, id) {
		return ErrAlreadyExists
	}
	it.Name = name
	it.Path = path
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) MoveItem(ctx context.Context, id string, parentID *string, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if m.siblingTaken(it.OwnerID, parentID, it.Name, id) {
		return ErrAlreadyExists
	}
	it.ParentID = parentID
	it.Path = path
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) UpdateItemMeta(ctx context.Context, id string, description *string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if description != nil {
		it.Description = *description
	}
	if tags != nil {
		it.Tags = slices.Clone(tags)
	}
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) UpdateItemPath(ctx context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Path = path
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) SetScanStatus(ctx context.Context, id string, status models.ScanStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.ScanStatus = status
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) PromoteItem(ctx context.Context, id, provider, storageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Provider = provider
	it.StorageKey = storageKey
	it.QuarantineKey = nil
	it.UploadURL = ""
	it.UploadURLExpiry = time.Time{}
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) CacheDownloadURL(ctx context.Context, id, url string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.DownloadURL = url
	it.DownloadURLExpiry = expiry
	return nil
}

func (m *MemoryBackend) CacheUploadURL(ctx context.Context, id, url string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.UploadURL = url
	it.UploadURLExpiry = expiry
	return nil
}

func (m *MemoryBackend) SetACLs(ctx context.Context, id string, sharedWith, canRead, canWrite []string, shareExpiry *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.SharedWith = slices.Clone(sharedWith)
	it.CanRead = slices.Clone(canRead)
	it.CanWrite = slices.Clone(canWrite)
	it.ShareExpiry = shareExpiry
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) SoftDeleteItem(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.IsDeleted = true
	it.DeletedAt = &at
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) RestoreItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.IsDeleted = false
	it.DeletedAt = nil
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) HardDeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	for lid, l := range m.links {
		if l.ItemID == id {
			delete(m.links, lid)
		}
	}
	return nil
}

func (m *MemoryBackend) EnqueueReclamation(ctx context.Context, provider, storageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclamation = append(m.reclamation, provider+"/"+storageKey)
	return nil
}

// --- Share links ---

func (m *MemoryBackend) CreateShareLink(ctx context.Context, link *models.ShareLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *link
	m.links[link.ID] = &cp
	return nil
}

func (m *MemoryBackend) GetShareLink(ctx context.Context, id string) (*models.ShareLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryBackend) ListShareLinks(ctx context.Context, itemID string) ([]*models.ShareLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ShareLink
	for _, l := range m.links {
		if l.ItemID == itemID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryBackend) ConsumeShareLink(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return false, ErrNotFound
	}
	if l.MaxAccessCount != nil && l.AccessCount >= *l.MaxAccessCount {
		return false, nil
	}
	l.AccessCount++
	return true, nil
}

// --- Principals ---

func (m *MemoryBackend) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[p.ID]; ok {
		return ErrAlreadyExists
	}
	if p.Email != "" {
		for _, existing := range m.principals {
			if existing.Email == p.Email {
				return ErrAlreadyExists
			}
		}
	}
	cp := *p
	m.principals[p.ID] = &cp
	return nil
}

func (m *MemoryBackend) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryBackend) LookupPrincipals(ctx context.Context, ids []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found []string
	for _, id := range ids {
		if _, ok := m.principals[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

// --- API tokens ---

func (m *MemoryBackend) WriteAPIToken(ctx context.Context, tokenHash, principalID string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = principalID
	return nil
}

func (m *MemoryBackend) GetAPITokenPrincipal(ctx context.Context, tokenHash string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	principalID, ok := m.tokens[tokenHash]
	if !ok {
		return "", ErrNotFound
	}
	return principalID, nil
}

// --- Audit ---

func (m *MemoryBackend) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAuditID++
	cp := *entry
	cp.ID = m.nextAuditID
	m.audit = append(m.audit, &cp)
	return nil
}

func (m *MemoryBackend) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !e.Timestamp.Before(*filter.Until) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Metrics and quota helpers ---

func (m *MemoryBackend) CountItems(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, it := range m.items {
		if !it.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) CountShareLinks(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.links)), nil
}

func (m *MemoryBackend) SumFileSizes(ctx context.Context, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, it := range m.items {
		if it.OwnerID == ownerID && it.Kind == models.KindFile && !it.IsDeleted {
			total += it.Size
		}
	}
	return total, nil
}

// Reclamations returns the queued provider/key pairs. Test helper.
func (m *MemoryBackend) Reclamations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.reclamation)
}
