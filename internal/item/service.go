// Package item implements the vault item lifecycle: create, rename, move,
// update, and delete over the per-owner hierarchical namespace, with
// sibling-name uniqueness and materialized-path maintenance.
package item

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/audit"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
)

var (
	// ErrInvalidKind is returned for an unknown item kind.
	ErrInvalidKind = errors.New("invalid item kind")
	// ErrInvalidMove is returned when a move target is the item itself or
	// one of its descendants.
	ErrInvalidMove = errors.New("invalid move target")
	// ErrFolderNotEmpty is returned when deleting a folder that still has
	// children. Cascading folder deletion is deliberately unsupported.
	ErrFolderNotEmpty = errors.New("folder not empty")
	// ErrNotDeleted is returned when a permanent delete or restore is
	// attempted on an item that has not been soft-deleted.
	ErrNotDeleted = errors.New("item is not deleted")
)

// maxAncestorWalk bounds the upward walk used for cycle detection on move.
const maxAncestorWalk = 64

// FileMeta carries the content fields for file creation.
type FileMeta struct {
	Size          int64
	MimeType      string
	Provider      string
	QuarantineKey string
	Encrypted     bool
}

// Service is the item lifecycle manager.
type Service struct {
	store   storage.Backend
	access  *access.Engine
	auditor *audit.Recorder
}

// NewService creates an item Service.
func NewService(store storage.Backend, accessEng *access.Engine, auditor *audit.Recorder) *Service {
	return &Service{store: store, access: accessEng, auditor: auditor}
}

// resolveParent validates a parent reference and returns its materialized
// path. Parents that are missing, deleted, not folders, or owned by
// someone else all surface as not-found; callers learn nothing about
// other owners' trees.
func (s *Service) resolveParent(ctx context.Context, owner string, parentID *string) (string, error) {
	if parentID == nil {
		return "", nil
	}
	parent, err := s.store.GetItem(ctx, *parentID)
	if err != nil {
		return "", err
	}
	if parent.IsDeleted || !parent.IsFolder() || parent.OwnerID != owner {
		return "", storage.ErrNotFound
	}
	return parent.Path, nil
}

// checkSiblingName enforces name uniqueness among non-deleted siblings,
// excluding the item itself on rename.
func (s *Service) checkSiblingName(ctx context.Context, owner string, parentID *string, name, excludeID string) error {
	existing, err := s.store.GetChildByName(ctx, owner, parentID, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != excludeID {
		return storage.ErrAlreadyExists
	}
	return nil
}

// Create adds a folder, or a file without content, as a leaf under the
// given parent.
func (s *Service) Create(ctx context.Context, owner, name string, kind models.ItemKind, parentID *string) (*models.VaultItem, error) {
	if kind != models.KindFolder && kind != models.KindFile {
		return nil, ErrInvalidKind
	}
	clean, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}
	parentPath, err := s.resolveParent(ctx, owner, parentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSiblingName(ctx, owner, parentID, clean, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	it := &models.VaultItem{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Kind:      kind,
		Name:      clean,
		ParentID:  parentID,
		Path:      parentPath + "/" + clean,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, owner, models.ActionItemCreated, &it.ID, map[string]any{
		"name": it.Name, "kind": string(it.Kind), "path": it.Path,
	}, false)
	return it, nil
}

// CreateFile registers a file record pointed at a quarantine location.
// Called by the upload pipeline before any bytes move, so every staged
// object has a durable owner record even if the client never uploads.
func (s *Service) CreateFile(ctx context.Context, owner, name string, parentID *string, meta FileMeta) (*models.VaultItem, error) {
	clean, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}
	parentPath, err := s.resolveParent(ctx, owner, parentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSiblingName(ctx, owner, parentID, clean, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	quarantine := meta.QuarantineKey
	it := &models.VaultItem{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		Kind:          models.KindFile,
		Name:          clean,
		ParentID:      parentID,
		Path:          parentPath + "/" + clean,
		Size:          meta.Size,
		MimeType:      meta.MimeType,
		Provider:      meta.Provider,
		QuarantineKey: &quarantine,
		Encrypted:     meta.Encrypted,
		ScanStatus:    models.ScanPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Get fetches one item with the caller's effective access level. Items the
// principal cannot read are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, principal, id string) (*models.ItemView, error) {
	dec, err := s.access.Authorize(ctx, id, principal, access.LevelRead)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return nil, storage.ErrNotFound
	}
	return &models.ItemView{VaultItem: dec.Item, AccessLevel: dec.Level}, nil
}

// List returns the items accessible to the principal under parentID,
// folders before files, then alphabetical.
func (s *Service) List(ctx context.Context, principal string, parentID *string) ([]models.ItemView, error) {
	return s.access.ListAccessible(ctx, principal, parentID)
}

// Rename changes an item's name, re-materializes its path, and, for
// folders, propagates the new path to every descendant.
func (s *Service) Rename(ctx context.Context, principal, id, newName string) (*models.VaultItem, error) {
	dec, err := s.access.Authorize(ctx, id, principal, access.LevelWrite)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return nil, access.ErrPermissionDenied
	}
	it := dec.Item

	clean, err := sanitizeName(newName)
	if err != nil {
		return nil, err
	}
	if clean == it.Name {
		return it, nil
	}
	if err := s.checkSiblingName(ctx, it.OwnerID, it.ParentID, clean, it.ID); err != nil {
		return nil, err
	}

	newPath := parentPathOf(it.Path) + "/" + clean
	if err := s.store.RenameItem(ctx, it.ID, clean, newPath); err != nil {
		return nil, err
	}
	if it.IsFolder() {
		s.access.PropagateRename(ctx, it.ID, newPath)
	}
	s.auditor.Record(ctx, principal, models.ActionItemRenamed, &it.ID, map[string]any{
		"from": it.Name, "to": clean, "path": newPath,
	}, false)

	it.Name = clean
	it.Path = newPath
	return it, nil
}

// Move reparents an item. The destination must be a folder in the same
// owner namespace and must not be the item itself or any descendant of it.
func (s *Service) Move(ctx context.Context, principal, id string, newParentID *string) (*models.VaultItem, error) {
	dec, err := s.access.Authorize(ctx, id, principal, access.LevelWrite)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return nil, access.ErrPermissionDenied
	}
	it := dec.Item

	if newParentID != nil && *newParentID == it.ID {
		return nil, ErrInvalidMove
	}
	destPath, err := s.resolveParent(ctx, it.OwnerID, newParentID)
	if err != nil {
		return nil, err
	}
	if newParentID != nil {
		if err := s.checkNotDescendant(ctx, it.ID, *newParentID); err != nil {
			return nil, err
		}
	}
	if err := s.checkSiblingName(ctx, it.OwnerID, newParentID, it.Name, it.ID); err != nil {
		return nil, err
	}

	newPath := destPath + "/" + it.Name
	if err := s.store.MoveItem(ctx, it.ID, newParentID, newPath); err != nil {
		return nil, err
	}
	if it.IsFolder() {
		s.access.PropagateRename(ctx, it.ID, newPath)
	}
	s.auditor.Record(ctx, principal, models.ActionItemMoved, &it.ID, map[string]any{
		"path": newPath,
	}, false)

	it.ParentID = newParentID
	it.Path = newPath
	return it, nil
}

// checkNotDescendant walks up from the destination folder; finding the
// moved item on the way to the root means the destination sits inside the
// moved subtree.
func (s *Service) checkNotDescendant(ctx context.Context, itemID, destID string) error {
	cur := destID
	for range maxAncestorWalk {
		if cur == itemID {
			return ErrInvalidMove
		}
		node, err := s.store.GetItem(ctx, cur)
		if err != nil {
			return err
		}
		if node.ParentID == nil {
			return nil
		}
		cur = *node.ParentID
	}
	return ErrInvalidMove
}

// UpdateMeta updates name, description, and tags. A nil field is left
// untouched.
func (s *Service) UpdateMeta(ctx context.Context, principal, id string, name, description *string, tags []string) (*models.VaultItem, error) {
	if name != nil {
		if _, err := s.Rename(ctx, principal, id, *name); err != nil {
			return nil, err
		}
	}
	dec, err := s.access.Authorize(ctx, id, principal, access.LevelWrite)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return nil, access.ErrPermissionDenied
	}
	if description != nil || tags != nil {
		if err := s.store.UpdateItemMeta(ctx, id, description, tags); err != nil {
			return nil, err
		}
		s.auditor.Record(ctx, principal, models.ActionItemUpdated, &id, nil, false)
	}
	return s.store.GetItem(ctx, id)
}

// Delete removes an item. Soft delete flips the tombstone and is open to
// anyone with write access ("write implies delete"). Permanent delete is
// owner-only, requires a prior soft delete, removes the record and its
// share links, and queues the object bytes for out-of-band reclamation.
// Non-empty folders are never deletable.
func (s *Service) Delete(ctx context.Context, principal, id string, permanent bool) error {
	if permanent {
		return s.deletePermanent(ctx, principal, id)
	}

	dec, err := s.access.Authorize(ctx, id, principal, access.LevelWrite)
	if err != nil {
		return err
	}
	if !dec.Allowed {
		return access.ErrPermissionDenied
	}
	it := dec.Item

	if it.IsFolder() {
		children, err := s.store.ListChildren(ctx, it.ID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return ErrFolderNotEmpty
		}
	}
	if err := s.store.SoftDeleteItem(ctx, it.ID, time.Now().UTC()); err != nil {
		return err
	}
	s.auditor.Record(ctx, principal, models.ActionItemDeleted, &id, map[string]any{
		"permanent": false,
	}, false)
	return nil
}

func (s *Service) deletePermanent(ctx context.Context, principal, id string) error {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if it.OwnerID != principal {
		return access.ErrPermissionDenied
	}
	if !it.IsDeleted {
		return ErrNotDeleted
	}

	if it.Kind == models.KindFile && it.Provider != "" {
		key := it.StorageKey
		if it.QuarantineKey != nil {
			key = *it.QuarantineKey
		}
		if key != "" {
			if err := s.store.EnqueueReclamation(ctx, it.Provider, key); err != nil {
				return err
			}
		}
	}
	if err := s.store.HardDeleteItem(ctx, id); err != nil {
		return err
	}
	s.auditor.Record(ctx, principal, models.ActionItemDeleted, &id, map[string]any{
		"permanent": true, "path": it.Path,
	}, false)
	return nil
}

// Restore reverses a soft delete. Owner-only; fails if a sibling has
// since claimed the name.
func (s *Service) Restore(ctx context.Context, principal, id string) (*models.VaultItem, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.OwnerID != principal {
		return nil, access.ErrPermissionDenied
	}
	if !it.IsDeleted {
		return nil, ErrNotDeleted
	}
	if err := s.checkSiblingName(ctx, it.OwnerID, it.ParentID, it.Name, it.ID); err != nil {
		return nil, err
	}
	if err := s.store.RestoreItem(ctx, id); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, principal, models.ActionItemRestored, &id, nil, false)
	it.IsDeleted = false
	it.DeletedAt = nil
	return it, nil
}
