// Package access implements the vault's access-control engine: ownership
// and per-item ACL resolution, accessible-item listing, and materialized
// path propagation across folder subtrees.
package access

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrPermissionDenied is returned when a principal lacks the required
// access level on an item.
var ErrPermissionDenied = errors.New("permission denied")

// Level is the access level required for an operation.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
)

// maxTreeDepth bounds path propagation through folder subtrees. Branches
// deeper than this are abandoned with a warning rather than walked
// forever; pathological trees must not take the service down with them.
const maxTreeDepth = 32

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Item    *models.VaultItem
	Level   models.AccessLevel
	Reason  string
}

// Engine resolves access decisions against the item store.
type Engine struct {
	store storage.Backend
}

// NewEngine creates an access Engine backed by the given storage.
func NewEngine(store storage.Backend) *Engine {
	return &Engine{store: store}
}

// Authorize decides whether principal may act on the item at the required
// level. The owner bypasses ACL checks entirely; everyone else must appear
// in sharedWith and in the matching permission set. Unexpected storage
// failures deny access rather than guessing — the engine fails closed.
// A missing item surfaces as storage.ErrNotFound.
func (e *Engine) Authorize(ctx context.Context, itemID, principal string, level Level) (Decision, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Decision{Reason: "not found"}, storage.ErrNotFound
		}
		log.Warn().Err(err).Str("item", itemID).Msg("authorize: storage failure, denying")
		return Decision{Reason: "access denied"}, nil
	}

	if item.IsDeleted {
		return Decision{Item: item, Reason: "deleted"}, nil
	}

	if item.OwnerID == principal {
		return Decision{Allowed: true, Item: item, Level: models.AccessOwner}, nil
	}

	if !item.SharedWithPrincipal(principal) || item.ShareExpired(time.Now()) {
		return Decision{Item: item, Reason: "access denied"}, nil
	}

	switch level {
	case LevelWrite:
		if item.CanBeWrittenBy(principal) {
			return Decision{Allowed: true, Item: item, Level: models.AccessWrite}, nil
		}
	default:
		if item.CanBeReadBy(principal) {
			lvl := models.AccessRead
			if item.CanBeWrittenBy(principal) {
				lvl = models.AccessWrite
			}
			return Decision{Allowed: true, Item: item, Level: lvl}, nil
		}
	}
	return Decision{Item: item, Reason: "access denied"}, nil
}

// ListAccessible unions items owned by the principal under parentID with
// items shared with them there, deduplicating by id (ownership wins), and
// annotates each with the caller's effective access level. Folders sort
// before files, then alphabetically.
func (e *Engine) ListAccessible(ctx context.Context, principal string, parentID *string) ([]models.ItemView, error) {
	owned, err := e.store.ListOwned(ctx, principal, parentID)
	if err != nil {
		return nil, err
	}
	shared, err := e.store.ListSharedWith(ctx, principal, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make(map[string]bool, len(owned))
	views := make([]models.ItemView, 0, len(owned)+len(shared))
	for _, it := range owned {
		seen[it.ID] = true
		views = append(views, models.ItemView{VaultItem: it, AccessLevel: models.AccessOwner})
	}
	for _, it := range shared {
		if seen[it.ID] || it.ShareExpired(now) {
			continue
		}
		switch {
		case it.CanBeWrittenBy(principal):
			views = append(views, models.ItemView{VaultItem: it, AccessLevel: models.AccessWrite})
		case it.CanBeReadBy(principal):
			views = append(views, models.ItemView{VaultItem: it, AccessLevel: models.AccessRead})
		}
	}

	sort.SliceStable(views, func(i, j int) bool {
		fi, fj := views[i].IsFolder(), views[j].IsFolder()
		if fi != fj {
			return fi
		}
		return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
	})
	return views, nil
}

// PropagateRename re-materializes the path of every descendant after a
// folder's own path changed. The walk is an explicit worklist, not
// recursion: untrusted-depth trees are a real input. Each child update is
// an independent write; a failure is logged and the walk continues, so a
// crash mid-way leaves a partially-updated tree for the operator to
// re-propagate rather than a wedged request.
func (e *Engine) PropagateRename(ctx context.Context, folderID, newPath string) {
	type frame struct {
		folderID string
		path     string
		depth    int
	}
	work := []frame{{folderID: folderID, path: newPath}}

	for len(work) > 0 {
		f := work[len(work)-1]
		work = work[:len(work)-1]

		children, err := e.store.ListChildren(ctx, f.folderID)
		if err != nil {
			log.Warn().Err(err).Str("folder", f.folderID).Msg("propagate: listing children failed")
			continue
		}
		for _, child := range children {
			childPath := f.path + "/" + child.Name
			if err := e.store.UpdateItemPath(ctx, child.ID, childPath); err != nil {
				log.Warn().Err(err).Str("item", child.ID).Msg("propagate: path update failed")
				continue
			}
			if child.IsFolder() {
				if f.depth+1 > maxTreeDepth {
					log.Warn().
						Str("folder", child.ID).
						Int("depth", f.depth+1).
						Msg("propagate: max tree depth exceeded, abandoning branch")
					continue
				}
				work = append(work, frame{folderID: child.ID, path: childPath, depth: f.depth + 1})
			}
		}
	}
}
