package item

import (
	"context"
	"errors"
	"testing"

	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/audit"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
)

func newTestService() (*Service, *storage.MemoryBackend) {
	store := storage.NewMemoryBackend()
	engine := access.NewEngine(store)
	return NewService(store, engine, audit.NewRecorder(store)), store
}

func mkFolder(t *testing.T, svc *Service, owner, name string, parentID *string) *models.VaultItem {
	t.Helper()
	it, err := svc.Create(context.Background(), owner, name, models.KindFolder, parentID)
	if err != nil {
		t.Fatalf("creating folder %s: %v", name, err)
	}
	return it
}

func mkFile(t *testing.T, svc *Service, owner, name string, parentID *string) *models.VaultItem {
	t.Helper()
	it, err := svc.CreateFile(context.Background(), owner, name, parentID, FileMeta{
		Size: 100, MimeType: "application/pdf", Provider: "local", QuarantineKey: "quarantine/" + owner + "/" + name,
	})
	if err != nil {
		t.Fatalf("creating file %s: %v", name, err)
	}
	return it
}

func TestCreateMaterializesPath(t *testing.T) {
	svc, _ := newTestService()

	docs := mkFolder(t, svc, "alice", "docs", nil)
	if docs.Path != "/docs" {
		t.Errorf("root folder path = %s, want /docs", docs.Path)
	}

	tax := mkFolder(t, svc, "alice", "tax", &docs.ID)
	if tax.Path != "/docs/tax" {
		t.Errorf("nested folder path = %s, want /docs/tax", tax.Path)
	}

	file := mkFile(t, svc, "alice", "2024.pdf", &tax.ID)
	if file.Path != "/docs/tax/2024.pdf" {
		t.Errorf("file path = %s, want /docs/tax/2024.pdf", file.Path)
	}
	if file.ScanStatus != models.ScanPending {
		t.Errorf("new file scan status = %s, want pending", file.ScanStatus)
	}
}

func TestCreateRejectsDuplicateSiblingName(t *testing.T) {
	svc, _ := newTestService()

	docs := mkFolder(t, svc, "alice", "docs", nil)
	mkFolder(t, svc, "alice", "tax", &docs.ID)

	_, err := svc.Create(context.Background(), "alice", "tax", models.KindFolder, &docs.ID)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	// Same name under a different parent is fine.
	if _, err := svc.Create(context.Background(), "alice", "tax", models.KindFolder, nil); err != nil {
		t.Errorf("same name in other folder should be allowed: %v", err)
	}

	// And so is the same name for a different owner.
	if _, err := svc.Create(context.Background(), "bob", "docs", models.KindFolder, nil); err != nil {
		t.Errorf("same name for other owner should be allowed: %v", err)
	}
}

func TestCreateSanitizesName(t *testing.T) {
	svc, _ := newTestService()

	it, err := svc.Create(context.Background(), "alice", "  re/port:2024?.pdf  ", models.KindFile, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if it.Name != "report2024.pdf" {
		t.Errorf("sanitized name = %q, want report2024.pdf", it.Name)
	}

	if _, err := svc.Create(context.Background(), "alice", "///", models.KindFile, nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestGetHidesDeniedItems(t *testing.T) {
	svc, _ := newTestService()
	doc := mkFile(t, svc, "alice", "secret.pdf", nil)

	_, err := svc.Get(context.Background(), "mallory", doc.ID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("denied read must look like not-found, got %v", err)
	}
}

func TestRenameFolderPropagatesPaths(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	docs := mkFolder(t, svc, "alice", "docs", nil)
	tax := mkFolder(t, svc, "alice", "tax", &docs.ID)
	file := mkFile(t, svc, "alice", "2024.pdf", &tax.ID)

	if _, err := svc.Rename(ctx, "alice", docs.ID, "paperwork"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	gotTax, _ := store.GetItem(ctx, tax.ID)
	if gotTax.Path != "/paperwork/tax" {
		t.Errorf("subfolder path = %s, want /paperwork/tax", gotTax.Path)
	}
	gotFile, _ := store.GetItem(ctx, file.ID)
	if gotFile.Path != "/paperwork/tax/2024.pdf" {
		t.Errorf("file path = %s, want /paperwork/tax/2024.pdf", gotFile.Path)
	}
}

func TestRenameRejectsSiblingCollision(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mkFile(t, svc, "alice", "a.pdf", nil)
	b := mkFile(t, svc, "alice", "b.pdf", nil)

	if _, err := svc.Rename(ctx, "alice", b.ID, "a.pdf"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	// Renaming to its own name is not a collision.
	if _, err := svc.Rename(ctx, "alice", b.ID, "b.pdf"); err != nil {
		t.Errorf("self-rename should succeed: %v", err)
	}
}

func TestMoveRejectsCycles(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a := mkFolder(t, svc, "alice", "a", nil)
	b := mkFolder(t, svc, "alice", "b", &a.ID)
	c := mkFolder(t, svc, "alice", "c", &b.ID)

	if _, err := svc.Move(ctx, "alice", a.ID, &a.ID); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("move into self: expected ErrInvalidMove, got %v", err)
	}
	if _, err := svc.Move(ctx, "alice", a.ID, &c.ID); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("move into descendant: expected ErrInvalidMove, got %v", err)
	}
}

func TestMoveUpdatesSubtreePaths(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	src := mkFolder(t, svc, "alice", "src", nil)
	dst := mkFolder(t, svc, "alice", "dst", nil)
	file := mkFile(t, svc, "alice", "doc.pdf", &src.ID)

	moved, err := svc.Move(ctx, "alice", src.ID, &dst.ID)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Path != "/dst/src" {
		t.Errorf("moved path = %s, want /dst/src", moved.Path)
	}
	gotFile, _ := store.GetItem(ctx, file.ID)
	if gotFile.Path != "/dst/src/doc.pdf" {
		t.Errorf("descendant path = %s, want /dst/src/doc.pdf", gotFile.Path)
	}
}

func TestMoveIntoForeignFolderDenied(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mine := mkFile(t, svc, "alice", "doc.pdf", nil)
	theirs := mkFolder(t, svc, "bob", "inbox", nil)

	// A foreign destination is invisible, not merely forbidden.
	if _, err := svc.Move(ctx, "alice", mine.ID, &theirs.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteNonEmptyFolderRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	docs := mkFolder(t, svc, "alice", "docs", nil)
	mkFile(t, svc, "alice", "doc.pdf", &docs.ID)

	if err := svc.Delete(ctx, "alice", docs.ID, false); !errors.Is(err, ErrFolderNotEmpty) {
		t.Errorf("expected ErrFolderNotEmpty, got %v", err)
	}
}

func TestPermanentDeleteFlow(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	doc := mkFile(t, svc, "alice", "doc.pdf", nil)

	// Permanent delete requires a prior soft delete.
	if err := svc.Delete(ctx, "alice", doc.ID, true); !errors.Is(err, ErrNotDeleted) {
		t.Errorf("expected ErrNotDeleted, got %v", err)
	}

	if err := svc.Delete(ctx, "alice", doc.ID, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := svc.Delete(ctx, "alice", doc.ID, true); err != nil {
		t.Fatalf("permanent delete: %v", err)
	}

	if _, err := store.GetItem(ctx, doc.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("record should be gone, got %v", err)
	}
	if n := len(store.Reclamations()); n != 1 {
		t.Errorf("expected 1 queued reclamation, got %d", n)
	}
}

func TestPermanentDeleteOwnerOnly(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	doc := mkFile(t, svc, "alice", "doc.pdf", nil)
	// Bob has write access, which covers soft delete but not purge.
	store.SetACLs(ctx, doc.ID, []string{"bob"}, []string{"bob"}, []string{"bob"}, nil) //nolint:errcheck

	if err := svc.Delete(ctx, "bob", doc.ID, false); err != nil {
		t.Fatalf("soft delete by writer: %v", err)
	}
	if err := svc.Delete(ctx, "bob", doc.ID, true); !errors.Is(err, access.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	doc := mkFile(t, svc, "alice", "doc.pdf", nil)
	if err := svc.Delete(ctx, "alice", doc.ID, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	restored, err := svc.Restore(ctx, "alice", doc.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.IsDeleted {
		t.Error("restored item still marked deleted")
	}

	// A name collision created in the meantime blocks restore.
	if err := svc.Delete(ctx, "alice", doc.ID, false); err != nil {
		t.Fatalf("soft delete again: %v", err)
	}
	mkFile(t, svc, "alice", "doc.pdf", nil)
	if _, err := svc.Restore(ctx, "alice", doc.ID); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestListSeparatesOwnedAndShared(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	mkFile(t, svc, "alice", "mine.pdf", nil)
	theirs := mkFile(t, svc, "bob", "theirs.pdf", nil)
	store.SetACLs(ctx, theirs.ID, []string{"alice"}, []string{"alice"}, nil, nil) //nolint:errcheck

	views, err := svc.List(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 items, got %d", len(views))
	}
	for _, v := range views {
		switch v.Name {
		case "mine.pdf":
			if v.AccessLevel != models.AccessOwner {
				t.Errorf("mine.pdf level = %s, want owner", v.AccessLevel)
			}
		case "theirs.pdf":
			if v.AccessLevel != models.AccessRead {
				t.Errorf("theirs.pdf level = %s, want read", v.AccessLevel)
			}
		}
	}
}

func TestAuditTrailOnLifecycle(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	doc, err := svc.Create(ctx, "alice", "doc.pdf", models.KindFile, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.Rename(ctx, "alice", doc.ID, "renamed.pdf") //nolint:errcheck
	svc.Delete(ctx, "alice", doc.ID, false)         //nolint:errcheck

	entries, err := store.QueryAuditLog(ctx, storage.AuditFilter{ActorID: "alice"})
	if err != nil {
		t.Fatalf("querying audit log: %v", err)
	}
	actions := map[string]bool{}
	for _, e := range entries {
		actions[e.Action] = true
	}
	for _, want := range []string{models.ActionItemCreated, models.ActionItemRenamed, models.ActionItemDeleted} {
		if !actions[want] {
			t.Errorf("missing audit action %s", want)
		}
	}
}
