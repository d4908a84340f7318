package share

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/audit"
	"github.com/org/docvault/internal/download"
	"github.com/org/docvault/internal/provider"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "fake" }

func (stubProvider) GenerateUploadURL(ctx context.Context, key, contentType string, ttl time.Duration, metadata map[string]string) (string, error) {
	return "https://blob.test/upload/" + key, nil
}

func (stubProvider) GenerateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://blob.test/download/" + key, nil
}

func (stubProvider) Move(ctx context.Context, srcKey, dstKey string) error { return nil }
func (stubProvider) Delete(ctx context.Context, key string) error          { return nil }

func newTestService(t *testing.T) (*Service, *storage.MemoryBackend) {
	t.Helper()
	store := storage.NewMemoryBackend()
	auditor := audit.NewRecorder(store)
	downloads := download.NewService(store, provider.NewRegistry(stubProvider{}), access.NewEngine(store), auditor, true)
	return NewService(store, downloads, auditor), store
}

func seedFile(t *testing.T, store *storage.MemoryBackend, id, owner string) *models.VaultItem {
	t.Helper()
	now := time.Now().UTC()
	it := &models.VaultItem{
		ID: id, OwnerID: owner, Kind: models.KindFile,
		Name: id + ".pdf", Path: "/" + id + ".pdf",
		Provider: "fake", StorageKey: owner + "/" + id,
		ScanStatus: models.ScanClean, Size: 42,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateItem(context.Background(), it); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return it
}

func seedPrincipals(t *testing.T, store *storage.MemoryBackend, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := store.CreatePrincipal(context.Background(), &models.Principal{
			ID: id, DisplayName: id, CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seeding principal %s: %v", id, err)
		}
	}
}

func TestShareWriteImpliesRead(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")
	seedPrincipals(t, store, "bob")

	it, err := svc.ShareWithUsers(ctx, "alice", "doc1", Grant{
		Principals: []string{"bob"}, Level: models.AccessWrite,
	})
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if !it.CanBeWrittenBy("bob") {
		t.Error("bob should have write access")
	}
	if !it.CanBeReadBy("bob") {
		t.Error("write grant must imply read")
	}
}

func TestShareIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")
	seedPrincipals(t, store, "bob")

	grant := Grant{Principals: []string{"bob"}, Level: models.AccessRead}
	if _, err := svc.ShareWithUsers(ctx, "alice", "doc1", grant); err != nil {
		t.Fatalf("first share: %v", err)
	}
	it, err := svc.ShareWithUsers(ctx, "alice", "doc1", grant)
	if err != nil {
		t.Fatalf("second share: %v", err)
	}
	if len(it.SharedWith) != 1 || len(it.CanRead) != 1 {
		t.Errorf("repeated grant duplicated ACLs: sharedWith=%v canRead=%v", it.SharedWith, it.CanRead)
	}
}

func TestShareRejectsSelfAndUnknown(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")

	_, err := svc.ShareWithUsers(ctx, "alice", "doc1", Grant{Principals: []string{"alice"}, Level: models.AccessRead})
	if !errors.Is(err, ErrSelfShare) {
		t.Errorf("expected ErrSelfShare, got %v", err)
	}

	_, err = svc.ShareWithUsers(ctx, "alice", "doc1", Grant{Principals: []string{"ghost"}, Level: models.AccessRead})
	if !errors.Is(err, ErrUnknownPrincipals) {
		t.Errorf("expected ErrUnknownPrincipals, got %v", err)
	}
}

func TestShareOwnerOnly(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	it := seedFile(t, store, "doc1", "alice")
	seedPrincipals(t, store, "bob", "carol")
	// Even a write grantee may not re-share.
	store.SetACLs(ctx, it.ID, []string{"bob"}, []string{"bob"}, []string{"bob"}, nil) //nolint:errcheck

	_, err := svc.ShareWithUsers(ctx, "bob", "doc1", Grant{Principals: []string{"carol"}, Level: models.AccessRead})
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestUnshareRemovesAllSets(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")
	seedPrincipals(t, store, "bob", "carol")

	svc.ShareWithUsers(ctx, "alice", "doc1", Grant{Principals: []string{"bob", "carol"}, Level: models.AccessWrite}) //nolint:errcheck

	it, err := svc.Unshare(ctx, "alice", "doc1", []string{"bob"})
	if err != nil {
		t.Fatalf("unshare: %v", err)
	}
	if it.SharedWithPrincipal("bob") || it.CanBeReadBy("bob") || it.CanBeWrittenBy("bob") {
		t.Error("bob should be fully revoked")
	}
	if !it.CanBeWrittenBy("carol") {
		t.Error("carol's grant must survive")
	}
}

func TestLinkPasswordGate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")

	link, err := svc.CreateLink(ctx, "alice", "doc1", LinkSpec{Password: "hunter2"})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}

	if _, _, err := svc.AccessLink(ctx, link.ID, "wrong"); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("expected ErrPasswordRequired, got %v", err)
	}
	if _, url, err := svc.AccessLink(ctx, link.ID, "hunter2"); err != nil || url == "" {
		t.Errorf("correct password should yield URL, got url=%q err=%v", url, err)
	}
}

func TestLinkSingleUse(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")

	max := int64(1)
	link, err := svc.CreateLink(ctx, "alice", "doc1", LinkSpec{MaxAccessCount: &max})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}

	if _, _, err := svc.AccessLink(ctx, link.ID, ""); err != nil {
		t.Fatalf("first access: %v", err)
	}
	if _, _, err := svc.AccessLink(ctx, link.ID, ""); !errors.Is(err, ErrLinkExhausted) {
		t.Errorf("second access: expected ErrLinkExhausted, got %v", err)
	}

	// The rejection lands in the trail as suspicious.
	entries, _ := store.QueryAuditLog(ctx, storage.AuditFilter{Action: models.ActionShareLinkRejected})
	if len(entries) != 1 || !entries[0].Suspicious {
		t.Errorf("exhausted access should be audited suspicious, got %+v", entries)
	}
}

func TestLinkDeletedItemDoesNotConsume(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	it := seedFile(t, store, "doc1", "alice")

	max := int64(1)
	link, err := svc.CreateLink(ctx, "alice", "doc1", LinkSpec{MaxAccessCount: &max})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}

	store.SoftDeleteItem(ctx, it.ID, time.Now().UTC()) //nolint:errcheck
	if _, _, err := svc.AccessLink(ctx, link.ID, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted item, got %v", err)
	}

	// The failed redemption must not have burned the single access.
	store.RestoreItem(ctx, it.ID) //nolint:errcheck
	if _, _, err := svc.AccessLink(ctx, link.ID, ""); err != nil {
		t.Errorf("access after restore: %v", err)
	}
}

func TestLinkExpiry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")

	past := time.Now().Add(-time.Minute)
	link, err := svc.CreateLink(ctx, "alice", "doc1", LinkSpec{ExpiresAt: &past})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if _, _, err := svc.AccessLink(ctx, link.ID, ""); !errors.Is(err, ErrLinkExpired) {
		t.Errorf("expected ErrLinkExpired, got %v", err)
	}
}

func TestLinkCreateOwnerOnly(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")

	if _, err := svc.CreateLink(ctx, "bob", "doc1", LinkSpec{}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestAnalyticsCountsWindow(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")
	seedFile(t, store, "doc2", "alice")

	l1, _ := svc.CreateLink(ctx, "alice", "doc1", LinkSpec{})
	l2, _ := svc.CreateLink(ctx, "alice", "doc2", LinkSpec{})
	svc.AccessLink(ctx, l1.ID, "") //nolint:errcheck
	svc.AccessLink(ctx, l1.ID, "") //nolint:errcheck
	svc.AccessLink(ctx, l2.ID, "") //nolint:errcheck

	a, err := svc.Analytics(ctx, "alice", 7)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.LinksCreated != 2 {
		t.Errorf("links created = %d, want 2", a.LinksCreated)
	}
	if a.LinkAccesses != 3 {
		t.Errorf("link accesses = %d, want 3", a.LinkAccesses)
	}
	if len(a.TopItems) == 0 || a.TopItems[0].ItemID != "doc1" {
		t.Errorf("top item should be doc1, got %+v", a.TopItems)
	}
}

func TestAnalyticsScopedToOwner(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedFile(t, store, "doc1", "alice")
	seedFile(t, store, "doc2", "bob")

	al, _ := svc.CreateLink(ctx, "alice", "doc1", LinkSpec{})
	bl, _ := svc.CreateLink(ctx, "bob", "doc2", LinkSpec{})
	svc.AccessLink(ctx, al.ID, "") //nolint:errcheck
	svc.AccessLink(ctx, bl.ID, "") //nolint:errcheck

	// Bob sees only his own activity.
	a, err := svc.Analytics(ctx, "bob", 7)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.LinksCreated != 1 || a.LinkAccesses != 1 {
		t.Errorf("bob's report = created %d, accesses %d, want 1 and 1", a.LinksCreated, a.LinkAccesses)
	}
	for _, top := range a.TopItems {
		if top.ItemID != "doc2" {
			t.Errorf("foreign item %s leaked into bob's report", top.ItemID)
		}
	}

	// A principal with no items and no links sees an empty report.
	empty, err := svc.Analytics(ctx, "carol", 7)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if empty.LinksCreated != 0 || empty.LinkAccesses != 0 || len(empty.TopItems) != 0 {
		t.Errorf("carol's report should be empty, got %+v", empty)
	}
}
