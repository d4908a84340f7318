package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/org/docvault/internal/provider"
	"github.com/org/docvault/internal/quota"
	"github.com/org/docvault/internal/storage"
)

// --- test helpers ---

const testScannerSecret = "scan-secret"

func newTestServer(t *testing.T, limits quota.Limits) (http.Handler, *storage.MemoryBackend) {
	t.Helper()
	store := storage.NewMemoryBackend()
	local := provider.NewLocalProvider(t.TempDir(), "http://vault.test", []byte("test-signing-secret"))
	srv := NewServer(store, provider.NewRegistry(local), Config{
		ScannerSecret: testScannerSecret,
		RequireScan:   true,
		QuotaLimits:   limits,
	})
	return srv.BuildRouter(), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
	return result
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, w)
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response missing data envelope: %s", w.Body.String())
	}
	return d
}

func registerPrincipal(t *testing.T, handler http.Handler, name string) (id, token string) {
	t.Helper()
	w := doJSON(t, handler, "POST", "/v1/auth/register", map[string]any{"displayName": name}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}
	d := dataOf(t, w)
	token, _ = d["token"].(string)
	p, _ := d["principal"].(map[string]any)
	id, _ = p["id"].(string)
	if id == "" || token == "" {
		t.Fatalf("incomplete register response: %s", w.Body.String())
	}
	return id, token
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, quota.Limits{})

	w := doJSON(t, handler, "GET", "/v1/sys/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	handler, _ := newTestServer(t, quota.Limits{})

	w := doJSON(t, handler, "GET", "/v1/items", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	w = doJSON(t, handler, "GET", "/v1/items", nil, "dvt_bogus")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestItemCRUDOverHTTP(t *testing.T) {
	handler, _ := newTestServer(t, quota.Limits{})
	_, token := registerPrincipal(t, handler, "Alice")

	// mkdir
	w := doJSON(t, handler, "POST", "/v1/items", map[string]any{"name": "docs", "kind": "folder"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("mkdir failed: %d %s", w.Code, w.Body.String())
	}
	folder := dataOf(t, w)
	folderID := folder["id"].(string)
	if folder["path"] != "/docs" {
		t.Errorf("folder path = %v, want /docs", folder["path"])
	}

	// duplicate sibling
	w = doJSON(t, handler, "POST", "/v1/items", map[string]any{"name": "docs", "kind": "folder"}, token)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate sibling: expected 409, got %d", w.Code)
	}

	// rename
	w = doJSON(t, handler, "PATCH", "/v1/items/"+folderID, map[string]any{"name": "paperwork"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("rename failed: %d %s", w.Code, w.Body.String())
	}
	if renamed := dataOf(t, w); renamed["path"] != "/paperwork" {
		t.Errorf("renamed path = %v, want /paperwork", renamed["path"])
	}

	// list root
	w = doJSON(t, handler, "GET", "/v1/items", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	if items, _ := decodeBody(t, w)["data"].([]any); len(items) != 1 {
		t.Errorf("expected 1 item at root, got %d", len(items))
	}

	// delete
	w = doJSON(t, handler, "DELETE", "/v1/items/"+folderID, nil, token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "GET", "/v1/items/"+folderID, nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted item should 404, got %d", w.Code)
	}
}

func TestItemNonDisclosure(t *testing.T) {
	handler, _ := newTestServer(t, quota.Limits{})
	_, aliceToken := registerPrincipal(t, handler, "Alice")
	_, bobToken := registerPrincipal(t, handler, "Bob")

	w := doJSON(t, handler, "POST", "/v1/items", map[string]any{"name": "private", "kind": "folder"}, aliceToken)
	id := dataOf(t, w)["id"].(string)

	// A stranger sees 404, not 403: the item's existence is not disclosed.
	w = doJSON(t, handler, "GET", "/v1/items/"+id, nil, bobToken)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign item, got %d", w.Code)
	}
}

func TestUploadScanPromoteDownloadFlow(t *testing.T) {
	handler, store := newTestServer(t, quota.Limits{})
	_, token := registerPrincipal(t, handler, "Alice")

	// Register the upload.
	w := doJSON(t, handler, "POST", "/v1/uploads", map[string]any{
		"fileName": "tax.pdf", "mimeType": "application/pdf", "fileSize": 5,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload register failed: %d %s", w.Code, w.Body.String())
	}
	ticket := dataOf(t, w)
	itemID := ticket["itemId"].(string)
	uploadURL := ticket["uploadUrl"].(string)
	if !strings.Contains(uploadURL, "quarantine/") {
		t.Errorf("upload URL should target quarantine: %s", uploadURL)
	}

	// Push bytes through the signed URL, served by the same router.
	putPath := strings.TrimPrefix(uploadURL, "http://vault.test")
	req := httptest.NewRequest("PUT", putPath, strings.NewReader("hello"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("blob upload failed: %d %s", rec.Code, rec.Body.String())
	}

	// Download before scanning is refused.
	w = doJSON(t, handler, "GET", "/v1/items/"+itemID+"/download-url", nil, token)
	if w.Code != http.StatusConflict {
		t.Errorf("unscanned download: expected 409, got %d", w.Code)
	}

	// Scanner reports clean.
	scanReq := httptest.NewRequest("POST", "/v1/uploads/"+itemID+"/scan-result",
		strings.NewReader(`{"status":"clean"}`))
	scanReq.Header.Set("X-Scanner-Secret", testScannerSecret)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, scanReq)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("scan result failed: %d %s", rec.Code, rec.Body.String())
	}

	// Promote.
	w = doJSON(t, handler, "POST", "/v1/uploads/"+itemID+"/promote", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("promote failed: %d %s", w.Code, w.Body.String())
	}
	stored, err := store.GetItem(context.Background(), itemID)
	if err != nil {
		t.Fatalf("fetching promoted item: %v", err)
	}
	if !strings.Contains(stored.StorageKey, itemID) || stored.QuarantineKey != nil {
		t.Errorf("promotion incomplete: key=%s quarantine=%v", stored.StorageKey, stored.QuarantineKey)
	}

	// Download URL now works and serves the uploaded bytes.
	w = doJSON(t, handler, "GET", "/v1/items/"+itemID+"/download-url", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("download url failed: %d %s", w.Code, w.Body.String())
	}
	dlURL := dataOf(t, w)["downloadUrl"].(string)
	getPath := strings.TrimPrefix(dlURL, "http://vault.test")
	req = httptest.NewRequest("GET", getPath, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Errorf("blob download: code=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestScannerSecretRequired(t *testing.T) {
	handler, _ := newTestServer(t, quota.Limits{})

	req := httptest.NewRequest("POST", "/v1/uploads/x/scan-result", strings.NewReader(`{"status":"clean"}`))
	req.Header.Set("X-Scanner-Secret", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad scanner secret, got %d", rec.Code)
	}
}

func TestUploadQuotaDeniedLeavesNothing(t *testing.T) {
	handler, store := newTestServer(t, quota.Limits{MaxFileSize: 10})
	id, token := registerPrincipal(t, handler, "Alice")

	w := doJSON(t, handler, "POST", "/v1/uploads", map[string]any{
		"fileName": "huge.bin", "mimeType": "application/octet-stream", "fileSize": 1000,
	}, token)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", w.Code, w.Body.String())
	}

	items, _ := store.ListOwned(context.Background(), id, nil)
	if len(items) != 0 {
		t.Errorf("denied upload must leave no record, found %d", len(items))
	}
}

func TestSharingOverHTTP(t *testing.T) {
	handler, _ := newTestServer(t, quota.Limits{})
	_, aliceToken := registerPrincipal(t, handler, "Alice")
	bobID, bobToken := registerPrincipal(t, handler, "Bob")

	w := doJSON(t, handler, "POST", "/v1/items", map[string]any{"name": "shared", "kind": "folder"}, aliceToken)
	id := dataOf(t, w)["id"].(string)

	// Grant bob read.
	w = doJSON(t, handler, "POST", "/v1/items/"+id+"/share", map[string]any{
		"principals": []string{bobID}, "level": "read",
	}, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("share failed: %d %s", w.Code, w.Body.String())
	}

	// Bob can now see it, with accessLevel read.
	w = doJSON(t, handler, "GET", "/v1/items/"+id, nil, bobToken)
	if w.Code != http.StatusOK {
		t.Fatalf("shared get failed: %d", w.Code)
	}
	if lvl := dataOf(t, w)["accessLevel"]; lvl != "read" {
		t.Errorf("accessLevel = %v, want read", lvl)
	}

	// Bob cannot see the ACLs.
	w = doJSON(t, handler, "GET", "/v1/items/"+id+"/permissions", nil, bobToken)
	if w.Code != http.StatusForbidden {
		t.Errorf("permissions for non-owner: expected 403, got %d", w.Code)
	}

	// Revoke, and the item disappears for bob.
	w = doJSON(t, handler, "DELETE", "/v1/items/"+id+"/share", map[string]any{
		"principals": []string{bobID},
	}, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("unshare failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "GET", "/v1/items/"+id, nil, bobToken)
	if w.Code != http.StatusNotFound {
		t.Errorf("revoked item should 404, got %d", w.Code)
	}
}

func TestShareLinkSingleUseOverHTTP(t *testing.T) {
	handler, store := newTestServer(t, quota.Limits{})
	_, token := registerPrincipal(t, handler, "Alice")

	// A promoted clean file to link to.
	w := doJSON(t, handler, "POST", "/v1/uploads", map[string]any{
		"fileName": "report.pdf", "mimeType": "application/pdf", "fileSize": 4,
	}, token)
	itemID := dataOf(t, w)["itemId"].(string)
	store.SetScanStatus(context.Background(), itemID, "clean")                           //nolint:errcheck
	store.PromoteItem(context.Background(), itemID, "local", "alice/"+itemID+"/report.pdf") //nolint:errcheck

	w = doJSON(t, handler, "POST", "/v1/items/"+itemID+"/links", map[string]any{
		"maxAccessCount": 1,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("link create failed: %d %s", w.Code, w.Body.String())
	}
	linkID := dataOf(t, w)["id"].(string)

	// Public metadata requires no auth.
	w = doJSON(t, handler, "GET", "/v1/links/"+linkID, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("link info failed: %d", w.Code)
	}

	// First access succeeds.
	w = doJSON(t, handler, "POST", "/v1/links/"+linkID+"/access", map[string]any{}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("first access failed: %d %s", w.Code, w.Body.String())
	}
	if url, _ := dataOf(t, w)["downloadUrl"].(string); url == "" {
		t.Error("expected download URL")
	}

	// Second access hits the ceiling.
	w = doJSON(t, handler, "POST", "/v1/links/"+linkID+"/access", map[string]any{}, "")
	if w.Code != http.StatusGone {
		t.Errorf("second access: expected 410, got %d", w.Code)
	}
}

func TestAuditLogScopedToActor(t *testing.T) {
	handler, _ := newTestServer(t, quota.Limits{})
	_, aliceToken := registerPrincipal(t, handler, "Alice")
	_, bobToken := registerPrincipal(t, handler, "Bob")

	doJSON(t, handler, "POST", "/v1/items", map[string]any{"name": "docs", "kind": "folder"}, aliceToken)

	w := doJSON(t, handler, "GET", "/v1/sys/audit-log", nil, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("audit query failed: %d", w.Code)
	}
	if entries, _ := decodeBody(t, w)["data"].([]any); len(entries) == 0 {
		t.Error("alice should see her own entries")
	}

	w = doJSON(t, handler, "GET", "/v1/sys/audit-log", nil, bobToken)
	if entries, _ := decodeBody(t, w)["data"].([]any); len(entries) != 0 {
		t.Errorf("bob should not see alice's entries, got %d", len(entries))
	}
}
