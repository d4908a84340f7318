package quota

import (
	"context"
	"testing"
	"time"

	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
)

func validate(t *testing.T, v *StaticValidator, name, mime string, size int64) *Result {
	t.Helper()
	res, err := v.Validate(context.Background(), "alice", name, mime, size)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return res
}

func TestValidateSizeLimits(t *testing.T) {
	store := storage.NewMemoryBackend()
	v := NewStaticValidator(store, Limits{MaxFileSize: 1024})

	if res := validate(t, v, "a.pdf", "application/pdf", 512); !res.IsValid {
		t.Errorf("512 bytes should pass: %v", res.Errors)
	}
	if res := validate(t, v, "a.pdf", "application/pdf", 2048); res.IsValid {
		t.Error("oversized file should fail")
	}
	if res := validate(t, v, "a.pdf", "application/pdf", 0); res.IsValid {
		t.Error("zero size should fail")
	}
}

func TestValidateBlockedExtensions(t *testing.T) {
	store := storage.NewMemoryBackend()
	v := NewStaticValidator(store, Limits{BlockedExtensions: []string{"exe", "bat"}})

	if res := validate(t, v, "setup.EXE", "application/octet-stream", 10); res.IsValid {
		t.Error("blocked extension should fail regardless of case")
	}
	if res := validate(t, v, "notes.txt", "text/plain", 10); !res.IsValid {
		t.Errorf("txt should pass: %v", res.Errors)
	}
}

func TestValidateMimeAllowlist(t *testing.T) {
	store := storage.NewMemoryBackend()
	v := NewStaticValidator(store, Limits{AllowedMimeTypes: []string{"application/pdf", "image/*"}})

	if res := validate(t, v, "a.pdf", "application/pdf", 10); !res.IsValid {
		t.Errorf("exact match should pass: %v", res.Errors)
	}
	if res := validate(t, v, "a.png", "image/png", 10); !res.IsValid {
		t.Errorf("wildcard match should pass: %v", res.Errors)
	}
	if res := validate(t, v, "a.zip", "application/zip", 10); res.IsValid {
		t.Error("unlisted mime should fail")
	}
}

func TestValidateTotalQuota(t *testing.T) {
	store := storage.NewMemoryBackend()
	now := time.Now().UTC()
	store.CreateItem(context.Background(), &models.VaultItem{ //nolint:errcheck
		ID: "d1", OwnerID: "alice", Kind: models.KindFile, Name: "big.bin", Path: "/big.bin",
		Size: 900, CreatedAt: now, UpdatedAt: now,
	})
	v := NewStaticValidator(store, Limits{MaxTotalSize: 1000, WarnUsageFraction: 0.8})

	if res := validate(t, v, "a.bin", "application/octet-stream", 200); res.IsValid {
		t.Error("upload over total quota should fail")
	}
	res := validate(t, v, "a.bin", "application/octet-stream", 50)
	if !res.IsValid {
		t.Fatalf("upload within quota should pass: %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a near-quota warning")
	}
}
