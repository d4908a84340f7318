package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/org/docvault/internal/storage"
)

func TestRegisterMintsUsableToken(t *testing.T) {
	svc := NewService(storage.NewMemoryBackend())
	ctx := context.Background()

	p, token, err := svc.Register(ctx, "", "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.ID == "" {
		t.Error("expected a generated principal id")
	}
	if !strings.HasPrefix(token, tokenPrefix) {
		t.Errorf("token %q missing prefix %q", token, tokenPrefix)
	}

	got, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != p.ID {
		t.Errorf("authenticated principal = %q, want %q", got, p.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(storage.NewMemoryBackend())
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "", "Alice", "alice@example.com"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := svc.Register(ctx, "", "Alice Again", "alice@example.com")
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMintTokenRequiresPrincipal(t *testing.T) {
	svc := NewService(storage.NewMemoryBackend())

	if _, err := svc.MintToken(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	store := storage.NewMemoryBackend()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token: expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "dvt_bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown token: expected ErrInvalidToken, got %v", err)
	}

	_, token, err := svc.Register(ctx, "", "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	tampered := token + "x"
	if _, err := svc.Authenticate(ctx, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token: expected ErrInvalidToken, got %v", err)
	}
}
