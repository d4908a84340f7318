// Package auth handles principal registration and API-token
// authentication. Tokens are opaque random strings shown once; only their
// SHA-256 hash is persisted.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
)

const tokenPrefix = "dvt_"

// ErrInvalidToken is returned when a presented token does not resolve to
// a principal.
var ErrInvalidToken = errors.New("invalid token")

// Service mints tokens and resolves them back to principals.
type Service struct {
	store storage.Backend
}

// NewService creates an auth Service backed by the given storage.
func NewService(store storage.Backend) *Service {
	return &Service{store: store}
}

// Register creates a principal and mints its first API token. Returns the
// principal and the plaintext token; the plaintext is never recoverable
// afterwards.
func (s *Service) Register(ctx context.Context, id, displayName, email string) (*models.Principal, string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	p := &models.Principal{
		ID:          id,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreatePrincipal(ctx, p); err != nil {
		return nil, "", err
	}
	token, err := s.MintToken(ctx, p.ID)
	if err != nil {
		return nil, "", err
	}
	return p, token, nil
}

// MintToken generates a fresh API token for an existing principal.
func (s *Service) MintToken(ctx context.Context, principalID string) (string, error) {
	if _, err := s.store.GetPrincipal(ctx, principalID); err != nil {
		return "", err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	plaintext := tokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	if err := s.store.WriteAPIToken(ctx, HashToken(plaintext), principalID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("persisting token: %w", err)
	}
	return plaintext, nil
}

// Authenticate resolves a plaintext token to its principal id.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrInvalidToken
	}
	principal, err := s.store.GetAPITokenPrincipal(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	return principal, nil
}

// HashToken returns the SHA-256 hex hash of a plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
