// Package provider presents one contract over the object-storage backends
// the vault can store file bytes in. Backends only ever see opaque keys;
// path semantics live entirely in the item tree.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Provider generates time-limited upload/download URLs and moves or deletes
// objects. Clients transfer bytes directly against the returned URLs; the
// vault itself never proxies object content.
type Provider interface {
	// Name is the provider tag persisted on items ("s3", "minio", "local").
	Name() string
	// GenerateUploadURL mints a presigned PUT URL for the given key.
	GenerateUploadURL(ctx context.Context, key, contentType string, ttl time.Duration, metadata map[string]string) (string, error)
	// GenerateDownloadURL mints a presigned GET URL for the given key.
	GenerateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Move relocates an object (quarantine promotion). Implemented as
	// copy-then-delete on backends without a native rename.
	Move(ctx context.Context, srcKey, dstKey string) error
	// Delete removes an object. Used by the out-of-band reclamation job.
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a storage backend.
type Config struct {
	Type   string `yaml:"type"` // "s3", "minio", "local"
	Bucket string `yaml:"bucket"`

	// S3
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// MinIO
	Endpoint string `yaml:"endpoint"`
	UseSSL   bool   `yaml:"use_ssl"`

	// Local
	LocalRoot     string `yaml:"local_root"`
	BaseURL       string `yaml:"base_url"`
	SigningSecret string `yaml:"signing_secret"`
}

// New creates a Provider from config.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Provider(ctx, cfg)
	case "minio":
		return NewMinioProvider(ctx, cfg)
	case "local":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("local provider requires local_root to be set")
		}
		if cfg.SigningSecret == "" {
			return nil, fmt.Errorf("local provider requires signing_secret to be set")
		}
		return NewLocalProvider(cfg.LocalRoot, cfg.BaseURL, []byte(cfg.SigningSecret)), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
