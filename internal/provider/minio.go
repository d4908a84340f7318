package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioProvider stores objects in a MinIO (or other S3-compatible) bucket.
type MinioProvider struct {
	client *minio.Client
	bucket string
}

// NewMinioProvider connects to the MinIO endpoint and ensures the bucket
// exists.
func NewMinioProvider(ctx context.Context, cfg Config) (*MinioProvider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking minio bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating minio bucket: %w", err)
		}
	}

	return &MinioProvider{client: client, bucket: cfg.Bucket}, nil
}

func (p *MinioProvider) Name() string { return "minio" }

func (p *MinioProvider) GenerateUploadURL(ctx context.Context, key, contentType string, ttl time.Duration, metadata map[string]string) (string, error) {
	u, err := p.client.PresignedPutObject(ctx, p.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("presigning minio upload: %w", err)
	}
	return u.String(), nil
}

func (p *MinioProvider) GenerateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning minio download: %w", err)
	}
	return u.String(), nil
}

func (p *MinioProvider) Move(ctx context.Context, srcKey, dstKey string) error {
	_, err := p.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: p.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: p.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copying minio object: %w", err)
	}
	return p.Delete(ctx, srcKey)
}

func (p *MinioProvider) Delete(ctx context.Context, key string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting minio object: %w", err)
	}
	return nil
}
