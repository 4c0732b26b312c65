package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures the S3-compatible object store.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Store persists artifacts into an S3-compatible bucket and serves them
// through presigned, time-bounded read URLs.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store initializes the S3 client and verifies the configuration.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("storage: s3 endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

// Write implements ObjectStore.
func (s *S3Store) Write(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("storage: put object: %w", err)
	}
	return nil
}

// SignedURL implements ObjectStore.
func (s *S3Store) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("storage: presign object: %w", err)
	}
	return u.String(), nil
}
