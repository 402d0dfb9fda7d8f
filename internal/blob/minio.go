// Package blob stores generated analysis reports in S3-compatible object
// storage.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store wraps a MinIO client scoped to a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads an object and returns nothing beyond the error; callers keep
// the object ID they chose.
func (s *Store) Put(ctx context.Context, objectID string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectID, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectID, err)
	}
	return nil
}

// Get streams an object's contents. The caller owns the returned reader.
func (s *Store) Get(ctx context.Context, objectID string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectID, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectID, err)
	}
	// GetObject is lazy; a Stat forces the first request so missing
	// objects fail here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat object %s: %w", objectID, err)
	}
	return obj, nil
}

// PresignURL returns a time-limited download URL for an object.
func (s *Store) PresignURL(ctx context.Context, objectID string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-type", "application/pdf")
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectID, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectID, err)
	}
	return u.String(), nil
}
