// Package objectstore persists approved images permanently. Provider URLs
// are ephemeral; publication copies the artifact here and the gallery serves
// the permanent URL.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store is the blob operations publication and cascade deletion need.
type Store interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, objectName string) error
	// ObjectNameFromURL maps a public URL back to the object it serves,
	// reporting false for URLs outside this store.
	ObjectNameFromURL(publicURL string) (string, bool)
}

// Options configures the MinIO-backed store.
type Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PublicBase string
}

// MinioStore keeps published images in a single bucket and serves them
// through a stable public base URL.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(ctx context.Context, opts Options) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("objectstore: check bucket %q: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("objectstore: create bucket %q: %w", opts.Bucket, err)
		}
	}

	return &MinioStore{
		client:     client,
		bucket:     opts.Bucket,
		publicBase: strings.TrimRight(opts.PublicBase, "/"),
	}, nil
}

// Put uploads the object and returns its permanent public URL.
func (s *MinioStore) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put %q: %w", objectName, err)
	}
	return s.publicURL(objectName), nil
}

// Remove deletes the object from the bucket.
func (s *MinioStore) Remove(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("objectstore: remove %q: %w", objectName, err)
	}
	return nil
}

// ObjectNameFromURL maps a public URL back to its object name.
func (s *MinioStore) ObjectNameFromURL(publicURL string) (string, bool) {
	prefix := s.publicURL("")
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(publicURL, prefix)
	if name == "" {
		return "", false
	}
	return name, true
}

func (s *MinioStore) publicURL(objectName string) string {
	return s.publicBase + "/" + s.bucket + "/" + objectName
}
