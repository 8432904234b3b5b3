// Package minio implements bootstrap.ObjectStore on MinIO and other
// S3-compatible object stores.
package minio

import (
	"bytes"
	"context"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/vecmigrate/bootstrap"
)

// Store writes seed objects to a MinIO bucket under an optional prefix.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a Store. rootPrefix is prepended to all keys.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put implements bootstrap.ObjectStore.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// URI implements bootstrap.ObjectStore.
func (s *Store) URI(key string) string {
	return "s3://" + path.Join(s.bucket, s.key(key))
}

var _ bootstrap.ObjectStore = (*Store)(nil)
