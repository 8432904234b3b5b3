// Package s3 implements bootstrap.ObjectStore on Amazon S3.
package s3

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/vecmigrate/bootstrap"
)

// Store writes seed objects to an S3 bucket under an optional prefix.
type Store struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix prepends a key prefix to every object.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewStore creates a Store uploading through client.
func NewStore(client manager.UploadAPIClient, bucket string, optFns ...Option) *Store {
	s := &Store{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(s)
		}
	}
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put implements bootstrap.ObjectStore. Seed objects are small; the
// uploader still validates integrity with CRC32C.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(s.key(key)),
		Body:              bytes.NewReader(data),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc32c,
	})
	return err
}

// URI implements bootstrap.ObjectStore.
func (s *Store) URI(key string) string {
	return "s3://" + path.Join(s.bucket, s.key(key))
}

var _ bootstrap.ObjectStore = (*Store)(nil)
