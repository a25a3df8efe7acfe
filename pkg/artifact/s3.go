package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// S3Store is a BlobStore over an S3-compatible object store (AWS S3,
// MinIO, etc.), used in production in place of LocalStore's bare
// filesystem.
type S3Store struct {
	client *minio.Client
	bucket string
}

var _ BlobStore = (*S3Store)(nil)

// NewS3Store wraps an existing MinIO client, scoped to bucket. The bucket
// is assumed to already exist; provisioning it is a deploy-time concern,
// not this package's.
func NewS3Store(client *minio.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("artifact: put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("artifact: get %s/%s: %w", s.bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}
