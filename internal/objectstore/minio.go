package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore talks to the S3-compatible backend that holds the repository's zips.
type MinIOStore struct {
	Client *minio.Client
	Bucket string
}

// NewMinIOStore initializes a MinIO client; the manifest bucket must already exist.
func NewMinIOStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOStore, error) {
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinIOStore{Client: client, Bucket: bucket}, nil
}

// Stat checks s3:// URLs; anything else is accepted unchecked.
func (m *MinIOStore) Stat(ctx context.Context, rawURL string) error {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil
	}
	_, err = m.Client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	return fmt.Errorf("stat %s: %w", rawURL, err)
}

// Put uploads data to bucket/key.
func (m *MinIOStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
