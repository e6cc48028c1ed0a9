package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store checks resolved zip locations and keeps run manifests.
type Store interface {
	// Stat returns ErrNotFound when the object at rawURL is missing. URLs the store
	// cannot address (other schemes or buckets) are accepted without a check.
	Stat(ctx context.Context, rawURL string) error
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// NullStore accepts everything and discards uploads.
type NullStore struct{}

func (NullStore) Stat(_ context.Context, _ string) error { return nil }

func (NullStore) Put(_ context.Context, _ string, _ []byte, _ string) error { return nil }

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs bucket and key: %s", rawURL)
	}
	return u.Host, key, nil
}
