package objectstore

import (
	"context"
	"testing"
)

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://bucket/key.zip", "bucket", "key.zip", true},
		{"s3://bucket/u/run/zips/a.zip", "bucket", "u/run/zips/a.zip", true},
		{"file:///repo/a.zip", "", "", false},
		{"s3://bucket", "", "", false},
		{"s3:///key", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, err := ParseS3URL(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("ParseS3URL(%q) err=%v, expected ok=%v", tt.in, err, tt.ok)
		}
		if bucket != tt.bucket || key != tt.key {
			t.Fatalf("ParseS3URL(%q)=(%q,%q)", tt.in, bucket, key)
		}
	}
}

func TestNullStore(t *testing.T) {
	var s Store = NullStore{}
	if err := s.Stat(context.Background(), "s3://b/k"); err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := s.Put(context.Background(), "k", []byte("x"), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestNewMinIOStoreRequiresEndpoint(t *testing.T) {
	if _, err := NewMinIOStore("", "a", "s", "bucket", false); err == nil {
		t.Fatal("expected error without endpoint")
	}
	s, err := NewMinIOStore("localhost:9000", "a", "s", "bucket", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// non-s3 urls are not checked and never reach the network
	if err := s.Stat(context.Background(), "file:///repo/a.zip"); err != nil {
		t.Fatalf("stat: %v", err)
	}
}
