package storage

import (
	"context"
	"io"
)

// StorageInterface defines the common interface for archive backends
type StorageInterface interface {
	BucketName() string
	Upload(ctx context.Context, key string, data io.ReadSeeker, size int64, contentType string, metadata map[string]string) error
	// Ping checks that the bucket is reachable with the configured credentials
	Ping(ctx context.Context) error
}
