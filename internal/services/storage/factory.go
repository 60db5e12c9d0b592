package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/denisAlshanov/audioworker/internal/config"
)

var ErrMissingBucket = errors.New("archive enabled but no bucket name configured")

// NewArchiveFromConfig builds the audio archive described by cfg. It
// returns nil, nil when archiving is disabled.
func NewArchiveFromConfig(cfg *config.S3Config) (*Archive, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.BucketName == "" {
		return nil, ErrMissingBucket
	}

	store, err := NewS3Storage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 storage: %w", err)
	}

	return NewArchive(store, strings.Trim(cfg.KeyPrefix, "/")), nil
}
