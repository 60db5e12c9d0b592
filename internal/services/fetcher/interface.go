package fetcher

import (
	"context"

	"github.com/denisAlshanov/audioworker/internal/models"
)

// MediaFetcher interface for media-fetcher operations
type MediaFetcher interface {
	// FetchMetadata dumps metadata for sourceURL without downloading it
	FetchMetadata(ctx context.Context, sourceURL string) (*models.VideoMetadata, error)

	// Download writes the best available audio stream of sourceURL to outputPath
	Download(ctx context.Context, sourceURL, outputPath string) error

	// VerifyInstalled checks that the fetcher executable can be run
	VerifyInstalled(ctx context.Context) error
}

// MetadataParseError means the fetcher exited successfully but its output
// could not be decoded.
type MetadataParseError struct {
	Err error
}

func (e *MetadataParseError) Error() string {
	return "failed to parse metadata: " + e.Err.Error()
}

func (e *MetadataParseError) Unwrap() error {
	return e.Err
}
