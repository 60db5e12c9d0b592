package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/denisAlshanov/audioworker/internal/utils"
)

// Archive stores finished MP3 files under a date-partitioned key.
type Archive struct {
	store  StorageInterface
	prefix string
	now    func() time.Time
}

// NewArchive wraps store. Keys look like <prefix>/2006/01/02/<runID>.mp3.
func NewArchive(store StorageInterface, prefix string) *Archive {
	return &Archive{
		store:  store,
		prefix: prefix,
		now:    time.Now,
	}
}

// Location describes where audio ends up, for logs.
func (a *Archive) Location() string {
	return "s3://" + path.Join(a.store.BucketName(), a.prefix)
}

// Key returns the object key used for runID.
func (a *Archive) Key(runID string) string {
	return path.Join(a.prefix, a.now().UTC().Format("2006/01/02"), runID+".mp3")
}

// ArchiveAudio uploads the file at filePath and returns its key.
func (a *Archive) ArchiveAudio(ctx context.Context, runID, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio for archiving: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat audio for archiving: %w", err)
	}

	key := a.Key(runID)
	metadata := map[string]string{
		"run-id": runID,
	}
	if requestID := utils.GetRequestID(ctx); requestID != "" {
		metadata["request-id"] = requestID
	}

	if err := a.store.Upload(ctx, key, f, info.Size(), "audio/mpeg", metadata); err != nil {
		return "", err
	}

	utils.LogInfo(ctx, "Archived audio", utils.Fields{
		"bucket": a.store.BucketName(),
		"key":    key,
		"size":   info.Size(),
	})

	return key, nil
}

// Ping checks the backing bucket.
func (a *Archive) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}
