package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/denisAlshanov/audioworker/internal/models"
	"github.com/denisAlshanov/audioworker/internal/services/process"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

const defaultBinary = "yt-dlp"

// Options tunes limits applied to yt-dlp invocations.
type Options struct {
	MaxMetadataBytes int64
	MetadataTimeout  time.Duration
	DownloadTimeout  time.Duration
}

// Client drives the yt-dlp binary through a process.Runner.
type Client struct {
	bin    string
	runner process.Runner
	opts   Options
}

// NewClient creates a new yt-dlp client
func NewClient(bin string, runner process.Runner, opts Options) *Client {
	if bin == "" {
		bin = defaultBinary
	}

	return &Client{
		bin:    bin,
		runner: runner,
		opts:   opts,
	}
}

var _ MediaFetcher = (*Client)(nil)

// rawMetadata is the subset of yt-dlp --dump-json we project.
type rawMetadata struct {
	Title      string   `json:"title"`
	Duration   *float64 `json:"duration"`
	Uploader   string   `json:"uploader"`
	ViewCount  *int64   `json:"view_count"`
	UploadDate string   `json:"upload_date"`
}

// FetchMetadata runs yt-dlp in metadata-only mode.
func (c *Client) FetchMetadata(ctx context.Context, sourceURL string) (*models.VideoMetadata, error) {
	res, err := c.runner.Run(ctx, process.Command{
		Name:      c.bin,
		Args:      metadataArgs(sourceURL),
		MaxStdout: c.opts.MaxMetadataBytes,
		Timeout:   c.opts.MetadataTimeout,
	})
	if err != nil {
		return nil, err
	}

	return parseMetadata(res.Stdout)
}

func parseMetadata(out []byte) (*models.VideoMetadata, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, &MetadataParseError{Err: errors.New("empty output")}
	}

	var raw rawMetadata
	dec := json.NewDecoder(bytes.NewReader(out))
	if err := dec.Decode(&raw); err != nil {
		return nil, &MetadataParseError{Err: err}
	}

	return &models.VideoMetadata{
		Title:      raw.Title,
		Duration:   raw.Duration,
		Uploader:   raw.Uploader,
		ViewCount:  raw.ViewCount,
		UploadDate: raw.UploadDate,
	}, nil
}

// Download fetches the best audio-only format into outputPath. The path is
// pre-created by the caller, so yt-dlp is told to overwrite it and to skip
// .part files. Progress lines are read live from stdout and logged.
func (c *Client) Download(ctx context.Context, sourceURL, outputPath string) error {
	stream, err := c.runner.Start(ctx, process.Command{
		Name:    c.bin,
		Args:    downloadArgs(sourceURL, outputPath),
		Timeout: c.opts.DownloadTimeout,
	})
	if err != nil {
		return err
	}

	logProgress(ctx, stream.Stdout)
	stream.Stdout.Close()

	_, err = stream.Wait()
	return err
}

// VerifyInstalled checks that yt-dlp can be run
func (c *Client) VerifyInstalled(ctx context.Context) error {
	_, err := c.runner.Run(ctx, process.Command{
		Name:    c.bin,
		Args:    []string{"--version"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("yt-dlp not found or not executable: %w", err)
	}
	return nil
}

func metadataArgs(sourceURL string) []string {
	return []string{
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		sourceURL,
	}
}

func downloadArgs(sourceURL, outputPath string) []string {
	return []string{
		"-f", "bestaudio",
		"--no-playlist",
		"--no-part",
		"--force-overwrites",
		"--newline",
		"--no-warnings",
		"-o", outputPath,
		sourceURL,
	}
}

// logProgress drains r, logging yt-dlp's "[download]" lines at debug level.
// Draining matters: a full pipe would block the fetcher.
func logProgress(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[download]") {
			utils.LogDebug(ctx, "Fetch progress", utils.Fields{"line": line})
		}
	}
	if err := scanner.Err(); err != nil {
		// Keep the pipe drained even after an oversized line.
		io.Copy(io.Discard, r)
	}
}
