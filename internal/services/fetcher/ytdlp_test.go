package fetcher

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisAlshanov/audioworker/internal/services/process"
	"github.com/denisAlshanov/audioworker/internal/services/process/processtest"
)

const sampleMetadata = `{
  "id": "abc",
  "title": "Never Gonna Give You Up",
  "duration": 212.0,
  "uploader": "Rick Astley",
  "view_count": 1500000000,
  "upload_date": "20091025",
  "formats": [{"format_id": "251"}],
  "description": "dropped"
}`

func TestFetchMetadataProjectsFields(t *testing.T) {
	runner := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return processtest.Success(sampleMetadata), nil
	})
	client := NewClient("yt-dlp", runner, Options{MaxMetadataBytes: 1024 * 1024, MetadataTimeout: time.Minute})

	meta, err := client.FetchMetadata(context.Background(), "https://valid.example/watch?v=abc")
	require.NoError(t, err)

	assert.Equal(t, "Never Gonna Give You Up", meta.Title)
	require.NotNil(t, meta.Duration)
	assert.Equal(t, 212.0, *meta.Duration)
	assert.Equal(t, "Rick Astley", meta.Uploader)
	require.NotNil(t, meta.ViewCount)
	assert.Equal(t, int64(1500000000), *meta.ViewCount)
	assert.Equal(t, "20091025", meta.UploadDate)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "yt-dlp", calls[0].Name)
	assert.Equal(t, []string{"--dump-json", "--no-playlist", "--no-warnings", "https://valid.example/watch?v=abc"}, calls[0].Args)
	assert.Equal(t, int64(1024*1024), calls[0].MaxStdout)
	assert.Equal(t, time.Minute, calls[0].Timeout)
}

func TestFetchMetadataNullFields(t *testing.T) {
	runner := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return processtest.Success(`{"title":"Live","duration":null,"view_count":null}`), nil
	})

	meta, err := NewClient("", runner, Options{}).FetchMetadata(context.Background(), "https://example.com/live")
	require.NoError(t, err)

	assert.Equal(t, "Live", meta.Title)
	assert.Nil(t, meta.Duration)
	assert.Nil(t, meta.ViewCount)
	assert.Equal(t, "yt-dlp", runner.Calls()[0].Name)
}

func TestFetchMetadataParseErrors(t *testing.T) {
	testCases := []struct {
		name   string
		stdout string
	}{
		{name: "truncated json", stdout: `{"title": "Never Gonna`},
		{name: "not json", stdout: "ERROR: something odd"},
		{name: "empty output", stdout: "  \n"},
		{name: "wrong field type", stdout: `{"title": 42}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			runner := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
				return processtest.Success(tc.stdout), nil
			})

			_, err := NewClient("yt-dlp", runner, Options{}).FetchMetadata(context.Background(), "https://example.com")
			require.Error(t, err)

			var parseErr *MetadataParseError
			assert.True(t, errors.As(err, &parseErr))

			var procErr *process.ProcessError
			assert.False(t, errors.As(err, &procErr))
		})
	}
}

func TestFetchMetadataProcessFailure(t *testing.T) {
	runner := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return processtest.Failure(cmd.Name, 1, "ERROR: Unsupported URL")
	})

	_, err := NewClient("yt-dlp", runner, Options{}).FetchMetadata(context.Background(), "https://example.com")
	require.Error(t, err)

	var procErr *process.ProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, "ERROR: Unsupported URL", procErr.Diagnostics)

	var parseErr *MetadataParseError
	assert.False(t, errors.As(err, &parseErr))
}

func TestDownloadArguments(t *testing.T) {
	out := filepath.Join(t.TempDir(), "raw.webm")
	runner := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		path := processtest.ArgAfter(cmd, "-o")
		require.NoError(t, os.WriteFile(path, []byte("webm-bytes"), 0o600))
		return processtest.Success("[download]  50.0% of 3.00MiB\n[download] 100% of 3.00MiB\n"), nil
	})
	client := NewClient("yt-dlp", runner, Options{DownloadTimeout: 5 * time.Minute})

	err := client.Download(context.Background(), "https://valid.example/watch?v=abc", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(data))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "bestaudio", processtest.ArgAfter(calls[0], "-f"))
	assert.Contains(t, calls[0].Args, "--force-overwrites")
	assert.Contains(t, calls[0].Args, "--no-part")
	assert.Equal(t, "https://valid.example/watch?v=abc", calls[0].Args[len(calls[0].Args)-1])
	assert.Equal(t, 5*time.Minute, calls[0].Timeout)
}

func TestDownloadFailure(t *testing.T) {
	runner := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return processtest.Failure(cmd.Name, 1, "ERROR: Video unavailable")
	})

	err := NewClient("yt-dlp", runner, Options{}).Download(context.Background(), "https://example.com", "/tmp/nowhere.webm")

	var procErr *process.ProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, 1, procErr.ExitCode)
}

func TestDownloadSpawnFailure(t *testing.T) {
	runner := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return nil, &process.SpawnError{Name: cmd.Name, Err: errors.New("executable file not found in $PATH")}
	})

	err := NewClient("yt-dlp", runner, Options{}).Download(context.Background(), "https://example.com", "/tmp/nowhere.webm")

	var spawnErr *process.SpawnError
	assert.True(t, errors.As(err, &spawnErr))
}

func TestDownloadTimeoutIsEnforced(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "yt-dlp")
	// A helper left running in the background holds yt-dlp's stdout.
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nsleep 4 &\nsleep 60\n"), 0o755))

	client := NewClient(bin, process.NewExecRunner(0), Options{DownloadTimeout: 200 * time.Millisecond})

	start := time.Now()
	err := client.Download(context.Background(), "https://example.com", filepath.Join(dir, "raw.webm"))
	assert.Less(t, time.Since(start), 2*time.Second)

	var procErr *process.ProcessError
	require.True(t, errors.As(err, &procErr))
	assert.True(t, procErr.TimedOut)
}

func TestVerifyInstalled(t *testing.T) {
	ok := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return processtest.Success("2024.08.06\n"), nil
	})
	assert.NoError(t, NewClient("yt-dlp", ok, Options{}).VerifyInstalled(context.Background()))
	assert.Equal(t, []string{"--version"}, ok.Calls()[0].Args)

	missing := processtest.NewRunner(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return nil, &process.SpawnError{Name: cmd.Name, Err: errors.New("not found")}
	})
	assert.Error(t, NewClient("yt-dlp", missing, Options{}).VerifyInstalled(context.Background()))
}
