package transcoder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/denisAlshanov/audioworker/internal/services/process"
)

const (
	defaultBinary  = "ffmpeg"
	defaultCodec   = "libmp3lame"
	defaultBitrate = "192k"
)

// EncodeOpts selects the output encoding.
// https://trac.ffmpeg.org/wiki/Encode/MP3
type EncodeOpts struct {
	Codec   string
	Bitrate string
	Timeout time.Duration
}

// FFmpeg drives the ffmpeg binary through a process.Runner.
type FFmpeg struct {
	bin    string
	runner process.Runner
	opts   EncodeOpts
}

// NewFFmpeg returns an MP3 transcoder backed by the ffmpeg at bin.
func NewFFmpeg(bin string, runner process.Runner, opts EncodeOpts) *FFmpeg {
	if bin == "" {
		bin = defaultBinary
	}
	if opts.Codec == "" {
		opts.Codec = defaultCodec
	}
	if opts.Bitrate == "" {
		opts.Bitrate = defaultBitrate
	}

	return &FFmpeg{
		bin:    bin,
		runner: runner,
		opts:   opts,
	}
}

var _ AudioTranscoder = (*FFmpeg)(nil)

// Transcode encodes the first audio stream of the input as MP3, dropping
// any video and artwork.
func (f *FFmpeg) Transcode(ctx context.Context, req TranscodeRequest) error {
	if req.MaxDurationSeconds < 0 {
		return fmt.Errorf("invalid max duration %v", req.MaxDurationSeconds)
	}

	_, err := f.runner.Run(ctx, process.Command{
		Name:    f.bin,
		Args:    mp3Args(f.opts, req),
		Timeout: f.opts.Timeout,
	})
	return err
}

// VerifyInstalled checks that ffmpeg can be run
func (f *FFmpeg) VerifyInstalled(ctx context.Context) error {
	_, err := f.runner.Run(ctx, process.Command{
		Name:      f.bin,
		Args:      []string{"-hide_banner", "-version"},
		MaxStdout: 64 * 1024,
		Timeout:   10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return nil
}

func mp3Args(opts EncodeOpts, req TranscodeRequest) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y", // output file is pre-created
		"-i", req.InputPath,
		"-vn",
	}

	if req.MaxDurationSeconds > 0 {
		args = append(args, "-t", formatSeconds(req.MaxDurationSeconds))
	}

	return append(args,
		"-c:a", opts.Codec,
		"-b:a", opts.Bitrate,
		"-f", "mp3",
		req.OutputPath,
	)
}

// formatSeconds renders seconds the way ffmpeg's -t expects, without
// exponent notation or trailing zeros.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
