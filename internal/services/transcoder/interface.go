package transcoder

import (
	"context"
)

// AudioTranscoder interface for transcoder operations
type AudioTranscoder interface {
	// Transcode re-encodes the audio of req.InputPath into req.OutputPath
	Transcode(ctx context.Context, req TranscodeRequest) error

	// VerifyInstalled checks that the transcoder executable can be run
	VerifyInstalled(ctx context.Context) error
}

// TranscodeRequest describes one encoding job. MaxDurationSeconds caps the
// output length; zero leaves the input untrimmed.
type TranscodeRequest struct {
	InputPath          string
	OutputPath         string
	MaxDurationSeconds float64
}
