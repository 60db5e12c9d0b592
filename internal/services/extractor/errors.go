package extractor

import (
	"errors"
	"fmt"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTranscode Stage = "transcode"
	StageArchive   Stage = "archive"
	StageStream    Stage = "stream"
)

var (
	// ErrInvalidRequest is returned before any work starts when the request
	// cannot be served as given.
	ErrInvalidRequest = errors.New("invalid extraction request")

	// ErrDeliveryAborted is the outcome recorded when an AudioStream is
	// closed before the consumer read all of it.
	ErrDeliveryAborted = errors.New("audio delivery aborted before end of data")
)

// StageError reports which external stage failed. Err is the underlying
// process error, usually a *process.ProcessError or *process.SpawnError.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage err originated from, or "" when err is not
// a *StageError.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
