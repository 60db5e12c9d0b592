// Package extractor turns a source URL into a trimmed MP3 stream by running
// the fetcher and the transcoder one after the other over two scratch
// files. Every execution releases both files exactly once, whichever way
// it ends.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/denisAlshanov/audioworker/internal/models"
	"github.com/denisAlshanov/audioworker/internal/services/artifact"
	"github.com/denisAlshanov/audioworker/internal/services/fetcher"
	"github.com/denisAlshanov/audioworker/internal/services/process"
	"github.com/denisAlshanov/audioworker/internal/services/transcoder"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

const recordTimeout = 10 * time.Second

// Archiver keeps a copy of finished audio. It returns the key it stored
// the file under.
type Archiver interface {
	ArchiveAudio(ctx context.Context, runID, path string) (string, error)
}

// Recorder persists the outcome of finished executions.
type Recorder interface {
	RecordRun(ctx context.Context, run *models.ExtractionRun) error
}

// Observer receives timing and outcome measurements.
type Observer interface {
	StageFinished(stage Stage, elapsed time.Duration, err error)
	RunFinished(state models.RunState, failedStage Stage)
}

// Config holds the duration ceilings the pipeline enforces.
type Config struct {
	DefaultDurationSeconds float64
	MaxDurationSeconds     float64
}

// Pipeline runs extractions. It is safe for concurrent use; executions
// share nothing but the artifact manager.
type Pipeline struct {
	artifacts  *artifact.Manager
	fetcher    fetcher.MediaFetcher
	transcoder transcoder.AudioTranscoder
	cfg        Config

	archiver Archiver
	recorder Recorder
	observer Observer
	slots    chan struct{}

	// pending counts streams whose outcome has not been reported yet.
	pending sync.WaitGroup
}

// Option configures optional collaborators of a Pipeline.
type Option func(*Pipeline)

// WithArchiver uploads every successfully transcoded file.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) {
		p.archiver = a
	}
}

// WithRecorder stores a history record for every execution.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithObserver reports stage timings and outcomes.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithConcurrencyLimit bounds how many executions run their fetch and
// transcode stages at once. Streaming does not hold a slot. n <= 0 means
// no limit.
func WithConcurrencyLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.slots = make(chan struct{}, n)
		}
	}
}

// New creates a Pipeline
func New(artifacts *artifact.Manager, f fetcher.MediaFetcher, t transcoder.AudioTranscoder, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		artifacts:  artifacts,
		fetcher:    f,
		transcoder: t,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractAudio fetches req.SourceURL, transcodes it to MP3 capped at the
// effective duration and returns the result as a stream. The caller must
// Close the stream; both scratch files are removed when the stream reaches
// end of data, is closed, or ctx is cancelled. On error nothing is left
// behind.
func (p *Pipeline) ExtractAudio(ctx context.Context, req models.ExtractionRequest) (*AudioStream, error) {
	if strings.TrimSpace(req.SourceURL) == "" {
		return nil, fmt.Errorf("%w: source url required", ErrInvalidRequest)
	}

	effective, err := EffectiveDuration(req.RequestedDuration, p.cfg.DefaultDurationSeconds, p.cfg.MaxDurationSeconds)
	if err != nil {
		return nil, err
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for an extraction slot: %w", err)
	}
	defer release()

	run := p.newExecution(ctx, req, effective)
	ctx = utils.WithRunID(ctx, run.record.RunID)

	utils.LogInfo(ctx, "Starting audio extraction", utils.Fields{
		"source_url":         req.SourceURL,
		"effective_duration": effective,
	})

	scope := p.artifacts.NewScope()
	defer scope.Release()

	raw, err := scope.Allocate(artifact.RawMedia)
	if err != nil {
		return nil, p.fail(ctx, run, scope, err)
	}
	encoded, err := scope.Allocate(artifact.EncodedAudio)
	if err != nil {
		return nil, p.fail(ctx, run, scope, err)
	}

	run.transition(ctx, models.RunStateFetching)
	if err := p.runStage(ctx, run, StageFetch, func() error {
		return p.fetcher.Download(ctx, req.SourceURL, raw.Path)
	}); err != nil {
		return nil, p.fail(ctx, run, scope, err)
	}

	run.transition(ctx, models.RunStateTranscoding)
	if err := p.runStage(ctx, run, StageTranscode, func() error {
		return p.transcoder.Transcode(ctx, transcoder.TranscodeRequest{
			InputPath:          raw.Path,
			OutputPath:         encoded.Path,
			MaxDurationSeconds: effective,
		})
	}); err != nil {
		return nil, p.fail(ctx, run, scope, err)
	}

	p.archive(ctx, run, encoded.Path)

	file, err := os.Open(encoded.Path)
	if err != nil {
		return nil, p.fail(ctx, run, scope, fmt.Errorf("failed to open encoded audio: %w", err))
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, p.fail(ctx, run, scope, fmt.Errorf("failed to stat encoded audio: %w", err))
	}

	run.transition(ctx, models.RunStateStreaming)
	streamStart := time.Now()

	p.pending.Add(1)
	stream := newAudioStream(file, info.Size(), scope.Detach(), func(bytes int64, cause error) {
		defer p.pending.Done()
		p.observeStage(StageStream, time.Since(streamStart), cause)
		run.mu.Lock()
		run.record.StageDurations[string(StageStream)] = time.Since(streamStart).Seconds()
		run.record.BytesStreamed = bytes
		run.mu.Unlock()

		if cause != nil {
			run.transition(ctx, models.RunStateErrorCleanup)
			p.finish(ctx, run, models.RunStateFailed, StageStream, cause)
			return
		}
		p.finish(ctx, run, models.RunStateDone, "", nil)
	})
	stream.watch(ctx)

	return stream, nil
}

// Drain waits until every stream handed out so far has reported its
// outcome, or ctx ends.
func (p *Pipeline) Drain(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquire takes a concurrency slot, waiting until one frees up or ctx ends.
func (p *Pipeline) acquire(ctx context.Context) (func(), error) {
	if p.slots == nil {
		return func() {}, nil
	}

	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	default:
	}

	utils.LogDebug(ctx, "Waiting for an extraction slot", utils.Fields{"limit": cap(p.slots)})
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runStage runs fn as stage, recording how long it took. A failure is
// wrapped in a *StageError.
func (p *Pipeline) runStage(ctx context.Context, run *execution, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	run.mu.Lock()
	run.record.StageDurations[string(stage)] = elapsed.Seconds()
	run.mu.Unlock()
	p.observeStage(stage, elapsed, err)

	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}

	utils.LogDebug(ctx, "Pipeline stage completed", utils.Fields{
		"stage":    string(stage),
		"duration": elapsed.String(),
	})
	return nil
}

// archive uploads the encoded file when an archiver is configured. Archive
// failures are logged and never fail the extraction.
func (p *Pipeline) archive(ctx context.Context, run *execution, path string) {
	if p.archiver == nil {
		return
	}

	start := time.Now()
	key, err := p.archiver.ArchiveAudio(ctx, run.record.RunID, path)
	p.observeStage(StageArchive, time.Since(start), err)
	if err != nil {
		utils.LogError(ctx, "Failed to archive audio", err)
		return
	}

	run.mu.Lock()
	run.record.ArchiveKey = key
	run.mu.Unlock()
}

// fail releases the scope and reports the execution as failed. It returns
// err so call sites can return it directly.
func (p *Pipeline) fail(ctx context.Context, run *execution, scope *artifact.Scope, err error) error {
	run.transition(ctx, models.RunStateErrorCleanup)
	scope.Release()

	p.finish(ctx, run, models.RunStateFailed, FailedStage(err), err)
	return err
}

// finish records a terminal state. Callers release artifacts first.
func (p *Pipeline) finish(ctx context.Context, run *execution, state models.RunState, stage Stage, cause error) {
	run.transition(ctx, state)

	run.mu.Lock()
	run.record.FinishedAt = time.Now().UTC()
	if stage != "" {
		run.record.FailedStage = string(stage)
	}
	if cause != nil {
		msg := cause.Error()
		run.record.ErrorMessage = &msg
	}
	record := run.record
	run.mu.Unlock()

	fields := utils.Fields{
		"state":          string(state),
		"bytes_streamed": record.BytesStreamed,
		"total_duration": record.FinishedAt.Sub(record.CreatedAt).String(),
	}
	if cause != nil {
		fields["failed_stage"] = string(stage)
		var pe *process.ProcessError
		if errors.As(cause, &pe) && pe.Diagnostics != "" {
			fields["diagnostics"] = pe.Diagnostics
		}
		utils.LogError(ctx, "Audio extraction failed", cause, fields)
	} else {
		utils.LogInfo(ctx, "Audio extraction completed", fields)
	}

	if p.observer != nil {
		p.observer.RunFinished(state, stage)
	}

	if p.recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := p.recorder.RecordRun(recordCtx, &record); err != nil {
			utils.LogError(ctx, "Failed to record extraction run", err)
		}
	}
}

func (p *Pipeline) observeStage(stage Stage, elapsed time.Duration, err error) {
	if p.observer != nil {
		p.observer.StageFinished(stage, elapsed, err)
	}
}

// execution tracks one pipeline run through its states.
type execution struct {
	mu     sync.Mutex
	state  models.RunState
	record models.ExtractionRun
}

func (p *Pipeline) newExecution(ctx context.Context, req models.ExtractionRequest, effective float64) *execution {
	return &execution{
		state: models.RunStateInit,
		record: models.ExtractionRun{
			RunID:             utils.GenerateRunID(),
			RequestID:         utils.GetRequestID(ctx),
			SourceURL:         req.SourceURL,
			RequestedDuration: req.RequestedDuration,
			EffectiveDuration: effective,
			State:             models.RunStateInit,
			StageDurations:    make(map[string]float64),
			CreatedAt:         time.Now().UTC(),
		},
	}
}

// transitions lists the states reachable from each non-terminal state.
var transitions = map[models.RunState][]models.RunState{
	models.RunStateInit:         {models.RunStateFetching, models.RunStateErrorCleanup},
	models.RunStateFetching:     {models.RunStateTranscoding, models.RunStateErrorCleanup},
	models.RunStateTranscoding:  {models.RunStateStreaming, models.RunStateErrorCleanup},
	models.RunStateStreaming:    {models.RunStateDone, models.RunStateErrorCleanup},
	models.RunStateErrorCleanup: {models.RunStateFailed},
}

func canTransition(from, to models.RunState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (e *execution) transition(ctx context.Context, to models.RunState) {
	e.mu.Lock()
	from := e.state
	ok := canTransition(from, to)
	if ok {
		e.state = to
		e.record.State = to
	}
	e.mu.Unlock()

	if !ok {
		utils.LogWarn(ctx, "Ignoring invalid pipeline state transition", utils.Fields{
			"from": string(from),
			"to":   string(to),
		})
		return
	}

	utils.LogDebug(ctx, "Pipeline state changed", utils.Fields{
		"from": string(from),
		"to":   string(to),
	})
}

func (e *execution) State() models.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
