// Package process runs external command-line tools and reports how they
// ended. It never retries; callers decide what a failure means.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxDiagnostics = 64 * 1024
	waitDelay             = 5 * time.Second
)

// ErrOutputLimit is reported when a command writes more to stdout than
// Command.MaxStdout allows. The command is killed when that happens.
var ErrOutputLimit = errors.New("process output exceeded limit")

// Command describes one invocation.
type Command struct {
	Name string
	Args []string
	// MaxStdout bounds buffered stdout in Run. Zero means unbounded.
	MaxStdout int64
	// Timeout bounds wall-clock execution. Zero means no bound beyond ctx.
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is how a finished command ended.
type Result struct {
	ExitCode    int
	Stdout      []byte
	Diagnostics string
	Duration    time.Duration
}

// SpawnError means the executable could not be started at all.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ProcessError means the command ran and did not exit successfully.
type ProcessError struct {
	Name        string
	ExitCode    int
	Diagnostics string
	TimedOut    bool
	Err         error
}

func (e *ProcessError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s timed out", e.Name)
	case errors.Is(e.Err, context.Canceled):
		return fmt.Sprintf("%s was cancelled", e.Name)
	case errors.Is(e.Err, ErrOutputLimit):
		return fmt.Sprintf("%s: %v", e.Name, ErrOutputLimit)
	default:
		return fmt.Sprintf("%s exited with status %d", e.Name, e.ExitCode)
	}
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Runner starts external commands.
type Runner interface {
	// Run starts the command, waits for it to exit and returns its
	// buffered stdout and diagnostics.
	Run(ctx context.Context, cmd Command) (*Result, error)
	// Start starts the command and returns as soon as it is running. The
	// caller reads Stream.Stdout while the command runs and calls
	// Stream.Wait for the outcome.
	Start(ctx context.Context, cmd Command) (*Stream, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	// MaxDiagnostics is how many trailing bytes of stderr are kept.
	MaxDiagnostics int
}

// NewExecRunner returns an ExecRunner keeping at most maxDiagnostics bytes
// of stderr per command. Zero selects a 64 KiB default.
func NewExecRunner(maxDiagnostics int) *ExecRunner {
	if maxDiagnostics <= 0 {
		maxDiagnostics = defaultMaxDiagnostics
	}
	return &ExecRunner{MaxDiagnostics: maxDiagnostics}
}

var _ Runner = (*ExecRunner)(nil)

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.WaitDelay = waitDelay
	killGroupOnCancel(cmd)

	stdout := &limitedBuffer{limit: c.MaxStdout, onOverflow: cancel}
	stderr := newTailBuffer(r.maxDiagnostics())
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Name: c.Name, Err: err}
	}

	waitErr := cmd.Wait()
	result := &Result{
		ExitCode:    exitCode(cmd),
		Stdout:      stdout.Bytes(),
		Diagnostics: stderr.String(),
		Duration:    time.Since(start),
	}

	if stdout.Overflowed() {
		return result, &ProcessError{
			Name:        c.Name,
			ExitCode:    result.ExitCode,
			Diagnostics: result.Diagnostics,
			Err:         ErrOutputLimit,
		}
	}
	if waitErr != nil {
		return result, newProcessError(ctx, c.Name, result, waitErr)
	}

	return result, nil
}

// Start implements Runner. Stdout is an OS pipe handed straight to the
// child, so Wait can run concurrently with reads. When ctx ends or the
// timeout expires the read end is closed once the child is reaped, so a
// reader blocked on it returns even if a stray descendant still holds
// the write end.
func (r *ExecRunner) Start(ctx context.Context, c Command) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)

	pr, pw, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe for %s: %w", c.Name, err)
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.WaitDelay = waitDelay
	killGroupOnCancel(cmd)
	stderr := newTailBuffer(r.maxDiagnostics())
	cmd.Stdout = pw
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		cancel()
		return nil, &SpawnError{Name: c.Name, Err: err}
	}
	// The child holds its own copy of the write end.
	pw.Close()

	return NewStream(pr, func() (*Result, error) {
		defer cancel()

		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			pr.Close()
		}
		result := &Result{
			ExitCode:    exitCode(cmd),
			Diagnostics: stderr.String(),
			Duration:    time.Since(start),
		}
		if waitErr != nil {
			return result, newProcessError(ctx, c.Name, result, waitErr)
		}
		return result, nil
	}), nil
}

func (r *ExecRunner) maxDiagnostics() int {
	if r.MaxDiagnostics <= 0 {
		return defaultMaxDiagnostics
	}
	return r.MaxDiagnostics
}

// Stream is a running command whose stdout is consumed live.
type Stream struct {
	Stdout io.ReadCloser

	done   chan struct{}
	result *Result
	err    error
}

// NewStream wraps a started command. wait is called once, in the
// background, and must block until the command has exited.
func NewStream(stdout io.ReadCloser, wait func() (*Result, error)) *Stream {
	s := &Stream{
		Stdout: stdout,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		s.result, s.err = wait()
	}()

	return s
}

// Wait blocks until the command exits. It may be called more than once.
func (s *Stream) Wait() (*Result, error) {
	<-s.done
	return s.result, s.err
}

// Done is closed once the command has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

func newProcessError(ctx context.Context, name string, result *Result, waitErr error) *ProcessError {
	pe := &ProcessError{
		Name:        name,
		ExitCode:    result.ExitCode,
		Diagnostics: result.Diagnostics,
		Err:         waitErr,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		pe.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		pe.Err = ctxErr
	}

	return pe
}

// limitedBuffer buffers up to limit bytes and flags anything beyond it.
// Excess bytes are accepted and dropped so the child is killed via
// onOverflow rather than blocked on a full pipe.
type limitedBuffer struct {
	mu         sync.Mutex
	buf        []byte
	limit      int64
	overflowed bool
	onOverflow func()
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflowed {
		return len(p), nil
	}

	if b.limit > 0 && int64(len(b.buf)+len(p)) > b.limit {
		b.buf = append(b.buf, p[:b.limit-int64(len(b.buf))]...)
		b.overflowed = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
		return len(p), nil
	}

	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

func (b *limitedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflowed
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.max:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
