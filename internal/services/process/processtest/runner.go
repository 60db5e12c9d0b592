// Package processtest provides an in-memory process.Runner for tests.
package processtest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/denisAlshanov/audioworker/internal/services/process"
)

// HandlerFunc decides how a fake command ends. It may have side effects,
// such as writing the file a real tool would produce. Returning a
// *process.SpawnError makes Start fail immediately.
type HandlerFunc func(ctx context.Context, cmd process.Command) (*process.Result, error)

// Runner is a fake process.Runner that records every command.
type Runner struct {
	Handler HandlerFunc

	mu    sync.Mutex
	calls []process.Command
}

var _ process.Runner = (*Runner)(nil)

// NewRunner returns a Runner that answers every command with handler.
func NewRunner(handler HandlerFunc) *Runner {
	return &Runner{Handler: handler}
}

func (r *Runner) Run(ctx context.Context, cmd process.Command) (*process.Result, error) {
	r.record(cmd)
	return r.handle(ctx, cmd)
}

func (r *Runner) Start(ctx context.Context, cmd process.Command) (*process.Stream, error) {
	r.record(cmd)

	res, err := r.handle(ctx, cmd)
	if _, ok := err.(*process.SpawnError); ok {
		return nil, err
	}

	var stdout []byte
	if res != nil {
		stdout = res.Stdout
	}

	return process.NewStream(io.NopCloser(bytes.NewReader(stdout)), func() (*process.Result, error) {
		return res, err
	}), nil
}

// Calls returns every command seen so far, in order.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Command(nil), r.calls...)
}

// CallsTo returns the commands whose executable is name.
func (r *Runner) CallsTo(name string) []process.Command {
	var out []process.Command
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (r *Runner) record(cmd process.Command) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()
}

func (r *Runner) handle(ctx context.Context, cmd process.Command) (*process.Result, error) {
	if r.Handler == nil {
		return &process.Result{}, nil
	}
	return r.Handler(ctx, cmd)
}

// Success is a Result for a command that exited 0 printing stdout.
func Success(stdout string) *process.Result {
	return &process.Result{Stdout: []byte(stdout)}
}

// Failure builds the Result and error of a command exiting with code.
func Failure(name string, code int, diagnostics string) (*process.Result, error) {
	res := &process.Result{ExitCode: code, Diagnostics: diagnostics}
	return res, &process.ProcessError{Name: name, ExitCode: code, Diagnostics: diagnostics}
}

// ArgAfter returns the argument following flag, or "" if absent.
func ArgAfter(cmd process.Command, flag string) string {
	for i := 0; i < len(cmd.Args)-1; i++ {
		if cmd.Args[i] == flag {
			return cmd.Args[i+1]
		}
	}
	return ""
}
