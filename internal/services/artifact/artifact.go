// Package artifact manages the scratch files a pipeline execution writes
// between stages. Every file is uniquely named, owned by exactly one
// execution and removed exactly once.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/denisAlshanov/audioworker/internal/utils"
)

const defaultPrefix = "audioworker"

// Kind identifies what a scratch file holds.
type Kind int

const (
	RawMedia Kind = iota
	EncodedAudio
)

func (k Kind) String() string {
	switch k {
	case RawMedia:
		return "raw_media"
	case EncodedAudio:
		return "encoded_audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) extension() string {
	switch k {
	case RawMedia:
		return ".webm"
	case EncodedAudio:
		return ".mp3"
	default:
		return ".tmp"
	}
}

// Observer is notified about allocations and releases. Metrics implement it.
type Observer interface {
	ArtifactAllocated(kind Kind)
	ArtifactReleased(kind Kind)
}

// Artifact is a handle to one scratch file.
type Artifact struct {
	ID   string
	Path string
	Kind Kind

	mgr      *Manager
	once     sync.Once
	released atomic.Bool
}

// Release deletes the file. It is safe to call any number of times from any
// goroutine and never fails: a file that is already gone is fine, any other
// removal problem is logged.
func (a *Artifact) Release() {
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			utils.LogWarn(context.Background(), "Failed to remove artifact", utils.Fields{
				"artifact_id": a.ID,
				"path":        a.Path,
				"kind":        a.Kind.String(),
				"error":       err.Error(),
			})
		}
		a.released.Store(true)
		a.mgr.forget(a)
	})
}

// Released reports whether Release has run.
func (a *Artifact) Released() bool {
	return a.released.Load()
}

// Manager allocates artifacts in a single directory.
type Manager struct {
	dir      string
	prefix   string
	observer Observer

	mu   sync.Mutex
	live map[string]*Artifact
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrefix sets the file name prefix used for allocation and Sweep.
func WithPrefix(prefix string) Option {
	return func(m *Manager) {
		m.prefix = prefix
	}
}

// WithObserver registers an observer for allocation events.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// NewManager creates a Manager rooted at dir, creating it if needed. An
// empty dir selects os.TempDir().
func NewManager(dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	m := &Manager{
		dir:    dir,
		prefix: defaultPrefix,
		live:   make(map[string]*Artifact),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Dir returns the directory artifacts are created in.
func (m *Manager) Dir() string {
	return m.dir
}

// Allocate creates a new empty file for kind. The name embeds a random UUID
// and the file is opened with O_EXCL, so two live artifacts never share a
// path.
func (m *Manager) Allocate(kind Kind) (*Artifact, error) {
	id := uuid.New().String()
	path := filepath.Join(m.dir, fmt.Sprintf("%s-%s%s", m.prefix, id, kind.extension()))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %s artifact: %w", kind, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to allocate %s artifact: %w", kind, err)
	}

	a := &Artifact{
		ID:   id,
		Path: path,
		Kind: kind,
		mgr:  m,
	}

	m.mu.Lock()
	m.live[id] = a
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ArtifactAllocated(kind)
	}

	return a, nil
}

// Live returns the number of artifacts that have not been released.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) forget(a *Artifact) {
	m.mu.Lock()
	delete(m.live, a.ID)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ArtifactReleased(a.Kind)
	}
}

// Sweep removes files carrying this manager's prefix that are older than
// olderThan and not live. It cleans up after a process that died mid-run.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	m.mu.Lock()
	livePaths := make(map[string]struct{}, len(m.live))
	for _, a := range m.live {
		livePaths[a.Path] = struct{}{}
	}
	m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), m.prefix+"-") {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		if _, ok := livePaths[path]; ok {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err == nil {
			removed++
		}
	}

	return removed, nil
}

// ReleaseFunc releases everything a Scope allocated. It is idempotent.
type ReleaseFunc func()

// Scope groups the artifacts of one pipeline execution. The owner defers
// Release; if ownership moves to a consumer, Detach hands over a
// ReleaseFunc and the deferred Release becomes a no-op.
type Scope struct {
	mgr *Manager

	mu        sync.Mutex
	artifacts []*Artifact
	detached  bool
}

// NewScope starts a new allocation scope.
func (m *Manager) NewScope() *Scope {
	return &Scope{mgr: m}
}

// Allocate allocates an artifact owned by the scope.
func (s *Scope) Allocate(kind Kind) (*Artifact, error) {
	a, err := s.mgr.Allocate(kind)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.artifacts = append(s.artifacts, a)
	s.mu.Unlock()

	return a, nil
}

// Release releases every artifact in the scope unless it was detached.
func (s *Scope) Release() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	artifacts := s.artifacts
	s.mu.Unlock()

	releaseAll(artifacts)
}

// Detach transfers ownership of the scope's artifacts to the caller.
func (s *Scope) Detach() ReleaseFunc {
	s.mu.Lock()
	s.detached = true
	artifacts := append([]*Artifact(nil), s.artifacts...)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { releaseAll(artifacts) })
	}
}

func releaseAll(artifacts []*Artifact) {
	for _, a := range artifacts {
		a.Release()
	}
}
