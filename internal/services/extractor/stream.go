package extractor

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/denisAlshanov/audioworker/internal/services/artifact"
)

// AudioContentType is the media type of every AudioStream.
const AudioContentType = "audio/mpeg"

// AudioStream delivers a finished MP3. It owns the execution's scratch
// files: they are removed once the stream reaches end of data, is closed,
// or the request context is cancelled, whichever happens first.
type AudioStream struct {
	file    *os.File
	size    int64
	release artifact.ReleaseFunc
	done    func(bytes int64, cause error)

	read     atomic.Int64
	eof      atomic.Bool
	once     sync.Once
	finished chan struct{}

	mu   sync.Mutex
	stop func() bool
}

func newAudioStream(file *os.File, size int64, release artifact.ReleaseFunc, done func(int64, error)) *AudioStream {
	return &AudioStream{
		file:    file,
		size:    size,
		release:  release,
		done:     done,
		finished: make(chan struct{}),
	}
}

// watch aborts the stream when ctx is cancelled, covering a client that
// disconnects mid-download.
func (s *AudioStream) watch(ctx context.Context) {
	s.mu.Lock()
	s.stop = context.AfterFunc(ctx, func() {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = ErrDeliveryAborted
		}
		s.finish(cause)
	})
	s.mu.Unlock()
}

func (s *AudioStream) Read(p []byte) (int, error) {
	n, err := s.file.Read(p)
	s.read.Add(int64(n))
	if err == io.EOF {
		s.eof.Store(true)
		s.finish(nil)
	}
	return n, err
}

// Close ends delivery. Closing before end of data records the execution as
// aborted. Close is idempotent.
func (s *AudioStream) Close() error {
	if s.eof.Load() {
		s.finish(nil)
	} else {
		s.finish(ErrDeliveryAborted)
	}
	return nil
}

// ContentType returns the media type of the stream.
func (s *AudioStream) ContentType() string {
	return AudioContentType
}

// Size returns the length of the encoded file in bytes.
func (s *AudioStream) Size() int64 {
	return s.size
}

// BytesRead returns how many bytes the consumer has read so far.
func (s *AudioStream) BytesRead() int64 {
	return s.read.Load()
}

// Finished is closed once the scratch files are gone and the outcome has
// been reported.
func (s *AudioStream) Finished() <-chan struct{} {
	return s.finished
}

func (s *AudioStream) finish(cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}

		s.file.Close()
		s.release()

		// Reporting may write to the run history; the reader must not wait on it.
		bytes := s.read.Load()
		go func() {
			defer close(s.finished)
			if s.done != nil {
				s.done(bytes, cause)
			}
		}()
	})
}
