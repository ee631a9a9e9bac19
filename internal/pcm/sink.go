package pcm

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrSinkClosed = errors.New("sink closed")

// Sink accepts processed planar audio.
type Sink interface {
	Write(block [][]float32, frames int) error
	// Drain flushes queued audio. With wait it returns only once everything
	// queued so far has been written.
	Drain(wait bool) error
	Close() error
}

// WriterSink queues blocks and writes them as f32le to an io.Writer from its
// own goroutine.
type WriterSink struct {
	w     io.Writer
	queue chan []byte

	mu  sync.Mutex
	err error

	// closeMu guards closed and the queue against a send after close.
	closeMu sync.RWMutex
	closed  bool

	pending sync.WaitGroup
	done    chan struct{}
}

var _ Sink = (*WriterSink)(nil)

func NewWriterSink(w io.Writer, depth int) *WriterSink {
	s := &WriterSink{
		w:     w,
		queue: make(chan []byte, max(depth, 1)),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *WriterSink) run() {
	defer close(s.done)
	for b := range s.queue {
		if s.firstErr() == nil {
			if _, err := s.w.Write(b); err != nil {
				s.setErr(fmt.Errorf("failed to write audio: %w", err))
			}
		}
		s.pending.Done()
	}
}

func (s *WriterSink) firstErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *WriterSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Write copies the block, so callers may reuse their buffers.
func (s *WriterSink) Write(block [][]float32, frames int) error {
	if err := s.firstErr(); err != nil {
		return err
	}
	data := Interleave(block, frames)

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.pending.Add(1)
	s.queue <- data
	return nil
}

func (s *WriterSink) Drain(wait bool) error {
	if wait {
		s.pending.Wait()
	}
	return s.firstErr()
}

// Close drains the queue and stops the writer goroutine.
func (s *WriterSink) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return s.firstErr()
	}
	s.closed = true
	close(s.queue)
	s.closeMu.Unlock()

	<-s.done
	return s.firstErr()
}
