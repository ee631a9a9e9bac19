package pcm_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/glizzus/adsp-host/internal/pcm"
	"github.com/google/go-cmp/cmp"
)

func planar(channels, frames int) [][]float32 {
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	return out
}

func TestReaderReadBlock(t *testing.T) {
	src := [][]float32{
		{0.1, 0.2, 0.3, 0.4, 0.5},
		{-0.1, -0.2, -0.3, -0.4, -0.5},
	}
	r, err := pcm.NewReader(bytes.NewReader(pcm.Interleave(src, 5)), 2)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}

	block := planar(2, 3)
	n, err := r.ReadBlock(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 frames, got %d", n)
	}
	want := [][]float32{{0.1, 0.2, 0.3}, {-0.1, -0.2, -0.3}}
	if diff := cmp.Diff(want, block); diff != "" {
		t.Errorf("first block mismatch (-want +got):\n%s", diff)
	}

	n, err = r.ReadBlock(block)
	if err != nil {
		t.Fatalf("unexpected error on short block: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 frames, got %d", n)
	}
	if diff := cmp.Diff([]float32{0.4, 0.5}, block[0][:n]); diff != "" {
		t.Errorf("short block mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.ReadBlock(block); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderPartialFrame(t *testing.T) {
	data := append(pcm.Interleave([][]float32{{0.5}, {-0.5}}, 1), 0x01, 0x02, 0x03)
	r, err := pcm.NewReader(bytes.NewReader(data), 2)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}

	block := planar(2, 1)
	n, err := r.ReadBlock(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 frame, got %d", n)
	}

	n, err = r.ReadBlock(block)
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF for a partial frame, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 frames, got %d", n)
	}
}

func TestNewReaderInvalidChannels(t *testing.T) {
	if _, err := pcm.NewReader(bytes.NewReader(nil), 0); err == nil {
		t.Fatal("expected an error for zero channels")
	}
}

type slowWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *slowWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *slowWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Len()
}

func TestWriterSinkDrain(t *testing.T) {
	w := &slowWriter{}
	sink := pcm.NewWriterSink(w, 2)

	block := [][]float32{{1, 2}, {3, 4}}
	for range 10 {
		if err := sink.Write(block, 2); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
	}
	if err := sink.Drain(true); err != nil {
		t.Fatalf("failed to drain: %v", err)
	}
	if got, want := w.Len(), 10*2*2*4; got != want {
		t.Errorf("expected %d bytes after drain, got %d", want, got)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := sink.Write(block, 2); !errors.Is(err, pcm.ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterSinkError(t *testing.T) {
	sink := pcm.NewWriterSink(failingWriter{}, 1)
	if err := sink.Write([][]float32{{1}}, 1); err != nil {
		t.Fatalf("first write should be queued: %v", err)
	}
	if err := sink.Drain(true); err == nil {
		t.Fatal("expected the write error to surface on drain")
	}
	if err := sink.Close(); err == nil {
		t.Fatal("expected the write error to surface on close")
	}
}
