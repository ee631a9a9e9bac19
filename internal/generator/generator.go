package generator

import (
	"sync/atomic"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/google/uuid"
)

// Generator is an interface that defines a method to generate a new value of type T.
// This can be used to generate unique identifiers, lazily iterate, etc.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator is a generator that produces UUIDv4 strings.
// It implements the Generator interface.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// Sequence produces increasing integers starting at 1. It is safe for
// concurrent use.
type Sequence struct {
	n atomic.Int64
}

func (s *Sequence) Next() (int, error) {
	return int(s.n.Add(1)), nil
}

var _ Generator[int] = &Sequence{}

// StreamHandles mints stream handles with a random id and a sequential
// stream number.
type StreamHandles struct {
	IDs     Generator[string]
	Streams Generator[int]
}

func NewStreamHandles() *StreamHandles {
	return &StreamHandles{IDs: &UUIDV4Generator{}, Streams: &Sequence{}}
}

func (g *StreamHandles) Next() (adsp.StreamHandle, error) {
	id, err := g.IDs.Next()
	if err != nil {
		return adsp.StreamHandle{}, err
	}
	stream, err := g.Streams.Next()
	if err != nil {
		return adsp.StreamHandle{}, err
	}
	return adsp.StreamHandle{ID: id, StreamID: stream}, nil
}

var _ Generator[adsp.StreamHandle] = &StreamHandles{}
