package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const bytesPerSample = 4

// Reader reads interleaved f32le audio as planar blocks.
type Reader struct {
	r        io.Reader
	channels int
	buf      []byte
}

func NewReader(r io.Reader, channels int) (*Reader, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	return &Reader{r: r, channels: channels}, nil
}

func (r *Reader) Channels() int {
	return r.channels
}

// ReadBlock fills dst, one slice per channel, with up to len(dst[0]) frames
// and returns how many frames were read. A short final block is returned
// with a nil error; the next call returns io.EOF.
func (r *Reader) ReadBlock(dst [][]float32) (int, error) {
	if len(dst) != r.channels {
		return 0, fmt.Errorf("expected %d channels, got %d", r.channels, len(dst))
	}
	frames := len(dst[0])
	size := frames * r.channels * bytesPerSample
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	buf := r.buf[:size]

	n, err := io.ReadFull(r.r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if err != nil {
		return 0, err
	}

	got := n / (r.channels * bytesPerSample)
	if got == 0 && size > 0 {
		// Trailing bytes short of one frame are dropped.
		return 0, io.EOF
	}
	Deinterleave(buf[:got*r.channels*bytesPerSample], dst, r.channels)
	return got, nil
}

// Deinterleave splits f32le frames in src into planar dst.
func Deinterleave(src []byte, dst [][]float32, channels int) {
	frames := len(src) / (channels * bytesPerSample)
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * bytesPerSample
			dst[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
		}
	}
}

// Interleave packs the first frames of planar src into f32le bytes.
func Interleave(src [][]float32, frames int) []byte {
	channels := len(src)
	out := make([]byte, frames*channels*bytesPerSample)
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * bytesPerSample
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(src[c][i]))
		}
	}
	return out
}
