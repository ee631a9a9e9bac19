// Package pcm moves raw audio in and out of the DSP pipeline.
//
// Audio on the wire is interleaved 32 bit little endian float (f32le). The
// pipeline works on planar buffers, one []float32 per channel. Decode runs
// FFmpeg to turn any input into f32le, Reader splits f32le into planar
// blocks, and a Sink interleaves planar blocks back out.
package pcm
