package pcm

import (
	"context"
	"io"
	"os/exec"
	"strconv"
)

// Decode takes any audio as an io.Reader and runs FFmpeg to transcode it to
// interleaved f32le at the given rate and channel count. The returned
// io.ReadCloser must be closed to clean up the FFmpeg process.
func Decode(ctx context.Context, r io.Reader, sampleRate, channels int) (io.ReadCloser, error) {
	ffmpeg := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-map", "0:a",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)

	ffmpeg.Stdin = r

	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, err
	}

	return &decodeCloser{ReadCloser: stdout, cmd: ffmpeg}, nil
}

// decodeCloser wraps FFmpeg's stdout and ensures the process is cleaned up.
type decodeCloser struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (d *decodeCloser) Close() error {
	err := d.ReadCloser.Close()
	// Kill FFmpeg if still running (e.g. pipe closed early).
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	return err
}
