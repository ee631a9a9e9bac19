package pcm_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os/exec"
	"testing"

	"github.com/glizzus/adsp-host/internal/pcm"
)

// wav16 builds a mono 16 bit PCM WAV file of silence.
func wav16(sampleRate, samples int) []byte {
	var b bytes.Buffer
	dataSize := samples * 2
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+dataSize))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(dataSize))
	b.Write(make([]byte, dataSize))
	return b.Bytes()
}

func TestDecode(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	rc, err := pcm.Decode(context.Background(), bytes.NewReader(wav16(8000, 800)), 8000, 2)
	if err != nil {
		t.Fatalf("failed to start decode: %v", err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read decoded audio: %v", err)
	}
	if want := 800 * 2 * 4; len(out) != want {
		t.Errorf("expected %d bytes of f32le, got %d", want, len(out))
	}
}
