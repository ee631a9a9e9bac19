package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/builtin"
	"github.com/glizzus/adsp-host/internal/loader"
	"github.com/glizzus/adsp-host/internal/pcm"
	"github.com/glizzus/adsp-host/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type panickingMaster struct{}

func (panickingMaster) Capabilities() adsp.Capabilities {
	return adsp.Capabilities{SupportsMasterProcess: true}
}
func (panickingMaster) DSPName() string    { return "Broken" }
func (panickingMaster) DSPVersion() string { return "0.0.1" }
func (panickingMaster) MenuHook(adsp.MenuHook, adsp.MenuHookData) adsp.ErrorCode {
	return adsp.NoError
}
func (panickingMaster) StreamCreate(*adsp.Settings, *adsp.StreamProperties, adsp.StreamHandle) adsp.ErrorCode {
	return adsp.NoError
}
func (panickingMaster) StreamDestroy(adsp.StreamHandle) adsp.ErrorCode { return adsp.NoError }
func (panickingMaster) StreamIsModeSupported(adsp.StreamHandle, adsp.ModeType, uint, int) adsp.ErrorCode {
	return adsp.NoError
}
func (panickingMaster) StreamInitialize(adsp.StreamHandle, *adsp.Settings) adsp.ErrorCode {
	return adsp.NoError
}
func (panickingMaster) Close() {}

func (panickingMaster) MasterProcessSetMode(adsp.StreamHandle, adsp.StreamType, uint, int) adsp.ErrorCode {
	return adsp.NoError
}
func (panickingMaster) MasterProcessNeededSamplesize(adsp.StreamHandle) int { return 0 }
func (panickingMaster) MasterProcessGetDelay(adsp.StreamHandle) float32     { return 0.25 }
func (panickingMaster) MasterProcessGetOutChannels(adsp.StreamHandle) (int, adsp.ChannelFlags) {
	return -1, 0
}
func (panickingMaster) MasterProcess(adsp.StreamHandle, [][]float32, [][]float32, int) int {
	panic("segfault in master process")
}
func (panickingMaster) MasterProcessGetStreamInfoString(adsp.StreamHandle) string { return "broken" }

type brokenLibrary struct{}

func (brokenLibrary) Activate(adsp.Properties) adsp.Status { return adsp.StatusOK }
func (brokenLibrary) NewInstance(adsp.Callbacks) (adsp.Instance, adsp.Status) {
	return panickingMaster{}, adsp.StatusOK
}
func (brokenLibrary) Deactivate() {}

// delayPost delays the signal by one sample per post mode.
type delayPost struct{ panickingMaster }

func (delayPost) Capabilities() adsp.Capabilities {
	return adsp.Capabilities{SupportsPostProcess: true}
}
func (delayPost) PostProcessNeededSamplesize(adsp.StreamHandle, uint) int { return 0 }
func (delayPost) PostProcessGetDelay(adsp.StreamHandle, uint) float32     { return 0 }
func (delayPost) PostProcess(_ adsp.StreamHandle, _ uint, in, out [][]float32, samples int) int {
	for c := range out {
		out[c][0] = 0
		for i := 1; i < samples; i++ {
			out[c][i] = in[c][i-1]
		}
	}
	return samples
}

type delayLibrary struct{}

func (delayLibrary) Activate(adsp.Properties) adsp.Status { return adsp.StatusOK }
func (delayLibrary) NewInstance(adsp.Callbacks) (adsp.Instance, adsp.Status) {
	return delayPost{}, adsp.StatusOK
}
func (delayLibrary) Deactivate() {}

func newAddon(t *testing.T, id string) *adsp.Addon {
	t.Helper()
	r := loader.NewRegistry()
	builtin.Register(r)
	r.Register("adsp.broken", func() adsp.Library { return brokenLibrary{} })
	r.Register("adsp.delay", func() adsp.Library { return delayLibrary{} })

	a := adsp.NewAddon(adsp.AddonInfo{ID: id, Name: id}, r)
	if _, err := a.Create(context.Background(), 1); err != nil {
		t.Fatalf("failed to create %s: %v", id, err)
	}
	t.Cleanup(a.Destroy)
	return a
}

func constant(channels, frames int, v float32) []byte {
	block := make([][]float32, channels)
	for c := range block {
		block[c] = make([]float32, frames)
		for i := range block[c] {
			block[c][i] = v
		}
	}
	return pcm.Interleave(block, frames)
}

func run(t *testing.T, a pipeline.Addon, input []byte, channels int, opts pipeline.Options) (pipeline.Stats, [][]float32, error) {
	t.Helper()
	src, err := pcm.NewReader(bytes.NewReader(input), channels)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	var out bytes.Buffer
	sink := pcm.NewWriterSink(&out, 4)
	t.Cleanup(func() { _ = sink.Close() })

	stats, err := pipeline.NewRunner(nil, nil, nil).Run(context.Background(), a, src, sink, opts)
	if err != nil {
		return stats, nil, err
	}

	got := make([][]float32, channels)
	for c := range got {
		got[c] = make([]float32, stats.Frames)
	}
	back, err := pcm.NewReader(bytes.NewReader(out.Bytes()), channels)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	if stats.Frames > 0 {
		if _, err := back.ReadBlock(got); err != nil && !errors.Is(err, io.EOF) {
			t.Fatalf("failed to read output: %v", err)
		}
	}
	return stats, got, nil
}

func TestRunnerVolume(t *testing.T) {
	a := newAddon(t, builtin.VolumeID)

	stats, got, err := run(t, a, constant(2, 10, 0.5), 2, pipeline.Options{
		StreamType:  adsp.StreamTypeMusic,
		Codec:       "FLAC",
		SampleRate:  48000,
		BlockFrames: 4,
		MasterMode:  builtin.MasterModeBoost,
		PostModes:   []uint{builtin.PostModeLimiter},
	})
	if err != nil {
		t.Fatalf("failed to run pipeline: %v", err)
	}

	wantStats := pipeline.Stats{Frames: 10, Blocks: 3, InfoString: "gain +6.0 dB, peak 0.500"}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	sample := float32(math.Tanh(0.5 * math.Pow(10, 6.0/20)))
	want := make([][]float32, 2)
	for c := range want {
		want[c] = make([]float32, 10)
		for i := range want[c] {
			want[c][i] = sample
		}
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-4)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if a.IsInUse() {
		t.Error("expected the stream to be destroyed after the run")
	}
}

func TestRunnerErrors(t *testing.T) {
	tc := []struct {
		name    string
		addon   func(t *testing.T) *adsp.Addon
		opts    pipeline.Options
		wantErr error
	}{
		{
			name:    "Unsupported master mode",
			addon:   func(t *testing.T) *adsp.Addon { return newAddon(t, builtin.VolumeID) },
			opts:    pipeline.Options{BlockFrames: 4, MasterMode: 42},
			wantErr: pipeline.ErrModeUnsupported,
		},
		{
			name: "Addon not ready",
			addon: func(t *testing.T) *adsp.Addon {
				a := newAddon(t, builtin.VolumeID)
				a.Destroy()
				return a
			},
			opts:    pipeline.Options{BlockFrames: 4},
			wantErr: adsp.ErrNotReady,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.addon(t)
			_, _, err := run(t, a, constant(1, 8, 0.1), 1, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if a.IsInUse() {
				t.Error("expected no open stream after a failed run")
			}
		})
	}
}

func TestRunnerInvalidBlockSize(t *testing.T) {
	a := newAddon(t, builtin.VolumeID)
	src, err := pcm.NewReader(bytes.NewReader(nil), 1)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	sink := pcm.NewWriterSink(io.Discard, 1)
	defer sink.Close()

	runner := pipeline.NewRunner(nil, nil, nil)
	_, err = runner.Run(context.Background(), a, src, sink, pipeline.Options{BlockFrames: 0})
	if err == nil {
		t.Fatal("expected an error for an empty block size")
	}
}

func TestRunnerBypassesFaultingStage(t *testing.T) {
	a := newAddon(t, "adsp.broken")

	stats, got, err := run(t, a, constant(2, 6, 0.3), 2, pipeline.Options{BlockFrames: 3})
	if err != nil {
		t.Fatalf("failed to run pipeline: %v", err)
	}
	wantStats := pipeline.Stats{Frames: 6, Blocks: 2, Latency: 250 * time.Millisecond, InfoString: "broken"}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	want := [][]float32{{0.3, 0.3, 0.3, 0.3, 0.3, 0.3}, {0.3, 0.3, 0.3, 0.3, 0.3, 0.3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if !a.ReadyToUse() {
		t.Error("expected a stage fault to leave the addon ready")
	}
}

func TestRunnerRepeatedMode(t *testing.T) {
	a := newAddon(t, "adsp.delay")

	input := pcm.Interleave([][]float32{{1, 2, 3, 4}}, 4)
	_, got, err := run(t, a, input, 1, pipeline.Options{BlockFrames: 4, PostModes: []uint{1, 1}})
	if err != nil {
		t.Fatalf("failed to run pipeline: %v", err)
	}
	want := [][]float32{{0, 0, 1, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout(t *testing.T) {
	tc := []struct {
		channels int
		want     int
	}{
		{channels: 1, want: 1},
		{channels: 2, want: 2},
		{channels: 3, want: 3},
		{channels: 6, want: 6},
		{channels: 8, want: 8},
		{channels: 0, want: 0},
	}

	for _, tt := range tc {
		if got := pipeline.Layout(tt.channels).Count(); got != tt.want {
			t.Errorf("Layout(%d): expected %d channels, got %d", tt.channels, tt.want, got)
		}
	}
}
