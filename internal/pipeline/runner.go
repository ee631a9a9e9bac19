// Package pipeline drives audio through the stages of an audio DSP addon,
// one block at a time, the way the audio engine does.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/codec"
	"github.com/glizzus/adsp-host/internal/generator"
	"github.com/glizzus/adsp-host/internal/pcm"
)

var ErrModeUnsupported = errors.New("addon does not support the requested mode")

// Addon is the part of *adsp.Addon the runner drives.
type Addon interface {
	Info() adsp.AddonInfo
	ReadyToUse() bool
	ModeID(t adsp.ModeType, number uint) (int, bool)

	SupportsInputInfoProcess() bool
	SupportsInputResample() bool
	SupportsPreProcess() bool
	SupportsMasterProcess() bool
	SupportsPostProcess() bool
	SupportsOutputResample() bool

	StreamCreate(settings *adsp.Settings, props *adsp.StreamProperties, h adsp.StreamHandle) adsp.ErrorCode
	StreamDestroy(h adsp.StreamHandle)
	StreamIsModeSupported(h adsp.StreamHandle, t adsp.ModeType, modeID uint, dbModeID int) bool

	InputProcess(h adsp.StreamHandle, in [][]float32, samples int) bool

	InputResampleProcessNeededSamplesize(h adsp.StreamHandle) int
	InputResampleProcess(h adsp.StreamHandle, in, out [][]float32, samples int) int
	InputResampleGetDelay(h adsp.StreamHandle) float32

	PreProcessNeededSamplesize(h adsp.StreamHandle, modeID uint) int
	PreProcessGetDelay(h adsp.StreamHandle, modeID uint) float32
	PreProcess(h adsp.StreamHandle, modeID uint, in, out [][]float32, samples int) int

	MasterProcessSetMode(h adsp.StreamHandle, t adsp.StreamType, modeID uint, dbModeID int) adsp.ErrorCode
	MasterProcessNeededSamplesize(h adsp.StreamHandle) int
	MasterProcessGetDelay(h adsp.StreamHandle) float32
	MasterProcessGetOutChannels(h adsp.StreamHandle) (int, adsp.ChannelFlags)
	MasterProcess(h adsp.StreamHandle, in, out [][]float32, samples int) int
	MasterProcessGetStreamInfoString(h adsp.StreamHandle) string

	PostProcessNeededSamplesize(h adsp.StreamHandle, modeID uint) int
	PostProcessGetDelay(h adsp.StreamHandle, modeID uint) float32
	PostProcess(h adsp.StreamHandle, modeID uint, in, out [][]float32, samples int) int

	OutputResampleProcessNeededSamplesize(h adsp.StreamHandle) int
	OutputResampleProcess(h adsp.StreamHandle, in, out [][]float32, samples int) int
	OutputResampleGetDelay(h adsp.StreamHandle) float32
}

var _ Addon = (*adsp.Addon)(nil)

// Options describe one stream.
type Options struct {
	StreamType  adsp.StreamType
	Codec       string
	Name        string
	SampleRate  int
	BlockFrames int
	// MasterMode is the plugin-local master mode number. Zero leaves the
	// plugin default in place.
	MasterMode uint
	PreModes   []uint
	PostModes  []uint
}

// Stats summarise a finished run.
type Stats struct {
	Frames     int
	Blocks     int
	Latency    time.Duration
	InfoString string
}

type Runner struct {
	handles generator.Generator[adsp.StreamHandle]
	codecs  *codec.Table
	logger  *slog.Logger
}

func NewRunner(handles generator.Generator[adsp.StreamHandle], codecs *codec.Table, logger *slog.Logger) *Runner {
	if handles == nil {
		handles = generator.NewStreamHandles()
	}
	if codecs == nil {
		codecs = codec.DefaultTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{handles: handles, codecs: codecs, logger: logger}
}

// stream is the state of one open stream.
type stream struct {
	addon    Addon
	h        adsp.StreamHandle
	pre      []uint
	post     []uint
	master   bool
	channels int
	bufs     map[string][][]float32
}

// Run opens a stream on a, pushes every block of src through the supported
// stages into sink, closes the stream and drains the sink.
func (r *Runner) Run(ctx context.Context, a Addon, src *pcm.Reader, sink pcm.Sink, opts Options) (Stats, error) {
	if !a.ReadyToUse() {
		return Stats{}, adsp.ErrNotReady
	}
	if opts.BlockFrames <= 0 {
		return Stats{}, fmt.Errorf("invalid block size %d", opts.BlockFrames)
	}

	h, err := r.handles.Next()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to generate stream handle: %w", err)
	}
	logger := r.logger.With(
		slog.String("addon", a.Info().ID),
		slog.String("stream", h.ID),
	)

	settings := r.settings(h, src.Channels(), opts)
	props := r.properties(h, src.Channels(), opts)
	if code := a.StreamCreate(settings, props, h); code != adsp.NoError {
		return Stats{}, fmt.Errorf("failed to create stream: %w", &adsp.AddonError{Code: code})
	}
	defer a.StreamDestroy(h)

	s := &stream{addon: a, h: h, channels: src.Channels(), bufs: make(map[string][][]float32)}
	if err := s.setModes(logger, opts); err != nil {
		return Stats{}, err
	}

	stats := Stats{Latency: s.latency()}
	logger.DebugContext(ctx, "stream opened",
		slog.Int("channels", s.channels),
		slog.Duration("latency", stats.Latency),
	)

	in := make([][]float32, src.Channels())
	for c := range in {
		in[c] = make([]float32, opts.BlockFrames)
	}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, err := src.ReadBlock(in)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read block: %w", err)
		}

		out, frames := s.process(in, n)
		if err := sink.Write(out, frames); err != nil {
			return stats, fmt.Errorf("failed to write block: %w", err)
		}
		stats.Blocks++
		stats.Frames += frames
	}

	if s.master {
		stats.InfoString = a.MasterProcessGetStreamInfoString(h)
	}
	if err := sink.Drain(true); err != nil {
		return stats, fmt.Errorf("failed to drain sink: %w", err)
	}
	logger.InfoContext(ctx, "stream finished",
		slog.Int("blocks", stats.Blocks),
		slog.Int("frames", stats.Frames),
	)
	return stats, nil
}

func (r *Runner) settings(h adsp.StreamHandle, channels int, opts Options) *adsp.Settings {
	flags := Layout(channels)
	return &adsp.Settings{
		StreamID:               h.StreamID,
		StreamType:             opts.StreamType,
		InChannels:             channels,
		InChannelPresentFlags:  flags,
		InFrames:               opts.BlockFrames,
		InSampleRate:           opts.SampleRate,
		ProcessFrames:          opts.BlockFrames,
		ProcessSampleRate:      opts.SampleRate,
		OutChannels:            channels,
		OutChannelPresentFlags: flags,
		OutFrames:              opts.BlockFrames,
		OutSampleRate:          opts.SampleRate,
	}
}

func (r *Runner) properties(h adsp.StreamHandle, channels int, opts Options) *adsp.StreamProperties {
	props := &adsp.StreamProperties{
		StreamID:   h.StreamID,
		StreamType: opts.StreamType,
		BaseType:   adsp.BaseTypeUnknown,
		Name:       opts.Name,
		Channels:   channels,
		SampleRate: opts.SampleRate,
	}
	if info, ok := r.codecs.Lookup(opts.Codec); ok {
		props.Codec = info.Name
		props.BaseType = info.BaseType
	} else if opts.Codec != "" {
		r.logger.Debug("unknown codec", slog.String("codec", opts.Codec))
		props.Codec = opts.Codec
	}
	return props
}

// setModes applies the master mode and keeps the pre and post modes the
// plugin accepts for this stream.
func (s *stream) setModes(logger *slog.Logger, opts Options) error {
	a := s.addon
	if opts.MasterMode != 0 && !a.SupportsMasterProcess() {
		return fmt.Errorf("master mode %d: %w", opts.MasterMode, ErrModeUnsupported)
	}
	if a.SupportsMasterProcess() {
		s.master = true
		if opts.MasterMode != 0 {
			dbID := modeID(a, adsp.ModeTypeMasterProcess, opts.MasterMode)
			if !a.StreamIsModeSupported(s.h, adsp.ModeTypeMasterProcess, opts.MasterMode, dbID) {
				return fmt.Errorf("master mode %d: %w", opts.MasterMode, ErrModeUnsupported)
			}
			if code := a.MasterProcessSetMode(s.h, opts.StreamType, opts.MasterMode, dbID); code != adsp.NoError {
				return fmt.Errorf("failed to set master mode %d: %w", opts.MasterMode, &adsp.AddonError{Code: code})
			}
		}
	}

	keep := func(t adsp.ModeType, supported bool, modes []uint) []uint {
		var out []uint
		for _, m := range modes {
			if supported && a.StreamIsModeSupported(s.h, t, m, modeID(a, t, m)) {
				out = append(out, m)
				continue
			}
			logger.Warn("skipping unsupported mode", slog.String("type", t.String()), slog.Uint64("mode", uint64(m)))
		}
		return out
	}
	s.pre = keep(adsp.ModeTypePre, a.SupportsPreProcess(), opts.PreModes)
	s.post = keep(adsp.ModeTypePost, a.SupportsPostProcess(), opts.PostModes)
	return nil
}

func modeID(a Addon, t adsp.ModeType, number uint) int {
	if id, ok := a.ModeID(t, number); ok {
		return id
	}
	return adsp.InvalidModeID
}

// latency sums the delay every active stage reports.
func (s *stream) latency() time.Duration {
	a := s.addon
	var delay float32
	if a.SupportsInputResample() {
		delay += a.InputResampleGetDelay(s.h)
	}
	for _, m := range s.pre {
		delay += a.PreProcessGetDelay(s.h, m)
	}
	if s.master {
		delay += a.MasterProcessGetDelay(s.h)
	}
	for _, m := range s.post {
		delay += a.PostProcessGetDelay(s.h, m)
	}
	if a.SupportsOutputResample() {
		delay += a.OutputResampleGetDelay(s.h)
	}
	return time.Duration(float64(delay) * float64(time.Second))
}

// buffer returns a planar buffer for key with at least frames capacity.
func (s *stream) buffer(key string, channels, frames int) [][]float32 {
	b := s.bufs[key]
	if len(b) != channels || (channels > 0 && len(b[0]) < frames) {
		b = make([][]float32, channels)
		for c := range b {
			b[c] = make([]float32, frames)
		}
		s.bufs[key] = b
	}
	for c := range b {
		b[c] = b[c][:frames]
	}
	return b
}

// process runs one block through the stages. A stage that produces no
// frames is bypassed so a faulting plugin does not silence the stream.
func (s *stream) process(in [][]float32, n int) ([][]float32, int) {
	a, h := s.addon, s.h
	cur, frames := in, n

	// Buffers are keyed by stage position so a repeated mode never runs in place.
	step := func(key string, channels, needed int, fn func(in, out [][]float32, n int) int) {
		out := s.buffer(key, channels, max(needed, frames))
		if got := fn(cur, out, frames); got > 0 {
			cur, frames = out, got
		}
	}

	if a.SupportsInputInfoProcess() {
		a.InputProcess(h, cur, frames)
	}
	if a.SupportsInputResample() {
		step("input_resample", len(cur), a.InputResampleProcessNeededSamplesize(h), func(in, out [][]float32, n int) int {
			return a.InputResampleProcess(h, in, out, n)
		})
	}
	for i, m := range s.pre {
		step(fmt.Sprintf("pre_%d", i), len(cur), a.PreProcessNeededSamplesize(h, m), func(in, out [][]float32, n int) int {
			return a.PreProcess(h, m, in, out, n)
		})
	}
	if s.master {
		channels, _ := a.MasterProcessGetOutChannels(h)
		if channels <= 0 {
			channels = len(cur)
		}
		step("master", channels, a.MasterProcessNeededSamplesize(h), func(in, out [][]float32, n int) int {
			return a.MasterProcess(h, in, out, n)
		})
	}
	for i, m := range s.post {
		step(fmt.Sprintf("post_%d", i), len(cur), a.PostProcessNeededSamplesize(h, m), func(in, out [][]float32, n int) int {
			return a.PostProcess(h, m, in, out, n)
		})
	}
	if a.SupportsOutputResample() {
		step("output_resample", len(cur), a.OutputResampleProcessNeededSamplesize(h), func(in, out [][]float32, n int) int {
			return a.OutputResampleProcess(h, in, out, n)
		})
	}

	return cur, frames
}

// Layout returns the default channel-present flags for a channel count.
func Layout(channels int) adsp.ChannelFlags {
	switch channels {
	case 1:
		return adsp.ChannelFC
	case 2:
		return adsp.ChannelFL | adsp.ChannelFR
	case 6:
		return adsp.ChannelFL | adsp.ChannelFR | adsp.ChannelFC | adsp.ChannelLFE | adsp.ChannelBL | adsp.ChannelBR
	case 8:
		return adsp.ChannelFL | adsp.ChannelFR | adsp.ChannelFC | adsp.ChannelLFE | adsp.ChannelBL | adsp.ChannelBR | adsp.ChannelSL | adsp.ChannelSR
	}
	var f adsp.ChannelFlags
	for c := range min(max(channels, 0), 20) {
		f |= 1 << c
	}
	return f
}
