// Package builtin holds audio DSP addons compiled into the host.
package builtin

import (
	"fmt"
	"math"
	"sync"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/loader"
	"github.com/glizzus/adsp-host/internal/util"
)

// VolumeID is the addon id of the volume addon.
const VolumeID = "adsp.builtin.volume"

const (
	MasterModeUnity uint = iota + 1
	MasterModeCut
	MasterModeBoost

	PostModeLimiter uint = 1
)

// HookResetPeak clears the peak meters of every open stream.
const HookResetPeak = 1

var masterGainDB = map[uint]float64{
	MasterModeUnity: 0,
	MasterModeCut:   -6,
	MasterModeBoost: 6,
}

// Register adds the builtin addons to r.
func Register(r *loader.Registry) {
	r.Register(VolumeID, func() adsp.Library { return &VolumeLibrary{} })
}

// VolumeLibrary meters input peaks, applies a fixed master gain and can
// soft-limit the output.
type VolumeLibrary struct {
	props adsp.Properties
}

var _ adsp.Library = (*VolumeLibrary)(nil)

func (l *VolumeLibrary) Activate(props adsp.Properties) adsp.Status {
	l.props = props
	return adsp.StatusOK
}

func (l *VolumeLibrary) NewInstance(cb adsp.Callbacks) (adsp.Instance, adsp.Status) {
	v := &Volume{streams: make(map[adsp.StreamHandle]*volumeStream)}

	cb.AddMenuHook(&adsp.MenuHook{
		HookID:         HookResetPeak,
		LocalizedLabel: 30100,
		Category:       adsp.MenuHookSettings,
	})
	for _, number := range util.SortedKeys(masterGainDB) {
		gain := masterGainDB[number]
		cb.RegisterMode(&adsp.Mode{
			Type:             adsp.ModeTypeMasterProcess,
			Number:           number,
			Name:             fmt.Sprintf("Gain %+.0f dB", gain),
			SupportTypeFlags: 1<<uint(adsp.StreamTypeBasic) | 1<<uint(adsp.StreamTypeMusic) | 1<<uint(adsp.StreamTypeMovie),
		})
	}
	cb.RegisterMode(&adsp.Mode{
		Type:   adsp.ModeTypePost,
		Number: PostModeLimiter,
		Name:   "Soft limiter",
	})
	return v, adsp.StatusOK
}

func (l *VolumeLibrary) Deactivate() {}

type volumeStream struct {
	settings adsp.Settings
	gain     float32
	mode     uint
	peak     float32
}

// Volume is the plugin-side instance.
type Volume struct {
	mu      sync.Mutex
	streams map[adsp.StreamHandle]*volumeStream
}

var (
	_ adsp.Instance        = (*Volume)(nil)
	_ adsp.InputProcessor  = (*Volume)(nil)
	_ adsp.MasterProcessor = (*Volume)(nil)
	_ adsp.PostProcessor   = (*Volume)(nil)
)

func (v *Volume) Capabilities() adsp.Capabilities {
	return adsp.Capabilities{
		SupportsInputProcess:  true,
		SupportsMasterProcess: true,
		SupportsPostProcess:   true,
	}
}

func (v *Volume) DSPName() string    { return "Volume" }
func (v *Volume) DSPVersion() string { return "1.0.0" }

func (v *Volume) MenuHook(hook adsp.MenuHook, _ adsp.MenuHookData) adsp.ErrorCode {
	if hook.HookID != HookResetPeak {
		return adsp.InvalidParameters
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range v.streams {
		s.peak = 0
	}
	return adsp.NoError
}

func (v *Volume) stream(h adsp.StreamHandle) *volumeStream {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.streams[h]
}

func (v *Volume) StreamCreate(settings *adsp.Settings, _ *adsp.StreamProperties, h adsp.StreamHandle) adsp.ErrorCode {
	if settings == nil {
		return adsp.InvalidParameters
	}
	if settings.InChannels <= 0 {
		return adsp.InvalidInputChannels
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.streams[h] = &volumeStream{settings: *settings, gain: 1, mode: MasterModeUnity}
	return adsp.NoError
}

func (v *Volume) StreamDestroy(h adsp.StreamHandle) adsp.ErrorCode {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.streams, h)
	return adsp.NoError
}

func (v *Volume) StreamIsModeSupported(_ adsp.StreamHandle, t adsp.ModeType, modeID uint, _ int) adsp.ErrorCode {
	switch t {
	case adsp.ModeTypeMasterProcess:
		if _, ok := masterGainDB[modeID]; ok {
			return adsp.NoError
		}
	case adsp.ModeTypePost:
		if modeID == PostModeLimiter {
			return adsp.NoError
		}
	}
	return adsp.IgnoreMe
}

func (v *Volume) StreamInitialize(h adsp.StreamHandle, settings *adsp.Settings) adsp.ErrorCode {
	if settings == nil {
		return adsp.InvalidParameters
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.streams[h]
	if !ok {
		return adsp.InvalidParameters
	}
	s.settings = *settings
	return adsp.NoError
}

func (v *Volume) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	clear(v.streams)
}

// Peak returns the highest absolute input sample seen on h.
func (v *Volume) Peak(h adsp.StreamHandle) float32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.streams[h]; ok {
		return s.peak
	}
	return 0
}

func (v *Volume) InputProcess(h adsp.StreamHandle, in [][]float32, samples int) bool {
	s := v.stream(h)
	if s == nil {
		return false
	}
	var peak float32
	for _, ch := range in {
		for _, x := range ch[:min(samples, len(ch))] {
			peak = max(peak, float32(math.Abs(float64(x))))
		}
	}
	v.mu.Lock()
	s.peak = max(s.peak, peak)
	v.mu.Unlock()
	return true
}

func (v *Volume) MasterProcessSetMode(h adsp.StreamHandle, _ adsp.StreamType, modeID uint, _ int) adsp.ErrorCode {
	db, ok := masterGainDB[modeID]
	if !ok {
		return adsp.InvalidParameters
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.streams[h]
	if !ok {
		return adsp.InvalidParameters
	}
	s.mode = modeID
	s.gain = float32(math.Pow(10, db/20))
	return adsp.NoError
}

func (v *Volume) MasterProcessNeededSamplesize(adsp.StreamHandle) int { return 0 }
func (v *Volume) MasterProcessGetDelay(adsp.StreamHandle) float32     { return 0 }

func (v *Volume) MasterProcessGetOutChannels(h adsp.StreamHandle) (int, adsp.ChannelFlags) {
	s := v.stream(h)
	if s == nil {
		return -1, 0
	}
	return s.settings.InChannels, s.settings.InChannelPresentFlags
}

func (v *Volume) MasterProcess(h adsp.StreamHandle, in, out [][]float32, samples int) int {
	s := v.stream(h)
	if s == nil {
		return 0
	}
	v.mu.Lock()
	gain := s.gain
	v.mu.Unlock()
	return apply(in, out, samples, func(x float32) float32 { return x * gain })
}

func (v *Volume) MasterProcessGetStreamInfoString(h adsp.StreamHandle) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.streams[h]
	if !ok {
		return ""
	}
	return fmt.Sprintf("gain %+.1f dB, peak %.3f", masterGainDB[s.mode], s.peak)
}

func (v *Volume) PostProcessNeededSamplesize(adsp.StreamHandle, uint) int { return 0 }
func (v *Volume) PostProcessGetDelay(adsp.StreamHandle, uint) float32     { return 0 }

func (v *Volume) PostProcess(h adsp.StreamHandle, modeID uint, in, out [][]float32, samples int) int {
	if v.stream(h) == nil || modeID != PostModeLimiter {
		return 0
	}
	return apply(in, out, samples, softLimit)
}

// softLimit keeps samples inside (-1, 1) and is close to linear near zero.
func softLimit(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

func apply(in, out [][]float32, samples int, fn func(float32) float32) int {
	channels := min(len(in), len(out))
	n := samples
	for c := range channels {
		n = min(n, len(in[c]), len(out[c]))
	}
	for c := range channels {
		for i := range n {
			out[c][i] = fn(in[c][i])
		}
	}
	return n
}
