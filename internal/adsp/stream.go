package adsp

import "log/slog"

// stream returns the plugin instance if the addon is ready and h was opened
// with StreamCreate and not yet destroyed.
func (a *Addon) stream(h StreamHandle) (Instance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state != StateReady || a.inst == nil {
		return nil, false
	}
	if _, ok := a.streams[h]; !ok {
		return nil, false
	}
	return a.inst, true
}

// StreamCreate allocates plugin-side state for h. The addon is in use until
// the matching StreamDestroy.
func (a *Addon) StreamCreate(settings *Settings, props *StreamProperties, h StreamHandle) ErrorCode {
	inst, ok := a.instance()
	if !ok {
		a.logger.Warn("stream create on an addon that is not ready", slog.String("addon", a.info.ID))
		return ErrorUnknown
	}
	a.mu.RLock()
	_, open := a.streams[h]
	a.mu.RUnlock()
	if open {
		a.logger.Error("stream is already open",
			slog.String("addon", a.info.ID),
			slog.String("stream", h.ID),
		)
		return InvalidParameters
	}

	code, ok := guard(a, "StreamCreate", ErrorUnknown, func() ErrorCode {
		return inst.StreamCreate(settings, props, h)
	})
	if !ok {
		return code
	}
	if code == NoError {
		a.mu.Lock()
		if a.state == StateReady && a.inst == inst {
			a.streams[h] = struct{}{}
		} else {
			code = ErrorUnknown
		}
		a.mu.Unlock()
	}
	a.logError(code, "StreamCreate")
	return code
}

// StreamDestroy releases plugin-side state for h. The handle is forgotten
// even if the plugin faults.
func (a *Addon) StreamDestroy(h StreamHandle) {
	inst, ok := a.stream(h)
	if ok {
		code, crossed := guard(a, "StreamDestroy", ErrorUnknown, func() ErrorCode {
			return inst.StreamDestroy(h)
		})
		if crossed {
			a.logError(code, "StreamDestroy")
		}
	}

	a.mu.Lock()
	delete(a.streams, h)
	a.mu.Unlock()
}

// StreamIsModeSupported probes whether the plugin can run a mode on h.
// IgnoreMe answers false without an error log.
func (a *Addon) StreamIsModeSupported(h StreamHandle, t ModeType, modeID uint, dbModeID int) bool {
	inst, ok := a.stream(h)
	if !ok {
		return false
	}
	code, ok := guard(a, "StreamIsModeSupported", ErrorUnknown, func() ErrorCode {
		return inst.StreamIsModeSupported(h, t, modeID, dbModeID)
	})
	if !ok {
		return false
	}
	if code == NoError {
		return true
	}
	a.logError(code, "StreamIsModeSupported")
	return false
}

// StreamInitialize re-applies settings to an open stream.
func (a *Addon) StreamInitialize(h StreamHandle, settings *Settings) ErrorCode {
	inst, ok := a.stream(h)
	if !ok {
		return ErrorUnknown
	}
	code, ok := guard(a, "StreamInitialize", ErrorUnknown, func() ErrorCode {
		return inst.StreamInitialize(h, settings)
	})
	if ok {
		a.logError(code, "StreamInitialize")
	}
	return code
}

// stage resolves the optional stage interface T for h. A plugin that does
// not implement it is answered with NotImplemented.
func stage[T any](a *Addon, h StreamHandle, op string) (T, bool) {
	var zero T
	inst, ok := a.stream(h)
	if !ok {
		return zero, false
	}
	s, ok := inst.(T)
	if !ok {
		a.logError(NotImplemented, op)
		return zero, false
	}
	return s, true
}

// frames clamps a frame count reported by the plugin to what the buffers
// can hold.
func (a *Addon) frames(op string, n int, bufs [][]float32) int {
	limit := capacity(bufs)
	if n < 0 || n > limit {
		a.logger.Warn("addon returned an out of range frame count",
			slog.String("op", op),
			slog.String("addon", a.displayName()),
			slog.Int("frames", n),
			slog.Int("capacity", limit),
		)
		return max(0, min(n, limit))
	}
	return n
}

func capacity(bufs [][]float32) int {
	if len(bufs) == 0 {
		return 0
	}
	limit := len(bufs[0])
	for _, b := range bufs[1:] {
		limit = min(limit, len(b))
	}
	return limit
}

func (a *Addon) InputProcess(h StreamHandle, in [][]float32, samples int) bool {
	p, ok := stage[InputProcessor](a, h, "InputProcess")
	if !ok {
		return false
	}
	out, _ := guard(a, "InputProcess", false, func() bool {
		return p.InputProcess(h, in, samples)
	})
	return out
}

func (a *Addon) InputResampleProcessNeededSamplesize(h StreamHandle) int {
	p, ok := stage[InputResampler](a, h, "InputResampleProcessNeededSamplesize")
	if !ok {
		return 0
	}
	n, _ := guard(a, "InputResampleProcessNeededSamplesize", 0, func() int {
		return p.InputResampleProcessNeededSamplesize(h)
	})
	return n
}

func (a *Addon) InputResampleProcess(h StreamHandle, in, out [][]float32, samples int) int {
	p, ok := stage[InputResampler](a, h, "InputResampleProcess")
	if !ok {
		return 0
	}
	n, _ := guard(a, "InputResampleProcess", 0, func() int {
		return p.InputResampleProcess(h, in, out, samples)
	})
	return a.frames("InputResampleProcess", n, out)
}

// InputResampleSampleRate returns -1 when the rate is unavailable.
func (a *Addon) InputResampleSampleRate(h StreamHandle) int {
	p, ok := stage[InputResampler](a, h, "InputResampleSampleRate")
	if !ok {
		return -1
	}
	rate, _ := guard(a, "InputResampleSampleRate", -1, func() int {
		return p.InputResampleSampleRate(h)
	})
	return rate
}

func (a *Addon) InputResampleGetDelay(h StreamHandle) float32 {
	p, ok := stage[InputResampler](a, h, "InputResampleGetDelay")
	if !ok {
		return 0
	}
	d, _ := guard(a, "InputResampleGetDelay", 0, func() float32 {
		return p.InputResampleGetDelay(h)
	})
	return d
}

func (a *Addon) PreProcessNeededSamplesize(h StreamHandle, modeID uint) int {
	p, ok := stage[PreProcessor](a, h, "PreProcessNeededSamplesize")
	if !ok {
		return 0
	}
	n, _ := guard(a, "PreProcessNeededSamplesize", 0, func() int {
		return p.PreProcessNeededSamplesize(h, modeID)
	})
	return n
}

func (a *Addon) PreProcessGetDelay(h StreamHandle, modeID uint) float32 {
	p, ok := stage[PreProcessor](a, h, "PreProcessGetDelay")
	if !ok {
		return 0
	}
	d, _ := guard(a, "PreProcessGetDelay", 0, func() float32 {
		return p.PreProcessGetDelay(h, modeID)
	})
	return d
}

func (a *Addon) PreProcess(h StreamHandle, modeID uint, in, out [][]float32, samples int) int {
	p, ok := stage[PreProcessor](a, h, "PreProcess")
	if !ok {
		return 0
	}
	n, _ := guard(a, "PreProcess", 0, func() int {
		return p.PreProcess(h, modeID, in, out, samples)
	})
	return a.frames("PreProcess", n, out)
}

// MasterProcessSetMode selects the registered mode the master stage runs.
func (a *Addon) MasterProcessSetMode(h StreamHandle, t StreamType, modeID uint, dbModeID int) ErrorCode {
	p, ok := stage[MasterProcessor](a, h, "MasterProcessSetMode")
	if !ok {
		return ErrorUnknown
	}
	code, ok := guard(a, "MasterProcessSetMode", ErrorUnknown, func() ErrorCode {
		return p.MasterProcessSetMode(h, t, modeID, dbModeID)
	})
	if ok {
		a.logError(code, "MasterProcessSetMode")
	}
	return code
}

func (a *Addon) MasterProcessNeededSamplesize(h StreamHandle) int {
	p, ok := stage[MasterProcessor](a, h, "MasterProcessNeededSamplesize")
	if !ok {
		return 0
	}
	n, _ := guard(a, "MasterProcessNeededSamplesize", 0, func() int {
		return p.MasterProcessNeededSamplesize(h)
	})
	return n
}

func (a *Addon) MasterProcessGetDelay(h StreamHandle) float32 {
	p, ok := stage[MasterProcessor](a, h, "MasterProcessGetDelay")
	if !ok {
		return 0
	}
	d, _ := guard(a, "MasterProcessGetDelay", 0, func() float32 {
		return p.MasterProcessGetDelay(h)
	})
	return d
}

// MasterProcessGetOutChannels returns -1 and no flags when unavailable.
func (a *Addon) MasterProcessGetOutChannels(h StreamHandle) (int, ChannelFlags) {
	p, ok := stage[MasterProcessor](a, h, "MasterProcessGetOutChannels")
	if !ok {
		return -1, 0
	}
	type result struct {
		n     int
		flags ChannelFlags
	}
	r, _ := guard(a, "MasterProcessGetOutChannels", result{n: -1}, func() result {
		n, flags := p.MasterProcessGetOutChannels(h)
		return result{n: n, flags: flags}
	})
	return r.n, r.flags
}

func (a *Addon) MasterProcess(h StreamHandle, in, out [][]float32, samples int) int {
	p, ok := stage[MasterProcessor](a, h, "MasterProcess")
	if !ok {
		return 0
	}
	n, _ := guard(a, "MasterProcess", 0, func() int {
		return p.MasterProcess(h, in, out, samples)
	})
	return a.frames("MasterProcess", n, out)
}

func (a *Addon) MasterProcessGetStreamInfoString(h StreamHandle) string {
	p, ok := stage[MasterProcessor](a, h, "MasterProcessGetStreamInfoString")
	if !ok {
		return ""
	}
	s, _ := guard(a, "MasterProcessGetStreamInfoString", "", func() string {
		return p.MasterProcessGetStreamInfoString(h)
	})
	return s
}

func (a *Addon) PostProcessNeededSamplesize(h StreamHandle, modeID uint) int {
	p, ok := stage[PostProcessor](a, h, "PostProcessNeededSamplesize")
	if !ok {
		return 0
	}
	n, _ := guard(a, "PostProcessNeededSamplesize", 0, func() int {
		return p.PostProcessNeededSamplesize(h, modeID)
	})
	return n
}

func (a *Addon) PostProcessGetDelay(h StreamHandle, modeID uint) float32 {
	p, ok := stage[PostProcessor](a, h, "PostProcessGetDelay")
	if !ok {
		return 0
	}
	d, _ := guard(a, "PostProcessGetDelay", 0, func() float32 {
		return p.PostProcessGetDelay(h, modeID)
	})
	return d
}

func (a *Addon) PostProcess(h StreamHandle, modeID uint, in, out [][]float32, samples int) int {
	p, ok := stage[PostProcessor](a, h, "PostProcess")
	if !ok {
		return 0
	}
	n, _ := guard(a, "PostProcess", 0, func() int {
		return p.PostProcess(h, modeID, in, out, samples)
	})
	return a.frames("PostProcess", n, out)
}

func (a *Addon) OutputResampleProcessNeededSamplesize(h StreamHandle) int {
	p, ok := stage[OutputResampler](a, h, "OutputResampleProcessNeededSamplesize")
	if !ok {
		return 0
	}
	n, _ := guard(a, "OutputResampleProcessNeededSamplesize", 0, func() int {
		return p.OutputResampleProcessNeededSamplesize(h)
	})
	return n
}

func (a *Addon) OutputResampleProcess(h StreamHandle, in, out [][]float32, samples int) int {
	p, ok := stage[OutputResampler](a, h, "OutputResampleProcess")
	if !ok {
		return 0
	}
	n, _ := guard(a, "OutputResampleProcess", 0, func() int {
		return p.OutputResampleProcess(h, in, out, samples)
	})
	return a.frames("OutputResampleProcess", n, out)
}

// OutputResampleSampleRate returns -1 when the rate is unavailable.
func (a *Addon) OutputResampleSampleRate(h StreamHandle) int {
	p, ok := stage[OutputResampler](a, h, "OutputResampleSampleRate")
	if !ok {
		return -1
	}
	rate, _ := guard(a, "OutputResampleSampleRate", -1, func() int {
		return p.OutputResampleSampleRate(h)
	})
	return rate
}

func (a *Addon) OutputResampleGetDelay(h StreamHandle) float32 {
	p, ok := stage[OutputResampler](a, h, "OutputResampleGetDelay")
	if !ok {
		return 0
	}
	d, _ := guard(a, "OutputResampleGetDelay", 0, func() float32 {
		return p.OutputResampleGetDelay(h)
	})
	return d
}
