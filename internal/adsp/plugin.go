package adsp

import "context"

// Loader resolves the binary of an addon.
type Loader interface {
	Load(ctx context.Context, info AddonInfo) (Library, error)
}

// Library is a loaded addon binary.
type Library interface {
	// Activate brings the binary up. It is called once per Create.
	Activate(props Properties) Status
	// NewInstance creates the plugin-side audio DSP instance. The plugin may
	// call back into cb before returning.
	NewInstance(cb Callbacks) (Instance, Status)
	// Deactivate releases the binary.
	Deactivate()
}

// Instance is the plugin-side state of one audio DSP addon.
type Instance interface {
	Capabilities() Capabilities
	DSPName() string
	DSPVersion() string

	MenuHook(hook MenuHook, data MenuHookData) ErrorCode

	StreamCreate(settings *Settings, props *StreamProperties, h StreamHandle) ErrorCode
	StreamDestroy(h StreamHandle) ErrorCode
	StreamIsModeSupported(h StreamHandle, t ModeType, modeID uint, dbModeID int) ErrorCode
	StreamInitialize(h StreamHandle, settings *Settings) ErrorCode

	// Close tears the instance down.
	Close()
}

// InputProcessor inspects the raw input before any processing.
type InputProcessor interface {
	InputProcess(h StreamHandle, in [][]float32, samples int) bool
}

// InputResampler converts the input to the processing sample rate.
type InputResampler interface {
	InputResampleProcessNeededSamplesize(h StreamHandle) int
	InputResampleProcess(h StreamHandle, in, out [][]float32, samples int) int
	InputResampleSampleRate(h StreamHandle) int
	InputResampleGetDelay(h StreamHandle) float32
}

type PreProcessor interface {
	PreProcessNeededSamplesize(h StreamHandle, modeID uint) int
	PreProcessGetDelay(h StreamHandle, modeID uint) float32
	PreProcess(h StreamHandle, modeID uint, in, out [][]float32, samples int) int
}

type MasterProcessor interface {
	MasterProcessSetMode(h StreamHandle, t StreamType, modeID uint, dbModeID int) ErrorCode
	MasterProcessNeededSamplesize(h StreamHandle) int
	MasterProcessGetDelay(h StreamHandle) float32
	// MasterProcessGetOutChannels returns the channel count the master stage
	// produces and which channels are present.
	MasterProcessGetOutChannels(h StreamHandle) (int, ChannelFlags)
	MasterProcess(h StreamHandle, in, out [][]float32, samples int) int
	MasterProcessGetStreamInfoString(h StreamHandle) string
}

type PostProcessor interface {
	PostProcessNeededSamplesize(h StreamHandle, modeID uint) int
	PostProcessGetDelay(h StreamHandle, modeID uint) float32
	PostProcess(h StreamHandle, modeID uint, in, out [][]float32, samples int) int
}

// OutputResampler converts the processed signal to the sink sample rate.
type OutputResampler interface {
	OutputResampleProcessNeededSamplesize(h StreamHandle) int
	OutputResampleProcess(h StreamHandle, in, out [][]float32, samples int) int
	OutputResampleSampleRate(h StreamHandle) int
	OutputResampleGetDelay(h StreamHandle) float32
}

// Callbacks is the table the plugin uses to call into the host. Calls may
// arrive on any goroutine.
type Callbacks interface {
	AddMenuHook(hook *MenuHook)
	RemoveMenuHook(hook *MenuHook)
	RegisterMode(mode *Mode)
	UnregisterMode(mode *Mode)
}

// ModeStore persists modes and hands out host-unique ids.
type ModeStore interface {
	AddUpdate(ctx context.Context, mode Mode) (int, error)
	Delete(ctx context.Context, mode Mode) error
}

// AddonManager is the host-level addon bookkeeping.
type AddonManager interface {
	DisableAddon(ctx context.Context, addonID string) error
	UpdateAddons(ctx context.Context) error
	Deactivate(ctx context.Context)
}

// Notifier shows the user that an addon failed and was disabled.
type Notifier interface {
	ShowExceptionErrorDialog(ctx context.Context, addon AddonInfo) error
}
