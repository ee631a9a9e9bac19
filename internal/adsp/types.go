package adsp

// InvalidClientID is the sentinel for an addon that has no identity yet.
const InvalidClientID = -1

// InvalidModeID is written into Mode.UniqueDBModeID when registration fails.
const InvalidModeID = -1

const defaultInfoString = "unknown"

// Status is the result of activating an addon binary or creating an instance.
type Status int

const (
	StatusOK Status = iota
	StatusLostConnection
	StatusNeedRestart
	StatusNeedSettings
	StatusUnknown
	StatusNeedSavedSettings
	StatusPermanentFailure
	StatusNotImplemented
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusLostConnection:
		return "lost connection"
	case StatusNeedRestart:
		return "need restart"
	case StatusNeedSettings:
		return "need settings"
	case StatusNeedSavedSettings:
		return "need saved settings"
	case StatusPermanentFailure:
		return "permanent failure"
	case StatusNotImplemented:
		return "not implemented"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of an Addon.
type State int

const (
	StateUnloaded State = iota
	StateCreating
	StateReady
	StateInUse
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	case StateInUse:
		return "in use"
	case StateDestroying:
		return "destroying"
	default:
		return "unloaded"
	}
}

// AddonInfo identifies an addon package independently of any running instance.
type AddonInfo struct {
	ID      string
	Name    string
	Version string
	// Path is the directory the addon binary lives in.
	Path string
	// Profile is the per-user data directory handed to the plugin.
	Profile string
}

// Properties are handed to the plugin when its binary is activated.
type Properties struct {
	UserPath  string
	AddonPath string
}

// StreamType is the kind of content a stream carries.
type StreamType int

const (
	StreamTypeInvalid StreamType = iota - 1
	StreamTypeBasic
	StreamTypeMusic
	StreamTypeMovie
	StreamTypeGame
	StreamTypeApp
	StreamTypePhone
	StreamTypeMessage
	StreamTypeAuto
)

// BaseType is the container format family of a stream.
type BaseType int

const (
	BaseTypeUnknown BaseType = iota
	BaseTypeStereo
	BaseTypeMono
	BaseTypeMultichannel
	BaseTypeAC3
	BaseTypeEAC3
	BaseTypeTrueHD
	BaseTypeDTS
	BaseTypeDTSHD
)

// ChannelFlags is a bitset of present speaker channels.
type ChannelFlags uint64

const (
	ChannelFL ChannelFlags = 1 << iota
	ChannelFR
	ChannelFC
	ChannelLFE
	ChannelBL
	ChannelBR
	ChannelFLOC
	ChannelFROC
	ChannelBC
	ChannelSL
	ChannelSR
	ChannelTFL
	ChannelTFR
	ChannelTFC
	ChannelTC
	ChannelTBL
	ChannelTBR
	ChannelTBC
	ChannelBLOC
	ChannelBROC
)

// Count returns the number of channels present in f.
func (f ChannelFlags) Count() int {
	n := 0
	for f != 0 {
		f &= f - 1
		n++
	}
	return n
}

// Settings describe the format a stream is processed in.
type Settings struct {
	StreamID               int
	StreamType             StreamType
	InChannels             int
	InChannelPresentFlags  ChannelFlags
	InFrames               int
	InSampleRate           int
	ProcessFrames          int
	ProcessSampleRate      int
	OutChannels            int
	OutChannelPresentFlags ChannelFlags
	OutFrames              int
	OutSampleRate          int
	InputResamplingActive  bool
	StereoUpmix            bool
	QualityLevel           int
}

// StreamProperties describe the source of a stream.
type StreamProperties struct {
	StreamID   int
	StreamType StreamType
	BaseType   BaseType
	Name       string
	Codec      string
	Language   string
	Identifier int
	Channels   int
	SampleRate int
	Profile    int
}

// StreamHandle scopes every per-stream call. It is opaque to the host; the
// plugin keys its per-stream state on it.
type StreamHandle struct {
	ID       string
	StreamID int
}

// ModeType is the pipeline stage a mode applies to.
type ModeType int

const (
	ModeTypeUndefined ModeType = iota - 1
	ModeTypeInputResample
	ModeTypePre
	ModeTypeMasterProcess
	ModeTypePost
	ModeTypeOutputResample
)

func (t ModeType) String() string {
	switch t {
	case ModeTypeInputResample:
		return "input resample"
	case ModeTypePre:
		return "pre process"
	case ModeTypeMasterProcess:
		return "master process"
	case ModeTypePost:
		return "post process"
	case ModeTypeOutputResample:
		return "output resample"
	default:
		return "undefined"
	}
}

// Mode is a named DSP mode a plugin registers with the host.
type Mode struct {
	// UniqueDBModeID is assigned by the host on registration.
	UniqueDBModeID int
	// AddonID is the client id of the owning addon, filled by the host.
	AddonID int
	Type    ModeType
	// Number is the plugin-local mode id.
	Number            uint
	Name              string
	SupportTypeFlags  uint
	HasSettingsDialog bool
	Disabled          bool
	NameLabel         int
	SetupLabel        int
	DescriptionLabel  int
	HelpLabel         int
	OwnImage          string
	OverrideImage     string
}
