package adsp

import (
	"errors"
	"fmt"
)

// ErrorCode is what a plugin returns from stream and mode calls.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota - 1
	NoError
	NotImplemented
	RejectedByPlugin
	InvalidParameters
	InvalidSampleRate
	InvalidInputChannels
	InvalidOutputChannels
	Failed
	// IgnoreMe tells the host to skip this addon for the call. It is not a failure.
	IgnoreMe
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "no error"
	case NotImplemented:
		return "not implemented"
	case RejectedByPlugin:
		return "rejected by the backend"
	case InvalidParameters:
		return "invalid parameters for this method"
	case InvalidSampleRate:
		return "invalid samplerate for this method"
	case InvalidInputChannels:
		return "invalid input channel layout for this method"
	case InvalidOutputChannels:
		return "invalid output channel layout for this method"
	case Failed:
		return "the command failed"
	case IgnoreMe:
		return "ignore me"
	default:
		return "unknown error"
	}
}

var (
	ErrInvalidClientID       = errors.New("invalid client id")
	ErrLifecycleBusy         = errors.New("addon is being created or destroyed")
	ErrNotReady              = errors.New("addon is not ready to use")
	ErrPropertiesUnavailable = errors.New("failed to query addon properties")
	ErrAborted               = errors.New("addon creation aborted by a fault")

	errNoModeStore = errors.New("no mode store configured")
)

// AddonError is the host's own error type. A plugin panicking with an
// *AddonError is classified as a typed fault.
type AddonError struct {
	Code    ErrorCode
	Message string
}

func (e *AddonError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var _ error = (*AddonError)(nil)

// StatusError reports a lifecycle step that returned a non-OK status.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %q", e.Op, e.Status)
}

var _ error = (*StatusError)(nil)
