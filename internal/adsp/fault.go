package adsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// FaultKind classifies what a plugin panicked with.
type FaultKind int

const (
	// FaultTyped is a panic carrying the host's *AddonError.
	FaultTyped FaultKind = iota
	// FaultRuntime is a panic carrying any other error, runtime errors included.
	FaultRuntime
	// FaultCode is a panic carrying a bare integer code.
	FaultCode
	FaultUnknown
)

func (k FaultKind) String() string {
	switch k {
	case FaultTyped:
		return "addon error"
	case FaultRuntime:
		return "runtime error"
	case FaultCode:
		return "error code"
	default:
		return "unknown exception"
	}
}

// Fault is a recovered panic from a call into plugin code.
type Fault struct {
	Kind  FaultKind
	Op    string
	Addon string
	Value any
	Code  int
	Err   error
	Stack []byte
}

func (f *Fault) Error() string {
	switch f.Kind {
	case FaultTyped, FaultRuntime:
		return fmt.Sprintf("addon %q threw %s in %s: %v", f.Addon, f.Kind, f.Op, f.Err)
	case FaultCode:
		return fmt.Sprintf("addon %q threw %s %d in %s", f.Addon, f.Kind, f.Code, f.Op)
	default:
		return fmt.Sprintf("addon %q threw %s in %s: %v", f.Addon, f.Kind, f.Op, f.Value)
	}
}

func (f *Fault) Unwrap() error {
	return f.Err
}

var _ error = (*Fault)(nil)

func classify(op, addon string, v any) *Fault {
	f := &Fault{Op: op, Addon: addon, Value: v, Kind: FaultUnknown}
	switch x := v.(type) {
	case ErrorCode:
		f.Kind, f.Code = FaultCode, int(x)
	case int:
		f.Kind, f.Code = FaultCode, x
	case int32:
		f.Kind, f.Code = FaultCode, int(x)
	case int64:
		f.Kind, f.Code = FaultCode, int(x)
	case error:
		f.Err = x
		var ae *AddonError
		if errors.As(x, &ae) {
			f.Kind = FaultTyped
		} else {
			f.Kind = FaultRuntime
		}
	}
	return f
}

// cross runs fn, which calls into plugin code, and turns a panic into a
// logged Fault.
func (a *Addon) cross(op string, fn func()) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			fault = classify(op, a.displayName(), r)
			fault.Stack = debug.Stack()
			a.logFault(fault)
		}
	}()
	fn()
	return nil
}

// displayName is the friendly name, or the package name while the plugin
// has not reported one yet.
func (a *Addon) displayName() string {
	if name := a.GetFriendlyName(); name != defaultInfoString {
		return name
	}
	if a.info.Name != "" {
		return a.info.Name
	}
	return a.info.ID
}

// guard crosses into plugin code and returns neutral if the plugin faulted.
// The boolean is false when a fault was recovered.
func guard[T any](a *Addon, op string, neutral T, fn func() T) (T, bool) {
	var out T
	if f := a.cross(op, func() { out = fn() }); f != nil {
		return neutral, false
	}
	return out, true
}

func (a *Addon) logFault(f *Fault) {
	attrs := []any{
		slog.String("op", f.Op),
		slog.String("addon", f.Addon),
		slog.String("kind", f.Kind.String()),
	}
	switch f.Kind {
	case FaultCode:
		attrs = append(attrs, slog.Int("code", f.Code))
	case FaultUnknown:
		attrs = append(attrs, slog.Any("value", f.Value))
	default:
		attrs = append(attrs, slog.Any("error", f.Err))
	}
	a.logger.Error("addon threw an exception", attrs...)
	a.logger.Debug("addon exception stack", slog.String("op", f.Op), slog.String("stack", string(f.Stack)))
}

// escalate handles a fault that is fatal to the instance: tear it down,
// disable the addon and tell the user.
func (a *Addon) escalate(f *Fault) {
	a.mu.Lock()
	if a.state == StateCreating {
		a.aborted = true
	}
	a.mu.Unlock()

	a.Destroy()

	ctx, cancel := a.collaboratorContext()
	defer cancel()

	if a.manager != nil {
		if err := a.manager.DisableAddon(ctx, a.info.ID); err != nil {
			a.logger.Error("failed to disable addon",
				slog.String("op", f.Op),
				slog.String("addon", a.info.ID),
				slog.Any("error", err),
			)
		}
	}
	if a.notifier != nil {
		if err := a.notifier.ShowExceptionErrorDialog(ctx, a.info); err != nil {
			a.logger.Warn("failed to show exception dialog",
				slog.String("addon", a.info.ID),
				slog.Any("error", err),
			)
		}
	}
}

func (a *Addon) collaboratorContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

// logError logs every code except NoError and IgnoreMe. It reports whether
// the code counts as success.
func (a *Addon) logError(code ErrorCode, op string) bool {
	if code == NoError || code == IgnoreMe {
		return true
	}
	a.logger.Error("addon returned an error",
		slog.String("op", op),
		slog.String("addon", a.displayName()),
		slog.String("error", code.String()),
	)
	return false
}
