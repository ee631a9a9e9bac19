// Package adsp hosts audio DSP addons.
//
// An Addon wraps one plugin instance bound to one client id. It owns the
// instance lifecycle, the capability report and menu hooks the plugin
// publishes, and drives per-stream DSP stages through the plugin. Every call
// into plugin code runs behind a recover boundary: lifecycle faults disable
// the addon, stage faults only degrade the call that hit them.
package adsp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultCollaboratorTimeout = 5 * time.Second

// Addon is the host side of one audio DSP addon.
type Addon struct {
	info     AddonInfo
	loader   Loader
	store    ModeStore
	manager  AddonManager
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration

	hooks MenuHooks

	mu           sync.RWMutex
	state        State
	aborted      bool
	clientID     int
	name         string
	friendlyName string
	version      string
	caps         Capabilities
	lib          Library
	inst         Instance
	streams      map[StreamHandle]struct{}
	modes        map[modeKey]int
}

type modeKey struct {
	t      ModeType
	number uint
}

type Option func(*Addon)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Addon) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithModeStore sets where registered modes are persisted.
func WithModeStore(store ModeStore) Option {
	return func(a *Addon) {
		a.store = store
	}
}

func WithAddonManager(m AddonManager) Option {
	return func(a *Addon) {
		a.manager = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(a *Addon) {
		a.notifier = n
	}
}

// WithCollaboratorTimeout bounds calls to the mode store, addon manager and
// notifier. Calls into plugin code are never bounded.
func WithCollaboratorTimeout(d time.Duration) Option {
	return func(a *Addon) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewAddon(info AddonInfo, loader Loader, opts ...Option) *Addon {
	a := &Addon{
		info:    info,
		loader:  loader,
		logger:  slog.Default().With("subsystem", "ActiveAE DSP"),
		timeout: defaultCollaboratorTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.resetLocked(InvalidClientID)
	return a
}

// resetLocked puts every instance field back to its default. Callers hold mu
// or own the addon exclusively.
func (a *Addon) resetLocked(clientID int) {
	a.hooks.clear()
	a.state = StateUnloaded
	a.aborted = false
	a.clientID = clientID
	a.name = defaultInfoString
	a.friendlyName = defaultInfoString
	a.version = defaultInfoString
	a.caps = Capabilities{}
	a.lib = nil
	a.inst = nil
	a.streams = make(map[StreamHandle]struct{})
	a.modes = make(map[modeKey]int)
}

func (a *Addon) properties() Properties {
	return Properties{
		UserPath:  a.info.Profile,
		AddonPath: a.info.Path,
	}
}

// Create loads the addon binary, creates the plugin instance and queries its
// properties. The addon is ready only if all three steps succeed. An existing
// instance is destroyed first.
func (a *Addon) Create(ctx context.Context, clientID int) (Status, error) {
	if clientID <= InvalidClientID {
		return StatusUnknown, ErrInvalidClientID
	}

	a.mu.Lock()
	if a.state == StateCreating || a.state == StateDestroying {
		a.mu.Unlock()
		return StatusUnknown, ErrLifecycleBusy
	}
	a.mu.Unlock()

	a.Destroy()

	a.mu.Lock()
	if a.state != StateUnloaded {
		a.mu.Unlock()
		return StatusUnknown, ErrLifecycleBusy
	}
	a.resetLocked(clientID)
	a.state = StateCreating
	a.mu.Unlock()

	a.logger.Debug("creating audio dsp add-on instance", slog.String("addon", a.info.Name), slog.Int("clientID", clientID))

	status, err := a.create(ctx)

	a.mu.Lock()
	if err == nil && a.aborted {
		status, err = StatusPermanentFailure, ErrAborted
	}
	if err == nil {
		a.state = StateReady
		a.mu.Unlock()
		return status, nil
	}
	lib, inst := a.lib, a.inst
	a.resetLocked(InvalidClientID)
	a.mu.Unlock()

	a.release(lib, inst)
	a.logger.Error("failed to create audio dsp add-on instance",
		slog.String("addon", a.info.Name),
		slog.String("status", status.String()),
		slog.Any("error", err),
	)
	return status, err
}

func (a *Addon) create(ctx context.Context) (Status, error) {
	lib, err := a.loader.Load(ctx, a.info)
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to load addon %s: %w", a.info.ID, err)
	}
	if lib == nil {
		return StatusUnknown, fmt.Errorf("loader returned no library for addon %s", a.info.ID)
	}
	a.mu.Lock()
	a.lib = lib
	a.mu.Unlock()

	status := StatusUnknown
	if f := a.cross("Create", func() { status = lib.Activate(a.properties()) }); f != nil {
		a.escalate(f)
		return StatusUnknown, fmt.Errorf("failed to activate addon: %w", f)
	}
	if status != StatusOK {
		return status, &StatusError{Op: "Create", Status: status}
	}

	var inst Instance
	f := a.cross("CreateInstance", func() {
		inst, status = lib.NewInstance(&callbacks{addon: a})
	})
	if f != nil {
		a.escalate(f)
		return StatusUnknown, fmt.Errorf("failed to create instance: %w", f)
	}
	if inst != nil {
		a.mu.Lock()
		a.inst = inst
		a.mu.Unlock()
	}
	if status != StatusOK {
		return status, &StatusError{Op: "CreateInstance", Status: status}
	}
	if inst == nil {
		return StatusUnknown, fmt.Errorf("addon %s returned no instance", a.info.ID)
	}

	if !a.getAddonProperties(inst) {
		return StatusUnknown, ErrPropertiesUnavailable
	}
	return StatusOK, nil
}

// getAddonProperties queries capabilities, name and version in that order.
// The first fault aborts the query and leaves the defaults untouched.
func (a *Addon) getAddonProperties(inst Instance) bool {
	caps, ok := guard(a, "GetCapabilities", Capabilities{}, inst.Capabilities)
	if !ok {
		return false
	}
	name, ok := guard(a, "GetDSPName", "", inst.DSPName)
	if !ok {
		return false
	}
	version, ok := guard(a, "GetDSPVersion", "", inst.DSPVersion)
	if !ok {
		return false
	}

	a.mu.Lock()
	a.caps = caps
	a.name = name
	a.friendlyName = name
	a.version = version
	a.mu.Unlock()
	return true
}

// Destroy tears the instance down. It is a no-op unless the addon is ready,
// so repeated calls tear down at most once. It is safe to call from a fault
// handler.
func (a *Addon) Destroy() {
	a.mu.Lock()
	if a.state != StateReady {
		a.mu.Unlock()
		return
	}
	a.state = StateDestroying
	lib, inst := a.lib, a.inst
	friendly := a.friendlyName
	a.mu.Unlock()

	a.logger.Debug("destroying audio dsp add-on", slog.String("addon", friendly))
	a.release(lib, inst)

	a.mu.Lock()
	a.resetLocked(InvalidClientID)
	a.mu.Unlock()
}

// release closes the plugin instance and deactivates the binary. Faults are
// logged and escalated but never re-raised.
func (a *Addon) release(lib Library, inst Instance) {
	if inst != nil {
		if f := a.cross("DestroyInstance", inst.Close); f != nil {
			a.escalate(f)
		}
	}
	if lib != nil {
		if f := a.cross("Destroy", lib.Deactivate); f != nil {
			a.escalate(f)
		}
	}
}

// ReCreate destroys and creates the instance again under the same client id.
func (a *Addon) ReCreate(ctx context.Context) (Status, error) {
	a.mu.RLock()
	clientID := a.clientID
	a.mu.RUnlock()

	a.Destroy()
	return a.Create(ctx, clientID)
}

// instance returns the plugin instance if the addon is ready.
func (a *Addon) instance() (Instance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state != StateReady || a.inst == nil {
		return nil, false
	}
	return a.inst, true
}

func (a *Addon) ReadyToUse() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state == StateReady
}

func (a *Addon) IsInUse() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.streams) > 0
}

// State reports the lifecycle state, with StateInUse for a ready addon that
// has open streams.
func (a *Addon) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state == StateReady && len(a.streams) > 0 {
		return StateInUse
	}
	return a.state
}

func (a *Addon) GetID() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clientID
}

func (a *Addon) Info() AddonInfo {
	return a.info
}

func (a *Addon) GetAudioDSPName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

func (a *Addon) GetAudioDSPVersion() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}

func (a *Addon) GetFriendlyName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.friendlyName
}

func (a *Addon) OnEnabled(ctx context.Context) error {
	return a.updateAddons(ctx)
}

func (a *Addon) OnDisabled(ctx context.Context) error {
	return a.updateAddons(ctx)
}

func (a *Addon) OnPreInstall(ctx context.Context) error {
	return a.updateAddons(ctx)
}

func (a *Addon) OnPostInstall(ctx context.Context) error {
	return a.updateAddons(ctx)
}

// OnPreUnInstall stops every running addon before files are removed.
func (a *Addon) OnPreUnInstall(ctx context.Context) {
	if a.manager != nil {
		a.manager.Deactivate(ctx)
	}
}

func (a *Addon) OnPostUnInstall(ctx context.Context) error {
	return a.updateAddons(ctx)
}

func (a *Addon) updateAddons(ctx context.Context) error {
	if a.manager == nil {
		return nil
	}
	if err := a.manager.UpdateAddons(ctx); err != nil {
		return fmt.Errorf("failed to update addons: %w", err)
	}
	return nil
}
