// Package addonmgr owns the set of audio DSP addons a host runs. It creates
// enabled addons, keeps disabled ones down and records state changes.
package addonmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/repository"
)

type Config struct {
	// Addons lists the addon ids to run, in priority order.
	Addons     []string
	AddonDir   string
	ProfileDir string
	// CollaboratorTimeout bounds store, event and notifier calls.
	CollaboratorTimeout time.Duration
}

type Manager struct {
	cfg      Config
	loader   adsp.Loader
	modes    adsp.ModeStore
	clients  repository.AddonRepository
	state    StateStore
	events   EventPublisher
	notifier adsp.Notifier
	logger   *slog.Logger

	// updateMu serialises UpdateAddons and Deactivate. DisableAddon never
	// takes it because it runs from fault handlers inside Create.
	updateMu sync.Mutex

	mu     sync.RWMutex
	addons map[string]*adsp.Addon
}

var _ adsp.AddonManager = (*Manager)(nil)

type Option func(*Manager)

func WithModeStore(s adsp.ModeStore) Option {
	return func(m *Manager) { m.modes = s }
}

func WithAddonRepository(r repository.AddonRepository) Option {
	return func(m *Manager) { m.clients = r }
}

func WithStateStore(s StateStore) Option {
	return func(m *Manager) { m.state = s }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithNotifier(n adsp.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(cfg Config, loader adsp.Loader, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		loader:   loader,
		modes:    repository.NewMemoryModeRepository(),
		clients:  repository.NewMemoryAddonRepository(),
		state:    NewMemoryStateStore(),
		events:   &LogEventPublisher{},
		notifier: &LogNotifier{},
		logger:   slog.Default(),
		addons:   make(map[string]*adsp.Addon),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Activate brings up every enabled addon.
func (m *Manager) Activate(ctx context.Context) error {
	return m.UpdateAddons(ctx)
}

// Deactivate destroys every running addon.
func (m *Manager) Deactivate(ctx context.Context) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	m.mu.Lock()
	addons := m.addons
	m.addons = make(map[string]*adsp.Addon)
	m.mu.Unlock()

	for id, a := range addons {
		m.logger.DebugContext(ctx, "stopping addon", slog.String("addonID", id))
		a.Destroy()
	}
}

// UpdateAddons reconciles running addons with the configured and disabled
// sets. Disabled addons are destroyed, enabled ones that are not ready are
// created. A failing addon does not stop the others.
func (m *Manager) UpdateAddons(ctx context.Context) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	var errs []error
	for _, id := range m.cfg.Addons {
		disabled, err := m.state.IsDisabled(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if disabled {
			if a, ok := m.GetAudioDSPAddon(id); ok {
				a.Destroy()
			}
			continue
		}
		if err := m.ensureCreated(ctx, id); err != nil {
			m.logger.ErrorContext(ctx, "failed to start addon", slog.String("addonID", id), slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	m.publish(ctx, Event{Type: EventAddonsUpdated})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to update addons: %w", err)
	}
	return nil
}

func (m *Manager) ensureCreated(ctx context.Context, id string) error {
	a, ok := m.GetAudioDSPAddon(id)
	if ok && a.ReadyToUse() {
		return nil
	}

	clientID, err := m.clients.ClientID(ctx, id)
	if err != nil {
		return err
	}

	if !ok {
		a = adsp.NewAddon(m.addonInfo(id), m.loader,
			adsp.WithLogger(m.logger.With("subsystem", "ActiveAE DSP")),
			adsp.WithModeStore(m.modes),
			adsp.WithAddonManager(m),
			adsp.WithNotifier(m.notifier),
			adsp.WithCollaboratorTimeout(m.cfg.CollaboratorTimeout),
		)
		m.mu.Lock()
		m.addons[id] = a
		m.mu.Unlock()
	}

	status, err := a.Create(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to create addon %s (status %s): %w", id, status, err)
	}
	m.logger.InfoContext(ctx, "addon ready",
		slog.String("addonID", id),
		slog.Int("clientID", clientID),
		slog.String("name", a.GetFriendlyName()),
		slog.String("version", a.GetAudioDSPVersion()),
	)
	return nil
}

func (m *Manager) addonInfo(id string) adsp.AddonInfo {
	return adsp.AddonInfo{
		ID:      id,
		Name:    id,
		Path:    filepath.Join(m.cfg.AddonDir, id),
		Profile: filepath.Join(m.cfg.ProfileDir, id),
	}
}

// DisableAddon marks the addon disabled and tears it down if it is running.
func (m *Manager) DisableAddon(ctx context.Context, addonID string) error {
	if err := m.state.SetDisabled(ctx, addonID, true); err != nil {
		return err
	}
	if a, ok := m.GetAudioDSPAddon(addonID); ok {
		a.Destroy()
	}
	m.logger.WarnContext(ctx, "addon disabled", slog.String("addonID", addonID))
	m.publish(ctx, Event{Type: EventAddonDisabled, AddonID: addonID})
	return nil
}

// EnableAddon clears the disabled mark and starts the addon again.
func (m *Manager) EnableAddon(ctx context.Context, addonID string) error {
	if err := m.state.SetDisabled(ctx, addonID, false); err != nil {
		return err
	}
	m.publish(ctx, Event{Type: EventAddonEnabled, AddonID: addonID})
	if a, ok := m.GetAudioDSPAddon(addonID); ok {
		return a.OnEnabled(ctx)
	}
	return m.UpdateAddons(ctx)
}

func (m *Manager) GetAudioDSPAddon(addonID string) (*adsp.Addon, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addons[addonID]
	return a, ok
}

// Addons returns the ready addons ordered by client id.
func (m *Manager) Addons() []*adsp.Addon {
	m.mu.RLock()
	out := make([]*adsp.Addon, 0, len(m.addons))
	for _, a := range m.addons {
		if a.ReadyToUse() {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].GetID() < out[j].GetID()
	})
	return out
}

func (m *Manager) publish(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := m.events.Publish(ctx, e); err != nil {
		m.logger.WarnContext(ctx, "failed to publish addon event",
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
	}
}
