// Package loader resolves addon binaries for the host.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/util"
)

// ErrUnknownAddon is returned when a loader has nothing for the addon id.
var ErrUnknownAddon = errors.New("unknown addon")

// Factory builds a fresh library for an in-process addon.
type Factory func() adsp.Library

// Registry loads addons compiled into the host binary.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

var _ adsp.Loader = (*Registry)(nil)

// Register adds an addon. Registering an id twice replaces the factory.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return util.SortedKeys(r.factories)
}

func (r *Registry) Load(_ context.Context, info adsp.AddonInfo) (adsp.Library, error) {
	r.mu.RLock()
	f, ok := r.factories[info.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", info.ID, ErrUnknownAddon)
	}
	return f(), nil
}

// Chain tries each loader in order and moves on only when a loader reports
// ErrUnknownAddon.
type Chain []adsp.Loader

var _ adsp.Loader = (Chain)(nil)

func (c Chain) Load(ctx context.Context, info adsp.AddonInfo) (adsp.Library, error) {
	for _, l := range c {
		lib, err := l.Load(ctx, info)
		if err == nil {
			return lib, nil
		}
		if !errors.Is(err, ErrUnknownAddon) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", info.ID, ErrUnknownAddon)
}
