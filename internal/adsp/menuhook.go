package adsp

import "sync"

// MenuHookCategory scopes where a menu hook is offered.
type MenuHookCategory int

const (
	MenuHookUnknown MenuHookCategory = iota - 1
	// MenuHookAll matches every requested category.
	MenuHookAll
	MenuHookPreProcess
	MenuHookMasterProcess
	MenuHookPostProcess
	MenuHookResampleProcess
	MenuHookMiscellaneous
	MenuHookInfo
	MenuHookSettings
)

// MenuHook is a UI action contributed by a plugin.
type MenuHook struct {
	HookID         int
	LocalizedLabel int
	Category       MenuHookCategory
	RelevantModeID uint
	NeedsPlayback  bool
}

// MenuHookData is passed to the plugin when a hook is activated.
type MenuHookData struct {
	Category MenuHookCategory
	StreamID int
}

// MenuHooks is the registry of hooks one instance has published. Plugin
// callbacks mutate it while the UI reads it, so every access goes through mu.
type MenuHooks struct {
	mu    sync.Mutex
	hooks []MenuHook
}

// Add appends a copy of hook. Duplicate hook ids are kept.
func (m *MenuHooks) Add(hook MenuHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Remove drops the first hook with the given id, if any.
func (m *MenuHooks) Remove(hookID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.hooks {
		if h.HookID == hookID {
			m.hooks = append(m.hooks[:i:i], m.hooks[i+1:]...)
			return true
		}
	}
	return false
}

// Matches reports whether any hook has the category or the wildcard category.
func (m *MenuHooks) Matches(cat MenuHookCategory) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.hooks {
		if h.Category == cat || h.Category == MenuHookAll {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the registered hooks in registration order.
func (m *MenuHooks) Snapshot() []MenuHook {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MenuHook, len(m.hooks))
	copy(out, m.hooks)
	return out
}

func (m *MenuHooks) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hooks)
}

func (m *MenuHooks) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = nil
}

// HaveMenuHooks reports whether the addon is ready and has a hook for cat.
func (a *Addon) HaveMenuHooks(cat MenuHookCategory) bool {
	if !a.ReadyToUse() {
		return false
	}
	return a.hooks.Matches(cat)
}

// GetMenuHooks returns a copy of the registered hooks.
func (a *Addon) GetMenuHooks() []MenuHook {
	return a.hooks.Snapshot()
}

// CallMenuHook forwards a user activation to the plugin. Faults are logged
// and never disable the addon.
func (a *Addon) CallMenuHook(hook MenuHook, data MenuHookData) {
	if data.Category == MenuHookUnknown {
		return
	}
	inst, ok := a.instance()
	if !ok {
		return
	}
	code, ok := guard(a, "MenuHook", ErrorUnknown, func() ErrorCode {
		return inst.MenuHook(hook, data)
	})
	if ok {
		a.logError(code, "MenuHook")
	}
}
