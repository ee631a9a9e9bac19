package adsp

import "log/slog"

// callbacks is the host table handed to the plugin in NewInstance.
type callbacks struct {
	addon *Addon
}

var _ Callbacks = (*callbacks)(nil)

// invalid reports data the plugin handed back that the host cannot use.
func (c *callbacks) invalid(msg, op string) {
	if c == nil || c.addon == nil {
		slog.Error(msg, slog.String("op", op))
		return
	}
	c.addon.logger.Error(msg, slog.String("op", op), slog.String("addon", c.addon.displayName()))
}

func (c *callbacks) AddMenuHook(hook *MenuHook) {
	if c == nil || c.addon == nil || hook == nil {
		c.invalid("invalid menu hook data", "AddMenuHook")
		return
	}
	c.addon.hooks.Add(*hook)
}

func (c *callbacks) RemoveMenuHook(hook *MenuHook) {
	if c == nil || c.addon == nil || hook == nil {
		c.invalid("invalid menu hook data", "RemoveMenuHook")
		return
	}
	c.addon.hooks.Remove(hook.HookID)
}

// RegisterMode persists mode and writes the host id back into
// mode.UniqueDBModeID. A nil mode is rejected untouched.
func (c *callbacks) RegisterMode(mode *Mode) {
	if c == nil || c.addon == nil || mode == nil {
		c.invalid("invalid mode data", "RegisterMode")
		return
	}
	a := c.addon

	a.mu.RLock()
	clientID := a.clientID
	a.mu.RUnlock()

	transfer := *mode
	transfer.AddonID = clientID

	id := InvalidModeID
	var err error
	if a.store == nil {
		err = errNoModeStore
	} else {
		ctx, cancel := a.collaboratorContext()
		defer cancel()
		if f := a.cross("RegisterMode", func() { id, err = a.store.AddUpdate(ctx, transfer) }); f != nil {
			a.escalate(f)
			return
		}
	}
	if err != nil {
		id = InvalidModeID
	}
	mode.UniqueDBModeID = id

	if id <= InvalidModeID {
		a.logger.Error("failed to register mode",
			slog.String("mode", mode.Name),
			slog.String("addon", a.info.Name),
			slog.Any("error", err),
		)
		return
	}

	a.mu.Lock()
	if a.modes != nil {
		a.modes[modeKey{t: mode.Type, number: mode.Number}] = id
	}
	a.mu.Unlock()
	a.logger.Debug("registered mode",
		slog.String("mode", mode.Name),
		slog.String("addon", a.info.Name),
		slog.Int("dbModeID", id),
	)
}

// UnregisterMode removes a mode from the store and from this instance.
func (c *callbacks) UnregisterMode(mode *Mode) {
	if c == nil || c.addon == nil || mode == nil {
		c.invalid("invalid mode data", "UnregisterMode")
		return
	}
	a := c.addon

	a.mu.Lock()
	transfer := *mode
	transfer.AddonID = a.clientID
	delete(a.modes, modeKey{t: mode.Type, number: mode.Number})
	a.mu.Unlock()

	if a.store == nil {
		return
	}
	ctx, cancel := a.collaboratorContext()
	defer cancel()
	var err error
	if f := a.cross("UnregisterMode", func() { err = a.store.Delete(ctx, transfer) }); f != nil {
		a.escalate(f)
		return
	}
	if err != nil {
		a.logger.Error("failed to unregister mode",
			slog.String("mode", mode.Name),
			slog.String("addon", a.info.Name),
			slog.Any("error", err),
		)
	}
}

// ModeID returns the host id of a mode this instance registered.
func (a *Addon) ModeID(t ModeType, number uint) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.modes[modeKey{t: t, number: number}]
	return id, ok
}
