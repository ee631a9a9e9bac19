package adsp

// Capabilities is the one-time capability report of a plugin instance.
// The host takes it verbatim; no consistency checks are made against the
// modes the plugin registers.
type Capabilities struct {
	SupportsInputProcess   bool
	SupportsInputResample  bool
	SupportsPreProcess     bool
	SupportsMasterProcess  bool
	SupportsPostProcess    bool
	SupportsOutputResample bool
}

// GetCapabilities returns a copy of the capability report. It is the zero
// value when the addon is not ready.
func (a *Addon) GetCapabilities() Capabilities {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.caps
}

func (a *Addon) SupportsInputInfoProcess() bool {
	return a.GetCapabilities().SupportsInputProcess
}

func (a *Addon) SupportsInputResample() bool {
	return a.GetCapabilities().SupportsInputResample
}

func (a *Addon) SupportsPreProcess() bool {
	return a.GetCapabilities().SupportsPreProcess
}

func (a *Addon) SupportsMasterProcess() bool {
	return a.GetCapabilities().SupportsMasterProcess
}

func (a *Addon) SupportsPostProcess() bool {
	return a.GetCapabilities().SupportsPostProcess
}

func (a *Addon) SupportsOutputResample() bool {
	return a.GetCapabilities().SupportsOutputResample
}
