package transitions

// Option customizes machine construction.
type Option func(*Machine)

// WithLogger sets the machine logger.
func WithLogger(logger Logger) Option {
	return func(m *Machine) {
		m.logger = normalizeLogger(logger)
	}
}

// WithMachineScopes registers scoped resources entered around every trigger
// invocation on any bound model, before the model's own scopes.
func WithMachineScopes(scopes ...Scope) Option {
	return func(m *Machine) {
		m.machineScopes = append(m.machineScopes, scopes...)
	}
}

// WithStrictTriggers makes a trigger with no candidate for the current state
// fail with ErrNoMatchingTransition instead of reporting a no-op.
func WithStrictTriggers(enable bool) Option {
	return func(m *Machine) {
		m.strict = enable
	}
}

// WithAutoTransitions controls generation of the to_<path> convenience
// triggers, one wildcard transition per state. Enabled by default.
func WithAutoTransitions(enable bool) Option {
	return func(m *Machine) {
		m.autoTransitions = enable
	}
}

// WithTransitionListeners registers dispatch phase observers.
func WithTransitionListeners(listeners ...TransitionListener) Option {
	return func(m *Machine) {
		m.listeners = append(m.listeners, listeners...)
	}
}

// WithListenerFailureMode configures transition-listener error behavior.
func WithListenerFailureMode(mode ListenerFailureMode) Option {
	return func(m *Machine) {
		m.listenerFailureMode = normalizeListenerFailureMode(mode)
	}
}

// WithMetrics sets the recorder fed at the end of each invocation.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(m *Machine) {
		m.metrics = recorder
	}
}

// WithPrepareEvent appends machine-level callbacks run on every invocation
// before candidate processing.
func WithPrepareEvent(cbs ...Callback) Option {
	return func(m *Machine) {
		m.prepareEvent = append(m.prepareEvent, cbs...)
	}
}

// WithBeforeStateChange appends machine-level callbacks run before any state
// commit.
func WithBeforeStateChange(cbs ...Callback) Option {
	return func(m *Machine) {
		m.beforeStateChange = append(m.beforeStateChange, cbs...)
	}
}

// WithAfterStateChange appends machine-level callbacks run after any state
// commit and its enter hooks.
func WithAfterStateChange(cbs ...Callback) Option {
	return func(m *Machine) {
		m.afterStateChange = append(m.afterStateChange, cbs...)
	}
}

// WithFinalizeEvent appends machine-level callbacks that always run as an
// invocation unwinds, success or not. EventData.Error carries the outcome.
func WithFinalizeEvent(cbs ...Callback) Option {
	return func(m *Machine) {
		m.finalizeEvent = append(m.finalizeEvent, cbs...)
	}
}

// BindOption customizes one model binding.
type BindOption func(*bindConfig)

type bindConfig struct {
	initial string
	scopes  []Scope
}

// WithInitialState places the model in the given state instead of the
// machine's initial state. A state restored by deserialization wins over the
// machine default but not over this option.
func WithInitialState(path string) BindOption {
	return func(c *bindConfig) {
		c.initial = path
	}
}

// WithModelScopes registers scoped resources entered for this model only,
// after the machine scopes.
func WithModelScopes(scopes ...Scope) BindOption {
	return func(c *bindConfig) {
		c.scopes = append(c.scopes, scopes...)
	}
}
