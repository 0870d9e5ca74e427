package dispatcher

// Config holds dispatcher configuration options.
type Config struct {
	// RecoverFromPanic converts listener and observer panics into reported
	// failures. When false, a panic propagates out of the outermost Dispatch.
	RecoverFromPanic bool

	// EnableMetrics enables cycle timing and statistics collection.
	EnableMetrics bool

	// TraceListeners starts a span per listener call in addition to the
	// span per cycle.
	TraceListeners bool

	// LogDispatches logs every cycle start and end at debug level.
	LogDispatches bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecoverFromPanic: true,
		EnableMetrics:    false,
		TraceListeners:   false,
		LogDispatches:    false,
	}
}

// WithMetrics returns a copy of the config with metrics enabled.
func (c Config) WithMetrics() Config {
	c.EnableMetrics = true
	return c
}

// WithPanicRecovery returns a copy of the config with panic recovery set.
func (c Config) WithPanicRecovery(recover bool) Config {
	c.RecoverFromPanic = recover
	return c
}

// WithListenerTracing returns a copy of the config with per-listener spans set.
func (c Config) WithListenerTracing(enabled bool) Config {
	c.TraceListeners = enabled
	return c
}

// WithDispatchLogging returns a copy of the config with cycle logging set.
func (c Config) WithDispatchLogging(enabled bool) Config {
	c.LogDispatches = enabled
	return c
}
