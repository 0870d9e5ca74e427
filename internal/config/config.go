package config

import (
	"fmt"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/dshills/quickflux/internal/config/loader"
	"github.com/dshills/quickflux/internal/dispatcher"
	"github.com/dshills/quickflux/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUICKFLUX_"

// Config is the complete quickflux configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" toml:"dispatcher"`
	Script     ScriptConfig     `yaml:"script" toml:"script"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch"`
	Tracing    TracingConfig    `yaml:"tracing" toml:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Prefix string `yaml:"prefix" toml:"prefix"`
}

// DispatcherConfig mirrors dispatcher.Config.
type DispatcherConfig struct {
	RecoverFromPanic bool `yaml:"recoverFromPanic" toml:"recoverFromPanic"`
	EnableMetrics    bool `yaml:"enableMetrics" toml:"enableMetrics"`
	TraceListeners   bool `yaml:"traceListeners" toml:"traceListeners"`
	LogDispatches    bool `yaml:"logDispatches" toml:"logDispatches"`
}

// ScriptConfig configures the Lua host.
type ScriptConfig struct {
	// Paths are scripts loaded at startup, in order.
	Paths []string `yaml:"paths" toml:"paths"`

	// Timeout bounds one top-level script execution. Zero disables it.
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// CallStackSize is the Lua call stack size. Zero keeps the runtime default.
	CallStackSize int `yaml:"callStackSize" toml:"callStackSize"`

	// Unsafe opens the full Lua standard library.
	Unsafe bool `yaml:"unsafe" toml:"unsafe"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the server.
	Addr      string `yaml:"addr" toml:"addr"`
	Namespace string `yaml:"namespace" toml:"namespace"`

	// Labels are constant labels added to every exported metric.
	Labels map[string]string `yaml:"labels" toml:"labels"`
}

// WatchConfig configures script reloading.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Output is the file spans are written to. Empty or "-" is stderr.
	Output string `yaml:"output" toml:"output"`

	// ServiceName is the service.name resource attribute.
	ServiceName string `yaml:"serviceName" toml:"serviceName"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Prefix: "quickflux",
		},
		Dispatcher: DispatcherConfig{
			RecoverFromPanic: true,
		},
		Script: ScriptConfig{
			Timeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Namespace: "quickflux",
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
		Tracing: TracingConfig{
			ServiceName: "quickflux",
		},
	}
}

// Load reads the configuration from path and QUICKFLUX_ environment
// variables on top of the defaults. An empty or missing path leaves the
// defaults in place.
func Load(path string) (*Config, error) {
	return LoadWith(loader.DefaultFS(), loader.NewEnvLoader(EnvPrefix), path)
}

// LoadWith is Load with an explicit file system and environment source.
// env may be nil.
func LoadWith(fsys loader.FileSystem, env loader.Loader, path string) (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	if path != "" {
		fl, err := loader.ForPath(fsys, path)
		if err != nil {
			return nil, err
		}
		fileValues, err := fl.Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, fileValues)
	}

	if env != nil {
		envValues, err := env.Load()
		if err != nil {
			return nil, fmt.Errorf("reading environment: %w", err)
		}
		merged = loader.DeepMerge(merged, envValues)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		source := path
		if source == "" {
			source = "environment"
		}
		return nil, &loader.ParseError{Path: source, Message: err.Error(), Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toMap converts cfg to the nested map form the loaders produce.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	return m, nil
}

// fromMap decodes a merged map into a Config. Durations are written as
// strings such as "250ms".
func fromMap(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, ok := logging.LookupLevel(c.Logging.Level); !ok {
		return &ValidationError{Path: "logging.level", Message: "unknown log level", Value: c.Logging.Level}
	}
	if c.Script.Timeout < 0 {
		return &ValidationError{Path: "script.timeout", Message: "must not be negative", Value: c.Script.Timeout}
	}
	if c.Script.CallStackSize < 0 {
		return &ValidationError{Path: "script.callStackSize", Message: "must not be negative", Value: c.Script.CallStackSize}
	}
	if c.Watch.Debounce < 0 {
		return &ValidationError{Path: "watch.debounce", Message: "must not be negative", Value: c.Watch.Debounce}
	}
	for name := range c.Metrics.Labels {
		if !model.LabelName(name).IsValid() {
			return &ValidationError{Path: "metrics.labels", Message: "invalid label name", Value: name}
		}
	}
	if c.Tracing.Enabled && c.Tracing.ServiceName == "" {
		return &ValidationError{Path: "tracing.serviceName", Message: "required when tracing is enabled", Value: c.Tracing.ServiceName}
	}
	if c.Metrics.Addr != "" && c.Metrics.Namespace == "" {
		return &ValidationError{Path: "metrics.namespace", Message: "required when metrics.addr is set", Value: c.Metrics.Namespace}
	}
	return nil
}

// DispatcherConfig converts the dispatcher section.
func (c *Config) DispatcherConfig() dispatcher.Config {
	return dispatcher.Config{
		RecoverFromPanic: c.Dispatcher.RecoverFromPanic,
		EnableMetrics:    c.Dispatcher.EnableMetrics,
		TraceListeners:   c.Dispatcher.TraceListeners,
		LogDispatches:    c.Dispatcher.LogDispatches,
	}
}

// LoggingConfig converts the logging section. The level must have passed
// Validate.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.LookupLevel(c.Logging.Level)
	cfg.Prefix = c.Logging.Prefix
	return cfg
}
