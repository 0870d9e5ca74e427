package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/quickflux/internal/dispatcher"
)

// CollectorConfig configures the Prometheus collector.
type CollectorConfig struct {
	// Namespace is the metrics namespace (default: "quickflux").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: a new private registry.
	Registry *prometheus.Registry
}

// CollectorOption configures the collector.
type CollectorOption func(*CollectorConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) CollectorOption {
	return func(c *CollectorConfig) {
		if namespace != "" {
			c.Namespace = namespace
		}
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) CollectorOption {
	return func(c *CollectorConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) CollectorOption {
	return func(c *CollectorConfig) {
		c.Registry = registry
	}
}

func defaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Namespace: "quickflux",
	}
}

// Collector exports dispatcher metrics to Prometheus. Dispatcher counters
// are read from a dispatcher.Metrics snapshot on every scrape; script
// counters are updated directly by the host process.
type Collector struct {
	metrics  *dispatcher.Metrics
	registry *prometheus.Registry

	cycles         *prometheus.Desc
	queued         *prometheus.Desc
	listenerCalls  *prometheus.Desc
	listenerErrors *prometheus.Desc
	listenerPanics *prometheus.Desc
	cycleWarnings  *prometheus.Desc
	maxQueueDepth  *prometheus.Desc
	actionCycles   *prometheus.Desc
	actionErrors   *prometheus.Desc
	actionDuration *prometheus.Desc

	scriptsLoaded prometheus.Gauge
	reloads       *prometheus.CounterVec
}

// NewCollector creates a collector for m and registers it.
func NewCollector(m *dispatcher.Metrics, opts ...CollectorOption) *Collector {
	config := defaultCollectorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(config.Namespace, "", name), help, labels, config.ConstLabels)
	}

	c := &Collector{
		metrics:  m,
		registry: config.Registry,

		cycles:         desc("cycles_total", "Total number of completed dispatch cycles"),
		queued:         desc("queued_total", "Total number of re-entrant dispatches queued"),
		listenerCalls:  desc("listener_calls_total", "Total number of listener invocations"),
		listenerErrors: desc("listener_errors_total", "Total number of failed listener invocations"),
		listenerPanics: desc("listener_panics_total", "Total number of listener panics"),
		cycleWarnings:  desc("cycle_warnings_total", "Total number of cyclic dependency warnings"),
		maxQueueDepth:  desc("max_queue_depth", "Deepest dispatch queue observed"),
		actionCycles:   desc("action_cycles_total", "Completed dispatch cycles by action type", "type"),
		actionErrors:   desc("action_errors_total", "Failed listener invocations by action type", "type"),
		actionDuration: desc("action_duration_seconds_total", "Total cycle time by action type", "type"),
	}

	config.Registry.MustRegister(c)

	factory := promauto.With(config.Registry)
	c.scriptsLoaded = factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Name:        "scripts_loaded",
		Help:        "Number of Lua scripts currently loaded",
		ConstLabels: config.ConstLabels,
	})
	c.reloads = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "script_reloads_total",
		Help:        "Total number of script reloads by result",
		ConstLabels: config.ConstLabels,
	}, []string{"result"})

	return c
}

// Registry returns the registry the collector is registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// SetScriptsLoaded records how many scripts are loaded.
func (c *Collector) SetScriptsLoaded(n int) {
	c.scriptsLoaded.Set(float64(n))
}

// RecordReload counts one script reload.
func (c *Collector) RecordReload(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.reloads.WithLabelValues(result).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cycles
	ch <- c.queued
	ch <- c.listenerCalls
	ch <- c.listenerErrors
	ch <- c.listenerPanics
	ch <- c.cycleWarnings
	ch <- c.maxQueueDepth
	ch <- c.actionCycles
	ch <- c.actionErrors
	ch <- c.actionDuration
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.metrics == nil {
		return
	}

	s := c.metrics.Snapshot()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.cycles, s.TotalCycles)
	counter(c.queued, s.TotalQueued)
	counter(c.listenerCalls, s.TotalListenerCalls)
	counter(c.listenerErrors, s.TotalErrors)
	counter(c.listenerPanics, s.TotalPanics)
	counter(c.cycleWarnings, s.TotalCycleWarnings)
	ch <- prometheus.MustNewConstMetric(c.maxQueueDepth, prometheus.GaugeValue, float64(s.MaxQueueDepth))

	for _, am := range c.metrics.Actions() {
		ch <- prometheus.MustNewConstMetric(c.actionCycles, prometheus.CounterValue, float64(am.CycleCount), am.Type)
		ch <- prometheus.MustNewConstMetric(c.actionErrors, prometheus.CounterValue, float64(am.ErrorCount), am.Type)
		ch <- prometheus.MustNewConstMetric(c.actionDuration, prometheus.CounterValue, am.TotalDuration.Seconds(), am.Type)
	}
}
