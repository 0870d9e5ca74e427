package dispatcher

import (
	"sort"
	"sync"
	"time"
)

// Metrics collects dispatch statistics.
// It is safe to read from other goroutines while the dispatcher runs.
type Metrics struct {
	mu sync.RWMutex

	// Per-action metrics
	actionMetrics map[string]*ActionMetrics

	// Global counters
	totalCycles        uint64
	totalQueued        uint64
	totalListenerCalls uint64
	totalErrors        uint64
	totalPanics        uint64
	totalCycleWarnings uint64
	maxQueueDepth      int

	// Timing
	totalDuration time.Duration
}

// ActionMetrics holds metrics for a specific action type.
type ActionMetrics struct {
	Type          string
	CycleCount    uint64
	ErrorCount    uint64
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	LastDispatch  time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		actionMetrics: make(map[string]*ActionMetrics),
	}
}

// action returns the entry for actionType, creating it. Callers hold mu.
func (m *Metrics) action(actionType string) *ActionMetrics {
	am := m.actionMetrics[actionType]
	if am == nil {
		am = &ActionMetrics{Type: actionType}
		m.actionMetrics[actionType] = am
	}
	return am
}

// RecordCycle records a completed dispatch cycle.
func (m *Metrics) RecordCycle(actionType string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCycles++
	m.totalDuration += duration

	am := m.action(actionType)
	if am.CycleCount == 0 || duration < am.MinDuration {
		am.MinDuration = duration
	}
	if duration > am.MaxDuration {
		am.MaxDuration = duration
	}
	am.CycleCount++
	am.TotalDuration += duration
	am.LastDispatch = time.Now()
}

// RecordQueued records a re-entrant dispatch and the resulting queue depth.
func (m *Metrics) RecordQueued(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueued++
	if depth > m.maxQueueDepth {
		m.maxQueueDepth = depth
	}
}

// RecordListenerCall records one listener invocation.
func (m *Metrics) RecordListenerCall(actionType string, failed, panicked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalListenerCalls++
	if !failed {
		return
	}
	m.totalErrors++
	if panicked {
		m.totalPanics++
	}
	m.action(actionType).ErrorCount++
}

// RecordCycleWarning records a cyclic dependency diagnostic.
func (m *Metrics) RecordCycleWarning() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCycleWarnings++
}

// TotalCycles returns the number of completed cycles.
func (m *Metrics) TotalCycles() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalCycles
}

// TotalErrors returns the number of failed listener calls.
func (m *Metrics) TotalErrors() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalErrors
}

// AverageDuration returns the average cycle duration.
func (m *Metrics) AverageDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.totalCycles == 0 {
		return 0
	}
	return m.totalDuration / time.Duration(m.totalCycles)
}

// ActionStats returns a copy of the metrics for one action type, or nil.
func (m *Metrics) ActionStats(actionType string) *ActionMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	am := m.actionMetrics[actionType]
	if am == nil {
		return nil
	}
	c := *am
	return &c
}

// Actions returns copies of all per-action metrics sorted by type.
func (m *Metrics) Actions() []ActionMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actions := make([]ActionMetrics, 0, len(m.actionMetrics))
	for _, am := range m.actionMetrics {
		actions = append(actions, *am)
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Type < actions[j].Type
	})
	return actions
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.actionMetrics = make(map[string]*ActionMetrics)
	m.totalCycles = 0
	m.totalQueued = 0
	m.totalListenerCalls = 0
	m.totalErrors = 0
	m.totalPanics = 0
	m.totalCycleWarnings = 0
	m.maxQueueDepth = 0
	m.totalDuration = 0
}

// MetricsSnapshot is a point-in-time copy of the global counters.
type MetricsSnapshot struct {
	TotalCycles        uint64
	TotalQueued        uint64
	TotalListenerCalls uint64
	TotalErrors        uint64
	TotalPanics        uint64
	TotalCycleWarnings uint64
	MaxQueueDepth      int
	TotalDuration      time.Duration
	AverageDuration    time.Duration
	ActionCount        int
	Timestamp          time.Time
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		TotalCycles:        m.totalCycles,
		TotalQueued:        m.totalQueued,
		TotalListenerCalls: m.totalListenerCalls,
		TotalErrors:        m.totalErrors,
		TotalPanics:        m.totalPanics,
		TotalCycleWarnings: m.totalCycleWarnings,
		MaxQueueDepth:      m.maxQueueDepth,
		TotalDuration:      m.totalDuration,
		ActionCount:        len(m.actionMetrics),
		Timestamp:          time.Now(),
	}

	if m.totalCycles > 0 {
		snapshot.AverageDuration = m.totalDuration / time.Duration(m.totalCycles)
	}

	return snapshot
}

// AverageDuration returns the average cycle duration for the action type.
func (am *ActionMetrics) AverageDuration() time.Duration {
	if am.CycleCount == 0 {
		return 0
	}
	return am.TotalDuration / time.Duration(am.CycleCount)
}

// ErrorRate returns failed listener calls per cycle as a percentage.
func (am *ActionMetrics) ErrorRate() float64 {
	if am.CycleCount == 0 {
		return 0
	}
	return float64(am.ErrorCount) / float64(am.CycleCount) * 100
}
