package dispatcher

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/quickflux/internal/logging"
)

// Action is a typed message travelling through the dispatcher.
type Action struct {
	Type    string
	Payload any
}

// Dispatcher broadcasts actions to registered listeners.
// See the package documentation for the ordering guarantees.
type Dispatcher struct {
	config Config
	exec   executor
	logger *logging.Logger
	tracer trace.Tracer

	metrics *Metrics
	onError ErrorHandler
	onCycle CycleHandler

	registry  *registry
	observers *observerList

	// Cycle state. Nested invocation loops started by WaitFor read and
	// mutate these fields in place.
	dispatching bool
	queue       []Action
	pending     pendingSet
	waiting     []ListenerID
	current     Action
	invoking    ListenerID
	hasInvoking bool
	cycleID     string
	cycleCtx    context.Context
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for failure and cycle diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracer sets the OpenTelemetry tracer. Defaults to the tracer of the
// global provider.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithErrorHandler sets a handler called for every failed listener call.
func WithErrorHandler(h ErrorHandler) Option {
	return func(d *Dispatcher) {
		d.onError = h
	}
}

// WithCycleHandler sets a handler called for every cyclic dependency warning.
func WithCycleHandler(h CycleHandler) Option {
	return func(d *Dispatcher) {
		d.onCycle = h
	}
}

// WithMetrics sets the metrics collector, enabling metrics regardless of
// Config.EnableMetrics. Sharing one collector between dispatchers is allowed.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a new dispatcher with the given configuration.
func New(config Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		config:    config,
		exec:      executor{recover: config.RecoverFromPanic},
		logger:    logging.Default(),
		tracer:    defaultTracer(),
		registry:  newRegistry(),
		observers: newObserverList(),
		cycleCtx:  context.Background(),
	}

	if config.EnableMetrics {
		d.metrics = NewMetrics()
	}

	for _, opt := range opts {
		opt(d)
	}

	d.logger = d.logger.WithComponent("dispatcher")
	return d
}

// NewWithDefaults creates a new dispatcher with default configuration.
func NewWithDefaults() *Dispatcher {
	return New(DefaultConfig())
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}

// Metrics returns the metrics collector, or nil if metrics are disabled.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// AddListener registers a listener and returns its id.
// It may be called at any time, including from inside a listener; a
// listener added during a cycle first runs in the next cycle.
func (d *Dispatcher) AddListener(l Listener) ListenerID {
	return d.registry.add(l)
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
// A listener removed during a cycle is not invoked for the rest of it.
func (d *Dispatcher) RemoveListener(id ListenerID) {
	d.registry.remove(id)
}

// HasListener reports whether id is registered.
func (d *Dispatcher) HasListener(id ListenerID) bool {
	return d.registry.has(id)
}

// ListenerCount returns the number of registered listeners.
func (d *Dispatcher) ListenerCount() int {
	return d.registry.len()
}

// OnDispatched registers an observer notified after every completed cycle.
func (d *Dispatcher) OnDispatched(fn DispatchedFunc) ObserverID {
	return d.observers.add(fn)
}

// RemoveObserver unregisters an observer. Unknown ids are ignored.
func (d *Dispatcher) RemoveObserver(id ObserverID) {
	d.observers.remove(id)
}

// IsDispatching reports whether a cycle is running.
func (d *Dispatcher) IsDispatching() bool {
	return d.dispatching
}

// CurrentListener returns the listener being invoked, if any.
func (d *Dispatcher) CurrentListener() (ListenerID, bool) {
	if !d.dispatching || !d.hasInvoking {
		return 0, false
	}
	return d.invoking, true
}

// QueueLen returns the number of actions waiting for their cycle.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

// Dispatch delivers an action to every registered listener.
//
// Called while a cycle is running, Dispatch only queues the action and
// returns; queued actions run after the current cycle in FIFO order.
// Otherwise it runs the cycle and then drains the queue before returning.
func (d *Dispatcher) Dispatch(actionType string, payload any) {
	action := Action{Type: actionType, Payload: payload}

	if d.dispatching {
		d.queue = append(d.queue, action)
		if d.metrics != nil {
			d.metrics.RecordQueued(len(d.queue))
		}
		return
	}

	d.dispatching = true
	defer d.endDispatch()

	d.runCycle(action)
	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue[0] = Action{}
		d.queue = d.queue[1:]
		d.runCycle(next)
	}
}

// endDispatch clears all cycle state. It also runs when a listener panic
// escapes with recovery disabled, leaving the dispatcher usable.
func (d *Dispatcher) endDispatch() {
	d.dispatching = false
	d.queue = nil
	d.pending.clear()
	d.waiting = nil
	d.current = Action{}
	d.invoking = 0
	d.hasInvoking = false
	d.cycleID = ""
	d.cycleCtx = context.Background()
}

// runCycle delivers one action to the listeners registered at its start.
func (d *Dispatcher) runCycle(a Action) {
	start := time.Now()

	d.current = a
	d.pending.reset(d.registry.ids())
	d.waiting = d.waiting[:0]
	d.hasInvoking = false
	d.cycleID = uuid.NewString()

	ctx, span := d.tracer.Start(context.Background(), spanDispatch, trace.WithAttributes(
		attrActionType.String(a.Type),
		attrCycleID.String(d.cycleID),
		attrListeners.Int(d.pending.len()),
	))
	defer span.End()
	d.cycleCtx = ctx

	if d.config.LogDispatches {
		d.logger.WithField("cycle", d.cycleID).Debug("dispatching %q to %d listeners", a.Type, d.pending.len())
	}

	d.invokeListeners()
	d.hasInvoking = false

	d.notify(a)

	duration := time.Since(start)
	if d.metrics != nil {
		d.metrics.RecordCycle(a.Type, duration)
	}
	if d.config.LogDispatches {
		d.logger.WithField("cycle", d.cycleID).Debug("dispatched %q in %s", a.Type, duration)
	}
}

// invokeListeners drains the pending set in ascending id order. WaitFor
// calls it recursively; the nested loop empties the shared set, so the
// outer loop terminates right after the waiting listener returns.
func (d *Dispatcher) invokeListeners() {
	for !d.pending.empty() {
		id := d.pending.popMin()
		d.invoking = id
		d.hasInvoking = true

		listener, ok := d.registry.get(id)
		if !ok || listener == nil {
			continue
		}
		d.invoke(id, listener)
	}
}

// invoke runs a single listener for the current action.
func (d *Dispatcher) invoke(id ListenerID, listener Listener) {
	a := d.current

	var span trace.Span
	if d.config.TraceListeners {
		_, span = d.tracer.Start(d.cycleCtx, spanListener, trace.WithAttributes(
			attrActionType.String(a.Type),
			attrListenerID.Int(int(id)),
		))
	}

	out := d.exec.run(listener, a)

	if d.metrics != nil {
		d.metrics.RecordListenerCall(a.Type, out.failed(), out.panicked)
	}

	if out.failed() {
		lerr := &ListenerError{
			ID:         id,
			ActionType: a.Type,
			Err:        out.err,
			Panicked:   out.panicked,
			Stack:      out.stack,
		}
		if span != nil {
			recordFailure(span, lerr)
		}
		recordFailure(trace.SpanFromContext(d.cycleCtx), lerr)
		d.reportListenerError(lerr)
	}

	if span != nil {
		span.End()
	}
}

// WaitFor runs the listeners named by ids before the caller continues.
//
// It is meant to be called from inside a listener. If none of ids is still
// pending in the running cycle (or no cycle runs) it returns immediately.
// Otherwise every pending listener runs, lowest id first, not only those in
// ids. Unknown ids are ignored.
func (d *Dispatcher) WaitFor(ids ...ListenerID) {
	if !d.dispatching {
		return
	}

	shouldWait := false
	for _, id := range ids {
		if d.pending.contains(id) {
			shouldWait = true
			break
		}
	}
	if !shouldWait {
		return
	}

	waiter, hadWaiter := d.invoking, d.hasInvoking
	d.waiting = append(d.waiting, waiter)
	d.invokeListeners()
	d.waiting = d.waiting[:len(d.waiting)-1]
	d.invoking, d.hasInvoking = waiter, hadWaiter

	for _, id := range ids {
		if slices.Contains(d.waiting, id) {
			d.reportCycle(CycleWarning{
				ActionType: d.current.Type,
				Listener:   waiter,
				WaitingOn:  slices.Clone(ids),
				Waiting:    slices.Clone(d.waiting),
			})
			break
		}
	}
}

// notify tells every observer that a cycle completed.
func (d *Dispatcher) notify(a Action) {
	for _, o := range d.observers.snapshot() {
		if r := d.exec.notify(o.fn, a); r != nil {
			d.logger.WithFields(map[string]any{
				"observer": o.id,
				"action":   a.Type,
			}).Error("observer panic: %v", r)
		}
	}
}

func (d *Dispatcher) reportListenerError(err *ListenerError) {
	d.logger.WithFields(map[string]any{
		"listener": err.ID,
		"action":   err.ActionType,
		"cycle":    d.cycleID,
	}).Error("listener failed: %v", err.Err)

	if d.onError != nil {
		d.onError(err)
	}
}

func (d *Dispatcher) reportCycle(w CycleWarning) {
	d.logger.WithFields(map[string]any{
		"listener": w.Listener,
		"action":   w.ActionType,
		"cycle":    d.cycleID,
	}).Warn("cyclic dependency detected: waiting on %v, waiting stack %v", w.WaitingOn, w.Waiting)

	if d.metrics != nil {
		d.metrics.RecordCycleWarning()
	}
	if d.onCycle != nil {
		d.onCycle(w)
	}
}
