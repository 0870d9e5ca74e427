package cli

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/match"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/quickflux/internal/dispatcher"
)

// Trace event names.
const (
	traceDispatched    = "dispatched"
	traceListenerError = "listener_error"
	traceCycleWarning  = "cycle_warning"
)

// tracer writes one JSON object per dispatcher notification.
type tracer struct {
	w       io.Writer
	filter  string
	pretty  bool
	runID   string
	seq     int
	now     func() time.Time
	convert func(any) any
}

func newTracer(w io.Writer, filter string, prettyOutput bool) *tracer {
	if filter == "" {
		filter = "*"
	}
	return &tracer{
		w:       w,
		filter:  filter,
		pretty:  prettyOutput,
		runID:   uuid.NewString(),
		now:     time.Now,
		convert: func(v any) any { return v },
	}
}

// attach registers the tracer on d and returns the observer id.
func (t *tracer) attach(d *dispatcher.Dispatcher) dispatcher.ObserverID {
	return d.OnDispatched(t.dispatched)
}

func (t *tracer) dispatched(actionType string, payload any) {
	if !t.matches(actionType) {
		return
	}
	line := t.base(traceDispatched, actionType)
	if payload != nil {
		var err error
		if line, err = sjson.Set(line, "payload", t.convert(payload)); err != nil {
			line, _ = sjson.Set(line, "payloadError", err.Error())
		}
	}
	t.write(line)
}

func (t *tracer) listenerError(lerr *dispatcher.ListenerError) {
	if !t.matches(lerr.ActionType) {
		return
	}
	line := t.base(traceListenerError, lerr.ActionType)
	line, _ = sjson.Set(line, "listener", int(lerr.ID))
	line, _ = sjson.Set(line, "error", lerr.Err.Error())
	if lerr.Panicked {
		line, _ = sjson.Set(line, "panicked", true)
	}
	t.write(line)
}

func (t *tracer) cycleWarning(w dispatcher.CycleWarning) {
	if !t.matches(w.ActionType) {
		return
	}
	line := t.base(traceCycleWarning, w.ActionType)
	line, _ = sjson.Set(line, "listener", int(w.Listener))
	line, _ = sjson.Set(line, "waitingOn", w.WaitingOn)
	line, _ = sjson.Set(line, "waiting", w.Waiting)
	t.write(line)
}

func (t *tracer) matches(actionType string) bool {
	return match.Match(actionType, t.filter)
}

// base starts a trace line with the fields every event carries.
func (t *tracer) base(event, actionType string) string {
	t.seq++
	line, _ := sjson.Set("", "run", t.runID)
	line, _ = sjson.Set(line, "seq", t.seq)
	line, _ = sjson.Set(line, "time", t.now().UTC().Format(time.RFC3339Nano))
	line, _ = sjson.Set(line, "event", event)
	line, _ = sjson.Set(line, "type", actionType)
	return line
}

func (t *tracer) write(line string) {
	if t.pretty {
		_, _ = t.w.Write(pretty.Pretty([]byte(line)))
		return
	}
	_, _ = io.WriteString(t.w, line+"\n")
}
