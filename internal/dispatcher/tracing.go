package dispatcher

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of dispatcher spans.
const TracerName = "github.com/dshills/quickflux/internal/dispatcher"

// Span names.
const (
	spanDispatch = "quickflux.dispatch"
	spanListener = "quickflux.listener"
)

// Span attribute keys.
const (
	attrActionType = attribute.Key("quickflux.action.type")
	attrCycleID    = attribute.Key("quickflux.cycle.id")
	attrListeners  = attribute.Key("quickflux.listeners")
	attrListenerID = attribute.Key("quickflux.listener.id")
	attrPanicked   = attribute.Key("quickflux.listener.panicked")
)

// defaultTracer resolves the tracer from the global provider, so a provider
// installed with otel.SetTracerProvider takes effect. Until one is
// installed it is a no-op.
func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// recordFailure marks span as failed by err.
func recordFailure(span trace.Span, err *ListenerError) {
	span.RecordError(err, trace.WithAttributes(
		attrListenerID.Int(int(err.ID)),
		attrPanicked.Bool(err.Panicked),
	))
	span.SetStatus(codes.Error, err.Error())
}
