package dispatcher_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dshills/quickflux/internal/dispatcher"
	"github.com/dshills/quickflux/internal/logging"
)

// recordingTracer remembers span names and failures.
type recordingTracer struct {
	embedded.Tracer

	started []string
	ended   []string
	failed  []string
}

func (rt *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	rt.started = append(rt.started, name)
	span := &recordingSpan{tracer: rt, name: name}
	return trace.ContextWithSpan(ctx, span), span
}

type recordingSpan struct {
	noop.Span

	tracer *recordingTracer
	name   string
}

func (s *recordingSpan) End(...trace.SpanEndOption) {
	s.tracer.ended = append(s.tracer.ended, s.name)
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) {
	if code == codes.Error {
		s.tracer.failed = append(s.tracer.failed, s.name)
	}
}

// recordingProvider hands out one recordingTracer.
type recordingProvider struct {
	embedded.TracerProvider

	tracer *recordingTracer
	names  []string
}

func (p *recordingProvider) Tracer(name string, _ ...trace.TracerOption) trace.Tracer {
	p.names = append(p.names, name)
	return p.tracer
}

func TestTracing_DefaultsToGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp := &recordingProvider{tracer: &recordingTracer{}}
	otel.SetTracerProvider(tp)

	d := newQuiet()
	d.AddListener(func(string, any) error { return nil })
	d.Dispatch("x", nil)

	if len(tp.names) == 0 || tp.names[0] != dispatcher.TracerName {
		t.Errorf("tracer names = %v, want %s", tp.names, dispatcher.TracerName)
	}
	if len(tp.tracer.started) != 1 || tp.tracer.started[0] != "quickflux.dispatch" {
		t.Errorf("started = %v, want one quickflux.dispatch span", tp.tracer.started)
	}
}

func TestTracing_SpanPerCycle(t *testing.T) {
	rt := &recordingTracer{}
	d := newQuiet(dispatcher.WithTracer(rt))
	d.AddListener(func(actionType string, _ any) error {
		if actionType == "one" {
			d.Dispatch("two", nil)
		}
		return nil
	})

	d.Dispatch("one", nil)

	if len(rt.started) != 2 || rt.started[0] != "quickflux.dispatch" {
		t.Errorf("started = %v, want two quickflux.dispatch spans", rt.started)
	}
	if len(rt.ended) != 2 {
		t.Errorf("ended = %v, want 2 spans", rt.ended)
	}
}

func TestTracing_ListenerSpansAndFailures(t *testing.T) {
	rt := &recordingTracer{}
	d := dispatcher.New(
		dispatcher.DefaultConfig().WithListenerTracing(true),
		dispatcher.WithTracer(rt),
		dispatcher.WithLogger(logging.NullLogger),
	)
	d.AddListener(func(string, any) error { return nil })
	d.AddListener(func(string, any) error { return errors.New("bad") })

	d.Dispatch("x", nil)

	want := []string{"quickflux.dispatch", "quickflux.listener", "quickflux.listener"}
	if len(rt.started) != len(want) {
		t.Fatalf("started = %v, want %v", rt.started, want)
	}
	for i := range want {
		if rt.started[i] != want[i] {
			t.Errorf("started[%d] = %q, want %q", i, rt.started[i], want[i])
		}
	}
	if len(rt.failed) != 2 {
		t.Errorf("failed spans = %v, want listener and dispatch", rt.failed)
	}
}
