package telemetry

import (
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanWriterOption configures NewSpanWriter.
type SpanWriterOption func(*spanWriterConfig)

type spanWriterConfig struct {
	serviceName    string
	serviceVersion string
	pretty         bool
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) SpanWriterOption {
	return func(c *spanWriterConfig) {
		if name != "" {
			c.serviceName = name
		}
	}
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(version string) SpanWriterOption {
	return func(c *spanWriterConfig) {
		c.serviceVersion = version
	}
}

// WithPrettySpans indents the JSON written for each span.
func WithPrettySpans() SpanWriterOption {
	return func(c *spanWriterConfig) {
		c.pretty = true
	}
}

// NewSpanWriter returns a tracer provider that writes every finished span
// to w as JSON. Spans are exported synchronously when they end, so w sees
// a cycle's span before Dispatch returns. Callers must Shutdown the
// provider.
func NewSpanWriter(w io.Writer, opts ...SpanWriterOption) (*sdktrace.TracerProvider, error) {
	cfg := spanWriterConfig{serviceName: "quickflux"}
	for _, opt := range opts {
		opt(&cfg)
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.serviceName)}
	if cfg.serviceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.serviceVersion))
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	), nil
}
