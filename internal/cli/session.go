package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	lua "github.com/yuin/gopher-lua"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/quickflux/internal/config"
	"github.com/dshills/quickflux/internal/dispatcher"
	"github.com/dshills/quickflux/internal/logging"
	"github.com/dshills/quickflux/internal/script"
	"github.com/dshills/quickflux/internal/telemetry"
)

// session owns one dispatcher and the Lua host whose scripts listen on it.
// Reloading replaces the host and keeps the dispatcher.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	scripts []string

	dispatcher *dispatcher.Dispatcher
	host       *script.Host
	tracer     *tracer
	collector  *telemetry.Collector
	server     *telemetry.Server
	spans      *sdktrace.TracerProvider
	spanFile   *os.File
}

// sessionOptions are the run-time settings not held in config.
type sessionOptions struct {
	trace       io.Writer
	traceFilter string
	pretty      bool
	metricsAddr string

	// spans enables span export to this file, "-" meaning stderr.
	spans   string
	stderr  io.Writer
	version string
}

func newSession(cfg *config.Config, logger *logging.Logger, scripts []string, opts sessionOptions) (*session, error) {
	s := &session{
		cfg:     cfg,
		logger:  logger,
		scripts: scripts,
	}

	dopts := []dispatcher.Option{dispatcher.WithLogger(logger)}

	if opts.trace != nil {
		s.tracer = newTracer(opts.trace, opts.traceFilter, opts.pretty)
		s.tracer.convert = s.toGoValue
		dopts = append(dopts,
			dispatcher.WithErrorHandler(s.tracer.listenerError),
			dispatcher.WithCycleHandler(s.tracer.cycleWarning),
		)
	}

	if err := s.startSpans(opts); err != nil {
		return nil, err
	}
	if s.spans != nil {
		dopts = append(dopts, dispatcher.WithTracer(s.spans.Tracer(dispatcher.TracerName)))
	}

	metricsAddr := cfg.Metrics.Addr
	if opts.metricsAddr != "" {
		metricsAddr = opts.metricsAddr
	}
	if metricsAddr != "" {
		dopts = append(dopts, dispatcher.WithMetrics(dispatcher.NewMetrics()))
	}

	s.dispatcher = dispatcher.New(cfg.DispatcherConfig(), dopts...)
	if s.tracer != nil {
		s.tracer.attach(s.dispatcher)
	}

	if metricsAddr != "" {
		copts := []telemetry.CollectorOption{telemetry.WithNamespace(cfg.Metrics.Namespace)}
		if len(cfg.Metrics.Labels) > 0 {
			copts = append(copts, telemetry.WithConstLabels(prometheus.Labels(cfg.Metrics.Labels)))
		}
		s.collector = telemetry.NewCollector(s.dispatcher.Metrics(), copts...)
		s.server = telemetry.NewServer(metricsAddr, s.collector, logger)
		if err := s.server.Start(); err != nil {
			s.server = nil
			s.close()
			return nil, err
		}
	}

	if err := s.load(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// startSpans sets up span export when the config or --spans asks for it.
func (s *session) startSpans(opts sessionOptions) error {
	output, enabled := s.cfg.Tracing.Output, s.cfg.Tracing.Enabled
	if opts.spans != "" {
		output, enabled = opts.spans, true
	}
	if !enabled {
		return nil
	}

	w := opts.stderr
	if w == nil {
		w = os.Stderr
	}
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("opening span output: %w", err)
		}
		s.spanFile, w = f, f
	}

	wopts := []telemetry.SpanWriterOption{
		telemetry.WithServiceName(s.cfg.Tracing.ServiceName),
		telemetry.WithServiceVersion(opts.version),
	}
	if opts.pretty {
		wopts = append(wopts, telemetry.WithPrettySpans())
	}
	tp, err := telemetry.NewSpanWriter(w, wopts...)
	if err != nil {
		s.close()
		return err
	}
	s.spans = tp
	return nil
}

// stateOptions converts the script section of the config.
func (s *session) stateOptions() []script.StateOption {
	opts := []script.StateOption{
		script.WithExecutionTimeout(s.cfg.Script.Timeout),
		script.WithCallStackSize(s.cfg.Script.CallStackSize),
	}
	if s.cfg.Script.Unsafe {
		opts = append(opts, script.WithUnsafeLibs())
	}
	return opts
}

// load creates a fresh host and runs every script in order.
func (s *session) load() error {
	host, err := script.NewHost(s.dispatcher,
		script.WithStateOptions(s.stateOptions()...),
		script.WithHostLogger(s.logger),
	)
	if err != nil {
		return err
	}

	for _, path := range s.scripts {
		if err := host.LoadFile(path); err != nil {
			host.Close()
			return err
		}
		s.logger.WithField("script", path).Debug("script loaded")
	}

	s.host = host
	if s.collector != nil {
		s.collector.SetScriptsLoaded(len(s.scripts))
	}
	s.logger.Debug("%d scripts loaded, %d listeners registered", len(s.scripts), s.dispatcher.ListenerCount())
	return nil
}

// reload replaces the host with one running the current script contents.
// On failure the previous host has already been closed and no scripts
// are listening.
func (s *session) reload() error {
	if s.host != nil {
		s.host.Close()
		s.host = nil
	}
	err := s.load()
	if s.collector != nil {
		s.collector.RecordReload(err)
		if err != nil {
			s.collector.SetScriptsLoaded(0)
		}
	}
	return err
}

// dispatch delivers actions in order through the host.
func (s *session) dispatch(actions []dispatcher.Action) error {
	if s.host == nil {
		return fmt.Errorf("no scripts loaded")
	}
	for _, a := range actions {
		if err := s.host.Dispatch(a.Type, a.Payload); err != nil {
			return fmt.Errorf("dispatching %q: %w", a.Type, err)
		}
	}
	return nil
}

// toGoValue converts Lua payloads for the trace output.
func (s *session) toGoValue(v any) any {
	lv, ok := v.(lua.LValue)
	if !ok || s.host == nil {
		return v
	}
	return s.host.Bridge().ToGoValue(lv)
}

func (s *session) close() {
	if s.host != nil {
		s.host.Close()
		s.host = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("%v", err)
		}
		s.server = nil
	}
	if s.spans != nil {
		if err := s.spans.Shutdown(ctx); err != nil {
			s.logger.Warn("flushing spans: %v", err)
		}
		s.spans = nil
	}
	if s.spanFile != nil {
		if err := s.spanFile.Close(); err != nil {
			s.logger.Warn("closing span output: %v", err)
		}
		s.spanFile = nil
	}
}
