package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/quickflux/internal/config"
	"github.com/dshills/quickflux/internal/dispatcher"
	"github.com/dshills/quickflux/internal/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lua")
	if err := os.WriteFile(path, []byte(`AppDispatcher.addListener(function() end)`), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := newSession(config.Default(), logging.NullLogger, []string{path}, sessionOptions{})
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	defer s.close()

	if got := s.dispatcher.ListenerCount(); got != 1 {
		t.Fatalf("ListenerCount() = %d, want 1", got)
	}

	src := `
AppDispatcher.addListener(function() end)
AppDispatcher.addListener(function() end)
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.reload(); err != nil {
		t.Fatalf("reload() error = %v", err)
	}

	if got := s.dispatcher.ListenerCount(); got != 2 {
		t.Errorf("ListenerCount() after reload = %d, want 2", got)
	}
	// Ids keep counting up across reloads.
	if s.dispatcher.HasListener(1) || !s.dispatcher.HasListener(2) || !s.dispatcher.HasListener(3) {
		t.Error("reload should remove listener 1 and register 2 and 3")
	}

	if err := os.WriteFile(path, []byte(`syntax error here`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.reload(); err == nil {
		t.Error("reload() of broken script should fail")
	}
	if got := s.dispatcher.ListenerCount(); got != 0 {
		t.Errorf("ListenerCount() after failed reload = %d, want 0", got)
	}
	if err := s.dispatch(nil); err == nil {
		t.Error("dispatch() without a host should fail")
	}
}

// lockedBuffer is a bytes.Buffer shared with the watch goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSessionWatchReplaysAfterChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lua")
	if err := os.WriteFile(path, []byte(`AppDispatcher.addListener(function() end)`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Watch.Debounce = 20 * time.Millisecond
	trace := &lockedBuffer{}

	s, err := newSession(cfg, logging.NullLogger, []string{path}, sessionOptions{trace: trace, traceFilter: "*"})
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.watch(ctx, []dispatcher.Action{{Type: "ping"}})
	}()

	// Keep touching the script until the watcher has picked it up.
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(trace.String(), `"ping"`) {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("no replay after the script changed")
		}
		if err := os.WriteFile(path, []byte(`AppDispatcher.addListener(function() end) -- edited`), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch() did not stop after cancel")
	}
}

func TestSessionMetricsLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lua")
	if err := os.WriteFile(path, []byte(`AppDispatcher.addListener(function() end)`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Metrics.Namespace = "qf"
	cfg.Metrics.Labels = map[string]string{"env": "test"}

	s, err := newSession(cfg, logging.NullLogger, []string{path}, sessionOptions{metricsAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	defer s.close()

	if err := s.dispatch([]dispatcher.Action{{Type: "ping"}}); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}

	expected := `
# HELP qf_cycles_total Total number of completed dispatch cycles
# TYPE qf_cycles_total counter
qf_cycles_total{env="test"} 1
`
	if err := testutil.GatherAndCompare(s.collector.Registry(), strings.NewReader(expected), "qf_cycles_total"); err != nil {
		t.Error(err)
	}
}

func TestSessionSpansFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lua")
	if err := os.WriteFile(path, []byte(`AppDispatcher.addListener(function() end)`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Output = "-"
	cfg.Tracing.ServiceName = "stores"
	var stderr bytes.Buffer

	s, err := newSession(cfg, logging.NullLogger, []string{path}, sessionOptions{stderr: &stderr})
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	if err := s.dispatch([]dispatcher.Action{{Type: "ping"}}); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}
	s.close()

	spans := traceLines(t, stderr.String())
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1: %s", len(spans), stderr.String())
	}
	if got := spans[0].Get(`Resource.#(Key=="service.name").Value.Value`).String(); got != "stores" {
		t.Errorf("service.name = %q, want %q", got, "stores")
	}
	if s.spans != nil {
		t.Error("close() should shut the span provider down")
	}
}
