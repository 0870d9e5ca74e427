package dispatcher_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/quickflux/internal/dispatcher"
	"github.com/dshills/quickflux/internal/logging"
)

func TestDiagnosticsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})
	d := dispatcher.New(dispatcher.DefaultConfig().WithDispatchLogging(true), dispatcher.WithLogger(logger))

	var a, c dispatcher.ListenerID
	a = d.AddListener(func(string, any) error {
		d.WaitFor(c)
		return errors.New("store rejected action")
	})
	d.AddListener(func(string, any) error {
		d.WaitFor(a, c)
		return nil
	})
	c = d.AddListener(func(string, any) error { return nil })

	d.Dispatch("todo.add", nil)

	out := buf.String()
	for _, want := range []string{
		"[DEBUG] dispatching \"todo.add\" to 3 listeners",
		"[WARN] cyclic dependency detected",
		"[ERROR] listener failed: store rejected action",
		"component=dispatcher",
		"listener=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
