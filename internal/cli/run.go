package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/quickflux/internal/dispatcher"
	"github.com/dshills/quickflux/internal/watcher"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	dispatches  []string
	actionsFile string
	trace       bool
	pretty      bool
	traceFilter string
	watch       bool
	metricsAddr string
	spans       string
}

func runCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [scripts...]",
		Short: "Load scripts and dispatch actions",
		Long: `Load Lua scripts into one dispatcher and dispatch actions to them.

Scripts are loaded in order; script.paths from the config is used when
none are given. Actions from --actions run first, then each --dispatch in
order.

Examples:
  quickflux run stores.lua --dispatch todo.add='{"title":"docs"}'
  quickflux run stores.lua --actions actions.yaml --trace
  quickflux run stores.lua --actions actions.yaml --watch --metrics-addr :9090
  quickflux run stores.lua --dispatch todo.add --spans spans.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, o, args)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&o.dispatches, "dispatch", "d", nil, "Dispatch TYPE or TYPE=JSON (repeatable)")
	f.StringVarP(&o.actionsFile, "actions", "a", "", "YAML file with a list of {type, payload} actions")
	f.BoolVarP(&o.trace, "trace", "t", false, "Write a JSON line per dispatch, listener failure and cycle warning")
	f.BoolVar(&o.pretty, "pretty", false, "Pretty-print trace output")
	f.StringVar(&o.traceFilter, "trace-filter", "*", "Only trace action types matching this glob")
	f.BoolVarP(&o.watch, "watch", "w", false, "Reload scripts and dispatch again when they change")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringVar(&o.spans, "spans", "", "Export OpenTelemetry spans as JSON to FILE (- for stderr)")

	return cmd
}

func runRun(cmd *cobra.Command, g *globalOptions, o *runOptions, args []string) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	scripts := args
	if len(scripts) == 0 {
		scripts = cfg.Script.Paths
	}
	if len(scripts) == 0 {
		return errors.New("no scripts given")
	}

	actions, err := o.actions()
	if err != nil {
		return err
	}

	var traceOut io.Writer
	if o.trace {
		traceOut = cmd.OutOrStdout()
	}

	s, err := newSession(cfg, logger, scripts, sessionOptions{
		trace:       traceOut,
		traceFilter: o.traceFilter,
		pretty:      o.pretty,
		metricsAddr: o.metricsAddr,
		spans:       o.spans,
		stderr:      cmd.ErrOrStderr(),
		version:     g.version,
	})
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.dispatch(actions); err != nil {
		return err
	}

	if o.watch {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := s.watch(ctx, actions); err != nil {
			return err
		}
	}

	if m := s.dispatcher.Metrics(); m != nil {
		snap := m.Snapshot()
		logger.Info("%d cycles, %d listener calls, %d failures, %d cycle warnings",
			snap.TotalCycles, snap.TotalListenerCalls, snap.TotalErrors, snap.TotalCycleWarnings)
	}
	return nil
}

// actions collects the actions file followed by the --dispatch flags.
func (o *runOptions) actions() ([]dispatcher.Action, error) {
	var actions []dispatcher.Action
	if o.actionsFile != "" {
		fromFile, err := loadActionsFile(o.actionsFile)
		if err != nil {
			return nil, err
		}
		actions = append(actions, fromFile...)
	}
	for _, d := range o.dispatches {
		a, err := parseDispatchFlag(d)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// watch reloads the scripts and replays actions after every batch of
// changes until ctx is done. Reload failures are logged and the previous
// actions are not replayed until a reload succeeds.
func (s *session) watch(ctx context.Context, actions []dispatcher.Action) error {
	fw, err := watcher.NewFSNotifyWatcher(watcher.WithPatterns("*.lua"))
	if err != nil {
		return err
	}
	for _, path := range s.scripts {
		if err := fw.Watch(path); err != nil && !errors.Is(err, watcher.ErrAlreadyWatching) {
			fw.Close()
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	d := watcher.NewDebouncer(fw, s.cfg.Watch.Debounce)
	defer d.Close()
	s.logger.Info("watching %d scripts for changes", len(fw.WatchedPaths()))

	for {
		select {
		case <-ctx.Done():
			return nil

		case batch, ok := <-d.Batches():
			if !ok {
				return nil
			}
			s.logger.WithField("scripts", batch.Paths).Info("%s (%d events), reloading", batch.Op, batch.Events)
			if err := s.reload(); err != nil {
				s.logger.Error("reload failed: %v", err)
				continue
			}
			if err := s.dispatch(actions); err != nil {
				s.logger.Error("%v", err)
			}

		case err, ok := <-d.Errors():
			if !ok {
				return nil
			}
			s.logger.Warn("watcher: %v", err)
		}
	}
}
