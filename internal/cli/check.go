package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func checkCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [scripts...]",
		Short: "Load scripts and report registered listeners",
		Long: `Load Lua scripts without dispatching anything and report how many
listeners they registered. Exits non-zero when a script fails to load.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			cfg.Metrics.Addr = ""
			logger := newLogger(cfg, cmd.ErrOrStderr())

			scripts := args
			if len(scripts) == 0 {
				scripts = cfg.Script.Paths
			}
			if len(scripts) == 0 {
				return errors.New("no scripts given")
			}

			s, err := newSession(cfg, logger, scripts, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.close()

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d scripts, %d listeners\n", len(scripts), s.dispatcher.ListenerCount())
			return nil
		},
	}
}
