// Package cli implements the quickflux command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/quickflux/internal/config"
	"github.com/dshills/quickflux/internal/logging"
)

// BuildInfo is version information set at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	logLevel   string
	verbose    bool
	version    string
}

// NewRootCommand builds the quickflux command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &globalOptions{version: info.Version}

	rootCmd := &cobra.Command{
		Use:   "quickflux",
		Short: "Run Lua stores against a Flux action dispatcher",
		Long: `quickflux hosts a Flux-style action dispatcher and lets Lua scripts
register stores on it.

Every dispatched action reaches every registered listener in registration
order. Listeners can wait for other listeners with AppDispatcher.waitFor,
and actions dispatched from inside a listener are queued until the
current one has been delivered to everyone.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (.toml, .yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		runCmd(opts),
		checkCmd(opts),
		versionCmd(info),
	)

	return rootCmd
}

// Execute runs the root command with os.Args.
func Execute(info BuildInfo) error {
	return NewRootCommand(info).Execute()
}

// load reads the configuration and applies the persistent flag overrides.
func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates the process logger writing to w.
func newLogger(cfg *config.Config, w io.Writer) *logging.Logger {
	lc := cfg.LoggingConfig()
	lc.Output = w
	if lc.Output == nil {
		lc.Output = os.Stderr
	}
	logger := logging.New(lc)
	logging.SetDefault(logger)
	return logger
}
