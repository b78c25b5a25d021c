package main

import (
	"github.com/spf13/cobra"

	"marketlens/config"
	"marketlens/internal/logger"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "marketlens",
		Short: "Technical analysis and trade setups from EODHD market data",
		Long: `marketlens fetches price history for an instrument, keeps it current from
the streaming feed, and derives indicators, support/resistance levels and an
ATR-based trade setup.

Subcommands:
  analyze  run one analysis and print the report
  watch    follow one symbol live and print every bar update
  serve    run the HTTP API, the scheduled watch list and metrics`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			logger.Init("marketlens-"+cmd.Name(), logger.ParseLevel(cfg.LogLevel))
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "marketlens.yaml", "YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newAnalyzeCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}
