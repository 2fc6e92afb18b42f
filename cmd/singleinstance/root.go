package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/it-atelier-gn/single-instance/internal/config"
	"github.com/it-atelier-gn/single-instance/internal/logging"
)

type rootOptions struct {
	configFile string
	name       string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "singleinstance [args...]",
		Short: "Run as the single primary instance, or hand the arguments to it",
		Long: `singleinstance runs at most once per user. The first launch becomes the
primary instance and prints every command line later launches hand over to
it, one JSON object per line. Later launches relay their command line and
exit immediately.`,
		Args:               cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHost(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: config.yaml next to the executable)")
	cmd.PersistentFlags().StringVar(&opts.name, "name", "", "unique application name (overrides config)")

	cmd.AddCommand(newStatusCommand(opts), newVersionCommand())
	return cmd
}

// load resolves configuration and a logger for a command run.
func (o *rootOptions) load(writeDefault bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(config.Options{File: o.configFile, WriteDefault: writeDefault})
	if err != nil {
		return nil, nil, err
	}
	if name := strings.TrimSpace(o.name); name != "" {
		cfg.Name = name
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}
