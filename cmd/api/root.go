package main

import (
	"fmt"

	"sim-provisioning-notifier/config"
	"sim-provisioning-notifier/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cliOptions holds the persistent flags shared by every subcommand.
type cliOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "sim-notifier",
		Short:         "SIM lifecycle state machine and webhook notification pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to config file (default: ./config.yaml or ./config/config.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newRecoverCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// load reads configuration and builds the logger.
func (o *cliOptions) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("config error: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
}
