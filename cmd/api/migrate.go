package main

import (
	"fmt"
	"slices"
	"strings"

	pgStorage "sim-provisioning-notifier/internal/adapter/storage/postgres"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	var version int64

	cmd := &cobra.Command{
		Use:   "migrate [command]",
		Short: "Run database migrations",
		Long: `Commands:
  up           Apply all available migrations (default)
  down         Roll back the last migration
  status       Show migration status
  version      Show current version
  redo         Roll back and reapply the last migration
  reset        Roll back all migrations
  up-to        Migrate up to --version
  down-to      Migrate down to --version`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			if !slices.Contains(pgStorage.MigrateCommands, command) {
				return fmt.Errorf("unknown migrate command %q (want one of %s)", command, strings.Join(pgStorage.MigrateCommands, ", "))
			}
			if (command == "up-to" || command == "down-to") && !cmd.Flags().Changed("version") {
				return fmt.Errorf("--version is required for %s", command)
			}

			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			return pgStorage.Migrate(cmd.Context(), cfg.Database.DSN(), command, version, log)
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "target version for up-to and down-to")
	return cmd
}
