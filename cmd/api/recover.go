package main

import (
	"github.com/spf13/cobra"
)

func newRecoverCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Attempt every due PENDING delivery once, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close(log)

			total := 0
			for {
				n, err := a.engine.Recover(cmd.Context())
				total += n
				if err != nil {
					return err
				}
				if n < cfg.Delivery.BatchSize {
					break
				}
			}
			log.Info().Int("deliveries", total).Msg("recovery sweep finished")
			return nil
		},
	}
}
