package main

import (
	"fmt"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *cliOptions) *cobra.Command {
	var (
		owner string
		actor string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an owner (development use)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid --owner: %w", err)
			}
			if a := domain.Initiator(actor); a != domain.InitiatorUser && a != domain.InitiatorAPI {
				return fmt.Errorf("--actor must be USER or API")
			}

			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("jwt.secret is required")
			}

			tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
			token, expiresAt, err := tokenSvc.Generate(ownerID, actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (uuid)")
	cmd.Flags().StringVar(&actor, "actor", string(domain.InitiatorAPI), "actor recorded on events: USER or API")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
