package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httpHandler "sim-provisioning-notifier/internal/adapter/http/handler"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the delivery workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().
				Str("mode", cfg.Server.Mode).
				Int("port", cfg.Server.Port).
				Msg("Starting SIM provisioning notifier")

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close(log)

			gin.SetMode(cfg.Server.Mode)
			deps := httpHandler.RouterDeps{
				LifecycleSvc:   a.lifecycleSvc,
				Registry:       a.registry,
				TokenSvc:       a.tokenSvc,
				RateLimit:      cfg.RateLimit,
				HealthCheckers: a.health,
				AuditSvc:       a.auditSvc,
				Logger:         log,
			}
			if cfg.RateLimit.Enabled {
				deps.RateLimitStore = a.rateLimit
			}

			srv := &http.Server{
				Addr:    cfg.Server.Addr(),
				Handler: httpHandler.SetupRouter(deps),
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return a.dispatcher.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				log.Error().Err(err).Msg("server stopped with error")
				return err
			}
			log.Info().Msg("Server exited")
			return nil
		},
	}
}
