package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/api"
	"github.com/secwatch/secfeeds/internal/scheduler"
)

// newRunCmd starts the ingestion loop and the read-side API server.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion loop and the read-side API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			server := api.NewServer(app.store, api.Config{
				SourceNames: app.cfg.SourceNames(),
				KeySources:  app.cfg.API.KeySources,
				TopLimit:    app.cfg.API.TopLimit,
				SourceLimit: app.cfg.API.SourceLimit,
			}, app.logger)

			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", app.cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				app.logger.Info("api server listening", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					app.logger.Error("api server failed", zap.Error(err))
				}
			}()

			sched := scheduler.New(app.orch, app.cfg.Interval(), app.cfg.CycleTimeout(), app.logger)
			app.logger.Info("scheduler starting",
				zap.Duration("interval", app.cfg.Interval()),
				zap.Int("sources", len(app.cfg.Sources)),
			)
			err = sched.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
				app.logger.Error("api server shutdown failed", zap.Error(shutdownErr))
			}
			return err
		},
	}
}
