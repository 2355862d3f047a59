package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newFetchCmd runs exactly one ingestion cycle. Useful for operations and
// for backfilling after downtime without waiting for the next tick.
func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run a single ingestion cycle and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			cycleCtx, cancel := context.WithTimeout(ctx, app.cfg.CycleTimeout())
			defer cancel()
			return app.orch.RunCycle(cycleCtx)
		},
	}
}
