package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/adapter/advisory"
	"github.com/secwatch/secfeeds/internal/adapter/bulkcve"
	"github.com/secwatch/secfeeds/internal/adapter/rssfeed"
	"github.com/secwatch/secfeeds/internal/adapter/slowapi"
	"github.com/secwatch/secfeeds/internal/clock/system"
	"github.com/secwatch/secfeeds/internal/config"
	"github.com/secwatch/secfeeds/internal/feed"
	"github.com/secwatch/secfeeds/internal/logging"
	"github.com/secwatch/secfeeds/internal/orchestrator"
	"github.com/secwatch/secfeeds/internal/store/postgres"
)

const userAgent = "secfeeds/1.0 (+https://github.com/secwatch/secfeeds)"

// app bundles the wired pipeline shared by the run and fetch commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *postgres.Store
	orch   *orchestrator.Orchestrator
}

// buildApp loads configuration and wires the store, adapters and
// orchestrator together.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := store.Ensure(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	clk := system.New()
	retryPolicy := feed.NewTimeoutRetryPolicy(cfg.SlowAPI.MaxAttempts, cfg.SlowAPIBackoffBase())

	advisoryAdapter, err := advisory.New(advisory.Config{
		Timeout:   cfg.HTTPTimeout(),
		UserAgent: userAgent,
	}, clk, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build advisory adapter: %w", err)
	}

	adapters := map[feed.AdapterKind]feed.Adapter{
		feed.KindRSS: rssfeed.New(rssfeed.Config{
			Timeout:   cfg.HTTPTimeout(),
			UserAgent: userAgent,
		}, clk, logger),
		feed.KindHTMLIndex: advisoryAdapter,
		feed.KindSlowJSON: slowapi.New(slowapi.Config{
			AttemptTimeout: cfg.SlowAPITimeout(),
			UserAgent:      userAgent,
		}, retryPolicy, clk, logger),
		feed.KindBulkGzip: bulkcve.New(bulkcve.Config{
			UserAgent: userAgent,
		}, clk, logger),
	}

	orch := orchestrator.New(
		store,
		adapters,
		cfg.Sources,
		cfg.Bulk,
		cfg.FreshnessWindow(),
		clk,
		logger,
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		orch:   orch,
	}, nil
}

// Close releases the application's resources.
func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}
