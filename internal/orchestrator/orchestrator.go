// Package orchestrator runs one ingestion cycle: prune, fetch every
// configured source under a per-source failure boundary, then the bulk
// source, committing all writes together.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/feed"
	"github.com/secwatch/secfeeds/internal/metrics"
)

// Orchestrator drives the fetch pipeline. Sources run sequentially; a
// failing source yields zero records and never blocks the others. Only a
// store infrastructure error aborts the cycle.
type Orchestrator struct {
	store    feed.CycleStore
	adapters map[feed.AdapterKind]feed.Adapter
	sources  []feed.Source
	bulk     feed.Source
	window   time.Duration
	clock    feed.Clock
	logger   *zap.Logger
}

// New builds an Orchestrator. The adapters map is the configuration-driven
// dispatch table from source kind to implementation.
func New(
	store feed.CycleStore,
	adapters map[feed.AdapterKind]feed.Adapter,
	sources []feed.Source,
	bulk feed.Source,
	freshnessWindow time.Duration,
	clock feed.Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		adapters: adapters,
		sources:  sources,
		bulk:     bulk,
		window:   freshnessWindow,
		clock:    clock,
		logger:   logger,
	}
}

// RunCycle executes one full prune+fetch+commit cycle. The returned error is
// always a store or cycle-setup failure; per-source problems are logged and
// absorbed here.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := time.Now()
	log := o.logger.With(zap.String("cycle_id", uuid.NewString()))
	cutoff := o.clock.Now().Add(-o.window)
	log.Info("cycle started", zap.Time("freshness_cutoff", cutoff))

	err := o.store.Transact(ctx, func(w feed.RecordWriter) error {
		pruned, err := w.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		metrics.ObservePrune(pruned)
		log.Info("pruned stale records", zap.Int64("removed", pruned))

		for _, src := range o.sources {
			if err := o.ingestSource(ctx, log, w, src, cutoff); err != nil {
				return err
			}
		}
		return o.ingestSource(ctx, log, w, o.bulk, cutoff)
	})

	if err != nil {
		metrics.ObserveCycle("failed", time.Since(start))
		return fmt.Errorf("ingestion cycle: %w", err)
	}
	metrics.ObserveCycle("succeeded", time.Since(start))
	log.Info("cycle finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// ingestSource fetches one source and writes its fresh records. Its error
// return is reserved for store failures; adapter failures of any kind are
// logged and treated as zero records.
func (o *Orchestrator) ingestSource(
	ctx context.Context,
	log *zap.Logger,
	w feed.RecordWriter,
	src feed.Source,
	cutoff time.Time,
) error {
	records, err := o.fetchSource(ctx, src)
	if err != nil {
		metrics.ObserveSourceError(src.Name)
		log.Error("source fetch failed",
			zap.String("source", src.Name),
			zap.Error(err),
		)
		return nil
	}
	metrics.ObserveFetch(src.Name, len(records))

	var accepted, stale int
	for _, rec := range records {
		if rec.Link == "" {
			continue
		}
		if rec.PublishedAt.Before(cutoff) {
			stale++
			continue
		}
		if src.Capped() && accepted >= src.ItemCap {
			break
		}
		inserted, err := w.InsertIfAbsent(ctx, rec)
		if err != nil {
			return fmt.Errorf("insert for source %s: %w", src.Name, err)
		}
		if inserted {
			accepted++
		}
	}
	metrics.ObserveInserts(src.Name, accepted)
	log.Info("source ingested",
		zap.String("source", src.Name),
		zap.Int("fetched", len(records)),
		zap.Int("new", accepted),
		zap.Int("stale", stale),
	)
	return nil
}

// fetchSource dispatches to the source's adapter behind a recover guard, so
// a panicking adapter degrades to a source-local error.
func (o *Orchestrator) fetchSource(ctx context.Context, src feed.Source) (records []feed.Record, err error) {
	adapter, ok := o.adapters[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for kind %q", src.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()
	return adapter.Fetch(ctx, src)
}
