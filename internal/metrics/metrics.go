// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secfeeds_records_fetched_total",
			Help: "Total records yielded by adapters, labeled by source.",
		},
		[]string{"source"},
	)

	recordsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secfeeds_records_inserted_total",
			Help: "Total new rows written to the store, labeled by source.",
		},
		[]string{"source"},
	)

	sourceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secfeeds_source_errors_total",
			Help: "Total per-source fetch failures, labeled by source.",
		},
		[]string{"source"},
	)

	recordsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secfeeds_records_pruned_total",
			Help: "Total rows removed by retention pruning.",
		},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secfeeds_cycles_total",
			Help: "Total ingestion cycles, labeled by outcome.",
		},
		[]string{"status"},
	)

	cycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "secfeeds_cycle_duration_seconds",
			Help:    "Histogram of full cycle durations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records how many records a source yielded this cycle.
func ObserveFetch(source string, count int) {
	recordsFetchedTotal.WithLabelValues(source).Add(float64(count))
}

// ObserveInserts records how many new rows a source produced this cycle.
func ObserveInserts(source string, count int) {
	recordsInsertedTotal.WithLabelValues(source).Add(float64(count))
}

// ObserveSourceError increments the failure counter for a source.
func ObserveSourceError(source string) {
	sourceErrorsTotal.WithLabelValues(source).Inc()
}

// ObservePrune records how many rows retention pruning removed.
func ObservePrune(count int64) {
	recordsPrunedTotal.Add(float64(count))
}

// ObserveCycle records one finished cycle and its duration.
func ObserveCycle(status string, duration time.Duration) {
	cyclesTotal.WithLabelValues(status).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}
