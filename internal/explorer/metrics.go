// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package explorer

import "github.com/prometheus/client_golang/prometheus"

const namespace = "paper_explorer"

// Metrics are the pipeline counters of one Explorer.
type Metrics struct {
	ShardsFetched     prometheus.Counter
	ShardsFailed      *prometheus.CounterVec
	PapersLoaded      prometheus.Counter
	DuplicatesRemoved prometheus.Counter
	StaleResults      prometheus.Counter
	IndexBatches      prometheus.Counter
	Loads             *prometheus.CounterVec
	LoadDuration      prometheus.Histogram
	Progress          prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ShardsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "shards_fetched_total",
			Help:      "Shards downloaded successfully.",
		}),
		ShardsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "shards_failed_total",
			Help:      "Shards that failed, by stage.",
		}, []string{"stage"}),
		PapersLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "papers_loaded_total",
			Help:      "Unique papers written to the store.",
		}),
		DuplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duplicates_removed_total",
			Help:      "Papers dropped because an earlier paper had the same id.",
		}),
		StaleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "stale_results_total",
			Help:      "Search results discarded because a newer query superseded them.",
		}),
		IndexBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "batches_sent_total",
			Help:      "Document batches sent to the index worker.",
		}),
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "cycles_total",
			Help:      "Load cycles, by outcome.",
		}, []string{"outcome"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "duration_seconds",
			Help:      "Time from load start to data ready or failure.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "progress_percent",
			Help:      "Progress of the current load cycle.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ShardsFetched,
			m.ShardsFailed,
			m.PapersLoaded,
			m.DuplicatesRemoved,
			m.StaleResults,
			m.IndexBatches,
			m.Loads,
			m.LoadDuration,
			m.Progress,
		)
	}
	return m
}
