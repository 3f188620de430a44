// Package metrics defines the Prometheus collectors used by the indexer,
// the work queue and the query pipeline, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the program.
type Metrics struct {
	TasksSubmittedTotal prometheus.Counter
	TasksCompletedTotal *prometheus.CounterVec
	TasksPending        prometheus.Gauge
	WorkersBusy         prometheus.Gauge
	LockWaitSeconds     *prometheus.HistogramVec
	PositionsAddedTotal prometheus.Counter
	DocsIndexedTotal    *prometheus.CounterVec
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them on reg. A nil reg uses a
// fresh private registry, which keeps repeated construction in tests safe.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		TasksSubmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "workqueue_tasks_submitted_total",
				Help: "Total tasks accepted by the work queue.",
			},
		),
		TasksCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workqueue_tasks_completed_total",
				Help: "Total tasks finished by status (ok, error, panic).",
			},
			[]string{"status"},
		),
		TasksPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workqueue_tasks_pending",
				Help: "Tasks submitted but not yet finished.",
			},
		),
		WorkersBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workqueue_workers_busy",
				Help: "Workers currently running a task.",
			},
		),
		LockWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_lock_wait_seconds",
				Help:    "Time spent waiting for the index lock by mode.",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"mode"},
		),
		PositionsAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_positions_added_total",
				Help: "Total first-time (term, position, document) insertions.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_documents_total",
				Help: "Documents processed by the builder by status.",
			},
			[]string{"status"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Query lines evaluated by mode and cache status (hit, miss, disabled, dedup).",
			},
			[]string{"mode", "cache_status"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search evaluation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"mode"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
	}

	reg.MustRegister(
		m.TasksSubmittedTotal,
		m.TasksCompletedTotal,
		m.TasksPending,
		m.WorkersBusy,
		m.LockWaitSeconds,
		m.PositionsAddedTotal,
		m.DocsIndexedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	return m
}

// Handler returns the scrape handler for the registry the metrics were
// registered on, falling back to the default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
