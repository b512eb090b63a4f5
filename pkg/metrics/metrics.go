// Package metrics defines the Prometheus collectors used by the indexing and
// query pipelines and the ways of exporting them (scrape server or textfile).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for one process.
type Metrics struct {
	DocsIndexedTotal       prometheus.Counter
	DocFailuresTotal       *prometheus.CounterVec
	TokensIndexedTotal     prometheus.Counter
	GenerationSavesTotal   *prometheus.CounterVec
	BuildDuration          *prometheus.HistogramVec
	QueriesTotal           *prometheus.CounterVec
	QueryLatency           *prometheus.HistogramVec
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	TombstonedDocs         prometheus.Gauge
	IncrementalChangesSeen *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them on reg. Passing a fresh
// prometheus.NewRegistry keeps repeated construction (tests, watch reloads)
// free of duplicate registration panics.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mir_docs_indexed_total",
				Help: "Total documents tokenized into a generation.",
			},
		),
		DocFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mir_doc_failures_total",
				Help: "Documents dropped from a generation by failure reason (io, decode).",
			},
			[]string{"reason"},
		),
		TokensIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mir_tokens_indexed_total",
				Help: "Total tokens, duplicates included, seen while building generations.",
			},
		),
		GenerationSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mir_generation_saves_total",
				Help: "Generation commits by generation name and status.",
			},
			[]string{"generation", "status"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mir_build_duration_seconds",
				Help:    "Wall time of a full or incremental build.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"generation"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mir_queries_total",
				Help: "Queries by ranking mode and status (ok, error, empty).",
			},
			[]string{"mode", "status"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mir_query_latency_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"mode"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mir_query_cache_hits_total",
				Help: "Total query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mir_query_cache_misses_total",
				Help: "Total query cache misses.",
			},
		),
		TombstonedDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mir_tombstoned_documents",
				Help: "Distinct tombstoned paths applied by the last merge.",
			},
		),
		IncrementalChangesSeen: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mir_incremental_changes_total",
				Help: "Paths reported by incremental updates by kind (new, changed, removed).",
			},
			[]string{"kind"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.DocFailuresTotal,
		m.TokensIndexedTotal,
		m.GenerationSavesTotal,
		m.BuildDuration,
		m.QueriesTotal,
		m.QueryLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TombstonedDocs,
		m.IncrementalChangesSeen,
	)

	return m
}

// Gatherer exposes the registry the collectors were registered on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// WriteTextfile dumps the current values in the node-exporter textfile format.
// The write goes through a temp file and rename inside the client library.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.gatherer)
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
