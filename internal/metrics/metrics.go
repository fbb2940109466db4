// Package metrics holds the prometheus collectors of the QA pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docqa"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	buildDuration    prometheus.Histogram
	builds           *prometheus.CounterVec
	indexedChunks    prometheus.Gauge
	retrieveDuration prometheus.Histogram
	retrievals       *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Time to read, chunk, embed and index one document.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builds by resulting status.",
		}, []string{"status"}),
		indexedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_chunks",
			Help:      "Chunks in the current index.",
		}),
		retrieveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieve_duration_seconds",
			Help:      "Time to embed a query and search the index.",
			Buckets:   prometheus.DefBuckets,
		}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Retrieval calls by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.buildDuration,
		m.builds,
		m.indexedChunks,
		m.retrieveDuration,
		m.retrievals,
		m.stageDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBuild records one build outcome.
func (m *Metrics) ObserveBuild(status string, chunks int, d time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(status).Inc()
	m.buildDuration.Observe(d.Seconds())
	m.indexedChunks.Set(float64(chunks))
}

// ObserveRetrieve records one retrieval outcome.
func (m *Metrics) ObserveRetrieve(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
	m.retrieveDuration.Observe(d.Seconds())
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Builds returns the build counter, for tests and dashboards.
func (m *Metrics) Builds() *prometheus.CounterVec { return m.builds }

// Retrievals returns the retrieval counter.
func (m *Metrics) Retrievals() *prometheus.CounterVec { return m.retrievals }
