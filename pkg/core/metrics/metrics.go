// Package metrics exposes pipeline counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded on the documents counter.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	registry  *prometheus.Registry
	documents *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	holdings  prometheus.Histogram
	warnings  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundextract_documents_total",
			Help: "Processed documents by input format and outcome.",
		}, []string{"format", "outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundextract_stage_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{.005, .05, .25, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		holdings: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundextract_holdings_extracted",
			Help:    "Holdings per successfully parsed document.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundextract_soft_warnings_total",
			Help: "Non-fatal parser warnings by code.",
		}, []string{"code"}),
	}
	m.registry.MustRegister(
		m.documents, m.stages, m.holdings, m.warnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Document(format, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(format, outcome).Inc()
}

// Stage records the time since start under stage.
func (m *Metrics) Stage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Holdings(n int) {
	if m == nil {
		return
	}
	m.holdings.Observe(float64(n))
}

func (m *Metrics) Warning(code string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(code).Inc()
}
