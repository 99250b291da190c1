// Package metrics exposes Prometheus instrumentation for the extraction
// pipeline. All methods are nil-safe so library code can take an
// optional *Pipeline without guarding every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Pipeline struct {
	artifactsTotal *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	synthesesTotal *prometheus.CounterVec
	tokensTotal    prometheus.Counter
}

// NewPipeline registers the pipeline collectors with reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		artifactsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoice_artifacts_total",
			Help: "Artifacts processed, by terminal outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoice_stage_duration_seconds",
			Help:    "Wall time per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		synthesesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoice_syntheses_total",
			Help: "Per-snippet validation verdicts.",
		}, []string{"status"}),
		tokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invoice_tokens_total",
			Help: "Tokens recovered by the text extractor.",
		}),
	}
	reg.MustRegister(m.artifactsTotal, m.stageDuration, m.synthesesTotal, m.tokensTotal)
	return m
}

func (m *Pipeline) ObserveArtifact(outcome string) {
	if m == nil {
		return
	}
	m.artifactsTotal.WithLabelValues(outcome).Inc()
}

func (m *Pipeline) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Pipeline) ObserveSynthesis(status string) {
	if m == nil {
		return
	}
	m.synthesesTotal.WithLabelValues(status).Inc()
}

func (m *Pipeline) AddTokens(n int) {
	if m == nil {
		return
	}
	m.tokensTotal.Add(float64(n))
}
