package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes recorded by RecordCommand.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics holds the gloombot Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	CommandsTotal    *prometheus.CounterVec
	CommandDuration  prometheus.Histogram
	CompletionErrors *prometheus.CounterVec
	PassagesFound    prometheus.Histogram
	ChunksIngested   *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gloombot_commands_total",
			Help: "Slash commands handled, by outcome",
		}, []string{"command", "outcome"}),
		CommandDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gloombot_command_duration_seconds",
			Help:    "Time from deferral to follow-up",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		CompletionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gloombot_completion_errors_total",
			Help: "Failed completion calls, by classification",
		}, []string{"kind"}),
		PassagesFound: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gloombot_passages_retrieved",
			Help:    "Passages sent as context per question",
			Buckets: []float64{0, 1, 2, 3, 4},
		}),
		ChunksIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gloombot_chunks_ingested_total",
			Help: "Chunks embedded and stored, by collection",
		}, []string{"collection"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordCommand records one handled command.
func (m *Metrics) RecordCommand(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.Observe(d.Seconds())
}

// RecordCompletionError counts a failed completion by its kind.
func (m *Metrics) RecordCompletionError(kind string) {
	if m == nil {
		return
	}
	m.CompletionErrors.WithLabelValues(kind).Inc()
}

// RecordPassages records how many passages a question retrieved.
func (m *Metrics) RecordPassages(n int) {
	if m == nil {
		return
	}
	m.PassagesFound.Observe(float64(n))
}

// RecordChunks counts chunks stored in collection.
func (m *Metrics) RecordChunks(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ChunksIngested.WithLabelValues(collection).Add(float64(n))
}
