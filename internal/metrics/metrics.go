package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/wanderguard/internal/risk"
)

const namespace = "wanderguard"

// Metrics implements patient.Recorder on a private Prometheus registry.
type Metrics struct {
	registry        *prometheus.Registry
	predictions     *prometheus.CounterVec
	alerts          prometheus.Counter
	failures        *prometheus.CounterVec
	defaultVerdicts *prometheus.CounterVec
	scores          prometheus.Histogram
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Scored observations by resulting risk level.",
		}, []string{"level"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Transitions into the alert level.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Swallowed failures of outbound collaborators by operation.",
		}, []string{"op"}),
		defaultVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "default_verdicts_total",
			Help:      "Requests answered with the default verdict, by reason.",
		}, []string{"reason"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of final risk scores.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}

	m.registry.MustRegister(
		m.predictions,
		m.alerts,
		m.failures,
		m.defaultVerdicts,
		m.scores,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObservePrediction(level risk.Level, score float64) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(string(level)).Inc()
	m.scores.Observe(score)
}

func (m *Metrics) AlertTriggered() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}

func (m *Metrics) CollaboratorFailure(op string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op).Inc()
}

func (m *Metrics) DefaultVerdict(reason string) {
	if m == nil {
		return
	}
	m.defaultVerdicts.WithLabelValues(reason).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
