package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "openlens"

const (
	UnitPod       = "pod"
	UnitContainer = "container"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Metrics struct {
	LogFetches          *prometheus.CounterVec
	CorrelationDuration prometheus.Histogram
	SpansReceived       prometheus.Counter
	StoredSpans         prometheus.Gauge
}

// NewMetrics registers the collectors on reg. Passing a fresh registry keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LogFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_fetches_total",
				Help:      "Log fetches performed during correlation by unit and outcome.",
			},
			[]string{"unit", "outcome"},
		),
		CorrelationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "log_correlation_duration_seconds",
				Help:      "Time taken to correlate logs for one flow.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SpansReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spans_received_total",
				Help:      "Spans accepted by the span store.",
			},
		),
		StoredSpans: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_spans",
				Help:      "Spans currently held in memory.",
			},
		),
	}
}
