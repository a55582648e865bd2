// Package metrics registers rehearsa's Prometheus collectors: gauges for
// in-flight rehearsals, counters for dispatch outcomes, and a histogram for
// rehearsal duration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rehearsa"

// Collectors holds the process-wide metric instances, registered once at
// construction and used by the daemon.
type Collectors struct {
	RehearsalsInFlight prometheus.Gauge
	DispatchTotal      *prometheus.CounterVec
	RehearsalDuration  *prometheus.HistogramVec
	ConfidenceScore    *prometheus.GaugeVec
}

// NewCollectors registers rehearsa's metrics against reg. Pass
// prometheus.DefaultRegisterer in production; tests should pass a fresh
// prometheus.NewRegistry() to avoid duplicate-registration panics across
// test cases.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		RehearsalsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rehearsals_in_flight",
			Help:      "Number of rehearsals currently executing.",
		}),
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total daemon dispatch attempts by outcome.",
		}, []string{"stack", "outcome"}), // outcome: ran|skipped_locked|error
		RehearsalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rehearsal_duration_seconds",
			Help:      "Duration of a completed rehearsal run, in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stack"}),
		ConfidenceScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "confidence_score",
			Help:      "Most recent confidence score recorded for a stack.",
		}, []string{"stack"}),
	}
}

// ObserveRun records a completed rehearsal's duration and confidence.
func (c *Collectors) ObserveRun(stack string, durationSeconds float64, confidence int) {
	c.RehearsalDuration.WithLabelValues(stack).Observe(durationSeconds)
	c.ConfidenceScore.WithLabelValues(stack).Set(float64(confidence))
}

// Handler returns the HTTP handler to mount at the configured metrics path.
func Handler() http.Handler {
	return promhttp.Handler()
}
