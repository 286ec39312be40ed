// Package telemetry holds the Prometheus collectors exposed on /metrics.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PredictionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facetalk_predictions_created_total",
		Help: "Predictions accepted by Replicate",
	}, []string{"kind"})
	PredictionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facetalk_predictions_finished_total",
		Help: "Tracked predictions by final outcome",
	}, []string{"kind", "outcome"})
	UpstreamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facetalk_upstream_errors_total",
		Help: "Failed Replicate calls by operation and status class",
	}, []string{"op", "status"})
	PollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facetalk_prediction_duration_seconds",
		Help:    "Time from submission to a terminal state",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"kind"})
	TrackedInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "facetalk_tracked_inflight",
		Help: "Predictions currently being polled",
	})
	CreditsDeducted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facetalk_credits_deducted_total",
		Help: "Points charged by feature",
	}, []string{"kind"})
	CreditsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "facetalk_credits_insufficient_total",
		Help: "Requests refused for insufficient credits",
	})
	PaymentsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facetalk_payments_applied_total",
		Help: "Plan purchases applied from Stripe",
	}, []string{"plan"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "facetalk_rate_limit_rejects_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// Register adds every collector to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			PredictionsCreated,
			PredictionsFinished,
			UpstreamErrors,
			PollDuration,
			TrackedInFlight,
			CreditsDeducted,
			CreditsRejected,
			PaymentsApplied,
			RateLimitRejects,
		)
	})
}

// Handler exposes the /metrics endpoint.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status for label cardinality.
func StatusClass(status int) string {
	switch {
	case status == 0:
		return "network"
	case status == 429:
		return "429"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	}
	return "other"
}
