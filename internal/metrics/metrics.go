// Package metrics provides Prometheus instrumentation for the wave portal:
// contract calls, live subscriptions and view state transitions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GatewayCalls counts contract gateway calls, labeled by operation
	// ("list", "total", "submit") and result ("ok", "error").
	GatewayCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "waveportal_gateway_calls_total",
		Help: "Total number of contract gateway calls",
	}, []string{"op", "result"})

	// SubmitDuration records the time from sending a wave to its receipt.
	SubmitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "waveportal_submit_duration_seconds",
		Help:    "Time from sending a wave transaction to its confirmation",
		Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
	})

	// ActiveSubscriptions tracks the number of open NewWave subscriptions.
	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "waveportal_active_subscriptions",
		Help: "Current number of live NewWave subscriptions",
	})

	// Notifications counts NewWave events handed to subscribers.
	Notifications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waveportal_notifications_total",
		Help: "Total number of NewWave notifications delivered",
	})

	// SubscriptionErrors counts dropped or failed subscriptions.
	SubscriptionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waveportal_subscription_errors_total",
		Help: "Total number of subscription stream failures",
	})

	// Transitions counts view state transitions, labeled by destination state.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "waveportal_view_transitions_total",
		Help: "Total number of view state transitions",
	}, []string{"to"})
)

func init() {
	prometheus.MustRegister(
		GatewayCalls,
		SubmitDuration,
		ActiveSubscriptions,
		Notifications,
		SubscriptionErrors,
		Transitions,
	)
}

// Handler returns an HTTP handler that serves Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
