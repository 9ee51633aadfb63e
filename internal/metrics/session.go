// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionTransitionTotal counts lifecycle state transitions.
	SessionTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_session_transitions_total",
		Help: "Total number of session state transitions",
	}, []string{"from", "to"})

	// SessionsActive tracks the number of live sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "folio_sessions_active",
		Help: "Number of currently active viewer sessions",
	})

	// SessionErrorTotal counts sessions entering the error state.
	SessionErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_session_errors_total",
		Help: "Total number of session faults by error code",
	}, []string{"code"})

	// SessionReadyDuration tracks time from initialization to READY.
	SessionReadyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "folio_session_ready_duration_seconds",
		Help:    "Time from session initialization to document readiness",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// IncSessionTransition records a lifecycle transition.
func IncSessionTransition(from, to string) {
	SessionTransitionTotal.WithLabelValues(from, to).Inc()
}

// IncSessionsActive records a session creation.
func IncSessionsActive() {
	SessionsActive.Inc()
}

// DecSessionsActive records a session disposal.
func DecSessionsActive() {
	SessionsActive.Dec()
}

// IncSessionError records a session fault.
func IncSessionError(code string) {
	SessionErrorTotal.WithLabelValues(code).Inc()
}

// ObserveSessionReady records the initialization-to-ready duration.
func ObserveSessionReady(duration time.Duration) {
	SessionReadyDuration.Observe(duration.Seconds())
}
