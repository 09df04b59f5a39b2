// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meetbot_breaker_state",
		Help: "Breaker state per guarded collaborator (0=closed, 1=half-open, 2=open).",
	}, []string{"breaker"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_breaker_trips_total",
		Help: "Transitions of a breaker into the open state.",
	}, []string{"breaker", "reason"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_breaker_rejected_total",
		Help: "Calls refused without reaching the collaborator because its breaker was open.",
	}, []string{"breaker"})
)

// SetBreakerState publishes one of the Breaker* values for breaker.
func SetBreakerState(breaker string, value int) {
	breakerState.WithLabelValues(breaker).Set(float64(value))
}

// IncBreakerTrip counts a breaker opening. reason is threshold or probe_failed.
func IncBreakerTrip(breaker, reason string) {
	breakerTrips.WithLabelValues(breaker, reason).Inc()
}

func IncBreakerRejected(breaker string) {
	breakerRejected.WithLabelValues(breaker).Inc()
}
