// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_lifecycle_transitions_total",
		Help: "Total number of bot lifecycle events by type and outcome (applied, rejected)",
	}, []string{"event_type", "outcome"})

	joinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_join_attempts_total",
		Help: "Total number of join attempts by platform and result",
	}, []string{"platform", "result"})

	autoLeaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_auto_leave_total",
		Help: "Total number of automatic leave decisions by reason",
	}, []string{"reason"})
)

// RecordTransition counts an applied or rejected lifecycle event.
func RecordTransition(eventType string, applied bool) {
	outcome := "applied"
	if !applied {
		outcome = "rejected"
	}
	lifecycleTransitions.WithLabelValues(eventType, outcome).Inc()
}

// RecordJoinAttempt counts one join attempt outcome (joined, retry, failed).
func RecordJoinAttempt(platform, result string) {
	joinAttempts.WithLabelValues(platform, result).Inc()
}

// RecordAutoLeave counts one automatic leave decision.
func RecordAutoLeave(reason string) {
	autoLeaves.WithLabelValues(reason).Inc()
}
