// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoopTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meetbot_loop_tick_duration_seconds",
		Help:    "Duration of one orchestrator timer tick",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	LoopTickFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetbot_loop_tick_failures_total",
		Help: "Total number of timer ticks that ended in a fatal error",
	})

	MailboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meetbot_mailbox_depth",
		Help: "Number of work items waiting on the orchestrator loop",
	})

	MailboxDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_mailbox_dropped_total",
		Help: "Total number of loop work items dropped by source and reason",
	}, []string{"source", "reason"})

	ControlCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_control_commands_total",
		Help: "Total number of control channel commands received",
	}, []string{"command"})
)

// ObserveTick records the duration of a timer tick.
func ObserveTick(d time.Duration) {
	LoopTickDuration.Observe(d.Seconds())
}

// IncMailboxDrop records a dropped loop work item.
func IncMailboxDrop(source, reason string) {
	if source == "" {
		source = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	MailboxDroppedTotal.WithLabelValues(source, reason).Inc()
}

// IncControlCommand counts a received control command. Unknown names are
// folded into one label to keep cardinality bounded.
func IncControlCommand(command string, known bool) {
	if !known {
		command = "unknown"
	}
	ControlCommandsTotal.WithLabelValues(command).Inc()
}
