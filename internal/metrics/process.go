// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_helper_process_signals_total",
		Help: "Signals sent to helper process groups by signal and outcome",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_helper_process_exits_total",
		Help: "Helper process exits observed during termination",
	}, []string{"outcome"})

	ResidentMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meetbot_max_resident_memory_bytes",
		Help: "Peak resident set size of the bot process at the last snapshot",
	})
)

// IncProcTerminate counts a signal sent to a helper process group.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait counts how a helper process exited.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
