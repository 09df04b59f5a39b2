// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts helper processes in their own process group and
// tears the whole group down. It also exposes process resource usage and the
// self-kill used by the cleanup watchdog.
package procgroup

import (
	"errors"
	"os/exec"
	"time"

	"github.com/ManuGH/meetbot/internal/metrics"
)

// ErrKillFailed is returned when a group survives SIGKILL.
var ErrKillFailed = errors.New("kill operation failed")

// Usage is a snapshot of this process's resource consumption.
type Usage struct {
	MaxRSSBytes int64
	UserTime    time.Duration
	SystemTime  time.Duration
	Goroutines  int
}

// Terminate sends SIGTERM to the command's group, waits up to grace for
// waitCh, then sends SIGKILL and drains waitCh. It returns the wait error.
// A nil or unstarted command is a no-op.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	metrics.IncProcTerminate("SIGTERM", signalOutcome(Interrupt(cmd)))

	select {
	case err := <-waitCh:
		metrics.IncProcWait(waitOutcome("", err))
		return err
	case <-time.After(grace):
	}

	metrics.IncProcTerminate("SIGKILL", signalOutcome(ForceKill(cmd)))
	err := <-waitCh
	metrics.IncProcWait(waitOutcome("forced_", err))
	return err
}

func signalOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "sent"
}

func waitOutcome(prefix string, err error) string {
	if err == nil {
		return prefix + "exit0"
	}
	return prefix + "exit_nonzero"
}
