// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package procgroup

import (
	"os"
	"os/exec"
	"runtime"
)

// Set is a no-op without process groups.
func Set(cmd *exec.Cmd) {}

// Interrupt is a no-op; only ForceKill stops the process here.
func Interrupt(cmd *exec.Cmd) error { return nil }

// ForceKill kills the root process only.
func ForceKill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// KillSelf terminates the current process.
func KillSelf() error {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return p.Kill()
}

// CurrentUsage only reports goroutines.
func CurrentUsage() (Usage, error) {
	return Usage{Goroutines: runtime.NumGoroutine()}, nil
}
