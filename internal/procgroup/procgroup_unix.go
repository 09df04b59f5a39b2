// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Set makes the command the leader of a new process group.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// Interrupt sends SIGTERM to the command's process group.
func Interrupt(cmd *exec.Cmd) error { return signalGroup(cmd, unix.SIGTERM) }

// ForceKill sends SIGKILL to the command's process group.
func ForceKill(cmd *exec.Cmd) error { return signalGroup(cmd, unix.SIGKILL) }

// KillSelf sends SIGKILL to the current process. It does not return on
// success.
func KillSelf() error {
	return unix.Kill(os.Getpid(), unix.SIGKILL)
}

// CurrentUsage reads getrusage(RUSAGE_SELF).
func CurrentUsage() (Usage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Usage{}, err
	}
	maxRSS := int64(ru.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024 // kilobytes on linux, bytes on darwin
	}
	return Usage{
		MaxRSSBytes: maxRSS,
		UserTime:    time.Duration(ru.Utime.Nano()),
		SystemTime:  time.Duration(ru.Stime.Nano()),
		Goroutines:  runtime.NumGoroutine(),
	}, nil
}
