// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"time"
)

// LastBeatChecker reports unhealthy when a periodic beat stopped. The
// orchestrator loop and the heartbeat writer both use it.
type LastBeatChecker struct {
	name   string
	last   func() time.Time
	maxAge time.Duration
	now    func() time.Time
}

// NewLastBeatChecker creates a checker that fails once last() is older than
// maxAge.
func NewLastBeatChecker(name string, last func() time.Time, maxAge time.Duration) *LastBeatChecker {
	return &LastBeatChecker{name: name, last: last, maxAge: maxAge, now: time.Now}
}

func (c *LastBeatChecker) Name() string { return c.name }

func (c *LastBeatChecker) Check(context.Context) CheckResult {
	last := c.last()
	if last.IsZero() {
		return CheckResult{Status: StatusUnhealthy, Message: "not started"}
	}
	age := c.now().Sub(last)
	if age > c.maxAge {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("last beat %s ago", age.Round(time.Second)),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// ConnectedChecker reports a dependency that can drop and reconnect, like
// the control channel. A lost connection degrades the bot; commands are
// replayed by sync once it comes back.
type ConnectedChecker struct {
	name      string
	connected func() bool
}

// NewConnectedChecker creates a connection checker.
func NewConnectedChecker(name string, connected func() bool) *ConnectedChecker {
	return &ConnectedChecker{name: name, connected: connected}
}

func (c *ConnectedChecker) Name() string { return c.name }

func (c *ConnectedChecker) Check(context.Context) CheckResult {
	if c.connected() {
		return CheckResult{Status: StatusHealthy}
	}
	return CheckResult{Status: StatusDegraded, Message: "disconnected"}
}
