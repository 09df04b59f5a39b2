// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
)

// DefaultTickInterval is the period of the housekeeping tick.
const DefaultTickInterval = 100 * time.Millisecond

// ErrStop ends Run without reporting a failure.
var ErrStop = errors.New("loop stop requested")

// PanicError wraps a value recovered from a handler or tick.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Handler processes one mailbox item on the loop goroutine.
type Handler[T any] func(ctx context.Context, item T) error

// TickFunc runs the periodic work.
type TickFunc func(ctx context.Context, now time.Time) error

// Runner couples a mailbox with a handler and a tick.
type Runner[T any] struct {
	Mailbox  *Mailbox[T]
	Handle   Handler[T]
	Tick     TickFunc
	Interval time.Duration
	// Now overrides the clock passed to Tick.
	Now func() time.Time
}

// Run dispatches until ctx is done, a handler or tick returns an error, or
// ErrStop is returned. A panic is converted into a *PanicError. Returning
// ErrStop yields a nil error.
func (r *Runner[T]) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("loop")
	logger.Debug().Str(log.FieldEvent, "loop.start").Dur("interval", interval).Msg("dispatch loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str(log.FieldEvent, "loop.stop").Msg("dispatch loop stopped by context")
			return nil
		case <-r.Mailbox.Ready():
			for _, item := range r.Mailbox.Drain() {
				if err := safeCall(func() error { return r.Handle(ctx, item) }); err != nil {
					return finish(err)
				}
			}
		case <-ticker.C:
			if r.Tick == nil {
				continue
			}
			start := time.Now()
			err := safeCall(func() error { return r.Tick(ctx, now()) })
			metrics.ObserveTick(time.Since(start))
			if err != nil {
				if !errors.Is(err, ErrStop) {
					metrics.LoopTickFailuresTotal.Inc()
				}
				return finish(err)
			}
		}
	}
}

func finish(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return fn()
}
