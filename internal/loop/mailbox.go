// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package loop runs the single-goroutine dispatch loop of a bot: a bounded
// mailbox drained by one consumer and a fixed-interval ticker.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
)

// ErrClosed is returned when posting to a closed mailbox.
var ErrClosed = errors.New("mailbox closed")

const dropLogEvery = 100

var dropCount atomic.Uint64

// Mailbox is a bounded FIFO with one consumer. Producers on other goroutines
// use Post, which waits for space. Work generated on the consumer goroutine
// itself uses PostLocal, which never blocks.
type Mailbox[T any] struct {
	source   string
	capacity int

	mu     sync.Mutex
	queue  []T
	closed bool

	ready chan struct{}
	space chan struct{}
}

// NewMailbox creates a mailbox. source labels drop metrics.
func NewMailbox[T any](source string, capacity int) *Mailbox[T] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Mailbox[T]{
		source:   source,
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "context_done"
	}
}

func (m *Mailbox[T]) drop(err error) error {
	reason := dropReason(err)
	metrics.IncMailboxDrop(m.source, reason)
	if n := dropCount.Add(1); n%dropLogEvery == 1 {
		log.L().Warn().
			Str("source", m.source).
			Str(log.FieldReason, reason).
			Uint64("dropped", n).
			Msg("mailbox dropped work item")
	}
	return fmt.Errorf("post to %s mailbox: %w", m.source, err)
}

// Post appends v, waiting while the mailbox is full.
func (m *Mailbox[T]) Post(ctx context.Context, v T) error {
	if ctx == nil {
		return fmt.Errorf("post context is nil")
	}
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return m.drop(ErrClosed)
		}
		if len(m.queue) < m.capacity {
			m.push(v)
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		select {
		case <-m.space:
		case <-ctx.Done():
			return m.drop(ctx.Err())
		}
	}
}

// PostLocal appends v regardless of capacity. It must only be called from the
// consumer goroutine.
func (m *Mailbox[T]) PostLocal(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		metrics.IncMailboxDrop(m.source, "closed")
		return
	}
	m.push(v)
}

func (m *Mailbox[T]) push(v T) {
	m.queue = append(m.queue, v)
	metrics.MailboxDepth.Set(float64(len(m.queue)))
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Ready signals that at least one item may be waiting.
func (m *Mailbox[T]) Ready() <-chan struct{} { return m.ready }

// Drain removes and returns everything queued, in order.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	items := m.queue
	m.queue = nil
	metrics.MailboxDepth.Set(0)
	m.mu.Unlock()
	if len(items) > 0 {
		select {
		case m.space <- struct{}{}:
		default:
		}
	}
	return items
}

// Len reports the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close rejects further posts. Queued items remain drainable.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.space <- struct{}{}:
	default:
	}
}
