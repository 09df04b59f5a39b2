// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is a small table-driven state machine used for the bot lifecycle.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when no edge exists for (state, event).
var ErrInvalidTransition = errors.New("invalid transition")

// Transition is one edge of the table. Resolve, when set, picks the target
// at fire time instead of To. Guard may veto the edge and Action runs before
// the state changes; an error from either leaves the state untouched.
type Transition[S ~string, E ~string] struct {
	From    S
	Event   E
	To      S
	Resolve func(from S) (S, error)
	Guard   func(ctx context.Context, from S, event E) error
	Action  func(ctx context.Context, from S, to S, event E) error
}

// Edges expands one event into a transition per source state.
func Edges[S ~string, E ~string](event E, to S, from ...S) []Transition[S, E] {
	out := make([]Transition[S, E], len(from))
	for i, f := range from {
		out[i] = Transition[S, E]{From: f, Event: event, To: to}
	}
	return out
}

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// Machine applies events against a fixed table. Fire is meant for a single
// owner; State may be read from any goroutine.
type Machine[S ~string, E ~string] struct {
	table map[edge[S, E]]Transition[S, E]

	mu    sync.RWMutex
	state S
}

// New builds a machine, rejecting duplicate (from, event) edges.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	table := make(map[edge[S, E]]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := edge[S, E]{t.From, t.Event}
		if _, dup := table[k]; dup {
			return nil, fmt.Errorf("duplicate transition %s --%s-->", t.From, t.Event)
		}
		table[k] = t
	}
	return &Machine[S, E]{table: table, state: initial}, nil
}

func (m *Machine[S, E]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Restore overwrites the current state, e.g. after reloading from storage.
func (m *Machine[S, E]) Restore(state S) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Can reports whether event has an edge from the current state.
func (m *Machine[S, E]) Can(event E) bool {
	_, ok := m.table[edge[S, E]{m.State(), event}]
	return ok
}

// Fire applies event and returns the new state, or the unchanged state and
// an error.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	from := m.State()
	t, ok := m.table[edge[S, E]{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}

	to := t.To
	if t.Resolve != nil {
		resolved, err := t.Resolve(from)
		if err != nil {
			return from, fmt.Errorf("resolve target: state=%s event=%s: %w", from, event, err)
		}
		to = resolved
	}
	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, to, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
	return to, nil
}
