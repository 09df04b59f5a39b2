// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/meetbot/internal/fsm"
)

// ErrIllegalTransition is returned when an event does not apply to the current state.
var ErrIllegalTransition = fsm.ErrInvalidTransition

// Transition is the result of applying one lifecycle event.
type Transition struct {
	Event    EventType
	SubType  SubType
	OldState State
	NewState State
}

// Lifecycle tracks a bot's state. It is owned by the orchestrator loop.
type Lifecycle struct {
	m *fsm.Machine[State, EventType]
	// breakoutOrigin is the state held before the last began-breakout event;
	// joined/left breakout room return to it.
	breakoutOrigin State
}

// NewLifecycle creates a lifecycle starting in initial.
func NewLifecycle(initial State) *Lifecycle {
	l := &Lifecycle{}
	m, err := fsm.New(initial, l.transitions())
	if err != nil {
		panic(fmt.Sprintf("bot lifecycle table: %v", err))
	}
	l.m = m
	return l
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.m.State() }

// Restore overwrites the current state after a reload from storage.
func (l *Lifecycle) Restore(s State) { l.m.Restore(s) }

// SetBreakoutOrigin records the state a pending breakout transition returns to.
func (l *Lifecycle) SetBreakoutOrigin(s State) { l.breakoutOrigin = s }

// Can reports whether event applies to the current state.
func (l *Lifecycle) Can(event EventType) bool { return l.m.Can(event) }

// Apply fires event. Illegal (event, state) pairs return ErrIllegalTransition
// and leave the state untouched.
func (l *Lifecycle) Apply(ctx context.Context, event EventType, sub SubType) (Transition, error) {
	from := l.m.State()
	to, err := l.m.Fire(ctx, event)
	if err != nil {
		return Transition{Event: event, SubType: sub, OldState: from, NewState: from}, err
	}
	return Transition{Event: event, SubType: sub, OldState: from, NewState: to}, nil
}

// CanPauseRecording reports whether a pause command is allowed in s.
func CanPauseRecording(s State) bool { return s == StateJoinedRecording }

// CanResumeRecording reports whether a resume command is allowed in s.
func CanResumeRecording(s State) bool { return s == StateJoinedRecordingPaused }

func (l *Lifecycle) rememberOrigin(_ context.Context, from, _ State, _ EventType) error {
	l.breakoutOrigin = from
	return nil
}

func (l *Lifecycle) returnFromBreakout(State) (State, error) {
	for _, j := range joinedStates {
		if l.breakoutOrigin == j {
			return j, nil
		}
	}
	return "", errors.New("no joined state recorded before breakout transition")
}

func (l *Lifecycle) transitions() []fsm.Transition[State, EventType] {
	var t []fsm.Transition[State, EventType]
	add := func(edges ...fsm.Transition[State, EventType]) { t = append(t, edges...) }

	add(fsm.Edges(EventJoinRequested, StateJoining, StateReady, StateStaged)...)
	add(fsm.Edges(EventStaged, StateStaged, StateScheduled)...)
	add(fsm.Edges(EventCouldNotJoin, StateFatalError, StateJoining, StateWaitingRoom)...)
	add(fsm.Edges(EventFatalError, StateFatalError,
		StateJoining,
		StateJoinedRecordingPaused,
		StateJoinedRecording,
		StateJoinedNotRecording,
		StateJoinedRecordingPermissionDenied,
		StateWaitingRoom,
		StateLeaving,
		StatePostProcessing,
		StateStaged,
		StateScheduled,
		StateJoiningBreakoutRoom,
		StateLeavingBreakoutRoom,
		StateConnecting,
		StateDisconnecting,
		StateConnected,
	)...)
	add(fsm.Edges(EventPutInWaitingRoom, StateWaitingRoom, StateJoining)...)
	add(fsm.Edges(EventJoinedMeeting, StateJoinedNotRecording, StateWaitingRoom, StateJoining)...)
	add(fsm.Edges(EventRecordingPermissionGranted, StateJoinedRecording,
		StateJoinedNotRecording, StateJoinedRecordingPermissionDenied)...)
	add(fsm.Edges(EventMeetingEnded, StatePostProcessing,
		StateJoinedRecordingPaused,
		StateJoinedRecording,
		StateJoinedNotRecording,
		StateJoinedRecordingPermissionDenied,
		StateWaitingRoom,
		StateJoining,
		StateLeaving,
		StateJoiningBreakoutRoom,
		StateLeavingBreakoutRoom,
	)...)
	add(fsm.Edges(EventLeaveRequested, StateLeaving,
		StateJoinedRecordingPaused,
		StateJoinedRecording,
		StateJoinedNotRecording,
		StateJoinedRecordingPermissionDenied,
		StateWaitingRoom,
		StateJoining,
		StateJoiningBreakoutRoom,
		StateLeavingBreakoutRoom,
	)...)
	add(fsm.Edges(EventLeftMeeting, StatePostProcessing, StateLeaving)...)
	add(fsm.Edges(EventPostProcessingCompleted, StateEnded, StatePostProcessing)...)
	add(fsm.Edges(EventRecordingPaused, StateJoinedRecordingPaused, StateJoinedRecording)...)
	add(fsm.Edges(EventRecordingResumed, StateJoinedRecording, StateJoinedRecordingPaused)...)
	add(fsm.Edges(EventRecordingPermissionDenied, StateJoinedRecordingPermissionDenied, joinedStates...)...)

	for _, from := range joinedStates {
		add(
			fsm.Transition[State, EventType]{From: from, Event: EventBeganJoiningBreakoutRoom, To: StateJoiningBreakoutRoom, Action: l.rememberOrigin},
			fsm.Transition[State, EventType]{From: from, Event: EventBeganLeavingBreakoutRoom, To: StateLeavingBreakoutRoom, Action: l.rememberOrigin},
		)
	}
	add(
		fsm.Transition[State, EventType]{From: StateJoiningBreakoutRoom, Event: EventJoinedBreakoutRoom, Resolve: l.returnFromBreakout},
		fsm.Transition[State, EventType]{From: StateLeavingBreakoutRoom, Event: EventLeftBreakoutRoom, Resolve: l.returnFromBreakout},
	)

	add(fsm.Edges(EventAppSessionConnectionRequest, StateConnecting, StateReady)...)
	add(fsm.Edges(EventAppSessionConnected, StateConnected, StateConnecting)...)
	add(fsm.Edges(EventAppSessionDisconnectRequest, StateDisconnecting, StateConnected, StateConnecting)...)
	add(fsm.Edges(EventAppSessionDisconnected, StatePostProcessing, StateDisconnecting)...)
	return t
}
