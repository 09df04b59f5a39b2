// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(StateReady)

	steps := []struct {
		event EventType
		want  State
	}{
		{EventJoinRequested, StateJoining},
		{EventPutInWaitingRoom, StateWaitingRoom},
		{EventJoinedMeeting, StateJoinedNotRecording},
		{EventRecordingPermissionGranted, StateJoinedRecording},
		{EventRecordingPaused, StateJoinedRecordingPaused},
		{EventRecordingResumed, StateJoinedRecording},
		{EventLeaveRequested, StateLeaving},
		{EventLeftMeeting, StatePostProcessing},
		{EventPostProcessingCompleted, StateEnded},
	}
	for _, s := range steps {
		tr, err := l.Apply(ctx, s.event, SubTypeNone)
		require.NoError(t, err, "event %s", s.event)
		assert.Equal(t, s.want, tr.NewState)
		assert.Equal(t, s.want, l.State())
	}
}

func TestLifecycleIllegalTransitionIsRejected(t *testing.T) {
	l := NewLifecycle(StateJoining)

	tr, err := l.Apply(context.Background(), EventRecordingPaused, SubTypeNone)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateJoining, l.State())
	assert.Equal(t, StateJoining, tr.NewState)
	assert.False(t, CanPauseRecording(l.State()))
}

func TestLifecycleBreakoutReturnsToOrigin(t *testing.T) {
	ctx := context.Background()
	for _, origin := range []State{StateJoinedRecording, StateJoinedRecordingPaused, StateJoinedNotRecording} {
		l := NewLifecycle(origin)
		_, err := l.Apply(ctx, EventBeganJoiningBreakoutRoom, SubTypeNone)
		require.NoError(t, err)
		assert.Equal(t, StateJoiningBreakoutRoom, l.State())

		tr, err := l.Apply(ctx, EventJoinedBreakoutRoom, SubTypeNone)
		require.NoError(t, err)
		assert.Equal(t, origin, tr.NewState)

		_, err = l.Apply(ctx, EventBeganLeavingBreakoutRoom, SubTypeNone)
		require.NoError(t, err)
		tr, err = l.Apply(ctx, EventLeftBreakoutRoom, SubTypeNone)
		require.NoError(t, err)
		assert.Equal(t, origin, tr.NewState)
	}
}

func TestLifecycleBreakoutWithoutOriginFails(t *testing.T) {
	l := NewLifecycle(StateJoiningBreakoutRoom)
	_, err := l.Apply(context.Background(), EventJoinedBreakoutRoom, SubTypeNone)
	require.Error(t, err)
	assert.Equal(t, StateJoiningBreakoutRoom, l.State())

	l.SetBreakoutOrigin(StateJoinedRecording)
	tr, err := l.Apply(context.Background(), EventJoinedBreakoutRoom, SubTypeNone)
	require.NoError(t, err)
	assert.Equal(t, StateJoinedRecording, tr.NewState)
}

func TestLifecycleFatalErrorFromMostStates(t *testing.T) {
	for _, s := range []State{StateJoining, StateStaged, StateLeaving, StatePostProcessing, StateConnected} {
		l := NewLifecycle(s)
		_, err := l.Apply(context.Background(), EventFatalError, SubFatalProcessTerminated)
		require.NoError(t, err, "from %s", s)
		assert.Equal(t, StateFatalError, l.State())
	}
	for _, s := range []State{StateReady, StateEnded, StateFatalError} {
		l := NewLifecycle(s)
		_, err := l.Apply(context.Background(), EventFatalError, SubFatalProcessTerminated)
		require.ErrorIs(t, err, ErrIllegalTransition, "from %s", s)
	}
}

func TestLifecycleAppSession(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(StateReady)
	for _, e := range []EventType{
		EventAppSessionConnectionRequest,
		EventAppSessionConnected,
		EventAppSessionDisconnectRequest,
		EventAppSessionDisconnected,
	} {
		_, err := l.Apply(ctx, e, SubTypeNone)
		require.NoError(t, err, "event %s", e)
	}
	assert.Equal(t, StatePostProcessing, l.State())
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, StateJoinedRecordingPermissionDenied.IsJoined())
	assert.False(t, StateWaitingRoom.IsJoined())
	assert.True(t, StatePostProcessing.IsPostMeeting())
	assert.True(t, StateEnded.IsTerminal())
	assert.False(t, StatePostProcessing.IsTerminal())
}
