// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingTypeFromURL(t *testing.T) {
	cases := map[string]MeetingType{
		"https://us02web.zoom.us/j/123456789?pwd=abc":            MeetingZoom,
		"https://meet.google.com/abc-defg-hij":                   MeetingGoogleMeet,
		"https://teams.microsoft.com/l/meetup-join/19%3ameeting": MeetingTeams,
		"https://teams.live.com/meet/9876":                       MeetingTeams,
		"https://MEET.google.com./abc-defg-hij":                  MeetingGoogleMeet,
		"https://example.com/meeting":                            MeetingUnknown,
		"not a url":                                              MeetingUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MeetingTypeFromURL(raw), raw)
	}
}

func TestBotStartTime(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	b := Bot{CreatedAt: created}
	assert.Equal(t, created, b.StartTime())
	join := created.Add(time.Hour)
	b.JoinAt = &join
	assert.Equal(t, join, b.StartTime())
}

func TestMediaRequestMoves(t *testing.T) {
	r := &MediaRequest{ID: "r1", State: MediaEnqueued}
	require.Error(t, r.Move(MediaFinished))
	require.NoError(t, r.Move(MediaPlaying))
	require.Error(t, r.Move(MediaPlaying))
	require.NoError(t, r.Move(MediaFinished))
	require.Error(t, r.Move(MediaDropped))

	assert.True(t, CanMoveMedia(MediaEnqueued, MediaDropped))
	assert.True(t, CanMoveMedia(MediaPlaying, MediaDropped))
	assert.True(t, CanMoveMedia(MediaPlaying, MediaFailedToPlay))
	assert.False(t, CanMoveMedia(MediaEnqueued, MediaFailedToPlay))
}

func TestParticipantEventHostChange(t *testing.T) {
	e := ParticipantEvent{Type: ParticipantUpdate, Data: map[string]any{
		"isHost": map[string]any{"before": false, "after": true},
	}}
	after, ok := e.HostChange()
	require.True(t, ok)
	assert.True(t, after)

	_, ok = ParticipantEvent{Type: ParticipantUpdate}.HostChange()
	assert.False(t, ok)
}
