// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/zoom"
)

func TestZoomInitialData(t *testing.T) {
	cfg := &Config{
		BaseConfig: adapter.BaseConfig{Now: func() time.Time { return time.Unix(1_700_000_000, 0) }},
		MeetingURL: "https://us02web.zoom.us/j/84315220467?pwd=abc",
		Zoom:       zoom.Credentials{SDKKey: "key", SDKSecret: "secret", OnBehalfToken: "obf"},
	}
	script, err := zoomInitialData(cfg)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(script, "window.zoomInitialData = "))

	var data map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(script, "window.zoomInitialData = "), ";")), &data))
	assert.Equal(t, "84315220467", data["meetingNumber"])
	assert.Equal(t, "abc", data["meetingPassword"])
	assert.Equal(t, "obf", data["onBehalfToken"])
	assert.NotEmpty(t, data["signature"])

	cfg.MeetingURL = "https://zoom.us/meeting/schedule"
	_, err = zoomInitialData(cfg)
	assert.ErrorIs(t, err, zoom.ErrNotJoinURL)
}

func TestZoomFailedToJoin(t *testing.T) {
	ev, ok := zoomFailedToJoin(FailedToJoinReason{Method: "removed_from_waiting_room"})
	require.True(t, ok)
	assert.Equal(t, bot.SubCouldNotJoinRequestToJoinDenied, ev.Reason)

	_, ok = zoomFailedToJoin(FailedToJoinReason{Method: "leave"})
	assert.False(t, ok)

	ev, ok = zoomFailedToJoin(FailedToJoinReason{Method: "join", ErrorCode: 4011, ErrorMessage: "external"})
	require.True(t, ok)
	assert.Equal(t, adapter.KindCouldNotJoin, ev.Kind)
	assert.Equal(t, bot.SubCouldNotJoinUnpublishedZoomApp, ev.Reason)
	assert.Equal(t, "4011: external", ev.Metadata["zoom_result_code"])

	ev, ok = zoomFailedToJoin(FailedToJoinReason{Method: "join", ErrorCode: 1, ErrorMessage: "x"})
	require.True(t, ok)
	assert.Equal(t, bot.SubCouldNotJoinZoomMeetingStatusFailed, ev.Reason)
}

func TestForMeeting(t *testing.T) {
	p, ok := ForMeeting(bot.MeetingTeams)
	require.True(t, ok)
	assert.Equal(t, 8097, p.Port)
	assert.Equal(t, 10*time.Second, p.StagedJoinDelay)
	assert.Empty(t, p.SendVideoScript)

	p, ok = ForMeeting(bot.MeetingZoom)
	require.True(t, ok)
	assert.Equal(t, 8765, p.Port)
	assert.NotEmpty(t, p.GalleryScript)

	_, ok = ForMeeting(bot.MeetingUnknown)
	assert.False(t, ok)
}
