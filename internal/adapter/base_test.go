// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/meetbot/internal/autoleave"
	"github.com/ManuGH/meetbot/internal/bot"
)

type recordedEvents struct {
	mu     sync.Mutex
	posted []Event
	local  []Event
}

func (r *recordedEvents) Post(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posted = append(r.posted, ev)
	return nil
}

func (r *recordedEvents) PostLocal(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = append(r.local, ev)
}

func (r *recordedEvents) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, ev := range r.posted {
		out = append(out, ev.Kind)
	}
	for _, ev := range r.local {
		out = append(out, ev.Kind)
	}
	return out
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestBase(t *testing.T, cfg autoleave.Config) (*Base, *recordedEvents, *clock) {
	t.Helper()
	ev := &recordedEvents{}
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := NewBase(BaseConfig{BotID: "bot_1", DisplayName: "Notetaker", Platform: "google_meet", AutoLeave: cfg, Events: ev, Now: clk.Now})
	t.Cleanup(func() { b.Shutdown(context.Background()) })
	return b, ev, clk
}

func TestObserveParticipantEmitsJoinLeaveAndHostChange(t *testing.T) {
	b, _, _ := newTestBase(t, autoleave.DefaultConfig())

	ev, ok := b.ObserveParticipant(bot.Participant{UUID: "p1", FullName: "Alice", Active: true})
	require.True(t, ok)
	assert.Equal(t, bot.ParticipantJoin, ev.Type)

	_, ok = b.ObserveParticipant(bot.Participant{UUID: "p1", FullName: "Alice", Active: true})
	assert.False(t, ok)

	ev, ok = b.ObserveParticipant(bot.Participant{UUID: "p1", FullName: "Alice", Active: true, IsHost: true})
	require.True(t, ok)
	assert.Equal(t, bot.ParticipantUpdate, ev.Type)
	after, found := ev.HostChange()
	assert.True(t, found)
	assert.True(t, after)

	ev, ok = b.ObserveParticipant(bot.Participant{UUID: "p1", FullName: "Alice", Active: false, IsHost: true})
	require.True(t, ok)
	assert.Equal(t, bot.ParticipantLeave, ev.Type)

	p, found := b.GetParticipant("p1")
	require.True(t, found)
	assert.False(t, p.Active)
	assert.True(t, p.IsHost)
}

func TestCheckAutoLeaveOnlyParticipant(t *testing.T) {
	cfg := autoleave.DefaultConfig()
	b, ev, clk := newTestBase(t, cfg)

	b.ObserveParticipant(bot.Participant{UUID: "me", FullName: "Notetaker", IsTheBot: true, Active: true})
	b.ObserveParticipant(bot.Participant{UUID: "a", FullName: "Alice", Active: true})
	b.MarkJoined()
	b.ObserveParticipant(bot.Participant{UUID: "a", FullName: "Alice", Active: false})

	b.CheckAutoLeaveConditions()
	assert.Empty(t, ev.kinds())

	clk.t = clk.t.Add(cfg.OnlyParticipantInMeeting)
	b.CheckAutoLeaveConditions()
	require.Len(t, ev.local, 1)
	assert.Equal(t, KindRequestedLeave, ev.local[0].Kind)
	assert.Equal(t, bot.SubLeaveAutoOnlyParticipant, ev.local[0].Reason)

	// Decided once.
	clk.t = clk.t.Add(time.Hour)
	b.CheckAutoLeaveConditions()
	assert.Len(t, ev.local, 1)
}

func TestCheckAutoLeaveSkippedAfterLeaveRequested(t *testing.T) {
	cfg := autoleave.DefaultConfig()
	uptime := time.Minute
	cfg.MaxUptime = &uptime
	b, ev, clk := newTestBase(t, cfg)
	b.MarkJoined()
	assert.True(t, b.MarkLeaveRequested())
	assert.False(t, b.MarkLeaveRequested())

	clk.t = clk.t.Add(time.Hour)
	b.CheckAutoLeaveConditions()
	assert.Empty(t, ev.kinds())
}

func TestCaptionsFailedRaisesEvent(t *testing.T) {
	b, ev, _ := newTestBase(t, autoleave.DefaultConfig())
	b.CaptionsFailed(false)
	assert.Equal(t, []Kind{KindCouldNotEnableCaptions}, ev.kinds())
}

func TestLatchesAndFirstBuffer(t *testing.T) {
	b, _, _ := newTestBase(t, autoleave.DefaultConfig())

	_, ok := b.FirstBufferTimestampMs()
	assert.False(t, ok)
	b.SetFirstBufferTimestampMs(1234)
	b.SetFirstBufferTimestampMs(5678)
	ms, ok := b.FirstBufferTimestampMs()
	assert.True(t, ok)
	assert.Equal(t, int64(1234), ms)

	assert.False(t, b.IsReadyToSendChatMessages())
	assert.True(t, b.SetReadyToSendChat())
	assert.False(t, b.SetReadyToSendChat())
	assert.True(t, b.IsReadyToSendChatMessages())

	require.NoError(t, b.PauseRecording())
	assert.True(t, b.RecordingPaused())
	require.NoError(t, b.ResumeRecording())
	assert.False(t, b.RecordingPaused())

	assert.False(t, b.Stopped())
	assert.True(t, b.MarkCleanedUp())
	assert.True(t, b.Stopped())
}

func TestShutdownCancelsGoroutines(t *testing.T) {
	b, _, _ := newTestBase(t, autoleave.DefaultConfig())
	done := make(chan struct{})
	b.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	b.Shutdown(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine not cancelled")
	}
}
