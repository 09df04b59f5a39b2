// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package autoleave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/meetbot/internal/bot"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dur(d time.Duration) *time.Duration { return &d }

func TestEvaluate_OnlyParticipantWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUptime = dur(time.Second)
	s := Snapshot{
		Now:                  t0.Add(2 * time.Hour),
		JoinedAt:             t0,
		OnlyParticipantSince: t0.Add(2*time.Hour - 61*time.Second),
	}
	d, _ := Evaluate(cfg, s)
	assert.Equal(t, Decision{Leave: true, Reason: bot.SubLeaveAutoOnlyParticipant}, d)
}

func TestEvaluate_SilenceActivationResetsClock(t *testing.T) {
	cfg := DefaultConfig()
	s := Snapshot{Now: t0.Add(1199 * time.Second), JoinedAt: t0, LastAudioAt: t0}
	_, next := Evaluate(cfg, s)
	assert.False(t, next.SilenceActivated, "activation waits for the threshold")

	s.Now = s.Now.Add(time.Second)
	d, next := Evaluate(cfg, s)
	assert.False(t, d.Leave, "activation must not leave immediately")
	assert.True(t, next.SilenceActivated)
	assert.Equal(t, s.Now, next.LastAudioAt)

	next.Now = next.Now.Add(599 * time.Second)
	d, next = Evaluate(cfg, next)
	assert.False(t, d.Leave)

	next.Now = next.Now.Add(time.Second)
	d, _ = Evaluate(cfg, next)
	assert.Equal(t, Decision{Leave: true, Reason: bot.SubLeaveAutoSilence}, d)
}

func TestEvaluate_MaxUptime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUptime = dur(30 * time.Minute)
	d, _ := Evaluate(cfg, Snapshot{Now: t0.Add(30*time.Minute - time.Second), JoinedAt: t0})
	assert.False(t, d.Leave)
	d, _ = Evaluate(cfg, Snapshot{Now: t0.Add(30 * time.Minute), JoinedAt: t0})
	assert.Equal(t, bot.SubLeaveAutoMaxUptime, d.Reason, "the limit itself counts as exceeded")
}

func TestEvaluate_CaptionsUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	s := Snapshot{Now: t0, JoinedAt: t0, CaptionsFailed: true}
	d, _ := Evaluate(cfg, s)
	assert.False(t, d.Leave, "rule is disabled without a timeout")

	cfg.EnableClosedCaptionsTimeout = dur(0)
	d, _ = Evaluate(cfg, s)
	assert.Equal(t, bot.SubLeaveAutoCaptionsUnavailable, d.Reason)
}

func TestMonitor_SilenceLeavesExactlyOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceActivateAfter = 1200 * time.Second
	cfg.SilenceTimeout = 600 * time.Second
	now := t0
	m := NewMonitor(cfg, "Meeting Bot", func() time.Time { return now })
	m.MarkJoined()
	m.AudioActivity()

	leaves := 0
	for i := 0; i <= 1900; i++ {
		now = t0.Add(time.Duration(i) * time.Second)
		if d, ok := m.Check(); ok {
			leaves++
			assert.Equal(t, bot.SubLeaveAutoSilence, d.Reason)
			assert.Equal(t, t0.Add(1800*time.Second), now)
		}
	}
	assert.Equal(t, 1, leaves)
}

func TestMonitor_OnlyParticipantTimer(t *testing.T) {
	now := t0
	m := NewMonitor(DefaultConfig(), "Meeting Bot", func() time.Time { return now })
	m.MarkJoined()
	m.ParticipantJoined(bot.Participant{UUID: "me", FullName: "Meeting Bot", IsTheBot: true})
	assert.True(t, m.Presence().OnlyParticipantSince().IsZero(), "nobody else seen yet")

	m.ParticipantJoined(bot.Participant{UUID: "a", FullName: "Alice"})
	assert.True(t, m.Presence().OnlyParticipantSince().IsZero())

	now = t0.Add(10 * time.Second)
	m.ParticipantLeft("a")
	require.Equal(t, now, m.Presence().OnlyParticipantSince())

	now = t0.Add(30 * time.Second)
	m.ParticipantJoined(bot.Participant{UUID: "a", FullName: "Alice"})
	assert.True(t, m.Presence().OnlyParticipantSince().IsZero(), "rejoin clears the timer")

	now = t0.Add(40 * time.Second)
	m.ParticipantLeft("a")
	require.Equal(t, now, m.Presence().OnlyParticipantSince(), "timer restarts from zero")

	now = t0.Add(99 * time.Second)
	_, ok := m.Check()
	assert.False(t, ok)
	now = t0.Add(100 * time.Second)
	d, ok := m.Check()
	require.True(t, ok)
	assert.Equal(t, bot.SubLeaveAutoOnlyParticipant, d.Reason)
}

func TestPresence_OtherBotsIgnored(t *testing.T) {
	p := NewPresence("Meeting Bot", []string{"notetaker"})
	p.Upsert(bot.Participant{UUID: "me", FullName: "Meeting Bot", Active: true})
	p.Upsert(bot.Participant{UUID: "x", FullName: "Otter Notetaker", Active: true})
	p.Recompute(t0, true)
	assert.Equal(t, 1, p.EverSeenExcludingOtherBots())
	assert.True(t, p.OnlyParticipantSince().IsZero(), "another bot alone never arms the timer")

	p.Upsert(bot.Participant{UUID: "a", FullName: "Alice", Active: false})
	p.Recompute(t0, true)
	assert.Equal(t, t0, p.OnlyParticipantSince())
}
