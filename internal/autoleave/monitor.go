// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package autoleave

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
)

// Monitor is the stateful side of the policy that adapters embed. It is not
// safe for concurrent use; adapter.Base serializes access.
type Monitor struct {
	cfg      Config
	now      func() time.Time
	presence *Presence
	snap     Snapshot
	decided  bool
	logger   zerolog.Logger
}

// NewMonitor builds a monitor. now defaults to time.Now.
func NewMonitor(cfg Config, displayName string, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		cfg:      cfg,
		now:      now,
		presence: NewPresence(displayName, cfg.BotKeywords),
		logger:   log.WithComponent("autoleave"),
	}
}

// Config returns the configuration the monitor was built with.
func (m *Monitor) Config() Config { return m.cfg }

// Presence exposes participant tracking.
func (m *Monitor) Presence() *Presence { return m.presence }

// Joined reports whether MarkJoined was called.
func (m *Monitor) Joined() bool { return !m.snap.JoinedAt.IsZero() }

// JoinedAt returns when the bot joined, or zero.
func (m *Monitor) JoinedAt() time.Time { return m.snap.JoinedAt }

// MarkJoined records the join time. Later calls are ignored.
func (m *Monitor) MarkJoined() {
	if m.snap.JoinedAt.IsZero() {
		m.snap.JoinedAt = m.now()
		m.recompute()
	}
}

// AudioActivity records that audio (or a caption) was received.
func (m *Monitor) AudioActivity() { m.snap.LastAudioAt = m.now() }

// CaptionsFailed records that captions could not be enabled.
func (m *Monitor) CaptionsFailed() { m.snap.CaptionsFailed = true }

// ParticipantJoined records a participant as active.
func (m *Monitor) ParticipantJoined(p bot.Participant) {
	p.Active = true
	m.presence.Upsert(p)
	m.recompute()
}

// ParticipantLeft marks a participant inactive.
func (m *Monitor) ParticipantLeft(uuid string) {
	m.presence.SetActive(uuid, false)
	m.recompute()
}

// ParticipantUpdated replaces stored participant details, keeping liveness.
func (m *Monitor) ParticipantUpdated(p bot.Participant) {
	if prev, ok := m.presence.Get(p.UUID); ok {
		p.Active = prev.Active
	}
	m.presence.Upsert(p)
	m.recompute()
}

// Observe stores p exactly as given, including its liveness.
func (m *Monitor) Observe(p bot.Participant) {
	m.presence.Upsert(p)
	m.recompute()
}

func (m *Monitor) recompute() {
	before := m.presence.OnlyParticipantSince()
	m.presence.Recompute(m.now(), m.Joined())
	after := m.presence.OnlyParticipantSince()
	if before.IsZero() && !after.IsZero() {
		m.logger.Info().Str(log.FieldEvent, "autoleave.only_participant_armed").Time("since", after).Msg("bot is the only participant in the meeting")
	}
}

// Check evaluates the policy. A leave decision is returned at most once.
func (m *Monitor) Check() (Decision, bool) {
	if m.decided {
		return Decision{}, false
	}
	m.snap.Now = m.now()
	m.snap.OnlyParticipantSince = m.presence.OnlyParticipantSince()
	wasActive := m.snap.SilenceActivated
	d, next := Evaluate(m.cfg, m.snap)
	m.snap = next
	if !wasActive && next.SilenceActivated {
		m.logger.Info().Str(log.FieldEvent, "autoleave.silence_detection_activated").Dur("after", m.cfg.SilenceActivateAfter).Msg("silence detection activated")
	}
	if !d.Leave {
		return Decision{}, false
	}
	m.decided = true
	metrics.RecordAutoLeave(string(d.Reason))
	m.logger.Info().Str(log.FieldEvent, "autoleave.decided").Str(log.FieldReason, string(d.Reason)).Msg("auto-leaving meeting")
	return d, true
}
