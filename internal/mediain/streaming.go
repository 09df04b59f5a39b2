// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediain

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
)

// Session is one participant's live transcription stream.
type Session interface {
	Send(pcm []byte) error
	Close() error
}

// SessionFactory opens a streaming transcription session.
type SessionFactory interface {
	Open(ctx context.Context, participant bot.Participant, sampleRate int) (Session, error)
}

type liveSession struct {
	session   Session
	lastChunk time.Time
}

// Streaming forwards audio to per-participant provider sessions and closes
// sessions that have been idle longer than the silence gap.
type Streaming struct {
	ctx        context.Context
	factory    SessionFactory
	lookup     func(string) (bot.Participant, bool)
	sampleRate int
	idle       time.Duration
	now        func() time.Time
	logger     zerolog.Logger
	sessions   map[string]*liveSession
}

// NewStreaming creates a streaming manager. lookup resolves participant
// details for new sessions.
func NewStreaming(ctx context.Context, factory SessionFactory, lookup func(string) (bot.Participant, bool), sampleRate int, idle time.Duration, now func() time.Time) *Streaming {
	if now == nil {
		now = time.Now
	}
	if idle <= 0 {
		idle = DefaultSilenceGap
	}
	return &Streaming{
		ctx:        ctx,
		factory:    factory,
		lookup:     lookup,
		sampleRate: sampleRate,
		idle:       idle,
		now:        now,
		logger:     log.WithComponent("mediain"),
		sessions:   make(map[string]*liveSession),
	}
}

// AddChunk forwards PCM, opening a session on first use.
func (m *Streaming) AddChunk(participantUUID string, pcm []byte) {
	ls, ok := m.sessions[participantUUID]
	if !ok {
		p, found := m.lookup(participantUUID)
		if !found {
			p = bot.Participant{UUID: participantUUID}
		}
		s, err := m.factory.Open(m.ctx, p, m.sampleRate)
		if err != nil {
			m.logger.Warn().Err(err).Str(log.FieldEvent, "mediain.session_open_failed").Str(log.FieldParticipantID, participantUUID).Msg("could not open transcription session")
			return
		}
		ls = &liveSession{session: s}
		m.sessions[participantUUID] = ls
	}
	ls.lastChunk = m.now()
	if err := ls.session.Send(pcm); err != nil {
		m.logger.Warn().Err(err).Str(log.FieldEvent, "mediain.session_send_failed").Str(log.FieldParticipantID, participantUUID).Msg("transcription session send failed")
		m.closeSession(participantUUID)
	}
}

// MonitorTranscription closes idle sessions.
func (m *Streaming) MonitorTranscription() {
	now := m.now()
	for _, id := range m.ids() {
		if now.Sub(m.sessions[id].lastChunk) > m.idle {
			m.closeSession(id)
		}
	}
}

// CloseAll closes every open session.
func (m *Streaming) CloseAll() {
	for _, id := range m.ids() {
		m.closeSession(id)
	}
}

// Open returns the number of open sessions.
func (m *Streaming) Open() int { return len(m.sessions) }

func (m *Streaming) ids() []string {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Streaming) closeSession(id string) {
	ls := m.sessions[id]
	delete(m.sessions, id)
	if ls == nil {
		return
	}
	if err := ls.session.Close(); err != nil {
		m.logger.Debug().Err(err).Str(log.FieldParticipantID, id).Msg("close transcription session")
	}
}
