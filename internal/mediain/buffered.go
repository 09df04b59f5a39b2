// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mediain turns per-participant audio and platform captions into
// utterances.
package mediain

import (
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
)

// Default limits for buffered audio.
const (
	DefaultSilenceGap   = 3 * time.Second
	DefaultSizeLimit    = 19_200_000
	ShortClipSilenceGap = 1 * time.Second
	ShortClipSizeLimit  = 1_920_000
	DefaultSilenceRMS   = 150.0
)

// BufferedConfig tunes the non-streaming manager.
type BufferedConfig struct {
	SampleRate int
	SilenceGap time.Duration
	SizeLimit  int
	// SilenceRMS is the RMS level below which a chunk counts as silence.
	SilenceRMS float64
}

// BufferedConfigFor returns limits for a transcription provider. Providers
// with a short clip limit get small utterances.
func BufferedConfigFor(provider bot.TranscriptionProvider, sampleRate int) BufferedConfig {
	cfg := BufferedConfig{
		SampleRate: sampleRate,
		SilenceGap: DefaultSilenceGap,
		SizeLimit:  DefaultSizeLimit,
		SilenceRMS: DefaultSilenceRMS,
	}
	if provider == bot.TranscriptionSarvam {
		cfg.SilenceGap = ShortClipSilenceGap
		cfg.SizeLimit = ShortClipSizeLimit
	}
	return cfg
}

// Segment is a finished run of one participant's speech.
type Segment struct {
	ParticipantUUID string
	StartedAt       time.Time
	SampleRate      int
	Audio           []byte
}

// DurationMs derives the duration of 16-bit mono PCM.
func DurationMs(audioLen, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(float64(audioLen) / (float64(sampleRate) / 1000 * 2))
}

type speakerBuffer struct {
	startedAt  time.Time
	lastSpeech time.Time
	audio      []byte
}

// Buffered accumulates each participant's PCM until a silence gap or the
// size ceiling, then hands the segment to the sink. It is driven from the
// orchestrator loop and is not safe for concurrent use.
type Buffered struct {
	cfg     BufferedConfig
	sink    func(Segment)
	now     func() time.Time
	logger  zerolog.Logger
	buffers map[string]*speakerBuffer
}

// NewBuffered creates a manager. now defaults to time.Now.
func NewBuffered(cfg BufferedConfig, sink func(Segment), now func() time.Time) *Buffered {
	if now == nil {
		now = time.Now
	}
	if cfg.SilenceGap <= 0 {
		cfg.SilenceGap = DefaultSilenceGap
	}
	if cfg.SizeLimit <= 0 {
		cfg.SizeLimit = DefaultSizeLimit
	}
	return &Buffered{
		cfg:     cfg,
		sink:    sink,
		now:     now,
		logger:  log.WithComponent("mediain"),
		buffers: make(map[string]*speakerBuffer),
	}
}

// AddChunk appends PCM for a participant.
func (m *Buffered) AddChunk(participantUUID string, at time.Time, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	speech := RMS(pcm) >= m.cfg.SilenceRMS
	buf, ok := m.buffers[participantUUID]
	if !ok {
		if !speech {
			return
		}
		buf = &speakerBuffer{startedAt: at}
		m.buffers[participantUUID] = buf
	}
	buf.audio = append(buf.audio, pcm...)
	if speech {
		buf.lastSpeech = m.now()
	}
	if len(buf.audio) >= m.cfg.SizeLimit {
		m.emit(participantUUID)
	}
}

// ProcessChunks emits every buffer whose speaker has been silent for longer
// than the silence gap.
func (m *Buffered) ProcessChunks() {
	now := m.now()
	for _, id := range m.sortedIDs() {
		if now.Sub(m.buffers[id].lastSpeech) > m.cfg.SilenceGap {
			m.emit(id)
		}
	}
}

// Flush emits everything buffered.
func (m *Buffered) Flush() {
	for _, id := range m.sortedIDs() {
		m.emit(id)
	}
}

// Pending returns the number of participants with buffered audio.
func (m *Buffered) Pending() int { return len(m.buffers) }

func (m *Buffered) sortedIDs() []string {
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Buffered) emit(id string) {
	buf := m.buffers[id]
	delete(m.buffers, id)
	if buf == nil || len(buf.audio) == 0 {
		return
	}
	m.logger.Debug().
		Str(log.FieldEvent, "mediain.segment").
		Str(log.FieldParticipantID, id).
		Int("bytes", len(buf.audio)).
		Msg("audio segment complete")
	m.sink(Segment{
		ParticipantUUID: id,
		StartedAt:       buf.startedAt,
		SampleRate:      m.cfg.SampleRate,
		Audio:           buf.audio,
	})
}

// RMS computes the root mean square of 16-bit little-endian PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
