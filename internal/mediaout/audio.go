// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediaout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
)

// Chunk pacing per platform.
const (
	ZoomChunkInterval    = 900 * time.Millisecond
	DefaultChunkInterval = 100 * time.Millisecond
)

// ErrEmptyAudio is returned for a request without audio bytes.
var ErrEmptyAudio = errors.New("mediaout: empty audio")

// AudioSink plays 16-bit mono PCM as the bot's microphone. It is called from
// the playback goroutine.
type AudioSink interface {
	SendRawAudio(b []byte, sampleRate int) error
}

// ChunkInterval returns the pause between audio chunks for a platform.
func ChunkInterval(meeting bot.MeetingType) time.Duration {
	if meeting == bot.MeetingZoom {
		return ZoomChunkInterval
	}
	return DefaultChunkInterval
}

// ChunkedAudioPlayer sends audio in interval-sized chunks from its own
// goroutine.
type ChunkedAudioPlayer struct {
	sink     AudioSink
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	playing bool
	stop    chan struct{}
	done    chan struct{}
}

// NewChunkedAudioPlayer creates a player pacing chunks by interval.
func NewChunkedAudioPlayer(sink AudioSink, interval time.Duration) *ChunkedAudioPlayer {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &ChunkedAudioPlayer{sink: sink, interval: interval, logger: log.WithComponent("mediaout")}
}

func chunkBytes(sampleRate int, interval time.Duration) int {
	n := int(float64(sampleRate)*interval.Seconds()) * 2
	if n < 2 {
		n = 2
	}
	return n
}

// Start sends the first chunk synchronously so that an immediate failure
// is reported, then plays the rest in the background.
func (p *ChunkedAudioPlayer) Start(_ context.Context, req bot.MediaRequest) error {
	if len(req.Blob) == 0 {
		return ErrEmptyAudio
	}
	p.Stop()

	size := chunkBytes(req.SampleRate, p.interval)
	first := req.Blob
	if len(first) > size {
		first = first[:size]
	}
	if err := p.sink.SendRawAudio(first, req.SampleRate); err != nil {
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	p.mu.Lock()
	p.playing = true
	p.stop = stop
	p.done = done
	p.mu.Unlock()

	go p.play(req.Blob[len(first):], req.SampleRate, size, stop, done)
	return nil
}

func (p *ChunkedAudioPlayer) play(rest []byte, sampleRate, size int, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	for len(rest) > 0 {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		n := size
		if n > len(rest) {
			n = len(rest)
		}
		if err := p.sink.SendRawAudio(rest[:n], sampleRate); err != nil {
			p.logger.Warn().Err(err).Str(log.FieldEvent, "mediaout.audio_send_failed").Msg("audio chunk send failed, stopping playback")
			return
		}
		rest = rest[n:]
		timer.Reset(p.interval)
	}
	// Let the last chunk play out.
	select {
	case <-stop:
	case <-timer.C:
	}
}

// Playing reports whether the playback goroutine is still running.
func (p *ChunkedAudioPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Stop interrupts playback and waits for the goroutine.
func (p *ChunkedAudioPlayer) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
