// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediaout

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/pipeline"
)

// Realtime plays audio that arrives in pieces, such as voice agent output
// from the websocket peer. AddChunk may be called from any goroutine.
type Realtime struct {
	sink       AudioSink
	interval   time.Duration
	outputRate int
	logger     zerolog.Logger

	mu      sync.Mutex
	buf     []byte
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool
}

// NewRealtime creates a realtime player resampling to outputRate.
func NewRealtime(sink AudioSink, interval time.Duration, outputRate int) *Realtime {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Realtime{
		sink:       sink,
		interval:   interval,
		outputRate: outputRate,
		logger:     log.WithComponent("mediaout"),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// AddChunk queues 16-bit PCM at sampleRate. The player goroutine starts on
// the first chunk.
func (r *Realtime) AddChunk(chunk []byte, sampleRate int) {
	if len(chunk) == 0 {
		return
	}
	if sampleRate > 0 && r.outputRate > 0 && sampleRate != r.outputRate {
		chunk = pipeline.Resample(chunk, sampleRate, r.outputRate)
	}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.buf = append(r.buf, chunk...)
	if !r.started {
		r.started = true
		go r.run()
	}
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Buffered returns the number of bytes not yet sent.
func (r *Realtime) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

func (r *Realtime) run() {
	defer close(r.done)
	size := chunkBytes(r.outputRate, r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.mu.Lock()
		n := size
		if n > len(r.buf) {
			n = len(r.buf)
		}
		chunk := r.buf[:n:n]
		r.buf = r.buf[n:]
		r.mu.Unlock()

		if len(chunk) > 0 {
			if err := r.sink.SendRawAudio(chunk, r.outputRate); err != nil {
				r.logger.Warn().Err(err).Str(log.FieldEvent, "mediaout.realtime_send_failed").Msg("realtime audio send failed")
			}
			select {
			case <-r.stop:
				return
			case <-ticker.C:
			}
			continue
		}
		select {
		case <-r.stop:
			return
		case <-r.wake:
		}
	}
}

// Stop ends playback and discards buffered audio.
func (r *Realtime) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.buf = nil
	r.mu.Unlock()
	close(r.stop)
	if started {
		<-r.done
	}
}
