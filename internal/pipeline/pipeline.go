// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/log"
)

var (
	// ErrNotStarted is returned when pausing or resuming an idle pipeline.
	ErrNotStarted = errors.New("pipeline not started")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("pipeline stopped")
)

// Pipeline is the media pipeline collaborator.
type Pipeline interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop() error
	// PushEncoded feeds an encoded container chunk (webm/mp4 fragment).
	PushEncoded(chunk []byte)
	// PushMixedAudio feeds 16-bit PCM of the mixed meeting audio.
	PushMixedAudio(chunk []byte)
	// OutputPath is the local recording file, or "" when nothing is recorded.
	OutputPath() string
}

// Callbacks receive media after it passed the pipeline.
type Callbacks struct {
	// OnEncoded is called for every encoded chunk, e.g. to relay over RTMP.
	OnEncoded func([]byte)
	// OnMixedAudio is called for every mixed-audio chunk, e.g. for websocket
	// streaming.
	OnMixedAudio func([]byte)
}

// Recorder is a Pipeline that writes media to a local file. Video
// recordings keep the encoded stream; audio-only recordings keep raw PCM.
type Recorder struct {
	cfg       Configuration
	path      string
	callbacks Callbacks
	logger    zerolog.Logger

	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	started bool
	paused  bool
	stopped bool
	written int64
}

var _ Pipeline = (*Recorder)(nil)

// RecordingFileName returns the local file name for a bot's recording.
func RecordingFileName(botID string, cfg Configuration) string {
	if cfg.RecordVideo {
		return botID + ".webm"
	}
	return botID + ".pcm"
}

// NewRecorder creates a recorder writing into dir.
func NewRecorder(dir, botID string, cfg Configuration, cb Callbacks) *Recorder {
	path := ""
	if cfg.Records() {
		path = filepath.Join(dir, RecordingFileName(botID, cfg))
	}
	return &Recorder{
		cfg:       cfg,
		path:      path,
		callbacks: cb,
		logger:    log.WithBot("pipeline", botID),
	}
}

// Start opens the output file.
func (r *Recorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if r.started {
		return nil
	}
	if r.path != "" {
		if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
		f, err := os.Create(r.path)
		if err != nil {
			return fmt.Errorf("create recording file: %w", err)
		}
		r.file = f
		r.w = bufio.NewWriterSize(f, 256*1024)
	}
	r.started = true
	r.logger.Info().Str(log.FieldEvent, "pipeline.started").Str(log.FieldPath, r.path).Msg("media pipeline started")
	return nil
}

// Pause stops writing to the recording. Relays keep running.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNotStarted
	}
	r.paused = true
	return nil
}

// Resume continues writing to the recording.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNotStarted
	}
	r.paused = false
	return nil
}

// Paused reports whether the recording is paused.
func (r *Recorder) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Stop flushes and closes the file. It is idempotent.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	if r.file == nil {
		return nil
	}
	flushErr := r.w.Flush()
	closeErr := r.file.Close()
	r.logger.Info().Str(log.FieldEvent, "pipeline.stopped").Int64("bytes", r.written).Msg("media pipeline stopped")
	return errors.Join(flushErr, closeErr)
}

func (r *Recorder) write(chunk []byte) {
	if r.w == nil || r.paused || r.stopped {
		return
	}
	n, err := r.w.Write(chunk)
	r.written += int64(n)
	if err != nil {
		r.logger.Error().Err(err).Str(log.FieldEvent, "pipeline.write_failed").Msg("failed to write recording chunk")
	}
}

// PushEncoded records the chunk for video recordings and relays it.
func (r *Recorder) PushEncoded(chunk []byte) {
	r.mu.Lock()
	if r.cfg.RecordVideo {
		r.write(chunk)
	}
	r.mu.Unlock()
	if r.callbacks.OnEncoded != nil {
		r.callbacks.OnEncoded(chunk)
	}
}

// PushMixedAudio records the chunk for audio-only recordings and forwards it.
func (r *Recorder) PushMixedAudio(chunk []byte) {
	r.mu.Lock()
	if r.cfg.RecordAudio && !r.cfg.RecordVideo {
		r.write(chunk)
	}
	r.mu.Unlock()
	if r.callbacks.OnMixedAudio != nil {
		r.callbacks.OnMixedAudio(chunk)
	}
}

// OutputPath returns the recording path.
func (r *Recorder) OutputPath() string { return r.path }
