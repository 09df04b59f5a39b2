// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediaout

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
)

// ErrNoVideoURL is returned for a video request without a URL.
var ErrNoVideoURL = errors.New("mediaout: video request has no url")

// VideoSink plays a video by URL as the bot's camera.
type VideoSink interface {
	SendVideo(url string) error
	IsSentVideoStillPlaying() bool
}

// DefaultVideoStartGrace covers the time a client needs before it reports
// the video as playing.
const DefaultVideoStartGrace = 2 * time.Second

// VideoPlayer asks the adapter whether the sent video is still playing.
type VideoPlayer struct {
	sink    VideoSink
	grace   time.Duration
	now     func() time.Time
	started time.Time
	active  bool
}

// NewVideoPlayer creates a video player. now defaults to time.Now.
func NewVideoPlayer(sink VideoSink, now func() time.Time) *VideoPlayer {
	if now == nil {
		now = time.Now
	}
	return &VideoPlayer{sink: sink, grace: DefaultVideoStartGrace, now: now}
}

// Start sends the video URL.
func (p *VideoPlayer) Start(_ context.Context, req bot.MediaRequest) error {
	if req.URL == "" {
		return ErrNoVideoURL
	}
	if err := p.sink.SendVideo(req.URL); err != nil {
		return err
	}
	p.started = p.now()
	p.active = true
	return nil
}

// Playing reports true during the start grace and afterwards whatever the
// adapter says.
func (p *VideoPlayer) Playing() bool {
	if !p.active {
		return false
	}
	if p.now().Sub(p.started) < p.grace {
		return true
	}
	if !p.sink.IsSentVideoStillPlaying() {
		p.active = false
	}
	return p.active
}

// Stop forgets the current video.
func (p *VideoPlayer) Stop() { p.active = false }
