// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediaout

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
	"github.com/ManuGH/meetbot/internal/resilience"
)

// ImageSink shows a still image as the bot's video.
type ImageSink interface {
	SendRawImage(b []byte) error
}

// Images shows only the newest enqueued image and drops the rest.
type Images struct {
	botID   string
	store   RequestStore
	sink    ImageSink
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewImages creates the image manager. breaker may be nil.
func NewImages(botID string, store RequestStore, sink ImageSink, breaker *resilience.CircuitBreaker) *Images {
	return &Images{botID: botID, store: store, sink: sink, breaker: breaker, logger: log.WithBot("mediaout", botID)}
}

// Progress plays the newest enqueued image and drops all older ones.
func (m *Images) Progress(ctx context.Context) error {
	var enqueued []bot.MediaRequest
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		enqueued, err = m.store.MediaRequests(ctx, m.botID, bot.MediaImage, bot.MediaEnqueued)
		return err
	})
	if err != nil {
		return fmt.Errorf("mediaout: list image requests: %w", err)
	}
	if len(enqueued) == 0 {
		return nil
	}

	newest := enqueued[len(enqueued)-1]
	if err := m.move(ctx, &newest, bot.MediaPlaying); err != nil {
		return err
	}
	if err := m.sink.SendRawImage(newest.Blob); err != nil {
		m.logger.Warn().Err(err).Str(log.FieldEvent, "mediaout.image_failed").Str(log.FieldRequestID, newest.ID).Msg("could not send image")
		if err := m.move(ctx, &newest, bot.MediaFailedToPlay); err != nil {
			return err
		}
	} else if err := m.move(ctx, &newest, bot.MediaFinished); err != nil {
		return err
	}

	for i := range enqueued[:len(enqueued)-1] {
		if err := m.move(ctx, &enqueued[i], bot.MediaDropped); err != nil {
			return err
		}
	}
	return nil
}

func (m *Images) move(ctx context.Context, req *bot.MediaRequest, to bot.MediaRequestState) error {
	if err := req.Move(to); err != nil {
		return err
	}
	if err := m.call(ctx, func(ctx context.Context) error {
		return m.store.SetMediaRequestState(ctx, req.ID, to)
	}); err != nil {
		return fmt.Errorf("mediaout: set %s to %s: %w", req.ID, to, err)
	}
	metrics.RecordMediaRequest(string(bot.MediaImage), string(to))
	return nil
}

func (m *Images) call(ctx context.Context, fn func(context.Context) error) error {
	if m.breaker == nil {
		return fn(ctx)
	}
	return m.breaker.Execute(ctx, fn)
}
