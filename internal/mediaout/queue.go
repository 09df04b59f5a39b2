// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mediaout plays queued media requests through the meeting adapter.
// One request per media type plays at a time.
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

// RequestStore is the part of the store the queues need.
type RequestStore interface {
	MediaRequests(ctx context.Context, botID string, mediaType bot.MediaType, state bot.MediaRequestState) ([]bot.MediaRequest, error)
	SetMediaRequestState(ctx context.Context, requestID string, state bot.MediaRequestState) error
}

// Player plays one request at a time.
type Player interface {
	Start(ctx context.Context, req bot.MediaRequest) error
	Playing() bool
	Stop()
}

// Queue serializes audio or video requests against one player.
type Queue struct {
	botID     string
	mediaType bot.MediaType
	store     RequestStore
	player    Player
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger

	current *bot.MediaRequest
}

// NewQueue creates a queue. breaker may be nil.
func NewQueue(botID string, mediaType bot.MediaType, store RequestStore, player Player, breaker *resilience.CircuitBreaker) *Queue {
	return &Queue{
		botID:     botID,
		mediaType: mediaType,
		store:     store,
		player:    player,
		breaker:   breaker,
		logger:    log.WithBot("mediaout", botID).With().Str(log.FieldMediaType, string(mediaType)).Logger(),
	}
}

// Current returns the request being played, if any.
func (q *Queue) Current() (bot.MediaRequest, bool) {
	if q.current == nil {
		return bot.MediaRequest{}, false
	}
	return *q.current, true
}

// Monitor finishes the current request once the player stops and then
// starts the next one.
func (q *Queue) Monitor(ctx context.Context) error {
	if q.current != nil {
		if q.player.Playing() {
			return nil
		}
		req := q.current
		q.current = nil
		q.logger.Info().Str(log.FieldEvent, "mediaout.finished").Str(log.FieldRequestID, req.ID).Msg("media request finished")
		if err := q.move(ctx, req, bot.MediaFinished); err != nil {
			return err
		}
		return q.Progress(ctx)
	}
	return nil
}

// Progress starts the oldest enqueued request when nothing is playing.
func (q *Queue) Progress(ctx context.Context) error {
	if q.current != nil {
		return nil
	}
	var enqueued, playing []bot.MediaRequest
	err := q.call(ctx, func(ctx context.Context) error {
		var err error
		if enqueued, err = q.store.MediaRequests(ctx, q.botID, q.mediaType, bot.MediaEnqueued); err != nil {
			return err
		}
		playing, err = q.store.MediaRequests(ctx, q.botID, q.mediaType, bot.MediaPlaying)
		return err
	})
	if err != nil {
		return fmt.Errorf("mediaout: list %s requests: %w", q.mediaType, err)
	}
	if len(enqueued) == 0 {
		return nil
	}
	if len(playing) > 0 {
		q.logger.Info().Str(log.FieldRequestID, playing[0].ID).Msg("request already playing, not starting another")
		return nil
	}

	req := enqueued[0]
	if err := q.move(ctx, &req, bot.MediaPlaying); err != nil {
		return err
	}
	if err := q.player.Start(ctx, req); err != nil {
		q.logger.Warn().Err(err).Str(log.FieldEvent, "mediaout.play_failed").Str(log.FieldRequestID, req.ID).Msg("could not play media request")
		return q.move(ctx, &req, bot.MediaFailedToPlay)
	}
	q.logger.Info().Str(log.FieldEvent, "mediaout.playing").Str(log.FieldRequestID, req.ID).Msg("media request playing")
	q.current = &req
	return nil
}

// Stop halts playback. The current request keeps its playing state.
func (q *Queue) Stop() {
	q.player.Stop()
}

func (q *Queue) move(ctx context.Context, req *bot.MediaRequest, to bot.MediaRequestState) error {
	if err := req.Move(to); err != nil {
		return err
	}
	if err := q.call(ctx, func(ctx context.Context) error {
		return q.store.SetMediaRequestState(ctx, req.ID, to)
	}); err != nil {
		return fmt.Errorf("mediaout: set %s to %s: %w", req.ID, to, err)
	}
	metrics.RecordMediaRequest(string(q.mediaType), string(to))
	return nil
}

func (q *Queue) call(ctx context.Context, fn func(context.Context) error) error {
	if q.breaker == nil {
		return fn(ctx)
	}
	return q.breaker.Execute(ctx, fn)
}
