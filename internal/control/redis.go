// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
)

// Handler receives known commands. It runs on the subscriber goroutine and
// must hand work off rather than block.
type Handler func(ctx context.Context, cmd Command) error

// RedisChannel subscribes to a bot's control topic and resubscribes after
// connection loss.
type RedisChannel struct {
	client  redis.UniversalClient
	topic   string
	handle  Handler
	logger  zerolog.Logger
	backoff *rate.Limiter

	connected atomic.Bool
}

// NewClient builds a client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("control: parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	return redis.NewClient(opts), nil
}

// NewRedisChannel creates a subscriber for botID.
func NewRedisChannel(client redis.UniversalClient, botID string, handle Handler) *RedisChannel {
	return &RedisChannel{
		client:  client,
		topic:   Topic(botID),
		handle:  handle,
		logger:  log.WithBot("control", botID),
		backoff: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Connected reports whether the subscription is live.
func (c *RedisChannel) Connected() bool { return c.connected.Load() }

// Run blocks until ctx is done.
func (c *RedisChannel) Run(ctx context.Context) error {
	for {
		if err := c.backoff.Wait(ctx); err != nil {
			return nil
		}
		err := c.subscribe(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn().Err(err).Str(log.FieldEvent, "control.disconnected").Msg("control channel lost, resubscribing")
	}
}

func (c *RedisChannel) subscribe(ctx context.Context) error {
	sub := c.client.Subscribe(ctx, c.topic)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	c.connected.Store(true)
	c.logger.Info().Str(log.FieldEvent, "control.subscribed").Str("topic", c.topic).Msg("listening for commands")

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		c.dispatch(ctx, msg.Payload)
	}
}

func (c *RedisChannel) dispatch(ctx context.Context, payload string) {
	cmd, err := Decode([]byte(payload))
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEvent, "control.malformed").Msg("ignoring control message")
		return
	}
	metrics.IncControlCommand(string(cmd.Name), cmd.Name.Known())
	if !cmd.Name.Known() {
		c.logger.Warn().Str(log.FieldCommand, string(cmd.Name)).Str(log.FieldEvent, "control.unknown").Msg("unknown command")
		return
	}
	c.logger.Info().Str(log.FieldCommand, string(cmd.Name)).Str(log.FieldEvent, "control.received").Msg("command received")
	if err := c.handle(ctx, cmd); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldCommand, string(cmd.Name)).Msg("command not delivered")
	}
}

// Publish sends cmd to botID's topic.
func Publish(ctx context.Context, client redis.UniversalClient, botID string, cmd Command) error {
	payload, err := Encode(cmd)
	if err != nil {
		return err
	}
	return client.Publish(ctx, Topic(botID), payload).Err()
}
