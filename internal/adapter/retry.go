// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
	"github.com/ManuGH/meetbot/internal/telemetry"
)

// RetryPolicy bounds the browser join loop.
type RetryPolicy struct {
	// MaxRetries caps counted retries.
	MaxRetries int
	// ExpectedPerRetry is how many expected failures count as one retry.
	ExpectedPerRetry int
	Backoff          time.Duration
	// AuthorizedUserTimeout is measured from the first attempt.
	AuthorizedUserTimeout time.Duration
}

// DefaultRetryPolicy returns the standard join budget.
func DefaultRetryPolicy(authorizedUserTimeout time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries:            3,
		ExpectedPerRetry:      5,
		Backoff:               time.Second,
		AuthorizedUserTimeout: authorizedUserTimeout,
	}
}

// JoinLoop repeats join attempts according to a RetryPolicy and turns the
// outcome into adapter events.
type JoinLoop struct {
	Base   *Base
	Policy RetryPolicy
	// Attempt performs one full join. A nil error means the bot is in.
	Attempt func(ctx context.Context) error
	// CaptureArtifacts collects debug captures. It may be nil.
	CaptureArtifacts func(ctx context.Context) map[string][]byte
	// Sleep defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run blocks until the bot joined, a failure was reported or ctx ended.
// It reports whether the join succeeded.
func (l *JoinLoop) Run(ctx context.Context) bool {
	sleep := l.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := l.Base.Logger()
	started := l.Base.Now()
	expected, retries := 0, 0

	for attempt := 1; retries <= l.Policy.MaxRetries; attempt++ {
		if l.Base.Stopped() || ctx.Err() != nil {
			return false
		}
		err := l.attempt(ctx, attempt)
		if err == nil {
			metrics.RecordJoinAttempt(l.Base.Platform(), "joined")
			logger.Info().Str(log.FieldEvent, "adapter.joined").Int(log.FieldAttempt, attempt).Msg("joined meeting")
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		var je *JoinError
		if !errors.As(err, &je) {
			je = Unexpected("unknown", err)
		}
		metrics.RecordJoinAttempt(l.Base.Platform(), je.Kind.String())
		ev := logger.Info().Err(err).Str(log.FieldEvent, "adapter.join_failed").Int(log.FieldAttempt, attempt).Str(log.FieldStep, je.Step).Str("kind", je.Kind.String())

		switch je.Kind {
		case JoinTerminal:
			ev.Str(log.FieldReason, string(je.Reason)).Msg("join failed, not retrying")
			var artifacts map[string][]byte
			if je.Reason == bot.SubCouldNotJoinLoginAttemptFailed {
				artifacts = l.capture(ctx)
			}
			out := CouldNotJoin(je.Reason, nil)
			out.Artifacts = artifacts
			l.Base.Emit(out)
			return false

		case JoinAuthorizedUserAbsent:
			if l.Base.Now().Sub(started) > l.Policy.AuthorizedUserTimeout {
				ev.Msg("authorized user never arrived")
				l.Base.Emit(CouldNotJoin(bot.SubCouldNotJoinAuthorizedUserAbsent, nil))
				return false
			}
			ev.Msg("authorized user not in meeting yet, retrying")

		case JoinExpected:
			if retries >= l.Policy.MaxRetries {
				ev.Msg("retry budget exhausted")
				l.uiElementNotFound(ctx, je)
				return false
			}
			expected++
			if l.Policy.ExpectedPerRetry > 0 && expected%l.Policy.ExpectedPerRetry == 0 {
				retries++
				if retries >= l.Policy.MaxRetries {
					ev.Int("expected_failures", expected).Msg("blocked by platform repeatedly")
					l.Base.Emit(Event{Kind: KindBlockedRepeatedly})
					return false
				}
			}
			ev.Int("expected_failures", expected).Msg("expected join failure, retrying")

		default:
			if retries >= l.Policy.MaxRetries {
				ev.Msg("retry budget exhausted")
				l.uiElementNotFound(ctx, je)
				return false
			}
			if l.Base.Stopped() {
				return false
			}
			retries++
			ev.Msg("unexpected join failure, retrying")
		}

		if err := sleep(ctx, l.Policy.Backoff); err != nil {
			return false
		}
	}
	return false
}

func (l *JoinLoop) attempt(ctx context.Context, n int) error {
	ctx, span := telemetry.Tracer("meetbot.adapter").Start(ctx, "adapter.join_attempt")
	defer span.End()
	span.SetAttributes(telemetry.BotAttributes(l.Base.BotID(), l.Base.Platform(), n)...)
	err := l.Attempt(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (l *JoinLoop) capture(ctx context.Context) map[string][]byte {
	if l.CaptureArtifacts == nil {
		return nil
	}
	return l.CaptureArtifacts(ctx)
}

func (l *JoinLoop) uiElementNotFound(ctx context.Context, je *JoinError) {
	inner := "exception_message_not_available"
	if je.Err != nil {
		inner = je.Err.Error()
	}
	l.Base.Emit(Event{
		Kind: KindUIElementNotFound,
		Metadata: map[string]any{
			"step":              je.Step,
			"current_time":      l.Base.Now().UTC().Format(time.RFC3339),
			"exception_type":    fmt.Sprintf("%T", je.Err),
			"exception_message": inner,
		},
		Artifacts: l.capture(ctx),
	})
}
