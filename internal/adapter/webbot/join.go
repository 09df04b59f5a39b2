// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
)

// Statuses returned by join step scripts. Anything else is treated as an
// unexpected failure and its text is kept for debugging.
const (
	StatusDone                 = "done"
	StatusPending              = "pending"
	StatusWaitingRoom          = "waiting_room"
	StatusWaitingForHost       = "waiting_for_host"
	StatusLoginRequired        = "login_required"
	StatusLoginFailed          = "login_failed"
	StatusDenied               = "denied"
	StatusNotFound             = "meeting_not_found"
	StatusIncorrectPassword    = "incorrect_password"
	StatusBlocked              = "blocked"
	StatusAuthorizedUserAbsent = "authorized_user_absent"
)

// ErrStepTimeout is wrapped by join errors for steps that stayed pending.
var ErrStepTimeout = errors.New("webbot: join step timed out")

// Step is one stage of joining. Script is evaluated repeatedly until it
// returns a final status.
type Step struct {
	Name   string
	Script string
	Args   []any
	// Timeout bounds how long the step may stay pending. Zero waits until
	// the page reports something else.
	Timeout time.Duration
	// Optional steps log failures instead of aborting the join.
	Optional bool
}

// pageCall builds a step script calling a function the page payload
// registers on window.meetbotJoin.
func pageCall(fn string) string {
	return "const f = window.meetbotJoin && window.meetbotJoin." + fn +
		"; return f ? f.apply(null, arguments) : \"" + StatusPending + "\";"
}

type stepRunner struct {
	driver      Driver
	poll        time.Duration
	waitingRoom time.Duration
	waitForHost time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zerolog.Logger
	// onWaitingRoom is called the first time a step reports the waiting room.
	onWaitingRoom func()
}

func (r *stepRunner) run(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		err := r.runStep(ctx, step)
		if err == nil {
			continue
		}
		var je *adapter.JoinError
		if step.Optional && errors.As(err, &je) && je.Kind == adapter.JoinUnexpected {
			r.logger.Warn().Err(err).Str(log.FieldStep, step.Name).Msg("optional join step failed")
			continue
		}
		return err
	}
	return nil
}

func (r *stepRunner) runStep(ctx context.Context, step Step) error {
	started := r.now()
	var waitingRoomSince, waitingForHostSince time.Time
	for {
		raw, err := r.driver.Execute(ctx, step.Script, step.Args...)
		if err != nil {
			return adapter.Unexpected(step.Name, err)
		}
		status := decodeStatus(raw)
		now := r.now()

		switch status {
		case StatusDone:
			return nil
		case StatusPending:
			if step.Timeout > 0 && now.Sub(started) >= step.Timeout {
				return adapter.Unexpected(step.Name, fmt.Errorf("%w after %s", ErrStepTimeout, step.Timeout))
			}
		case StatusWaitingRoom:
			if waitingRoomSince.IsZero() {
				waitingRoomSince = now
				if r.onWaitingRoom != nil {
					r.onWaitingRoom()
				}
			}
			if now.Sub(waitingRoomSince) >= r.waitingRoom {
				return adapter.Terminal(bot.SubCouldNotJoinWaitingRoomTimeoutExceeded, step.Name, nil)
			}
		case StatusWaitingForHost:
			if waitingForHostSince.IsZero() {
				waitingForHostSince = now
			}
			if now.Sub(waitingForHostSince) >= r.waitForHost {
				return adapter.Terminal(bot.SubCouldNotJoinWaitingForHost, step.Name, nil)
			}
		case StatusLoginRequired:
			return adapter.Terminal(bot.SubCouldNotJoinLoginRequired, step.Name, nil)
		case StatusLoginFailed:
			return adapter.Terminal(bot.SubCouldNotJoinLoginAttemptFailed, step.Name, nil)
		case StatusDenied:
			return adapter.Terminal(bot.SubCouldNotJoinRequestToJoinDenied, step.Name, nil)
		case StatusNotFound:
			return adapter.Terminal(bot.SubCouldNotJoinMeetingNotFound, step.Name, nil)
		case StatusIncorrectPassword:
			return adapter.Terminal(bot.SubCouldNotJoinUnableToConnect, step.Name, nil)
		case StatusBlocked:
			return adapter.Expected(step.Name, errors.New("blocked by platform"))
		case StatusAuthorizedUserAbsent:
			return adapter.AuthorizedUserAbsent(step.Name)
		default:
			return adapter.Unexpected(step.Name, fmt.Errorf("page reported %q", status))
		}

		if err := r.sleep(ctx, r.poll); err != nil {
			return adapter.Unexpected(step.Name, err)
		}
	}
}

func decodeStatus(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return s
}
