// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package autoleave decides when a bot should leave a meeting on its own.
package autoleave

import (
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
)

// Config is the automatic leave configuration. It is built once per bot and
// passed by value.
type Config struct {
	SilenceTimeout             time.Duration
	SilenceActivateAfter       time.Duration
	OnlyParticipantInMeeting   time.Duration
	WaitForHostToStartMeeting  time.Duration
	WaitingRoom                time.Duration
	AuthorizedUserNotInMeeting time.Duration
	// MaxUptime is optional; nil disables the rule.
	MaxUptime *time.Duration
	// EnableClosedCaptionsTimeout is optional; when set the bot leaves if
	// captions could not be enabled.
	EnableClosedCaptionsTimeout *time.Duration
	BotKeywords                 []string
}

// DefaultConfig returns the defaults used when a bot has no stored overrides.
func DefaultConfig() Config {
	return Config{
		SilenceTimeout:             600 * time.Second,
		SilenceActivateAfter:       1200 * time.Second,
		OnlyParticipantInMeeting:   60 * time.Second,
		WaitForHostToStartMeeting:  600 * time.Second,
		WaitingRoom:                900 * time.Second,
		AuthorizedUserNotInMeeting: 600 * time.Second,
	}
}

// FromSettings overlays stored settings on the defaults.
func FromSettings(s bot.AutomaticLeaveSettings) Config {
	cfg := DefaultConfig()
	seconds := func(v *int, dst *time.Duration) {
		if v != nil {
			*dst = time.Duration(*v) * time.Second
		}
	}
	optional := func(v *int) *time.Duration {
		if v == nil {
			return nil
		}
		d := time.Duration(*v) * time.Second
		return &d
	}
	seconds(s.SilenceTimeoutSeconds, &cfg.SilenceTimeout)
	seconds(s.SilenceActivateAfterSeconds, &cfg.SilenceActivateAfter)
	seconds(s.OnlyParticipantInMeetingTimeoutSeconds, &cfg.OnlyParticipantInMeeting)
	seconds(s.WaitForHostToStartMeetingTimeoutSeconds, &cfg.WaitForHostToStartMeeting)
	seconds(s.WaitingRoomTimeoutSeconds, &cfg.WaitingRoom)
	seconds(s.AuthorizedUserNotInMeetingTimeoutSeconds, &cfg.AuthorizedUserNotInMeeting)
	cfg.MaxUptime = optional(s.MaxUptimeSeconds)
	cfg.EnableClosedCaptionsTimeout = optional(s.EnableClosedCaptionsTimeoutSeconds)
	if len(s.BotKeywords) > 0 {
		cfg.BotKeywords = append([]string(nil), s.BotKeywords...)
	}
	return cfg
}
