// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package autoleave

import (
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
)

// Snapshot is everything the policy looks at. Zero times mean "unset".
type Snapshot struct {
	Now                  time.Time
	JoinedAt             time.Time
	LastAudioAt          time.Time
	OnlyParticipantSince time.Time
	SilenceActivated     bool
	CaptionsFailed       bool
}

// Decision is the result of one evaluation.
type Decision struct {
	Leave  bool
	Reason bot.SubType
}

// Evaluate applies the leave rules in priority order and returns the
// decision plus the snapshot with silence activation applied. It has no
// side effects.
func Evaluate(cfg Config, s Snapshot) (Decision, Snapshot) {
	if !s.OnlyParticipantSince.IsZero() && s.Now.Sub(s.OnlyParticipantSince) >= cfg.OnlyParticipantInMeeting {
		return Decision{Leave: true, Reason: bot.SubLeaveAutoOnlyParticipant}, s
	}

	if !s.SilenceActivated && !s.JoinedAt.IsZero() && s.Now.Sub(s.JoinedAt) >= cfg.SilenceActivateAfter {
		s.SilenceActivated = true
		s.LastAudioAt = s.Now
	}
	if s.SilenceActivated && !s.LastAudioAt.IsZero() && s.Now.Sub(s.LastAudioAt) >= cfg.SilenceTimeout {
		return Decision{Leave: true, Reason: bot.SubLeaveAutoSilence}, s
	}

	if cfg.MaxUptime != nil && !s.JoinedAt.IsZero() && s.Now.Sub(s.JoinedAt) >= *cfg.MaxUptime {
		return Decision{Leave: true, Reason: bot.SubLeaveAutoMaxUptime}, s
	}

	if s.CaptionsFailed && cfg.EnableClosedCaptionsTimeout != nil {
		return Decision{Leave: true, Reason: bot.SubLeaveAutoCaptionsUnavailable}, s
	}
	return Decision{}, s
}
