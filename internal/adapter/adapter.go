// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package adapter defines the contract between the orchestrator and the
// per-platform meeting clients, plus the behaviour they share.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
)

// ErrUnsupported is returned by adapters for capabilities their platform
// does not offer.
var ErrUnsupported = errors.New("adapter: not supported on this platform")

// Adapter is one meeting client. Methods are called from the orchestrator
// loop, except SendRawAudio, which playback goroutines call.
type Adapter interface {
	// Init starts joining. It must not block; progress is reported as events.
	Init(ctx context.Context) error
	Leave(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Cleanup(ctx context.Context) error

	SendRawAudio(b []byte, sampleRate int) error
	SendRawImage(b []byte) error
	SendVideo(url string) error
	IsSentVideoStillPlaying() bool

	GetParticipant(id string) (bot.Participant, bool)
	PauseRecording() error
	ResumeRecording() error
	CheckAutoLeaveConditions()
	AdmitFromWaitingRoom() error
	ChangeGalleryViewPage(next bool) error
	IsReadyToSendChatMessages() bool
	SendChatMessage(text, toUserUUID string) error
	UpdateClosedCaptionsLanguage(language string) error

	// StagedJoinDelay is how long before join_at a staged bot starts joining.
	StagedJoinDelay() time.Duration
	// FirstBufferTimestampMs is the wall clock time of the first recorded
	// media buffer, when known.
	FirstBufferTimestampMs() (int64, bool)
}

// Events is the orchestrator end of the adapter event channel.
type Events interface {
	// Post delivers an event from an adapter goroutine. It blocks while the
	// loop is saturated.
	Post(ctx context.Context, ev Event) error
	// PostLocal delivers an event raised while the loop is calling into the
	// adapter. It never blocks.
	PostLocal(ev Event)
}
