// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package adapter

import (
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/mediain"
)

// Kind names an adapter event.
type Kind string

// Lifecycle events.
const (
	KindJoinedMeeting                 Kind = "joined_meeting"
	KindCouldNotJoin                  Kind = "could_not_join"
	KindMeetingEnded                  Kind = "meeting_ended"
	KindRemovedFromMeeting            Kind = "removed_from_meeting"
	KindRecordingPermissionGranted    Kind = "recording_permission_granted"
	KindRecordingPermissionDenied     Kind = "recording_permission_denied"
	KindPutInWaitingRoom              Kind = "put_in_waiting_room"
	KindJoiningBreakoutRoom           Kind = "joining_breakout_room"
	KindLeavingBreakoutRoom           Kind = "leaving_breakout_room"
	KindReadyToSendChat               Kind = "ready_to_send_chat"
	KindReadyToShowImage              Kind = "ready_to_show_image"
	KindCouldNotEnableCaptions        Kind = "could_not_enable_captions"
	KindRequestedLeave                Kind = "requested_leave"
	KindUIElementNotFound             Kind = "ui_element_not_found"
	KindBlockedRepeatedly             Kind = "blocked_repeatedly"
	KindAppSessionConnected           Kind = "app_session_connected"
	KindAppSessionDisconnectRequested Kind = "app_session_disconnect_requested"
	KindAppSessionDisconnected        Kind = "app_session_disconnected"
)

// Data events.
const (
	KindParticipantEvent Kind = "participant_event"
	KindChatMessage      Kind = "chat_message"
	KindCaption          Kind = "caption"
	KindAudioChunk       Kind = "audio_chunk"
	KindMixedAudio       Kind = "mixed_audio"
	KindEncodedMedia     Kind = "encoded_media"
)

// AudioChunk is 16-bit mono PCM from one participant.
type AudioChunk struct {
	ParticipantUUID string
	At              time.Time
	PCM             []byte
	SampleRate      int
}

// Event is everything an adapter reports. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind Kind
	// Reason is the API sub-type for could_not_join, permission denied and
	// requested_leave.
	Reason   bot.SubType
	Metadata map[string]any

	Participant *bot.ParticipantEvent
	Chat        *bot.ChatMessage
	Caption     *mediain.Caption
	Audio       *AudioChunk
	// Data carries mixed audio (16-bit PCM) or encoded media.
	Data []byte
	// Artifacts are debug captures keyed by kind ("screenshot", "mhtml").
	Artifacts map[string][]byte
}

// IsData reports whether the event carries media or meeting content rather
// than a lifecycle change.
func (e Event) IsData() bool {
	switch e.Kind {
	case KindParticipantEvent, KindChatMessage, KindCaption, KindAudioChunk, KindMixedAudio, KindEncodedMedia:
		return true
	}
	return false
}

// CouldNotJoin builds a could_not_join event.
func CouldNotJoin(reason bot.SubType, metadata map[string]any) Event {
	return Event{Kind: KindCouldNotJoin, Reason: reason, Metadata: metadata}
}

// RequestedLeave builds a requested_leave event.
func RequestedLeave(reason bot.SubType) Event {
	return Event{Kind: KindRequestedLeave, Reason: reason}
}
