// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package control delivers operator commands to a running bot over Redis
// pub/sub.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Name is a control command.
type Name string

const (
	Sync                          Name = "sync"
	SyncMediaRequests             Name = "sync_media_requests"
	SyncVoiceAgentSettings        Name = "sync_voice_agent_settings"
	SyncTranscriptionSettings     Name = "sync_transcription_settings"
	SyncChatMessageRequests       Name = "sync_chat_message_requests"
	PauseRecording                Name = "pause_recording"
	ResumeRecording               Name = "resume_recording"
	AdmitFromWaitingRoom          Name = "admit_from_waiting_room"
	ChangeGalleryViewPageNext     Name = "change_gallery_view_page_next"
	ChangeGalleryViewPagePrevious Name = "change_gallery_view_page_previous"
)

var known = map[Name]bool{
	Sync:                          true,
	SyncMediaRequests:             true,
	SyncVoiceAgentSettings:        true,
	SyncTranscriptionSettings:     true,
	SyncChatMessageRequests:       true,
	PauseRecording:                true,
	ResumeRecording:               true,
	AdmitFromWaitingRoom:          true,
	ChangeGalleryViewPageNext:     true,
	ChangeGalleryViewPagePrevious: true,
}

// Known reports whether the bot acts on n.
func (n Name) Known() bool { return known[n] }

// Command is one message on the control topic.
type Command struct {
	Name Name `json:"command"`
}

// ErrMalformed is returned for payloads without a command name.
var ErrMalformed = errors.New("control: malformed command")

// Decode parses a control payload.
func Decode(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if c.Name == "" {
		return Command{}, ErrMalformed
	}
	return c, nil
}

// Encode is the inverse of Decode.
func Encode(c Command) ([]byte, error) { return json.Marshal(c) }

// Topic is the pub/sub channel for a bot.
func Topic(botID string) string { return "bot_" + botID }
