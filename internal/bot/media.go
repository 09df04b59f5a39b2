// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bot

import (
	"fmt"
	"time"
)

// MediaType of an outbound media request.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
	MediaImage MediaType = "image"
)

// MediaRequestState is the playback lifecycle of a media request.
type MediaRequestState string

const (
	MediaEnqueued     MediaRequestState = "enqueued"
	MediaPlaying      MediaRequestState = "playing"
	MediaFinished     MediaRequestState = "finished"
	MediaFailedToPlay MediaRequestState = "failed_to_play"
	MediaDropped      MediaRequestState = "dropped"
)

// MediaRequest is a queued instruction to play media through the bot.
type MediaRequest struct {
	ID         string
	Type       MediaType
	State      MediaRequestState
	CreatedAt  time.Time
	Blob       []byte
	URL        string
	SampleRate int
}

// CanMoveMedia reports whether a media request may move from one state to another.
func CanMoveMedia(from, to MediaRequestState) bool {
	switch to {
	case MediaPlaying:
		return from == MediaEnqueued
	case MediaFinished, MediaFailedToPlay:
		return from == MediaPlaying
	case MediaDropped:
		return from == MediaEnqueued || from == MediaPlaying
	}
	return false
}

// Move advances r to state or returns an error for an illegal move.
func (r *MediaRequest) Move(to MediaRequestState) error {
	if !CanMoveMedia(r.State, to) {
		return fmt.Errorf("media request %s: illegal move %s -> %s", r.ID, r.State, to)
	}
	r.State = to
	return nil
}

// UtteranceSource identifies where an utterance came from.
type UtteranceSource string

const (
	SourcePerParticipantAudio UtteranceSource = "per_participant_audio"
	SourceClosedCaption       UtteranceSource = "closed_caption_from_platform"
)

// Utterance is one transcribable unit of speech or caption.
type Utterance struct {
	ID              string
	ParticipantUUID string
	Source          UtteranceSource
	// SourceUUID is set for caption utterances and keys upserts.
	SourceUUID    string
	TimestampMs   int64
	DurationMs    int64
	SampleRate    int
	Audio         []byte
	Transcription map[string]any
	Failure       map[string]any
}

// Terminal reports whether the utterance has a transcript or a failure.
func (u Utterance) Terminal() bool {
	return u.Transcription != nil || u.Failure != nil
}
