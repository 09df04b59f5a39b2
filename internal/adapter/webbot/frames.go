// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FrameType is the little-endian uint32 prefix of every websocket message
// the page sends.
type FrameType uint32

const (
	FrameJSON                FrameType = 1
	FrameVideo               FrameType = 2
	FrameMixedAudio          FrameType = 3
	FrameEncodedMedia        FrameType = 4
	FramePerParticipantAudio FrameType = 5
)

func (t FrameType) String() string {
	switch t {
	case FrameJSON:
		return "json"
	case FrameVideo:
		return "video"
	case FrameMixedAudio:
		return "mixed_audio"
	case FrameEncodedMedia:
		return "encoded_media"
	case FramePerParticipantAudio:
		return "participant_audio"
	}
	return "unknown"
}

var (
	ErrShortFrame = errors.New("webbot: frame shorter than its header")
	ErrBadFrameID = errors.New("webbot: participant id overruns frame")
)

// SplitFrame returns the frame type and the bytes after the prefix.
func SplitFrame(b []byte) (FrameType, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrShortFrame
	}
	return FrameType(binary.LittleEndian.Uint32(b[:4])), b[4:], nil
}

// ParticipantAudio splits a per-participant audio payload into the
// participant id and its float32 samples.
func ParticipantAudio(payload []byte) (string, []byte, error) {
	if len(payload) < 1 {
		return "", nil, ErrShortFrame
	}
	n := int(payload[0])
	if 1+n > len(payload) {
		return "", nil, ErrBadFrameID
	}
	return string(payload[1 : 1+n]), payload[1+n:], nil
}

// Message is the envelope of a JSON frame. Only the fields used by Type are
// populated.
type Message struct {
	Type string `json:"type"`

	Format  *AudioFormat `json:"format,omitempty"`
	Caption *CaptionData `json:"caption,omitempty"`

	NewUsers     []User `json:"newUsers,omitempty"`
	RemovedUsers []User `json:"removedUsers,omitempty"`
	UpdatedUsers []User `json:"updatedUsers,omitempty"`

	IsSilent *bool           `json:"isSilent,omitempty"`
	Change   string          `json:"change,omitempty"`
	Reason   json.RawMessage `json:"reason,omitempty"`

	// ChatMessage fields.
	MessageUUID     string `json:"message_uuid,omitempty"`
	ParticipantUUID string `json:"participant_uuid,omitempty"`
	Text            string `json:"text,omitempty"`
	TimestampMs     int64  `json:"timestamp,omitempty"`
	ToBot           bool   `json:"to_bot,omitempty"`
}

// Message types sent by the page.
const (
	MsgAudioFormatUpdate         = "AudioFormatUpdate"
	MsgCaptionUpdate             = "CaptionUpdate"
	MsgChatMessage               = "ChatMessage"
	MsgUsersUpdate               = "UsersUpdate"
	MsgSilenceStatus             = "SilenceStatus"
	MsgChatStatusChange          = "ChatStatusChange"
	MsgMeetingStatusChange       = "MeetingStatusChange"
	MsgRecordingPermissionChange = "RecordingPermissionChange"
	MsgClosedCaptionStatusChange = "ClosedCaptionStatusChange"
)

// AudioFormat describes the audio the page captures.
type AudioFormat struct {
	SampleRate       int    `json:"sampleRate"`
	NumberOfChannels int    `json:"numberOfChannels"`
	Format           string `json:"format"`
}

// CaptionData is one caption as the page reports it.
type CaptionData struct {
	CaptionID   string `json:"captionId"`
	DeviceID    string `json:"deviceId"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp"`
	DurationMs  int64  `json:"duration"`
}

// User is a roster entry from a UsersUpdate message.
type User struct {
	DeviceID        string `json:"deviceId"`
	FullName        string `json:"fullName"`
	IsCurrentUser   bool   `json:"isCurrentUser"`
	IsHost          bool   `json:"isHost"`
	HumanizedStatus string `json:"humanized_status"`
	MeetingID       string `json:"meetingId,omitempty"`
}

// InMeeting reports whether the roster status counts as present.
func (u User) InMeeting() bool { return u.HumanizedStatus == "in_meeting" }

// FailedToJoinReason is the payload of a failed_to_join status change.
type FailedToJoinReason struct {
	Method       string `json:"method"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// ResultCode formats the platform error the way it is stored.
func (r FailedToJoinReason) ResultCode() string {
	return fmt.Sprintf("%d: %s", r.ErrorCode, r.ErrorMessage)
}

// DecodeMessage parses a JSON frame payload.
func DecodeMessage(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("webbot: decode json frame: %w", err)
	}
	return m, nil
}

// ChatTime converts the page timestamp (ms since epoch) to a time.
func (m Message) ChatTime() time.Time {
	if m.TimestampMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.TimestampMs).UTC()
}
