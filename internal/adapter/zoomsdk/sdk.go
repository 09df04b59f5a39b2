// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package zoomsdk

import (
	"errors"
	"time"
)

// Status is the native meeting service status.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusWaitingForHost
	StatusInMeeting
	StatusDisconnecting
	StatusReconnecting
	StatusFailed
	StatusEnded
	StatusInWaitingRoom
	StatusJoinBreakoutRoom
	StatusLeaveBreakoutRoom
)

var statusNames = [...]string{
	"idle", "connecting", "waiting_for_host", "in_meeting", "disconnecting",
	"reconnecting", "failed", "ended", "in_waiting_room", "join_breakout_room",
	"leave_breakout_room",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Meeting failure codes reported with StatusFailed. The values match the
// binding's MeetingFailCode enum.
const (
	FailUnableToJoinExternalMeeting = 63
	FailUnknown                     = 65535
)

// RequestStatus answers a local recording privilege request.
type RequestStatus int

const (
	RequestGranted RequestStatus = iota
	RequestDenied
	RequestTimedOut
)

// User is a meeting attendee as the SDK reports it.
type User struct {
	ID     string
	Name   string
	IsHost bool
	IsMe   bool
}

// ChatMessage is a received chat line.
type ChatMessage struct {
	ID            string
	SenderID      string
	Text          string
	Time          time.Time
	ToAll         bool
	ToAllPanelist bool
	ToWaitingRoom bool
}

// JoinParams are the attendee join parameters.
type JoinParams struct {
	MeetingNumber     string
	Password          string
	DisplayName       string
	ZAKToken          string
	JoinToken         string
	AppPrivilegeToken string
	OnBehalfToken     string
}

// SDK is the subset of the native meeting SDK the adapter drives. A binding
// calls back into Callbacks from its own threads.
type SDK interface {
	Auth(jwt string) error
	Join(p JoinParams) error
	Leave() error
	Status() Status
	Users() []User

	JoinVoip() error
	CanStartRawRecording() bool
	// HostCanGrantRecording is false when the host's client cannot answer a
	// recording privilege request.
	HostCanGrantRecording() bool
	RequestRecordingPrivilege() error
	StartRawRecording() error

	SendAudio(pcm []byte, sampleRate int) error
	SendImage(b []byte) error
	SendChat(text, toUserID string) error
	AdmitAll() error

	Close() error
}

// Callbacks receives the SDK's asynchronous notifications.
type Callbacks interface {
	OnAuthResult(ok bool, code int)
	OnMeetingStatus(s Status, result int)
	OnUsersJoined(users []User)
	OnUsersLeft(ids []string)
	OnChatMessage(m ChatMessage)
	OnOneWayAudio(userID string, pcm []byte)
	OnMixedAudio(pcm []byte)
	OnRecordingPrivilegeChanged(canRecord bool)
	OnRecordingRequestStatus(s RequestStatus)
}

// Opener loads the SDK and registers callbacks.
type Opener func(cb Callbacks) (SDK, error)

// ErrNoBinding is returned by Init when no SDK binding was configured.
var ErrNoBinding = errors.New("zoomsdk: no native SDK binding configured")
