// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bot holds the meeting bot domain model and its lifecycle state machine.
package bot

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// MeetingType is the platform hosting the meeting.
type MeetingType string

const (
	MeetingZoom       MeetingType = "zoom"
	MeetingGoogleMeet MeetingType = "google_meet"
	MeetingTeams      MeetingType = "teams"
	MeetingUnknown    MeetingType = ""
)

// MeetingTypeFromURL derives the platform from a meeting URL.
func MeetingTypeFromURL(raw string) MeetingType {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return MeetingUnknown
	}
	host, err := idna.Lookup.ToASCII(strings.TrimSuffix(u.Hostname(), "."))
	if err != nil {
		return MeetingUnknown
	}
	host = strings.ToLower(host)
	switch {
	case host == "zoom.us" || strings.HasSuffix(host, ".zoom.us") || strings.HasSuffix(host, ".zoomgov.com"):
		return MeetingZoom
	case host == "meet.google.com":
		return MeetingGoogleMeet
	case host == "teams.microsoft.com" || host == "teams.live.com" || strings.HasSuffix(host, ".teams.microsoft.com"):
		return MeetingTeams
	}
	return MeetingUnknown
}

// Bot is the persisted bot record as seen by the orchestrator.
type Bot struct {
	ID         string
	MeetingURL string
	State      State
	JoinAt     *time.Time
	CreatedAt  time.Time
	Settings   Settings

	// LastEventOldState is the old state of the most recent lifecycle event.
	LastEventOldState State
	LastEventType     EventType
}

// StartTime is join_at if scheduled, otherwise the creation time.
func (b Bot) StartTime() time.Time {
	if b.JoinAt != nil {
		return *b.JoinAt
	}
	return b.CreatedAt
}

// MeetingType derives the platform from the meeting URL.
func (b Bot) MeetingType() MeetingType {
	return MeetingTypeFromURL(b.MeetingURL)
}

// Settings are the bot's stored options. Zero values mean "use the default".
type Settings struct {
	DisplayName    string                 `json:"display_name"`
	AutomaticLeave AutomaticLeaveSettings `json:"automatic_leave_settings"`
	Recording      RecordingSettings      `json:"recording_settings"`
	Transcription  TranscriptionSettings  `json:"transcription_settings"`
	RTMP           RTMPSettings           `json:"rtmp_settings"`
	Websocket      WebsocketSettings      `json:"websocket_settings"`
	VoiceAgent     VoiceAgentSettings     `json:"voice_agent_settings"`
	Zoom           ZoomSettings           `json:"zoom_settings"`
	Debug          DebugSettings          `json:"debug_settings"`
}

// AutomaticLeaveSettings are the stored auto-leave knobs in seconds.
type AutomaticLeaveSettings struct {
	SilenceTimeoutSeconds                    *int     `json:"silence_timeout_seconds,omitempty"`
	SilenceActivateAfterSeconds              *int     `json:"silence_activate_after_seconds,omitempty"`
	OnlyParticipantInMeetingTimeoutSeconds   *int     `json:"only_participant_in_meeting_timeout_seconds,omitempty"`
	WaitForHostToStartMeetingTimeoutSeconds  *int     `json:"wait_for_host_to_start_meeting_timeout_seconds,omitempty"`
	WaitingRoomTimeoutSeconds                *int     `json:"waiting_room_timeout_seconds,omitempty"`
	MaxUptimeSeconds                         *int     `json:"max_uptime_seconds,omitempty"`
	EnableClosedCaptionsTimeoutSeconds       *int     `json:"enable_closed_captions_timeout_seconds,omitempty"`
	AuthorizedUserNotInMeetingTimeoutSeconds *int     `json:"authorized_user_not_in_meeting_timeout_seconds,omitempty"`
	BotKeywords                              []string `json:"bot_keywords,omitempty"`
}

// RecordingType selects what the bot records.
type RecordingType string

const (
	RecordingAudioAndVideo RecordingType = "audio_and_video"
	RecordingAudioOnly     RecordingType = "audio_only"
	RecordingNone          RecordingType = "no_recording"
)

// RecordingSettings control local recording.
type RecordingSettings struct {
	Type RecordingType `json:"type"`
	// ExternalStorage uploads to the customer bucket instead of the default one.
	ExternalStorage bool `json:"external_storage"`
}

// TranscriptionProvider names the transcription backend. Only the values the
// orchestrator branches on are listed.
type TranscriptionProvider string

const (
	TranscriptionClosedCaptions TranscriptionProvider = "closed_caption_from_platform"
	TranscriptionSarvam         TranscriptionProvider = "sarvam"
	TranscriptionNone           TranscriptionProvider = ""
)

// TranscriptionSettings control how utterances are produced.
type TranscriptionSettings struct {
	Provider             TranscriptionProvider `json:"provider"`
	Streaming            bool                  `json:"streaming"`
	GroupCaptions        bool                  `json:"group_captions"`
	TeamsCaptionLanguage string                `json:"teams_closed_captions_language,omitempty"`
	MeetCaptionLanguage  string                `json:"google_meet_closed_captions_language,omitempty"`
}

// RTMPSettings configure outbound streaming.
type RTMPSettings struct {
	DestinationURL string `json:"destination_url,omitempty"`
}

// WebsocketSettings configure realtime audio delivery to a customer endpoint.
type WebsocketSettings struct {
	AudioURL        string `json:"audio_url,omitempty"`
	AudioSampleRate int    `json:"audio_sample_rate,omitempty"`
}

// VoiceAgentSettings configure the webpage streamer used as bot camera/mic.
type VoiceAgentSettings struct {
	URL                    string `json:"url,omitempty"`
	VideoOutputDestination string `json:"video_output_destination,omitempty"`
}

// ZoomSettings carry Zoom specific switches.
type ZoomSettings struct {
	UseWebAdapter bool   `json:"use_web_adapter"`
	UseRTMS       bool   `json:"use_rtms"`
	OnBehalfToken string `json:"onbehalf_token,omitempty"`
	// RTMS stream coordinates, delivered by the meeting.rtms_started webhook.
	RTMSMeetingUUID  string `json:"rtms_meeting_uuid,omitempty"`
	RTMSStreamID     string `json:"rtms_stream_id,omitempty"`
	RTMSSignalingURL string `json:"rtms_server_url,omitempty"`
}

// DebugSettings enable extra artifacts.
type DebugSettings struct {
	CreateDebugRecording bool `json:"create_debug_recording"`
}

// Participant is a meeting participant as tracked by an adapter.
type Participant struct {
	UUID     string `json:"participant_uuid"`
	UserUUID string `json:"participant_user_uuid,omitempty"`
	FullName string `json:"participant_full_name"`
	IsTheBot bool   `json:"participant_is_the_bot"`
	IsHost   bool   `json:"participant_is_host"`
	Active   bool   `json:"active"`
}

// ParticipantEventType is a participant presence change.
type ParticipantEventType string

const (
	ParticipantJoin   ParticipantEventType = "join"
	ParticipantLeave  ParticipantEventType = "leave"
	ParticipantUpdate ParticipantEventType = "update"
)

// ParticipantEvent is a presence change reported by an adapter.
type ParticipantEvent struct {
	ParticipantUUID string               `json:"participant_uuid"`
	Type            ParticipantEventType `json:"event_type"`
	Data            map[string]any       `json:"event_data,omitempty"`
	TimestampMs     int64                `json:"timestamp_ms"`
}

// HostChange returns the new host flag carried by an update event, if any.
func (e ParticipantEvent) HostChange() (bool, bool) {
	raw, ok := e.Data["isHost"].(map[string]any)
	if !ok {
		return false, false
	}
	after, ok := raw["after"].(bool)
	return after, ok
}

// ChatMessage is a chat message received in the meeting.
type ChatMessage struct {
	MessageUUID     string    `json:"message_uuid"`
	ParticipantUUID string    `json:"participant_uuid"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	ToBot           bool      `json:"to_bot"`
}

// ChatMessageRequestState tracks an outbound chat request.
type ChatMessageRequestState string

const (
	ChatRequestEnqueued ChatMessageRequestState = "enqueued"
	ChatRequestSent     ChatMessageRequestState = "sent"
	ChatRequestFailed   ChatMessageRequestState = "failed"
)

// ChatMessageRequest asks the bot to post a chat message.
type ChatMessageRequest struct {
	ID         string
	Message    string
	ToUserUUID string
	State      ChatMessageRequestState
	CreatedAt  time.Time
}

// LifecycleEvent is a persisted state change.
type LifecycleEvent struct {
	ID        string
	BotID     string
	Type      EventType
	SubType   SubType
	OldState  State
	NewState  State
	Metadata  map[string]any
	CreatedAt time.Time
}

// LogLevel of a bot log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// Log entry types surfaced to API users.
const (
	LogEntryCouldNotEnableClosedCaptions = "could_not_enable_closed_captions"
)
