// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bot

// State is the lifecycle position of a bot.
type State string

const (
	StateReady                           State = "ready"
	StateScheduled                       State = "scheduled"
	StateStaged                          State = "staged"
	StateJoining                         State = "joining"
	StateWaitingRoom                     State = "waiting_room"
	StateJoinedNotRecording              State = "joined_not_recording"
	StateJoinedRecording                 State = "joined_recording"
	StateJoinedRecordingPaused           State = "joined_recording_paused"
	StateJoinedRecordingPermissionDenied State = "joined_recording_permission_denied"
	StateJoiningBreakoutRoom             State = "joining_breakout_room"
	StateLeavingBreakoutRoom             State = "leaving_breakout_room"
	StateLeaving                         State = "leaving"
	StatePostProcessing                  State = "post_processing"
	StateFatalError                      State = "fatal_error"
	StateEnded                           State = "ended"

	// App session states.
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// joinedStates are the states in which the bot is inside the meeting proper.
var joinedStates = []State{
	StateJoinedNotRecording,
	StateJoinedRecordingPermissionDenied,
	StateJoinedRecording,
	StateJoinedRecordingPaused,
}

// IsJoined reports whether s is one of the joined states. Media playback,
// admitting from the waiting room, gallery paging, transcription and voice
// agent updates are only permitted here.
func (s State) IsJoined() bool {
	for _, j := range joinedStates {
		if s == j {
			return true
		}
	}
	return false
}

// IsPostMeeting reports whether the meeting part of the bot's life is over.
func (s State) IsPostMeeting() bool {
	switch s {
	case StatePostProcessing, StateFatalError, StateEnded:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle event can apply.
func (s State) IsTerminal() bool {
	return s == StateFatalError || s == StateEnded
}

// EventType is a lifecycle event kind; each one drives at most one transition.
type EventType string

const (
	EventJoinRequested               EventType = "join_requested"
	EventStaged                      EventType = "staged"
	EventCouldNotJoin                EventType = "could_not_join"
	EventFatalError                  EventType = "fatal_error"
	EventPutInWaitingRoom            EventType = "bot_put_in_waiting_room"
	EventJoinedMeeting               EventType = "bot_joined_meeting"
	EventRecordingPermissionGranted  EventType = "bot_recording_permission_granted"
	EventRecordingPermissionDenied   EventType = "bot_recording_permission_denied"
	EventMeetingEnded                EventType = "meeting_ended"
	EventLeaveRequested              EventType = "leave_requested"
	EventLeftMeeting                 EventType = "bot_left_meeting"
	EventPostProcessingCompleted     EventType = "post_processing_completed"
	EventRecordingPaused             EventType = "recording_paused"
	EventRecordingResumed            EventType = "recording_resumed"
	EventBeganJoiningBreakoutRoom    EventType = "bot_began_joining_breakout_room"
	EventBeganLeavingBreakoutRoom    EventType = "bot_began_leaving_breakout_room"
	EventJoinedBreakoutRoom          EventType = "bot_joined_breakout_room"
	EventLeftBreakoutRoom            EventType = "bot_left_breakout_room"
	EventAppSessionConnectionRequest EventType = "app_session_connection_requested"
	EventAppSessionConnected         EventType = "app_session_connected"
	EventAppSessionDisconnectRequest EventType = "app_session_disconnect_requested"
	EventAppSessionDisconnected      EventType = "app_session_disconnected"
)

// SubType refines an event; the string value is the public API code.
type SubType string

const (
	SubTypeNone SubType = ""

	// Could not join.
	SubCouldNotJoinWaitingForHost             SubType = "meeting_not_started_waiting_for_host"
	SubCouldNotJoinZoomAuthorizationFailed    SubType = "zoom_authorization_failed"
	SubCouldNotJoinZoomMeetingStatusFailed    SubType = "zoom_meeting_status_failed"
	SubCouldNotJoinUnpublishedZoomApp         SubType = "unpublished_zoom_app"
	SubCouldNotJoinZoomSDKInternalError       SubType = "zoom_sdk_internal_error"
	SubCouldNotJoinRequestToJoinDenied        SubType = "request_to_join_denied"
	SubCouldNotJoinMeetingNotFound            SubType = "meeting_not_found"
	SubCouldNotJoinWaitingRoomTimeoutExceeded SubType = "waiting_room_timeout_exceeded"
	SubCouldNotJoinLoginRequired              SubType = "login_required"
	SubCouldNotJoinLoginAttemptFailed         SubType = "bot_login_attempt_failed"
	SubCouldNotJoinUnableToConnect            SubType = "unable_to_connect_to_meeting"
	SubCouldNotJoinAuthorizedUserAbsent       SubType = "authorized_user_not_in_meeting_timeout_exceeded"

	// Fatal errors.
	SubFatalProcessTerminated     SubType = "process_terminated"
	SubFatalRTMPConnectionFailed  SubType = "rtmp_connection_failed"
	SubFatalUIElementNotFound     SubType = "ui_element_not_found"
	SubFatalAttendeeInternalError SubType = "attendee_internal_error"
	SubFatalHeartbeatTimeout      SubType = "heartbeat_timeout"
	SubFatalBotNotLaunched        SubType = "bot_not_launched"
	SubFatalOutOfCredits          SubType = "out_of_credits"

	// Leave requested.
	SubLeaveUserRequested           SubType = "user_requested"
	SubLeaveAutoSilence             SubType = "auto_leave_silence"
	SubLeaveAutoOnlyParticipant     SubType = "auto_leave_only_participant_in_meeting"
	SubLeaveAutoMaxUptime           SubType = "auto_leave_max_uptime_exceeded"
	SubLeaveAutoCaptionsUnavailable SubType = "auto_leave_could_not_enable_closed_captions"

	// Recording permission denied.
	SubPermissionDeniedByHost          SubType = "host_denied_permission"
	SubPermissionRequestTimedOut       SubType = "request_timed_out"
	SubPermissionHostClientCannotGrant SubType = "host_client_cannot_grant_permission"
)
