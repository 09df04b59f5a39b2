// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"time"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
)

// Platform holds what differs between the browser-automated meeting
// clients. Empty scripts mark unsupported capabilities.
type Platform struct {
	Name            string
	Port            int
	StagedJoinDelay time.Duration

	Steps       func(cfg *Config) []Step
	InitialData func(cfg *Config) (string, error)

	LeaveScript            string
	SendVideoScript        string
	VideoPlayingScript     string
	ChatScript             string
	GalleryScript          string
	CaptionLanguageScript  string
	AfterJoinAsksRecording bool

	// FailedToJoin maps a page-reported join failure to an event.
	FailedToJoin func(reason FailedToJoinReason) (adapter.Event, bool)
}

// Pages register their helpers on window; these calls are shared.
const (
	scriptEnableMedia   = "window.ws?.enableMediaSending();"
	scriptDisableMedia  = "window.ws?.disableMediaSending();"
	scriptPlayPCM       = "window.botOutputManager.playPCMAudio(arguments[0], arguments[1]);"
	scriptDisplayImage  = "const bytes = new Uint8Array(arguments[0]); window.botOutputManager.displayImage(bytes);"
	scriptPlayVideo     = "window.botOutputManager.playVideo(arguments[0]);"
	scriptVideoPlaying  = "return window.botOutputManager.isVideoPlaying();"
	scriptAskPermission = "window?.askForMediaCapturePermission();"
)

// GoogleMeet is the Google Meet client.
func GoogleMeet() Platform {
	return Platform{
		Name:            string(bot.MeetingGoogleMeet),
		Port:            8765,
		StagedJoinDelay: 5 * time.Second,
		Steps: func(cfg *Config) []Step {
			return append([]Step{
				{Name: "check_if_meeting_is_found", Script: pageCall("checkMeetingFound"), Timeout: 15 * time.Second},
				{Name: "name_input", Script: pageCall("fillNameInput"), Args: []any{cfg.DisplayName}, Timeout: time.Minute},
				{Name: "turn_off_media_inputs", Script: pageCall("turnOffMediaInputs"), Timeout: 10 * time.Second, Optional: true},
				{Name: "join_now_button", Script: pageCall("clickJoinNow"), Timeout: time.Minute},
				{Name: "wait_for_admission", Script: pageCall("waitForAdmission")},
			}, inMeetingSteps(cfg)...)
		},
		LeaveScript:           pageCall("clickLeave"),
		SendVideoScript:       scriptPlayVideo,
		VideoPlayingScript:    scriptVideoPlaying,
		ChatScript:            "window?.sendChatMessage(arguments[0]);",
		CaptionLanguageScript: "return setClosedCaptionsLanguage(arguments[0]);",
	}
}

// Teams is the Microsoft Teams client.
func Teams() Platform {
	return Platform{
		Name:            string(bot.MeetingTeams),
		Port:            8097,
		StagedJoinDelay: 10 * time.Second,
		Steps: func(cfg *Config) []Step {
			return append([]Step{
				{Name: "name_input", Script: pageCall("fillNameInput"), Args: []any{cfg.DisplayName}, Timeout: time.Minute},
				{Name: "turn_off_media_inputs", Script: pageCall("turnOffMediaInputs"), Timeout: 10 * time.Second, Optional: true},
				{Name: "join_now_button", Script: pageCall("clickJoinNow"), Timeout: time.Minute},
				{Name: "wait_for_admission", Script: pageCall("waitForAdmission")},
			}, inMeetingSteps(cfg)...)
		},
		LeaveScript:           pageCall("clickLeave"),
		ChatScript:            "window?.sendChatMessage(arguments[0]);",
		CaptionLanguageScript: "return window.callManager?.setClosedCaptionsLanguage(arguments[0]);",
	}
}

// ZoomWeb is the Zoom web SDK client running inside the page.
func ZoomWeb() Platform {
	return Platform{
		Name:            "zoom_web",
		Port:            8765,
		StagedJoinDelay: 5 * time.Second,
		Steps: func(*Config) []Step {
			return []Step{
				{Name: "zoom_sdk_join", Script: pageCall("joinWithSdk")},
			}
		},
		InitialData:            zoomInitialData,
		LeaveScript:            pageCall("clickLeave"),
		SendVideoScript:        scriptPlayVideo,
		VideoPlayingScript:     scriptVideoPlaying,
		ChatScript:             "window?.sendChatMessage(arguments[0], arguments[1]);",
		GalleryScript:          "window?.changeGalleryViewPage(arguments[0]);",
		AfterJoinAsksRecording: true,
		FailedToJoin:           zoomFailedToJoin,
	}
}

// inMeetingSteps run once admitted: captions when they are collected, then
// the recording layout.
func inMeetingSteps(cfg *Config) []Step {
	var steps []Step
	if cfg.CollectCaptions {
		steps = append(steps, Step{Name: "captions_button", Script: pageCall("enableCaptions"), Args: []any{cfg.CaptionLanguage}, Timeout: 30 * time.Second})
	}
	return append(steps, Step{Name: "set_layout", Script: pageCall("setLayout"), Args: []any{cfg.RecordingView}, Timeout: 15 * time.Second, Optional: true})
}

// ForMeeting picks the browser client for a meeting type.
func ForMeeting(meeting bot.MeetingType) (Platform, bool) {
	switch meeting {
	case bot.MeetingGoogleMeet:
		return GoogleMeet(), true
	case bot.MeetingTeams:
		return Teams(), true
	case bot.MeetingZoom:
		return ZoomWeb(), true
	}
	return Platform{}, false
}

func zoomFailedToJoin(reason FailedToJoinReason) (adapter.Event, bool) {
	switch {
	case reason.Method == "removed_from_waiting_room":
		return adapter.CouldNotJoin(bot.SubCouldNotJoinRequestToJoinDenied, nil), true
	case reason.Method != "join":
		return adapter.Event{}, false
	case reason.ErrorCode == 4011:
		return adapter.CouldNotJoin(bot.SubCouldNotJoinUnpublishedZoomApp, map[string]any{"zoom_result_code": reason.ResultCode()}), true
	}
	return adapter.CouldNotJoin(bot.SubCouldNotJoinZoomMeetingStatusFailed, map[string]any{"zoom_result_code": reason.ResultCode()}), true
}
