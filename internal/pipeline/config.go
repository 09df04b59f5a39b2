// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline turns media coming out of a meeting into a local
// recording, an RTMP relay and a realtime audio stream.
package pipeline

import (
	"github.com/ManuGH/meetbot/internal/bot"
)

// Configuration selects which outputs a bot produces. It is chosen once per
// bot and never changes.
type Configuration struct {
	RecordAudio          bool
	RecordVideo          bool
	RTMPStreamAudio      bool
	RTMPStreamVideo      bool
	WebsocketStreamAudio bool
	TranscribeAudio      bool
}

// Preset names, used in logs.
const (
	PresetRTMPStreaming     = "rtmp_streaming"
	PresetAudioRecorder     = "audio_recorder"
	PresetPureTranscription = "pure_transcription"
	PresetRecorder          = "recorder"
	websocketPresetSuffix   = "_with_websocket_audio"
)

// Select picks the preset for a bot. Priority: RTMP destination, audio-only
// recording, no recording, full recorder. Websocket audio is added when a
// websocket URL is configured, except for RTMP bots.
func Select(s bot.Settings) (Configuration, string) {
	if s.RTMP.DestinationURL != "" {
		return Configuration{RTMPStreamAudio: true, RTMPStreamVideo: true, TranscribeAudio: true}, PresetRTMPStreaming
	}
	ws := s.Websocket.AudioURL != ""
	var (
		cfg  Configuration
		name string
	)
	switch s.Recording.Type {
	case bot.RecordingAudioOnly:
		cfg, name = Configuration{RecordAudio: true, TranscribeAudio: true}, PresetAudioRecorder
	case bot.RecordingNone:
		cfg, name = Configuration{TranscribeAudio: true}, PresetPureTranscription
	default:
		cfg, name = Configuration{RecordAudio: true, RecordVideo: true, TranscribeAudio: true}, PresetRecorder
	}
	if ws {
		cfg.WebsocketStreamAudio = true
		name += websocketPresetSuffix
	}
	return cfg, name
}

// Records reports whether a local recording file is produced.
func (c Configuration) Records() bool { return c.RecordAudio || c.RecordVideo }

// Streams reports whether an RTMP relay is needed.
func (c Configuration) Streams() bool { return c.RTMPStreamAudio || c.RTMPStreamVideo }

// UsesMixedAudio reports whether mixed meeting audio must be captured.
func (c Configuration) UsesMixedAudio() bool {
	return c.RecordAudio || c.RTMPStreamAudio || c.WebsocketStreamAudio
}

// AudioFormat describes the PCM delivered by an adapter.
type AudioFormat struct {
	SampleRate int
	// Float32 is true for 32-bit float samples, false for 16-bit signed.
	Float32 bool
}

// MixedAudioFormat returns the mixed-audio format for a platform variant.
func MixedAudioFormat(meeting bot.MeetingType, zoom bot.ZoomSettings) AudioFormat {
	switch meeting {
	case bot.MeetingZoom:
		switch {
		case zoom.UseRTMS:
			return AudioFormat{SampleRate: 16000}
		case zoom.UseWebAdapter:
			return AudioFormat{SampleRate: 48000, Float32: true}
		default:
			return AudioFormat{SampleRate: 32000}
		}
	default:
		return AudioFormat{SampleRate: 48000, Float32: true}
	}
}

// PerParticipantSampleRate is the sample rate of per-speaker audio chunks.
// Chunks reach the input managers as 16-bit PCM.
func PerParticipantSampleRate(meeting bot.MeetingType, zoom bot.ZoomSettings) int {
	return MixedAudioFormat(meeting, zoom).SampleRate
}

// UtteranceDelayMs is how far per-participant audio lags the meeting clock.
func UtteranceDelayMs(meeting bot.MeetingType, zoom bot.ZoomSettings) int64 {
	switch {
	case meeting == bot.MeetingTeams:
		return 2000
	case meeting == bot.MeetingZoom && zoom.UseWebAdapter && !zoom.UseRTMS:
		return 2000
	}
	return 0
}
