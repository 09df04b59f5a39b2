// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rtms

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// MsgType identifies an RTMS websocket message.
type MsgType int

const (
	MsgSignalingHandshakeReq  MsgType = 1
	MsgSignalingHandshakeResp MsgType = 2
	MsgDataHandshakeReq       MsgType = 3
	MsgDataHandshakeResp      MsgType = 4
	MsgEventSubscription      MsgType = 5
	MsgEventUpdate            MsgType = 6
	MsgClientReadyAck         MsgType = 7
	MsgStreamStateUpdate      MsgType = 8
	MsgSessionStateUpdate     MsgType = 9
	MsgKeepAliveReq           MsgType = 12
	MsgKeepAliveResp          MsgType = 13
	MsgMediaAudio             MsgType = 14
	MsgMediaVideo             MsgType = 15
	MsgMediaTranscript        MsgType = 17
	MsgMediaChat              MsgType = 18
)

// Media type bits requested in the data handshake.
const (
	MediaAudio      = 1
	MediaVideo      = 2
	MediaTranscript = 8
	MediaChat       = 16
)

// Event types carried by MsgEventUpdate.
const (
	EventActiveSpeakerChange = 2
	EventParticipantJoin     = 3
	EventParticipantLeave    = 4
)

// Stream and session states.
const (
	StreamStateTerminated = 4
	SessionStateStopped   = 5
)

// Audio parameters: raw L16 mono at 16 kHz.
const (
	audioContentRaw    = 2
	audioSampleRate16k = 1
	audioChannelMono   = 1
	audioCodecL16      = 1
	audioDataMixed     = 1
	audioDataPerUser   = 2

	SampleRate = 16000
)

const statusOK = 0

// Message is the envelope every RTMS frame shares. Fields not used by a
// given MsgType are left empty.
type Message struct {
	Type            MsgType `json:"msg_type"`
	ProtocolVersion int     `json:"protocol_version,omitempty"`
	MeetingUUID     string  `json:"meeting_uuid,omitempty"`
	StreamID        string  `json:"rtms_stream_id,omitempty"`
	Sequence        int64   `json:"sequence,omitempty"`
	Signature       string  `json:"signature,omitempty"`
	StatusCode      int     `json:"status_code,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	Timestamp       int64   `json:"timestamp,omitempty"`
	State           int     `json:"state,omitempty"`
	StopReason      int     `json:"stop_reason,omitempty"`

	MediaType         int          `json:"media_type,omitempty"`
	PayloadEncryption bool         `json:"payload_encryption,omitempty"`
	MediaParams       *MediaParams `json:"media_params,omitempty"`
	MediaServer       *MediaServer `json:"media_server,omitempty"`
	Events            []EventSub   `json:"events,omitempty"`

	Content json.RawMessage `json:"content,omitempty"`
}

// MediaParams select the audio format in the data handshake.
type MediaParams struct {
	Audio *AudioParams `json:"audio,omitempty"`
}

// AudioParams are the RTMS audio options.
type AudioParams struct {
	ContentType int `json:"content_type"`
	SampleRate  int `json:"sample_rate"`
	Channel     int `json:"channel"`
	Codec       int `json:"codec"`
	DataOpt     int `json:"data_opt"`
	SendRate    int `json:"send_rate"`
}

// MediaServer lists the media endpoints from the signaling handshake.
type MediaServer struct {
	ServerURLs struct {
		All        string `json:"all"`
		Audio      string `json:"audio"`
		Transcript string `json:"transcript"`
	} `json:"server_urls"`
}

// EventSub subscribes to one event type.
type EventSub struct {
	EventType int  `json:"event_type"`
	Subscribe bool `json:"subscribe"`
}

// MediaContent is the content of audio, transcript and chat frames. Data is
// base64 audio for audio frames and plain text otherwise.
type MediaContent struct {
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// EventContent is the content of an event update.
type EventContent struct {
	EventType int `json:"event_type"`
	Participants []struct {
		UserID   int64  `json:"user_id"`
		UserName string `json:"user_name"`
	} `json:"participants"`
}

// Signature signs the handshake for one stream: hex HMAC-SHA256 over
// "clientID,meetingUUID,streamID" keyed by the client secret.
func Signature(clientID, secret, meetingUUID, streamID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientID + "," + meetingUUID + "," + streamID))
	return hex.EncodeToString(mac.Sum(nil))
}
