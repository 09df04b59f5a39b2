// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rtms receives a Zoom realtime media stream as an app session. It
// never joins as a participant; audio, transcripts, chat and roster changes
// arrive over a signaling and a media websocket.
package rtms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/mediain"
)

var (
	ErrHandshake        = errors.New("rtms: handshake rejected")
	errStreamTerminated = errors.New("rtms: stream terminated")
)

// Config configures an app session.
type Config struct {
	adapter.BaseConfig
	ClientID     string
	ClientSecret string
	MeetingUUID  string
	StreamID     string
	SignalingURL string

	MixedAudio          bool
	PerParticipantAudio bool
	Transcripts         bool

	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
}

// Adapter is an RTMS app session.
type Adapter struct {
	*adapter.Base
	cfg Config

	mu        sync.Mutex
	signaling *wsConn
	media     *wsConn

	seq                 atomic.Int64
	disconnectRequested atomic.Bool
	disconnectedOnce    sync.Once
}

var _ adapter.Adapter = (*Adapter)(nil)

// New builds an app session adapter.
func New(cfg Config) *Adapter {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	cfg.BaseConfig.Platform = "zoom_rtms"
	return &Adapter{Base: adapter.NewBase(cfg.BaseConfig), cfg: cfg}
}

type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(m)
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	_ = c.ws.Close()
}

// Init connects in the background; app_session_connected follows once both
// handshakes succeed.
func (a *Adapter) Init(_ context.Context) error {
	if a.cfg.SignalingURL == "" || a.cfg.StreamID == "" {
		return errors.New("rtms: signaling url and stream id are required")
	}
	a.Go(a.run)
	return nil
}

func (a *Adapter) run(ctx context.Context) {
	if err := a.connect(ctx); err != nil {
		a.Logger().Error().Err(err).Str(log.FieldEvent, "rtms.connect_failed").Msg("app session connect failed")
		a.closeAll()
		a.disconnected(false, err)
		return
	}
	a.Logger().Info().Str(log.FieldEvent, "rtms.connected").Msg("app session connected")
	a.Emit(adapter.Event{Kind: adapter.KindAppSessionConnected})

	stop := context.AfterFunc(ctx, a.closeAll)
	defer stop()

	a.mu.Lock()
	sig, media := a.signaling, a.media
	a.mu.Unlock()

	errc := make(chan error, 2)
	go func() { errc <- a.readLoop(sig, a.handleSignaling) }()
	go func() { errc <- a.readLoop(media, a.handleMedia) }()
	err := <-errc
	a.closeAll()
	<-errc

	if a.disconnectRequested.Load() || errors.Is(err, errStreamTerminated) {
		err = nil
	}
	a.disconnected(false, err)
}

func (a *Adapter) connect(ctx context.Context) error {
	sig, resp, err := a.handshake(ctx, a.cfg.SignalingURL, Message{
		Type:            MsgSignalingHandshakeReq,
		ProtocolVersion: 1,
	}, MsgSignalingHandshakeResp)
	if err != nil {
		return fmt.Errorf("signaling: %w", err)
	}
	a.mu.Lock()
	a.signaling = sig
	a.mu.Unlock()

	if resp.MediaServer == nil {
		return fmt.Errorf("signaling: %w: no media server", ErrHandshake)
	}
	urls := resp.MediaServer.ServerURLs
	mediaURL := urls.All
	if mediaURL == "" {
		mediaURL = urls.Audio
	}
	mediaType := a.mediaTypes()
	media, _, err := a.handshake(ctx, mediaURL, Message{
		Type:        MsgDataHandshakeReq,
		MediaType:   mediaType,
		MediaParams: a.mediaParams(),
	}, MsgDataHandshakeResp)
	if err != nil {
		return fmt.Errorf("media: %w", err)
	}
	a.mu.Lock()
	a.media = media
	a.mu.Unlock()

	if err := sig.send(Message{Type: MsgClientReadyAck, MediaType: mediaType}); err != nil {
		return err
	}
	return sig.send(Message{Type: MsgEventSubscription, Events: []EventSub{
		{EventType: EventParticipantJoin, Subscribe: true},
		{EventType: EventParticipantLeave, Subscribe: true},
	}})
}

func (a *Adapter) mediaTypes() int {
	t := MediaChat
	if a.cfg.MixedAudio || a.cfg.PerParticipantAudio {
		t |= MediaAudio
	}
	if a.cfg.Transcripts {
		t |= MediaTranscript
	}
	return t
}

func (a *Adapter) mediaParams() *MediaParams {
	opt := audioDataMixed
	if a.cfg.PerParticipantAudio {
		opt = audioDataPerUser
	}
	return &MediaParams{Audio: &AudioParams{
		ContentType: audioContentRaw,
		SampleRate:  audioSampleRate16k,
		Channel:     audioChannelMono,
		Codec:       audioCodecL16,
		DataOpt:     opt,
		SendRate:    100,
	}}
}

// handshake dials url, sends req signed for this stream and waits for a
// successful reply of type want.
func (a *Adapter) handshake(ctx context.Context, url string, req Message, want MsgType) (*wsConn, Message, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HandshakeTimeout)
	defer cancel()
	ws, _, err := a.cfg.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, Message{}, err
	}
	ws.SetReadLimit(4 << 20)
	c := &wsConn{ws: ws}

	req.MeetingUUID = a.cfg.MeetingUUID
	req.StreamID = a.cfg.StreamID
	req.Sequence = a.seq.Add(1)
	req.Signature = Signature(a.cfg.ClientID, a.cfg.ClientSecret, a.cfg.MeetingUUID, a.cfg.StreamID)
	if err := c.send(req); err != nil {
		_ = ws.Close()
		return nil, Message{}, err
	}

	deadline, _ := ctx.Deadline()
	_ = ws.SetReadDeadline(deadline)
	var resp Message
	err = ws.ReadJSON(&resp)
	_ = ws.SetReadDeadline(time.Time{})
	switch {
	case err != nil:
	case resp.Type != want:
		err = fmt.Errorf("%w: unexpected message type %d", ErrHandshake, resp.Type)
	case resp.StatusCode != statusOK:
		err = fmt.Errorf("%w: status %d %s", ErrHandshake, resp.StatusCode, resp.Reason)
	}
	if err != nil {
		_ = ws.Close()
		return nil, Message{}, err
	}
	return c, resp, nil
}

func (a *Adapter) readLoop(c *wsConn, handle func(*wsConn, Message) error) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			a.Logger().Debug().Err(err).Msg("dropping malformed rtms message")
			continue
		}
		if err := handle(c, m); err != nil {
			return err
		}
	}
}

func (a *Adapter) keepAlive(c *wsConn, m Message) error {
	return c.send(Message{Type: MsgKeepAliveResp, Timestamp: m.Timestamp})
}

func (a *Adapter) handleSignaling(c *wsConn, m Message) error {
	switch m.Type {
	case MsgKeepAliveReq:
		return a.keepAlive(c, m)
	case MsgStreamStateUpdate:
		if m.State == StreamStateTerminated {
			a.Logger().Info().Int(log.FieldReason, m.StopReason).Msg("rtms stream terminated")
			return errStreamTerminated
		}
	case MsgSessionStateUpdate:
		if m.State == SessionStateStopped && !a.LeaveRequested() {
			a.Emit(adapter.Event{Kind: adapter.KindAppSessionDisconnectRequested})
		}
	case MsgEventUpdate:
		var ev EventContent
		if err := json.Unmarshal(m.Content, &ev); err != nil {
			return nil
		}
		active := ev.EventType == EventParticipantJoin
		if !active && ev.EventType != EventParticipantLeave {
			return nil
		}
		for _, p := range ev.Participants {
			a.observe(p.UserID, p.UserName, active)
		}
	}
	return nil
}

func (a *Adapter) handleMedia(c *wsConn, m Message) error {
	if m.Type == MsgKeepAliveReq {
		return a.keepAlive(c, m)
	}
	var content MediaContent
	if len(m.Content) == 0 || json.Unmarshal(m.Content, &content) != nil {
		return nil
	}
	switch m.Type {
	case MsgMediaAudio:
		if a.RecordingPaused() {
			return nil
		}
		pcm, err := base64.StdEncoding.DecodeString(content.Data)
		if err != nil || len(pcm) == 0 {
			return nil
		}
		a.AudioActivity()
		if !a.cfg.PerParticipantAudio {
			a.Emit(adapter.Event{Kind: adapter.KindMixedAudio, Data: pcm})
			return nil
		}
		id := a.observe(content.UserID, content.UserName, true)
		a.Emit(adapter.Event{Kind: adapter.KindAudioChunk, Audio: &adapter.AudioChunk{
			ParticipantUUID: id,
			At:              a.Now(),
			PCM:             pcm,
			SampleRate:      SampleRate,
		}})

	case MsgMediaTranscript:
		if a.RecordingPaused() || content.Data == "" {
			return nil
		}
		id := a.observe(content.UserID, content.UserName, true)
		a.Emit(adapter.Event{Kind: adapter.KindCaption, Caption: &mediain.Caption{
			ID:              id + "-" + strconv.FormatInt(content.Timestamp, 10),
			ParticipantUUID: id,
			Text:            content.Data,
			TimestampMs:     content.Timestamp,
		}})

	case MsgMediaChat:
		id := a.observe(content.UserID, content.UserName, true)
		a.Emit(adapter.Event{Kind: adapter.KindChatMessage, Chat: &bot.ChatMessage{
			MessageUUID:     id + "-" + strconv.FormatInt(content.Timestamp, 10),
			ParticipantUUID: id,
			Text:            content.Data,
			Timestamp:       time.UnixMilli(content.Timestamp),
		}})
	}
	return nil
}

// observe records a participant and emits the presence change, returning
// the participant uuid.
func (a *Adapter) observe(userID int64, name string, active bool) string {
	id := strconv.FormatInt(userID, 10)
	if active {
		if p, ok := a.GetParticipant(id); ok && p.Active {
			return id
		}
	} else if _, ok := a.GetParticipant(id); !ok {
		return id
	}
	if ev, ok := a.ObserveParticipant(bot.Participant{UUID: id, FullName: name, Active: active}); ok {
		a.Emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &ev})
	}
	return id
}

func (a *Adapter) closeAll() {
	a.mu.Lock()
	sig, media := a.signaling, a.media
	a.mu.Unlock()
	if media != nil {
		media.close()
	}
	if sig != nil {
		sig.close()
	}
}

// disconnected reports app_session_disconnected once.
func (a *Adapter) disconnected(local bool, err error) {
	a.disconnectedOnce.Do(func() {
		ev := adapter.Event{Kind: adapter.KindAppSessionDisconnected}
		if err != nil {
			ev.Metadata = map[string]any{"error": err.Error()}
		}
		if local {
			a.EmitLocal(ev)
			return
		}
		a.Emit(ev)
	})
}

// Disconnect closes the stream. When nothing is connected the session is
// reported disconnected right away.
func (a *Adapter) Disconnect(context.Context) error {
	if !a.MarkLeaveRequested() {
		return nil
	}
	a.disconnectRequested.Store(true)
	a.mu.Lock()
	connected := a.signaling != nil
	a.mu.Unlock()
	if !connected {
		a.disconnected(true, nil)
		return nil
	}
	a.closeAll()
	return nil
}

// Leave is Disconnect; an app session has no meeting seat to give up.
func (a *Adapter) Leave(ctx context.Context) error { return a.Disconnect(ctx) }

// Cleanup closes the sockets and waits for the reader. Later calls are
// no-ops.
func (a *Adapter) Cleanup(ctx context.Context) error {
	if !a.MarkCleanedUp() {
		return nil
	}
	a.closeAll()
	a.Shutdown(ctx)
	a.Logger().Info().Str(log.FieldEvent, "rtms.cleaned_up").Msg("app session cleaned up")
	return nil
}

// The stream is receive only.

func (a *Adapter) SendRawAudio([]byte, int) error            { return adapter.ErrUnsupported }
func (a *Adapter) SendRawImage([]byte) error                 { return adapter.ErrUnsupported }
func (a *Adapter) SendVideo(string) error                    { return adapter.ErrUnsupported }
func (a *Adapter) IsSentVideoStillPlaying() bool             { return false }
func (a *Adapter) AdmitFromWaitingRoom() error               { return adapter.ErrUnsupported }
func (a *Adapter) ChangeGalleryViewPage(bool) error          { return adapter.ErrUnsupported }
func (a *Adapter) SendChatMessage(string, string) error      { return adapter.ErrUnsupported }
func (a *Adapter) UpdateClosedCaptionsLanguage(string) error { return adapter.ErrUnsupported }
func (a *Adapter) StagedJoinDelay() time.Duration            { return 0 }
