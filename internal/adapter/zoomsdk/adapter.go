// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package zoomsdk drives the native Zoom meeting SDK through an injected
// binding. The adapter turns the SDK's status and media callbacks into
// adapter events.
package zoomsdk

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/zoom"
)

// SampleRate is the raw audio rate the SDK delivers and accepts.
const SampleRate = 32000

const (
	ConnectingTimeout = 60 * time.Second
	RejoinDelay       = 3 * time.Second
)

type stopper interface{ Stop() bool }

// Config configures the native adapter.
type Config struct {
	adapter.BaseConfig
	MeetingURL           string
	Credentials          zoom.Credentials
	RecordChatWhenPaused bool
	StagedJoinDelay      time.Duration

	Open      Opener
	AfterFunc func(d time.Duration, f func()) stopper
}

// Adapter is a native SDK meeting client.
type Adapter struct {
	*adapter.Base
	cfg Config
	sdk SDK

	mu                sync.Mutex
	status            Status
	inBreakout        bool
	shouldRetry       bool
	firstAttemptAt    time.Time
	selfID            string
	connectingTimer   stopper
	timers            []stopper
	permissionGranted atomic.Bool
}

var (
	_ adapter.Adapter = (*Adapter)(nil)
	_ Callbacks       = (*Adapter)(nil)
)

// New builds a native adapter. Nothing is loaded until Init.
func New(cfg Config) *Adapter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) }
	}
	if cfg.StagedJoinDelay == 0 {
		cfg.StagedJoinDelay = 10 * time.Second
	}
	cfg.BaseConfig.Platform = "zoom"
	return &Adapter{Base: adapter.NewBase(cfg.BaseConfig), cfg: cfg}
}

// Init loads the SDK and starts authentication. Join continues from
// OnAuthResult.
func (a *Adapter) Init(_ context.Context) error {
	if a.cfg.Open == nil {
		return ErrNoBinding
	}
	sdk, err := a.cfg.Open(a)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.sdk = sdk
	a.mu.Unlock()

	token, err := zoom.AppToken(a.cfg.Credentials.SDKKey, a.cfg.Credentials.SDKSecret, a.Now())
	if err != nil {
		a.EmitLocal(adapter.CouldNotJoin(bot.SubCouldNotJoinZoomAuthorizationFailed, map[string]any{"error": err.Error()}))
		return nil
	}
	if err := sdk.Auth(token); err != nil {
		a.Logger().Error().Err(err).Str(log.FieldEvent, "zoomsdk.auth_failed").Msg("sdk auth call failed")
		a.EmitLocal(adapter.CouldNotJoin(bot.SubCouldNotJoinZoomSDKInternalError, map[string]any{"error": err.Error()}))
	}
	return nil
}

// OnAuthResult implements Callbacks.
func (a *Adapter) OnAuthResult(ok bool, code int) {
	if !ok {
		a.Logger().Warn().Int("zoom_result_code", code).Msg("sdk authorization failed")
		a.Emit(adapter.CouldNotJoin(bot.SubCouldNotJoinZoomAuthorizationFailed, map[string]any{"zoom_result_code": code}))
		return
	}
	a.joinMeeting()
}

func (a *Adapter) joinMeeting() {
	if a.Stopped() {
		return
	}
	number, password, err := zoom.ParseJoinURL(a.cfg.MeetingURL)
	if err != nil {
		a.Emit(adapter.CouldNotJoin(bot.SubCouldNotJoinMeetingNotFound, map[string]any{"error": err.Error()}))
		return
	}
	a.mu.Lock()
	if a.firstAttemptAt.IsZero() {
		a.firstAttemptAt = a.Now()
	}
	sdk := a.sdk
	a.mu.Unlock()

	c := a.cfg.Credentials
	err = sdk.Join(JoinParams{
		MeetingNumber:     number,
		Password:          password,
		DisplayName:       a.DisplayName(),
		ZAKToken:          c.ZAKToken,
		JoinToken:         c.JoinToken,
		AppPrivilegeToken: c.AppPrivilegeToken,
		OnBehalfToken:     c.OnBehalfToken,
	})
	if err != nil {
		a.Logger().Error().Err(err).Str(log.FieldEvent, "zoomsdk.join_failed").Msg("sdk join call failed")
		a.Emit(adapter.CouldNotJoin(bot.SubCouldNotJoinZoomSDKInternalError, map[string]any{"error": err.Error()}))
		return
	}
	a.Logger().Info().Str(log.FieldEvent, "zoomsdk.join_started").Msg("joining meeting")
}

// OnMeetingStatus implements Callbacks.
func (a *Adapter) OnMeetingStatus(s Status, result int) {
	a.Logger().Info().Str("status", s.String()).Int("zoom_result_code", result).Msg("meeting status changed")

	a.mu.Lock()
	a.status = s
	if a.connectingTimer != nil {
		a.connectingTimer.Stop()
		a.connectingTimer = nil
	}
	var events []adapter.Event
	switch s {
	case StatusJoinBreakoutRoom:
		a.inBreakout = true
		events = append(events, adapter.Event{Kind: adapter.KindJoiningBreakoutRoom})
	case StatusLeaveBreakoutRoom:
		a.inBreakout = true
		events = append(events, adapter.Event{Kind: adapter.KindLeavingBreakoutRoom})
	case StatusConnecting:
		a.connectingTimer = a.cfg.AfterFunc(ConnectingTimeout, a.connectingExpired)
	case StatusWaitingForHost:
		a.startTimerLocked(a.AutoLeaveConfig().WaitForHostToStartMeeting,
			StatusWaitingForHost, bot.SubCouldNotJoinWaitingForHost)
	case StatusInWaitingRoom:
		events = append(events, adapter.Event{Kind: adapter.KindPutInWaitingRoom})
		a.startTimerLocked(a.AutoLeaveConfig().WaitingRoom,
			StatusInWaitingRoom, bot.SubCouldNotJoinWaitingRoomTimeoutExceeded)
	case StatusEnded:
		if a.shouldRetry {
			a.shouldRetry = false
			a.timers = append(a.timers, a.cfg.AfterFunc(RejoinDelay, a.joinMeeting))
		} else {
			events = append(events, adapter.Event{Kind: adapter.KindMeetingEnded})
		}
	case StatusFailed:
		if ev, ok := a.failedLocked(result); ok {
			events = append(events, ev)
		}
	}
	a.mu.Unlock()

	for _, ev := range events {
		a.Emit(ev)
	}
	if s == StatusInMeeting {
		a.Emit(adapter.Event{Kind: adapter.KindJoinedMeeting})
		a.onJoin()
	}
}

func (a *Adapter) startTimerLocked(d time.Duration, want Status, reason bot.SubType) {
	if d <= 0 {
		return
	}
	a.timers = append(a.timers, a.cfg.AfterFunc(d, func() {
		a.mu.Lock()
		still := a.status == want
		a.mu.Unlock()
		if still {
			a.Emit(adapter.CouldNotJoin(reason, nil))
		}
	}))
}

func (a *Adapter) connectingExpired() {
	a.mu.Lock()
	stuck := a.status == StatusConnecting && !a.inBreakout
	a.mu.Unlock()
	if stuck {
		a.Logger().Warn().Str(log.FieldEvent, "zoomsdk.stuck_connecting").Msg("still connecting after timeout")
		a.Emit(adapter.CouldNotJoin(bot.SubCouldNotJoinUnableToConnect, nil))
	}
}

// failedLocked maps a join failure code to its event. The authorized user
// case sets shouldRetry and waits for the Ended status that follows.
func (a *Adapter) failedLocked(code int) (adapter.Event, bool) {
	switch {
	case code == FailUnableToJoinExternalMeeting:
		return adapter.CouldNotJoin(bot.SubCouldNotJoinUnpublishedZoomApp, map[string]any{"zoom_result_code": code}), true
	case code == FailUnknown && a.cfg.Credentials.OnBehalfToken != "":
		timeout := a.AutoLeaveConfig().AuthorizedUserNotInMeeting
		if timeout > 0 && a.Now().Sub(a.firstAttemptAt) > timeout {
			return adapter.CouldNotJoin(bot.SubCouldNotJoinAuthorizedUserAbsent, nil), true
		}
		a.shouldRetry = true
		return adapter.Event{}, false
	default:
		return adapter.CouldNotJoin(bot.SubCouldNotJoinZoomMeetingStatusFailed, map[string]any{"zoom_result_code": code}), true
	}
}

func (a *Adapter) onJoin() {
	a.mu.Lock()
	a.inBreakout = false
	sdk := a.sdk
	a.mu.Unlock()

	a.MarkJoined()
	users := sdk.Users()
	for _, u := range users {
		if u.IsMe {
			a.mu.Lock()
			a.selfID = u.ID
			a.mu.Unlock()
		}
	}
	a.observeUsers(users, true)
	if a.SetReadyToSendChat() {
		a.Emit(adapter.Event{Kind: adapter.KindReadyToSendChat})
	}
	if err := sdk.JoinVoip(); err != nil {
		a.Logger().Warn().Err(err).Msg("could not join computer audio")
	}
	a.requestRecording(sdk)
}

func (a *Adapter) requestRecording(sdk SDK) {
	if a.permissionGranted.Load() {
		return
	}
	if sdk.CanStartRawRecording() {
		a.startRecording(sdk)
		return
	}
	if !sdk.HostCanGrantRecording() {
		a.Emit(adapter.Event{Kind: adapter.KindRecordingPermissionDenied, Reason: bot.SubPermissionHostClientCannotGrant})
		return
	}
	if err := sdk.RequestRecordingPrivilege(); err != nil {
		a.Logger().Warn().Err(err).Msg("could not request recording privilege")
	}
}

func (a *Adapter) startRecording(sdk SDK) {
	if err := sdk.StartRawRecording(); err != nil {
		a.Logger().Error().Err(err).Msg("could not start raw recording")
		return
	}
	if !a.permissionGranted.CompareAndSwap(false, true) {
		return
	}
	a.Emit(adapter.Event{Kind: adapter.KindRecordingPermissionGranted})
	a.SetFirstBufferTimestampMs(a.Now().UnixMilli())
}

// OnRecordingPrivilegeChanged implements Callbacks.
func (a *Adapter) OnRecordingPrivilegeChanged(canRecord bool) {
	if canRecord {
		a.startRecording(a.currentSDK())
		return
	}
	if a.permissionGranted.CompareAndSwap(true, false) {
		a.Emit(adapter.Event{Kind: adapter.KindRecordingPermissionDenied, Reason: bot.SubPermissionDeniedByHost})
	}
}

// OnRecordingRequestStatus implements Callbacks.
func (a *Adapter) OnRecordingRequestStatus(s RequestStatus) {
	switch s {
	case RequestDenied:
		a.Emit(adapter.Event{Kind: adapter.KindRecordingPermissionDenied, Reason: bot.SubPermissionDeniedByHost})
	case RequestTimedOut:
		a.Emit(adapter.Event{Kind: adapter.KindRecordingPermissionDenied, Reason: bot.SubPermissionRequestTimedOut})
	}
}

// OnUsersJoined implements Callbacks.
func (a *Adapter) OnUsersJoined(users []User) {
	a.observeUsers(users, true)
	for _, u := range users {
		if u.IsHost && !u.IsMe {
			a.requestRecording(a.currentSDK())
			return
		}
	}
}

// OnUsersLeft implements Callbacks.
func (a *Adapter) OnUsersLeft(ids []string) {
	for _, id := range ids {
		p, ok := a.GetParticipant(id)
		if !ok {
			continue
		}
		p.Active = false
		if ev, ok := a.ObserveParticipant(p); ok {
			a.Emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &ev})
		}
	}
}

func (a *Adapter) observeUsers(users []User, active bool) {
	for _, u := range users {
		p := bot.Participant{UUID: u.ID, FullName: u.Name, IsTheBot: u.IsMe, IsHost: u.IsHost, Active: active}
		if ev, ok := a.ObserveParticipant(p); ok {
			a.Emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &ev})
		}
	}
}

// OnChatMessage implements Callbacks.
func (a *Adapter) OnChatMessage(m ChatMessage) {
	if a.RecordingPaused() && !a.cfg.RecordChatWhenPaused {
		return
	}
	a.Emit(adapter.Event{Kind: adapter.KindChatMessage, Chat: &bot.ChatMessage{
		MessageUUID:     m.ID,
		ParticipantUUID: m.SenderID,
		Text:            m.Text,
		Timestamp:       m.Time,
		ToBot:           !m.ToAll && !m.ToAllPanelist && !m.ToWaitingRoom,
	}})
}

// OnOneWayAudio implements Callbacks. The bot's own audio is dropped.
func (a *Adapter) OnOneWayAudio(userID string, pcm []byte) {
	a.mu.Lock()
	self := userID == a.selfID
	a.mu.Unlock()
	if self || a.RecordingPaused() || len(pcm) == 0 {
		return
	}
	if hasSignal(pcm) {
		a.AudioActivity()
	}
	a.Emit(adapter.Event{Kind: adapter.KindAudioChunk, Audio: &adapter.AudioChunk{
		ParticipantUUID: userID,
		At:              a.Now(),
		PCM:             pcm,
		SampleRate:      SampleRate,
	}})
}

// OnMixedAudio implements Callbacks.
func (a *Adapter) OnMixedAudio(pcm []byte) {
	if a.RecordingPaused() || len(pcm) == 0 {
		return
	}
	if hasSignal(pcm) {
		a.AudioActivity()
	}
	a.Emit(adapter.Event{Kind: adapter.KindMixedAudio, Data: pcm})
}

// hasSignal reports whether 16-bit PCM contains a non-zero sample.
func hasSignal(pcm []byte) bool {
	for i := 0; i+2 <= len(pcm); i += 2 {
		if binary.LittleEndian.Uint16(pcm[i:]) != 0 {
			return true
		}
	}
	return false
}

func (a *Adapter) currentSDK() SDK {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sdk
}

func (a *Adapter) currentStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Leave asks the SDK to leave. Meeting end is reported by the Ended status.
func (a *Adapter) Leave(context.Context) error {
	sdk := a.currentSDK()
	if sdk == nil {
		return nil
	}
	if s := a.currentStatus(); s == StatusIdle || s == StatusEnded {
		a.Logger().Info().Str("status", s.String()).Msg("not in a meeting, skipping leave")
		return nil
	}
	if !a.MarkLeaveRequested() {
		return nil
	}
	return sdk.Leave()
}

// Disconnect implements adapter.Adapter.
func (a *Adapter) Disconnect(context.Context) error { return adapter.ErrUnsupported }

// Cleanup stops timers, leaves if still in a meeting, and unloads the SDK.
func (a *Adapter) Cleanup(ctx context.Context) error {
	if !a.MarkCleanedUp() {
		return nil
	}
	a.mu.Lock()
	if a.connectingTimer != nil {
		a.connectingTimer.Stop()
		a.connectingTimer = nil
	}
	for _, t := range a.timers {
		t.Stop()
	}
	a.timers = nil
	sdk, status := a.sdk, a.status
	a.mu.Unlock()

	a.Shutdown(ctx)
	if sdk == nil {
		return nil
	}
	var errs []error
	if status != StatusIdle && status != StatusEnded && a.MarkLeaveRequested() {
		errs = append(errs, sdk.Leave())
	}
	errs = append(errs, sdk.Close())
	a.Logger().Info().Str(log.FieldEvent, "zoomsdk.cleaned_up").Msg("native adapter cleaned up")
	return errors.Join(errs...)
}

// SendRawAudio sends 16-bit PCM as the bot's microphone.
func (a *Adapter) SendRawAudio(b []byte, sampleRate int) error {
	sdk := a.currentSDK()
	if sdk == nil {
		return ErrNoBinding
	}
	return sdk.SendAudio(b, sampleRate)
}

// SendRawImage shows an image as the bot's camera.
func (a *Adapter) SendRawImage(b []byte) error {
	sdk := a.currentSDK()
	if sdk == nil {
		return ErrNoBinding
	}
	return sdk.SendImage(b)
}

// SendVideo implements adapter.Adapter.
func (a *Adapter) SendVideo(string) error { return adapter.ErrUnsupported }

// IsSentVideoStillPlaying implements adapter.Adapter.
func (a *Adapter) IsSentVideoStillPlaying() bool { return false }

// AdmitFromWaitingRoom admits everyone waiting.
func (a *Adapter) AdmitFromWaitingRoom() error {
	sdk := a.currentSDK()
	if sdk == nil {
		return ErrNoBinding
	}
	return sdk.AdmitAll()
}

// ChangeGalleryViewPage implements adapter.Adapter.
func (a *Adapter) ChangeGalleryViewPage(bool) error { return adapter.ErrUnsupported }

// SendChatMessage posts to everyone, or privately when toUserUUID is set.
func (a *Adapter) SendChatMessage(text, toUserUUID string) error {
	sdk := a.currentSDK()
	if sdk == nil {
		return ErrNoBinding
	}
	return sdk.SendChat(text, toUserUUID)
}

// UpdateClosedCaptionsLanguage implements adapter.Adapter.
func (a *Adapter) UpdateClosedCaptionsLanguage(string) error { return adapter.ErrUnsupported }

// StagedJoinDelay implements adapter.Adapter.
func (a *Adapter) StagedJoinDelay() time.Duration { return a.cfg.StagedJoinDelay }
