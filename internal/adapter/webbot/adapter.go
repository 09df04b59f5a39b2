// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package webbot drives meeting clients that run in a Chrome page: Google
// Meet, Microsoft Teams and the Zoom web SDK. A script injected into the page
// streams media and status back over a local websocket.
package webbot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/mediain"
	"github.com/ManuGH/meetbot/internal/metrics"
	"github.com/ManuGH/meetbot/internal/pipeline"
	"github.com/ManuGH/meetbot/internal/zoom"
)

// ErrNoDriver is returned by output calls before the browser is up.
var ErrNoDriver = errors.New("webbot: browser not started")

// Config configures a browser adapter.
type Config struct {
	adapter.BaseConfig
	MeetingURL string
	Platform   Platform

	// WebDriverURL points at a running chromedriver. When empty the adapter
	// starts ChromeDriverPath itself.
	WebDriverURL     string
	ChromeDriverPath string
	// PayloadPath is the page script injected before the meeting loads.
	PayloadPath string

	WindowWidth   int
	WindowHeight  int
	Sandbox       bool
	RecordingView string
	// DebugRecording highlights clicks for the debug screen recording.
	DebugRecording bool

	SendMixedAudio          bool
	SendPerParticipantAudio bool
	CollectCaptions         bool
	CaptionLanguage         string
	RecordChatWhenPaused    bool
	// AskForRecordingPermission makes Zoom web ask the host before media
	// is sent.
	AskForRecordingPermission bool
	ParticipantSampleRate     int
	Zoom                      zoom.Credentials

	// Driver replaces the WebDriver client.
	Driver       Driver
	PollInterval time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
}

// Adapter is a browser-automated meeting client.
type Adapter struct {
	*adapter.Base
	cfg      Config
	platform Platform

	mu           sync.Mutex
	driver       Driver
	chromedriver *ChromeDriver
	meetingUUID  string

	listener          *Listener
	badFrames         rate.Sometimes
	sampleRate        atomic.Int64
	permissionGranted atomic.Bool
	captionLanguage   string
}

var _ adapter.Adapter = (*Adapter)(nil)

// New builds a browser adapter for cfg.Platform.
func New(cfg Config) *Adapter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WindowWidth == 0 || cfg.WindowHeight == 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Sleep == nil {
		cfg.Sleep = adapter.SleepContext
	}
	cfg.Platform.Name = firstNonEmpty(cfg.Platform.Name, "web")
	cfg.BaseConfig.Platform = cfg.Platform.Name
	if cfg.ParticipantSampleRate == 0 {
		cfg.ParticipantSampleRate = 48000
	}
	a := &Adapter{
		Base:            adapter.NewBase(cfg.BaseConfig),
		cfg:             cfg,
		platform:        cfg.Platform,
		driver:          cfg.Driver,
		badFrames:       rate.Sometimes{Interval: 10 * time.Second},
		captionLanguage: cfg.CaptionLanguage,
	}
	a.sampleRate.Store(int64(cfg.ParticipantSampleRate))
	a.listener = NewListener(cfg.BotID, cfg.Platform.Port, a.HandleFrame)
	return a
}

func firstNonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ListenerPort is the port the page streams to.
func (a *Adapter) ListenerPort() int { return a.listener.Port() }

func (a *Adapter) currentDriver() Driver {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.driver
}

// Init starts the websocket listener and joins in the background.
func (a *Adapter) Init(_ context.Context) error {
	if err := a.listener.Start(); err != nil {
		return err
	}
	a.Go(a.join)
	return nil
}

func (a *Adapter) join(ctx context.Context) {
	a.Logger().Info().Str(log.FieldEvent, "webbot.join_started").Msg("joining meeting")
	loop := &adapter.JoinLoop{
		Base:             a.Base,
		Policy:           adapter.DefaultRetryPolicy(a.AutoLeaveConfig().AuthorizedUserNotInMeeting),
		Attempt:          a.attempt,
		CaptureArtifacts: a.captureArtifacts,
		Sleep:            a.cfg.Sleep,
	}
	if !loop.Run(ctx) {
		return
	}
	a.afterJoined(ctx)
}

// ensureDriver is only called from the join goroutine.
func (a *Adapter) ensureDriver(ctx context.Context) (Driver, error) {
	if d := a.currentDriver(); d != nil {
		return d, nil
	}
	url := a.cfg.WebDriverURL
	var cd *ChromeDriver
	if url == "" {
		var err error
		cd, err = StartChromeDriver(ctx, a.BotID(), a.cfg.ChromeDriverPath)
		if err != nil {
			return nil, err
		}
		url = cd.URL()
	}
	d := NewWebDriver(url)
	a.mu.Lock()
	a.driver, a.chromedriver = d, cd
	a.mu.Unlock()
	return d, nil
}

func (a *Adapter) attempt(ctx context.Context) error {
	d, err := a.ensureDriver(ctx)
	if err != nil {
		return adapter.Unexpected("start_driver", err)
	}
	script, err := a.initScript()
	switch {
	case errors.Is(err, zoom.ErrNotJoinURL):
		return adapter.Terminal(bot.SubCouldNotJoinMeetingNotFound, "init_script", err)
	case errors.Is(err, zoom.ErrMissingCredentials):
		return adapter.Terminal(bot.SubCouldNotJoinZoomAuthorizationFailed, "init_script", err)
	case err != nil:
		return adapter.Unexpected("init_script", err)
	}

	opts := ChromeOptions{WindowWidth: a.cfg.WindowWidth, WindowHeight: a.cfg.WindowHeight, Sandbox: a.cfg.Sandbox}
	if err := d.NewSession(ctx, opts); err != nil {
		return adapter.Unexpected("new_session", err)
	}
	if err := d.AddInitScript(ctx, script); err != nil {
		return adapter.Unexpected("add_init_script", err)
	}
	if err := d.Navigate(ctx, a.cfg.MeetingURL); err != nil {
		return adapter.Unexpected("open_meeting_url", err)
	}

	announced := false
	runner := &stepRunner{
		driver:      d,
		poll:        a.cfg.PollInterval,
		waitingRoom: a.AutoLeaveConfig().WaitingRoom,
		waitForHost: a.AutoLeaveConfig().WaitForHostToStartMeeting,
		now:         a.Now,
		sleep:       a.cfg.Sleep,
		logger:      a.Logger(),
		onWaitingRoom: func() {
			if !announced {
				announced = true
				a.Emit(adapter.Event{Kind: adapter.KindPutInWaitingRoom})
			}
		},
	}
	return runner.run(ctx, a.platform.Steps(&a.cfg))
}

func (a *Adapter) initScript() (string, error) {
	initial, err := json.Marshal(map[string]any{
		"websocketPort":           a.listener.Port(),
		"videoFrameWidth":         a.cfg.WindowWidth,
		"videoFrameHeight":        a.cfg.WindowHeight,
		"botName":                 a.DisplayName(),
		"addClickRipple":          a.cfg.DebugRecording,
		"recordingView":           a.cfg.RecordingView,
		"sendMixedAudio":          a.cfg.SendMixedAudio,
		"sendPerParticipantAudio": a.cfg.SendPerParticipantAudio,
		"collectCaptions":         a.cfg.CollectCaptions,
	})
	if err != nil {
		return "", err
	}
	script := "window.initialData = " + string(initial) + ";\n"
	if a.platform.InitialData != nil {
		extra, err := a.platform.InitialData(&a.cfg)
		if err != nil {
			return "", err
		}
		script += extra + "\n"
	}
	if a.cfg.PayloadPath != "" {
		payload, err := os.ReadFile(a.cfg.PayloadPath)
		if err != nil {
			return "", fmt.Errorf("webbot: read page payload: %w", err)
		}
		script += string(payload)
	}
	return script, nil
}

func (a *Adapter) captureArtifacts(ctx context.Context) map[string][]byte {
	d := a.currentDriver()
	if d == nil {
		return nil
	}
	out := make(map[string][]byte, 2)
	if png, err := d.Screenshot(ctx); err != nil {
		a.Logger().Info().Err(err).Msg("could not capture screenshot")
	} else {
		out["screenshot"] = png
	}
	if mhtml, err := d.Snapshot(ctx); err != nil {
		a.Logger().Info().Err(err).Msg("could not capture page snapshot")
	} else {
		out["mhtml"] = mhtml
	}
	return out
}

func (a *Adapter) afterJoined(ctx context.Context) {
	a.MarkJoined()
	a.Emit(adapter.Event{Kind: adapter.KindJoinedMeeting})
	if a.platform.AfterJoinAsksRecording && a.cfg.AskForRecordingPermission {
		if _, err := a.currentDriver().Execute(ctx, scriptAskPermission); err != nil {
			a.Logger().Warn().Err(err).Msg("could not ask for recording permission")
		}
		return
	}
	a.canRecord(ctx)
}

// canRecord runs once recording is allowed: media sending starts and the
// first buffer timestamp is taken.
func (a *Adapter) canRecord(ctx context.Context) {
	if !a.permissionGranted.CompareAndSwap(false, true) {
		return
	}
	a.Emit(adapter.Event{Kind: adapter.KindRecordingPermissionGranted})
	if d := a.currentDriver(); d != nil {
		if _, err := d.Execute(ctx, scriptEnableMedia); err != nil {
			a.Logger().Warn().Err(err).Msg("could not enable media sending")
		}
	}
	a.SetFirstBufferTimestampMs(a.Now().UnixMilli())
}

// HandleFrame processes one websocket message from the page.
func (a *Adapter) HandleFrame(data []byte) {
	typ, payload, err := SplitFrame(data)
	if err != nil {
		a.badFrame(err)
		return
	}
	metrics.RecordWebsocketFrame(typ.String())

	switch typ {
	case FrameJSON:
		a.handleJSON(payload)
	case FrameMixedAudio:
		if a.RecordingPaused() || len(payload) <= 8 {
			return
		}
		if pipeline.HasSignal(payload) {
			a.AudioActivity()
		}
		if a.cfg.SendMixedAudio {
			a.Emit(adapter.Event{Kind: adapter.KindMixedAudio, Data: pipeline.Float32ToPCM16(payload)})
		}
	case FrameEncodedMedia:
		if a.RecordingPaused() || len(payload) == 0 {
			return
		}
		a.Emit(adapter.Event{Kind: adapter.KindEncodedMedia, Data: payload})
	case FramePerParticipantAudio:
		if a.RecordingPaused() || len(payload) <= 8 {
			return
		}
		id, samples, err := ParticipantAudio(payload)
		if err != nil {
			a.badFrame(err)
			return
		}
		a.Emit(adapter.Event{Kind: adapter.KindAudioChunk, Audio: &adapter.AudioChunk{
			ParticipantUUID: id,
			At:              a.Now(),
			PCM:             pipeline.Float32ToPCM16(samples),
			SampleRate:      int(a.sampleRate.Load()),
		}})
	}
}

func (a *Adapter) badFrame(err error) {
	a.badFrames.Do(func() {
		a.Logger().Warn().Err(err).Str(log.FieldEvent, "webbot.bad_frame").Msg("dropping malformed websocket frame")
	})
}

func (a *Adapter) handleJSON(payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		a.badFrame(err)
		return
	}
	if msg.Type != MsgCaptionUpdate {
		a.Logger().Debug().Str("type", msg.Type).Msg("page message")
	}

	switch msg.Type {
	case MsgAudioFormatUpdate:
		if msg.Format != nil && msg.Format.SampleRate > 0 {
			a.sampleRate.Store(int64(msg.Format.SampleRate))
			a.Logger().Info().Int(log.FieldSampleRate, msg.Format.SampleRate).Msg("page audio format")
		}

	case MsgCaptionUpdate:
		if a.RecordingPaused() || msg.Caption == nil {
			return
		}
		a.AudioActivity()
		c := msg.Caption
		a.Emit(adapter.Event{Kind: adapter.KindCaption, Caption: &mediain.Caption{
			ID:              c.CaptionID,
			ParticipantUUID: c.DeviceID,
			Text:            c.Text,
			TimestampMs:     c.TimestampMs,
			DurationMs:      c.DurationMs,
		}})

	case MsgChatMessage:
		if a.RecordingPaused() && !a.cfg.RecordChatWhenPaused {
			return
		}
		a.Emit(adapter.Event{Kind: adapter.KindChatMessage, Chat: &bot.ChatMessage{
			MessageUUID:     msg.MessageUUID,
			ParticipantUUID: msg.ParticipantUUID,
			Text:            msg.Text,
			Timestamp:       msg.ChatTime(),
			ToBot:           msg.ToBot,
		}})

	case MsgUsersUpdate:
		for _, u := range msg.NewUsers {
			a.observeUser(u, u.InMeeting())
		}
		for _, u := range msg.RemovedUsers {
			a.observeUser(u, false)
		}
		for _, u := range msg.UpdatedUsers {
			a.observeUser(u, u.InMeeting())
			if u.HumanizedStatus == "removed_from_meeting" && u.FullName == a.DisplayName() && a.ParticipantsNamed(a.DisplayName()) == 1 {
				a.leftMeeting(adapter.KindRemovedFromMeeting)
			}
		}

	case MsgSilenceStatus:
		if msg.IsSilent != nil && !*msg.IsSilent {
			a.AudioActivity()
		}

	case MsgChatStatusChange:
		if msg.Change == "ready_to_send" && a.SetReadyToSendChat() {
			a.Emit(adapter.Event{Kind: adapter.KindReadyToSendChat})
		}

	case MsgMeetingStatusChange:
		switch msg.Change {
		case "removed_from_meeting":
			a.leftMeeting(adapter.KindRemovedFromMeeting)
		case "meeting_ended":
			a.leftMeeting(adapter.KindMeetingEnded)
		case "failed_to_join":
			var reason FailedToJoinReason
			_ = json.Unmarshal(msg.Reason, &reason)
			a.Logger().Info().Str(log.FieldReason, string(msg.Reason)).Msg("page reported failed join")
			if a.platform.FailedToJoin == nil {
				return
			}
			if ev, ok := a.platform.FailedToJoin(reason); ok {
				a.Emit(ev)
			}
		}

	case MsgRecordingPermissionChange:
		switch msg.Change {
		case "granted":
			a.canRecord(a.Context())
		case "denied":
			a.Emit(adapter.Event{Kind: adapter.KindRecordingPermissionDenied, Reason: bot.SubPermissionDeniedByHost})
		}

	case MsgClosedCaptionStatusChange:
		if msg.Change == "save_caption_not_allowed" {
			a.CaptionsFailed(false)
		}
	}
}

func (a *Adapter) observeUser(u User, active bool) {
	if a.meetingMismatch(u) {
		return
	}
	p := bot.Participant{
		UUID:     u.DeviceID,
		FullName: u.FullName,
		IsTheBot: u.IsCurrentUser,
		IsHost:   u.IsHost,
		Active:   active,
	}
	if ev, ok := a.ObserveParticipant(p); ok {
		a.Emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &ev})
	}
}

// meetingMismatch drops roster entries from another meeting; Teams reports
// lobby and breakout rosters on the same page.
func (a *Adapter) meetingMismatch(u User) bool {
	if u.MeetingID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.meetingUUID == "" {
		a.meetingUUID = u.MeetingID
		return false
	}
	if a.meetingUUID != u.MeetingID {
		a.Logger().Info().Str("meeting_id", u.MeetingID).Str("expected", a.meetingUUID).Msg("ignoring participant from another meeting")
		return true
	}
	return false
}

func (a *Adapter) leftMeeting(kind adapter.Kind) {
	a.MarkLeaveRequested()
	a.Emit(adapter.Event{Kind: kind})
}

// Leave clicks the leave button and reports the meeting as ended.
func (a *Adapter) Leave(ctx context.Context) error {
	if !a.MarkLeaveRequested() {
		return nil
	}
	if d := a.currentDriver(); d != nil {
		if _, err := d.Execute(ctx, scriptDisableMedia); err != nil {
			a.Logger().Info().Err(err).Msg("could not disable media sending")
		}
		if a.platform.LeaveScript != "" {
			if _, err := d.Execute(ctx, a.platform.LeaveScript); err != nil {
				a.Logger().Info().Err(err).Msg("error during leave")
			}
		}
	}
	a.EmitLocal(adapter.Event{Kind: adapter.KindMeetingEnded})
	return nil
}

// Disconnect implements adapter.Adapter; browser bots have no app session.
func (a *Adapter) Disconnect(context.Context) error { return adapter.ErrUnsupported }

// DrainQuiet and DrainMax bound how long Cleanup waits for the page to stop
// sending.
const (
	DrainQuiet = 2 * time.Second
	DrainMax   = 30 * time.Second
)

// Cleanup stops media, waits for buffered frames, and closes the browser.
// Later calls are no-ops.
func (a *Adapter) Cleanup(ctx context.Context) error {
	if !a.MarkCleanedUp() {
		return nil
	}
	d := a.currentDriver()
	if d != nil {
		if _, err := d.Execute(ctx, scriptDisableMedia); err != nil {
			a.Logger().Info().Err(err).Msg("could not disable media sending")
		}
	}
	a.drainFrames(ctx)
	a.Shutdown(ctx)

	var errs []error
	if d != nil {
		if err := d.Quit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("quit browser: %w", err))
		}
	}
	a.mu.Lock()
	cd := a.chromedriver
	a.mu.Unlock()
	if cd != nil {
		if err := cd.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop chromedriver: %w", err))
		}
	}
	if err := a.listener.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop listener: %w", err))
	}
	a.Logger().Info().Str(log.FieldEvent, "webbot.cleaned_up").Msg("browser adapter cleaned up")
	return errors.Join(errs...)
}

func (a *Adapter) drainFrames(ctx context.Context) {
	if a.listener.LastFrameAt().IsZero() {
		return
	}
	started := a.Now()
	for a.Now().Sub(a.listener.LastFrameAt()) < DrainQuiet && a.Now().Sub(started) < DrainMax {
		if err := a.cfg.Sleep(ctx, 500*time.Millisecond); err != nil {
			return
		}
	}
}

// SendRawAudio plays 16-bit PCM through the page's audio output.
func (a *Adapter) SendRawAudio(b []byte, sampleRate int) error {
	d := a.currentDriver()
	if d == nil {
		return ErrNoDriver
	}
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	_, err := d.Execute(a.Context(), scriptPlayPCM, samples, sampleRate)
	return err
}

// SendRawImage shows an image as the bot's camera.
func (a *Adapter) SendRawImage(b []byte) error {
	d := a.currentDriver()
	if d == nil {
		return ErrNoDriver
	}
	values := make([]int, len(b))
	for i, v := range b {
		values[i] = int(v)
	}
	_, err := d.Execute(a.Context(), scriptDisplayImage, values)
	return err
}

// SendVideo plays a video URL as the bot's camera.
func (a *Adapter) SendVideo(url string) error {
	if a.platform.SendVideoScript == "" {
		return adapter.ErrUnsupported
	}
	d := a.currentDriver()
	if d == nil {
		return ErrNoDriver
	}
	_, err := d.Execute(a.Context(), a.platform.SendVideoScript, url)
	return err
}

// IsSentVideoStillPlaying asks the page whether the video is still running.
func (a *Adapter) IsSentVideoStillPlaying() bool {
	d := a.currentDriver()
	if a.platform.VideoPlayingScript == "" || d == nil {
		return false
	}
	raw, err := d.Execute(a.Context(), a.platform.VideoPlayingScript)
	if err != nil {
		a.Logger().Warn().Err(err).Msg("could not query video playback")
		return false
	}
	var playing bool
	_ = json.Unmarshal(raw, &playing)
	return playing
}

// AdmitFromWaitingRoom implements adapter.Adapter.
func (a *Adapter) AdmitFromWaitingRoom() error { return adapter.ErrUnsupported }

// ChangeGalleryViewPage pages through the participant gallery.
func (a *Adapter) ChangeGalleryViewPage(next bool) error {
	return a.runScript(a.platform.GalleryScript, next)
}

// SendChatMessage posts text to the meeting chat.
func (a *Adapter) SendChatMessage(text, toUserUUID string) error {
	return a.runScript(a.platform.ChatScript, text, toUserUUID)
}

func (a *Adapter) runScript(script string, args ...any) error {
	if script == "" {
		return adapter.ErrUnsupported
	}
	d := a.currentDriver()
	if d == nil {
		return ErrNoDriver
	}
	_, err := d.Execute(a.Context(), script, args...)
	return err
}

// UpdateClosedCaptionsLanguage switches the platform caption language.
func (a *Adapter) UpdateClosedCaptionsLanguage(language string) error {
	if language == "" || language == a.captionLanguage {
		return nil
	}
	if a.platform.CaptionLanguageScript == "" {
		return adapter.ErrUnsupported
	}
	d := a.currentDriver()
	if d == nil {
		return ErrNoDriver
	}
	a.captionLanguage = language
	raw, err := d.Execute(a.Context(), a.platform.CaptionLanguageScript, language)
	if err != nil {
		return err
	}
	var ok bool
	if json.Unmarshal(raw, &ok) != nil || !ok {
		a.Logger().Error().Str("language", language).Msg("failed to set closed captions language")
	}
	return nil
}

// StagedJoinDelay implements adapter.Adapter.
func (a *Adapter) StagedJoinDelay() time.Duration { return a.platform.StagedJoinDelay }
