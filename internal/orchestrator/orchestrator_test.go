// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/adapter/zoomsdk"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/config"
	"github.com/ManuGH/meetbot/internal/control"
	"github.com/ManuGH/meetbot/internal/loop"
	"github.com/ManuGH/meetbot/internal/pipeline"
	"github.com/ManuGH/meetbot/internal/procgroup"
	"github.com/ManuGH/meetbot/internal/store"
	"github.com/ManuGH/meetbot/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 3 * time.Second

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Recording.Dir = t.TempDir()
	cfg.Orchestrator.TickInterval = 5 * time.Millisecond
	cfg.Orchestrator.MailboxCapacity = 64
	cfg.Orchestrator.TranscriptionWait = 2 * time.Second
	cfg.Orchestrator.TranscriptionPoll = 10 * time.Millisecond
	cfg.Orchestrator.CleanupWatchdog = 10 * time.Second
	return cfg
}

type harness struct {
	t       *testing.T
	store   *store.SQLStore
	bot     bot.Bot
	adapter *fakeAdapter
	pipe    *fakePipeline
	orch    *Orchestrator
	signals chan os.Signal

	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, b bot.Bot, tweak ...func(*config.AppConfig, *Deps)) *harness {
	t.Helper()
	s := testutil.OpenStore(t)
	h := &harness{
		t:       t,
		store:   s,
		bot:     testutil.SeedBot(t, s, b),
		adapter: newFakeAdapter(),
		pipe:    &fakePipeline{},
		signals: make(chan os.Signal, 1),
	}
	cfg := testConfig(t)
	deps := Deps{
		Store:   s,
		Signals: h.signals,
		NewAdapter: func(_ bot.Bot, base adapter.BaseConfig) (adapter.Adapter, error) {
			h.adapter.base = base
			return h.adapter, nil
		},
		NewPipeline: func(pipeline.Configuration, pipeline.Callbacks) pipeline.Pipeline { return h.pipe },
		KillSelf: func() error {
			t.Error("cleanup watchdog fired")
			return nil
		},
		Usage: func() (procgroup.Usage, error) { return procgroup.Usage{MaxRSSBytes: 64 << 20, Goroutines: 10}, nil },
	}
	for _, fn := range tweak {
		fn(&cfg, &deps)
	}
	h.orch = New(cfg, deps)
	require.NoError(t, h.orch.Initialize(context.Background(), h.bot.ID))
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.orch.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitFor):
		}
	})
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(waitFor):
		h.t.Fatal("orchestrator did not stop")
		return nil
	}
}

func (h *harness) emit(ev adapter.Event) {
	h.t.Helper()
	require.NoError(h.t, h.adapter.emit(ev))
}

func (h *harness) command(name control.Name) {
	h.t.Helper()
	require.NoError(h.t, h.orch.SubmitCommand(context.Background(), control.Command{Name: name}))
}

func (h *harness) awaitState(s bot.State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.orch.State() == s }, waitFor, 5*time.Millisecond,
		"state is %s, want %s", h.orch.State(), s)
}

func (h *harness) awaitInits(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.adapter.calls(func(a *fakeAdapter) int { return a.inits }) == n
	}, waitFor, 5*time.Millisecond)
}

func (h *harness) join() {
	h.t.Helper()
	h.start()
	h.awaitInits(1)
	h.emit(adapter.Event{Kind: adapter.KindJoinedMeeting})
	h.awaitState(bot.StateJoinedNotRecording)
}

func TestRunInitializesJoiningBot(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.start()
	h.awaitInits(1)

	b, err := h.store.GetBot(context.Background(), h.bot.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateJoining, b.State)
	require.Eventually(t, func() bool {
		hb, err := h.store.Heartbeat(context.Background(), h.bot.ID)
		return err == nil && !hb.IsZero()
	}, waitFor, 5*time.Millisecond)
}

func TestRunBeforeInitialize(t *testing.T) {
	o := New(testConfig(t), Deps{Store: testutil.OpenStore(t)})
	assert.ErrorIs(t, o.Run(context.Background()), ErrNotInitialized)
}

func TestMeetingEndedRunsPostProcessing(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()

	h.emit(adapter.Event{Kind: adapter.KindMeetingEnded})
	require.NoError(t, h.wait())

	assert.Equal(t, bot.StateEnded, h.orch.State())
	assert.Equal(t, []bot.EventType{
		bot.EventJoinedMeeting,
		bot.EventMeetingEnded,
		bot.EventPostProcessingCompleted,
	}, testutil.EventTypes(t, h.store, h.bot.ID))
	assert.Equal(t, 1, h.adapter.calls(func(a *fakeAdapter) int { return a.cleanups }))
	assert.Equal(t, 1, h.pipe.count(func(p *fakePipeline) int { return p.stops }))

	deliveries, err := h.store.WebhookDeliveries(context.Background(), h.bot.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 3)
	assert.Equal(t, store.TriggerBotStateChange, deliveries[2].Trigger)
	assert.Equal(t, "ended", deliveries[2].Payload["new_state"])
}

func TestRequestedLeaveEndsAsLeftMeeting(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()

	h.emit(adapter.RequestedLeave(bot.SubLeaveAutoSilence))
	h.awaitState(bot.StateLeaving)
	assert.Equal(t, bot.SubLeaveAutoSilence, testutil.LastEvent(t, h.store, h.bot.ID).SubType)

	h.emit(adapter.Event{Kind: adapter.KindMeetingEnded})
	require.NoError(t, h.wait())
	assert.Equal(t, []bot.EventType{
		bot.EventJoinedMeeting,
		bot.EventLeaveRequested,
		bot.EventLeftMeeting,
		bot.EventPostProcessingCompleted,
	}, testutil.EventTypes(t, h.store, h.bot.ID))
	// One leave from the request, one from cleanup.
	assert.Equal(t, 2, h.adapter.calls(func(a *fakeAdapter) int { return a.leaves }))
}

func TestPostProcessingWaitsForTranscriptions(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	ctx := context.Background()
	id, err := h.store.CreateUtterance(ctx, h.bot.ID, bot.Utterance{
		ParticipantUUID: "p1",
		Source:          bot.SourcePerParticipantAudio,
		SampleRate:      16000,
		Audio:           make([]byte, 320),
	})
	require.NoError(t, err)
	h.join()

	h.emit(adapter.Event{Kind: adapter.KindMeetingEnded})
	h.awaitState(bot.StatePostProcessing)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, bot.StatePostProcessing, h.orch.State())
	require.NoError(t, h.store.CompleteTranscription(ctx, id, nil, map[string]any{"reason": "timeout"}))

	require.NoError(t, h.wait())
	last := testutil.LastEvent(t, h.store, h.bot.ID)
	assert.Equal(t, bot.EventPostProcessingCompleted, last.Type)
	assert.Equal(t, map[string]any{"timeout": float64(1)}, last.Metadata["transcription_errors"])
}

func TestCouldNotJoinSavesArtifactsAndCleansUp(t *testing.T) {
	h := newHarness(t, bot.Bot{}, func(_ *config.AppConfig, d *Deps) {
		d.Artifacts = newTestBucket(t)
	})
	h.start()
	h.awaitInits(1)

	h.emit(adapter.Event{
		Kind:      adapter.KindCouldNotJoin,
		Reason:    bot.SubCouldNotJoinMeetingNotFound,
		Metadata:  map[string]any{"step": "join"},
		Artifacts: map[string][]byte{"screenshot": []byte("png"), "mhtml": []byte("page")},
	})
	require.NoError(t, h.wait())

	last := testutil.LastEvent(t, h.store, h.bot.ID)
	assert.Equal(t, bot.EventCouldNotJoin, last.Type)
	assert.Equal(t, bot.SubCouldNotJoinMeetingNotFound, last.SubType)
	assert.Equal(t, bot.StateFatalError, h.orch.State())

	n, err := h.store.CountRows(context.Background(), "debug_artifacts", h.bot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSignalRecordsProcessTerminated(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.start()
	h.awaitInits(1)

	h.signals <- syscall.SIGTERM
	require.NoError(t, h.wait())

	last := testutil.LastEvent(t, h.store, h.bot.ID)
	assert.Equal(t, bot.EventFatalError, last.Type)
	assert.Equal(t, bot.SubFatalProcessTerminated, last.SubType)
	assert.Equal(t, 1, h.adapter.calls(func(a *fakeAdapter) int { return a.cleanups }))
}

func TestCancelledContextRecordsProcessTerminated(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.start()
	h.awaitInits(1)

	h.cancel()
	require.NoError(t, h.wait())
	assert.Equal(t, bot.SubFatalProcessTerminated, testutil.LastEvent(t, h.store, h.bot.ID).SubType)
}

func TestTickPanicIsFatal(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.adapter.panicOnCheck = true
	h.start()

	err := h.wait()
	var pe *loop.PanicError
	require.True(t, errors.As(err, &pe), "got %v", err)

	last := testutil.LastEvent(t, h.store, h.bot.ID)
	assert.Equal(t, bot.EventFatalError, last.Type)
	assert.Equal(t, bot.SubFatalAttendeeInternalError, last.SubType)
	assert.Equal(t, 1, h.adapter.calls(func(a *fakeAdapter) int { return a.cleanups }))
}

func TestUnexpectedPermissionDeniedReasonIsLogged(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()

	h.emit(adapter.Event{Kind: adapter.KindRecordingPermissionDenied, Reason: "because"})
	h.emit(adapter.Event{Kind: adapter.KindRecordingPermissionGranted})
	h.awaitState(bot.StateJoinedRecording)

	assert.Equal(t, []bot.EventType{bot.EventJoinedMeeting, bot.EventRecordingPermissionGranted}, testutil.EventTypes(t, h.store, h.bot.ID))
	assert.Empty(t, h.done)
}

func TestZoomNativeWithoutBindingIsFatal(t *testing.T) {
	h := newHarness(t, bot.Bot{MeetingURL: "https://us02web.zoom.us/j/123456789"}, func(_ *config.AppConfig, d *Deps) {
		d.NewAdapter = nil
	})
	h.start()

	err := h.wait()
	require.ErrorIs(t, err, zoomsdk.ErrNoBinding)
	last := testutil.LastEvent(t, h.store, h.bot.ID)
	assert.Equal(t, bot.EventFatalError, last.Type)
	assert.Equal(t, bot.SubFatalAttendeeInternalError, last.SubType)
}

func TestFailedPauseKeepsRecording(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()
	h.emit(adapter.Event{Kind: adapter.KindRecordingPermissionGranted})
	h.awaitState(bot.StateJoinedRecording)

	h.pipe.failPause(errors.New("recorder refused to pause"))
	h.command(control.PauseRecording)
	h.command(control.AdmitFromWaitingRoom)
	require.Eventually(t, func() bool {
		return h.adapter.calls(func(a *fakeAdapter) int { return a.admits }) == 1
	}, waitFor, 5*time.Millisecond)

	assert.Equal(t, bot.StateJoinedRecording, h.orch.State())
	assert.Zero(t, h.adapter.calls(func(a *fakeAdapter) int { return a.pauses }))
	assert.Equal(t, []bot.EventType{bot.EventJoinedMeeting, bot.EventRecordingPermissionGranted}, testutil.EventTypes(t, h.store, h.bot.ID))
	assert.Empty(t, h.done)

	h.pipe.failPause(nil)
	h.command(control.PauseRecording)
	h.awaitState(bot.StateJoinedRecordingPaused)
}

func TestStagedBotJoinsWhenJoinTimeIsNear(t *testing.T) {
	joinAt := time.Now().Add(30 * time.Second)
	h := newHarness(t, bot.Bot{State: bot.StateStaged, JoinAt: &joinAt})
	h.start()
	h.awaitInits(1)

	last := testutil.LastEvent(t, h.store, h.bot.ID)
	assert.Equal(t, bot.EventJoinRequested, last.Type)
	assert.Equal(t, bot.StateJoining, last.NewState)
	assert.Equal(t, "scheduler", last.Metadata["source"])
}

func TestStagedBotWaitsForJoinTime(t *testing.T) {
	joinAt := time.Now().Add(10 * time.Minute)
	h := newHarness(t, bot.Bot{State: bot.StateStaged, JoinAt: &joinAt})
	h.start()

	require.Never(t, func() bool {
		return h.adapter.calls(func(a *fakeAdapter) int { return a.inits }) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, bot.StateStaged, h.orch.State())
}

func TestBlockedRepeatedlySchedulesRestart(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.start()
	h.awaitInits(1)

	h.emit(adapter.Event{Kind: adapter.KindBlockedRepeatedly})
	require.NoError(t, h.wait())

	n, err := h.store.CountRows(context.Background(), "bot_restarts", h.bot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, bot.StateJoining, h.orch.State())
	assert.Zero(t, h.adapter.calls(func(a *fakeAdapter) int { return a.cleanups }))
}

func TestBlockedRepeatedlyPastRestartWindowIsFatal(t *testing.T) {
	h := newHarness(t, bot.Bot{}, func(_ *config.AppConfig, d *Deps) {
		d.Now = func() time.Time { return time.Now().Add(time.Hour) }
	})
	h.start()
	h.awaitInits(1)

	h.emit(adapter.Event{Kind: adapter.KindBlockedRepeatedly})
	require.NoError(t, h.wait())

	last := testutil.LastEvent(t, h.store, h.bot.ID)
	assert.Equal(t, bot.EventFatalError, last.Type)
	assert.Equal(t, true, last.Metadata["bot_restarts_exceeded_max_retries"])
	n, err := h.store.CountRows(context.Background(), "bot_restarts", h.bot.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordingPermissionStartsPipeline(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()

	h.emit(adapter.Event{Kind: adapter.KindRecordingPermissionGranted})
	h.awaitState(bot.StateJoinedRecording)
	assert.Equal(t, 1, h.pipe.count(func(p *fakePipeline) int { return p.starts }))

	h.command(control.PauseRecording)
	h.awaitState(bot.StateJoinedRecordingPaused)
	assert.Equal(t, 1, h.pipe.count(func(p *fakePipeline) int { return p.pauses }))
	assert.Equal(t, 1, h.adapter.calls(func(a *fakeAdapter) int { return a.pauses }))

	h.command(control.ResumeRecording)
	h.awaitState(bot.StateJoinedRecording)
	assert.Equal(t, 1, h.pipe.count(func(p *fakePipeline) int { return p.resumes }))

	h.emit(adapter.Event{Kind: adapter.KindRecordingPermissionDenied, Reason: bot.SubPermissionDeniedByHost})
	h.awaitState(bot.StateJoinedRecordingPermissionDenied)
	assert.Equal(t, 2, h.pipe.count(func(p *fakePipeline) int { return p.pauses }))

	h.emit(adapter.Event{Kind: adapter.KindRecordingPermissionGranted})
	h.awaitState(bot.StateJoinedRecording)
	assert.Equal(t, 1, h.pipe.count(func(p *fakePipeline) int { return p.starts }))
	assert.Equal(t, 2, h.pipe.count(func(p *fakePipeline) int { return p.resumes }))
}

func TestCommandsOutsideMeetingAreIgnored(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.start()
	h.awaitInits(1)

	h.command(control.PauseRecording)
	h.command(control.AdmitFromWaitingRoom)
	h.command(control.ChangeGalleryViewPageNext)
	h.emit(adapter.Event{Kind: adapter.KindJoinedMeeting})
	h.awaitState(bot.StateJoinedNotRecording)

	assert.Zero(t, h.pipe.count(func(p *fakePipeline) int { return p.pauses }))
	assert.Zero(t, h.adapter.calls(func(a *fakeAdapter) int { return a.pauses }))
	assert.Zero(t, h.adapter.calls(func(a *fakeAdapter) int { return a.admits }))
	assert.Equal(t, []bot.EventType{bot.EventJoinedMeeting}, testutil.EventTypes(t, h.store, h.bot.ID))

	h.command(control.AdmitFromWaitingRoom)
	h.command(control.ChangeGalleryViewPagePrevious)
	require.Eventually(t, func() bool {
		return h.adapter.calls(func(a *fakeAdapter) int { return len(a.galleryPages) }) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, h.adapter.calls(func(a *fakeAdapter) int { return a.admits }))
}

func TestBreakoutRoomReturnsToOrigin(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()
	h.emit(adapter.Event{Kind: adapter.KindRecordingPermissionGranted})
	h.awaitState(bot.StateJoinedRecording)

	h.emit(adapter.Event{Kind: adapter.KindJoiningBreakoutRoom})
	h.awaitState(bot.StateJoiningBreakoutRoom)
	h.emit(adapter.Event{Kind: adapter.KindJoinedMeeting})
	h.awaitState(bot.StateJoinedRecording)
	assert.Equal(t, bot.EventJoinedBreakoutRoom, testutil.LastEvent(t, h.store, h.bot.ID).Type)
}

func TestSyncReloadsStateAndActs(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()

	// The API moved the bot to leaving.
	require.NoError(t, h.store.CreateLifecycleEvent(context.Background(), bot.LifecycleEvent{
		ID:        "ev-api",
		BotID:     h.bot.ID,
		Type:      bot.EventLeaveRequested,
		SubType:   bot.SubLeaveUserRequested,
		OldState:  bot.StateJoinedNotRecording,
		NewState:  bot.StateLeaving,
		CreatedAt: time.Now(),
	}))
	h.command(control.Sync)
	h.awaitState(bot.StateLeaving)
	require.Eventually(t, func() bool {
		return h.adapter.calls(func(a *fakeAdapter) int { return a.leaves }) == 1
	}, waitFor, 5*time.Millisecond)
}

func TestParticipantEventsAreStored(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.adapter.addParticipant(bot.Participant{UUID: "p1", FullName: "Ada", Active: true})
	h.adapter.addParticipant(bot.Participant{UUID: "self", FullName: "Notes Bot", IsTheBot: true, Active: true})
	h.join()

	h.emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &bot.ParticipantEvent{
		ParticipantUUID: "self", Type: bot.ParticipantJoin, TimestampMs: 1,
	}})
	h.emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &bot.ParticipantEvent{
		ParticipantUUID: "p1", Type: bot.ParticipantJoin, TimestampMs: 2,
	}})
	h.emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &bot.ParticipantEvent{
		ParticipantUUID: "p1",
		Type:            bot.ParticipantUpdate,
		Data:            map[string]any{"isHost": map[string]any{"before": false, "after": true}},
		TimestampMs:     3,
	}})
	h.emit(adapter.Event{Kind: adapter.KindParticipantEvent, Participant: &bot.ParticipantEvent{
		ParticipantUUID: "ghost", Type: bot.ParticipantJoin, TimestampMs: 4,
	}})

	ctx := context.Background()
	require.Eventually(t, func() bool {
		p, err := h.store.Participant(ctx, h.bot.ID, "p1")
		return err == nil && p.IsHost
	}, waitFor, 5*time.Millisecond)

	n, err := h.store.CountRows(ctx, "participant_events", h.bot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deliveries, err := h.store.WebhookDeliveries(ctx, h.bot.ID)
	require.NoError(t, err)
	var participantHooks []store.WebhookDelivery
	for _, d := range deliveries {
		if d.Trigger == store.TriggerParticipantEvent {
			participantHooks = append(participantHooks, d)
		}
	}
	require.Len(t, participantHooks, 1)
	assert.Equal(t, "p1", participantHooks[0].Payload["participant_uuid"])
}

func TestChatMessageRequestsAreSent(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.adapter.chatReady = true
	h.adapter.failChatAfter = 1
	ctx := context.Background()
	for _, msg := range []string{"hello", "again"} {
		_, err := h.store.CreateChatMessageRequest(ctx, h.bot.ID, bot.ChatMessageRequest{Message: msg})
		require.NoError(t, err)
	}
	h.join()

	h.command(control.SyncChatMessageRequests)
	require.Eventually(t, func() bool {
		failed, err := h.store.ChatMessageRequests(ctx, h.bot.ID, bot.ChatRequestFailed)
		return err == nil && len(failed) == 1
	}, waitFor, 5*time.Millisecond)

	sent, err := h.store.ChatMessageRequests(ctx, h.bot.ID, bot.ChatRequestSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].Message)
}

func TestChatMessagesFromParticipantsAreStored(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.adapter.addParticipant(bot.Participant{UUID: "p1", FullName: "Ada", Active: true})
	h.join()

	h.emit(adapter.Event{Kind: adapter.KindChatMessage, Chat: &bot.ChatMessage{
		MessageUUID: "m1", ParticipantUUID: "p1", Text: "hi bot", Timestamp: time.UnixMilli(12),
	}})
	require.Eventually(t, func() bool {
		n, err := h.store.CountRows(context.Background(), "chat_messages", h.bot.ID)
		return err == nil && n == 1
	}, waitFor, 5*time.Millisecond)
}

func TestResourceSnapshotsAreTaken(t *testing.T) {
	h := newHarness(t, bot.Bot{}, func(cfg *config.AppConfig, _ *Deps) {
		cfg.Orchestrator.SnapshotInterval = 20 * time.Millisecond
	})
	h.start()
	require.Eventually(t, func() bool {
		n, err := h.store.CountRows(context.Background(), "resource_snapshots", h.bot.ID)
		return err == nil && n >= 1
	}, waitFor, 5*time.Millisecond)
}

func TestCouldNotEnableCaptionsLogsEntry(t *testing.T) {
	h := newHarness(t, bot.Bot{})
	h.join()

	h.emit(adapter.Event{Kind: adapter.KindCouldNotEnableCaptions})
	require.Eventually(t, func() bool {
		n, err := h.store.CountRows(context.Background(), "bot_log_entries", h.bot.ID)
		return err == nil && n == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, bot.StateJoinedNotRecording, h.orch.State())
}

func TestAppSessionLifecycle(t *testing.T) {
	h := newHarness(t, bot.Bot{State: bot.StateConnecting})
	h.start()
	h.awaitInits(1)

	h.emit(adapter.Event{Kind: adapter.KindAppSessionConnected})
	h.awaitState(bot.StateConnected)
	assert.Equal(t, 1, h.pipe.count(func(p *fakePipeline) int { return p.starts }))

	h.emit(adapter.Event{Kind: adapter.KindAppSessionDisconnectRequested})
	h.awaitState(bot.StateDisconnecting)
	require.Eventually(t, func() bool {
		return h.adapter.calls(func(a *fakeAdapter) int { return a.disconnects }) == 1
	}, waitFor, 5*time.Millisecond)

	h.emit(adapter.Event{Kind: adapter.KindAppSessionDisconnected})
	require.NoError(t, h.wait())
	assert.Equal(t, bot.StateEnded, h.orch.State())
}
