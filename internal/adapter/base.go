// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/autoleave"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
)

// BaseConfig configures the shared adapter state.
type BaseConfig struct {
	BotID       string
	DisplayName string
	Platform    string
	AutoLeave   autoleave.Config
	Events      Events
	Now         func() time.Time
}

// Base is embedded by every adapter. It owns the auto-leave monitor, the
// participant roster, the leave/cleanup latches and the adapter's
// background goroutines. Its methods are safe for concurrent use.
type Base struct {
	botID       string
	displayName string
	platform    string
	events      Events
	now         func() time.Time
	logger      zerolog.Logger

	mu      sync.Mutex
	monitor *autoleave.Monitor

	leaveRequested  atomic.Bool
	cleanedUp       atomic.Bool
	chatReady       atomic.Bool
	recordingPaused atomic.Bool
	firstBufferMs   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBase creates the shared state.
func NewBase(cfg BaseConfig) *Base {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Base{
		botID:       cfg.BotID,
		displayName: cfg.DisplayName,
		platform:    cfg.Platform,
		events:      cfg.Events,
		now:         cfg.Now,
		logger:      log.WithBot("adapter", cfg.BotID).With().Str(log.FieldPlatform, cfg.Platform).Logger(),
		monitor:     autoleave.NewMonitor(cfg.AutoLeave, cfg.DisplayName, cfg.Now),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (b *Base) BotID() string           { return b.botID }
func (b *Base) DisplayName() string     { return b.displayName }
func (b *Base) Platform() string        { return b.platform }
func (b *Base) Logger() *zerolog.Logger { return &b.logger }
func (b *Base) Now() time.Time          { return b.now() }

// AutoLeaveConfig returns the policy configuration.
func (b *Base) AutoLeaveConfig() autoleave.Config { return b.monitor.Config() }

// Emit posts an event from an adapter goroutine.
func (b *Base) Emit(ev Event) {
	if err := b.events.Post(b.ctx, ev); err != nil {
		b.logger.Debug().Err(err).Str(log.FieldEventType, string(ev.Kind)).Msg("adapter event not delivered")
	}
}

// EmitLocal posts an event while the orchestrator loop is calling in.
func (b *Base) EmitLocal(ev Event) { b.events.PostLocal(ev) }

// Go runs fn in a goroutine that Shutdown cancels and waits for.
func (b *Base) Go(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

// Context is cancelled by Shutdown.
func (b *Base) Context() context.Context { return b.ctx }

// Shutdown cancels background goroutines and waits for them or ctx.
func (b *Base) Shutdown(ctx context.Context) {
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn().Str(log.FieldEvent, "adapter.shutdown_timeout").Msg("adapter goroutines still running at shutdown")
	}
}

// MarkLeaveRequested latches that leave was requested. It reports whether
// this call set the latch.
func (b *Base) MarkLeaveRequested() bool { return b.leaveRequested.CompareAndSwap(false, true) }

// LeaveRequested reports the leave latch.
func (b *Base) LeaveRequested() bool { return b.leaveRequested.Load() }

// MarkCleanedUp latches cleanup. It reports whether this call set it.
func (b *Base) MarkCleanedUp() bool { return b.cleanedUp.CompareAndSwap(false, true) }

// CleanedUp reports the cleanup latch.
func (b *Base) CleanedUp() bool { return b.cleanedUp.Load() }

// Stopped reports whether protocol actions should no longer be taken.
func (b *Base) Stopped() bool { return b.LeaveRequested() || b.CleanedUp() }

// SetReadyToSendChat marks chat as usable and reports the first transition.
func (b *Base) SetReadyToSendChat() bool { return b.chatReady.CompareAndSwap(false, true) }

// IsReadyToSendChatMessages implements Adapter.
func (b *Base) IsReadyToSendChatMessages() bool { return b.chatReady.Load() }

// PauseRecording implements Adapter for adapters that simply drop media
// while paused.
func (b *Base) PauseRecording() error {
	b.recordingPaused.Store(true)
	return nil
}

// ResumeRecording implements Adapter.
func (b *Base) ResumeRecording() error {
	b.recordingPaused.Store(false)
	return nil
}

// RecordingPaused reports whether media should be dropped.
func (b *Base) RecordingPaused() bool { return b.recordingPaused.Load() }

// SetFirstBufferTimestampMs records the first media buffer time once.
func (b *Base) SetFirstBufferTimestampMs(ms int64) {
	b.firstBufferMs.CompareAndSwap(0, ms)
}

// FirstBufferTimestampMs implements Adapter.
func (b *Base) FirstBufferTimestampMs() (int64, bool) {
	ms := b.firstBufferMs.Load()
	return ms, ms != 0
}

// MarkJoined starts the auto-leave clocks.
func (b *Base) MarkJoined() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monitor.MarkJoined()
}

// Joined reports whether the bot has joined the meeting.
func (b *Base) Joined() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.monitor.Joined()
}

// AudioActivity records that someone is speaking.
func (b *Base) AudioActivity() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monitor.AudioActivity()
}

// CaptionsFailed records that captions could not be enabled and raises
// could_not_enable_captions.
func (b *Base) CaptionsFailed(local bool) {
	b.mu.Lock()
	b.monitor.CaptionsFailed()
	b.mu.Unlock()
	ev := Event{Kind: KindCouldNotEnableCaptions}
	if local {
		b.EmitLocal(ev)
		return
	}
	b.Emit(ev)
}

// GetParticipant implements Adapter.
func (b *Base) GetParticipant(id string) (bot.Participant, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.monitor.Presence().Get(id)
}

// ParticipantsNamed counts known participants with the given full name.
func (b *Base) ParticipantsNamed(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.monitor.Presence().CountWithName(name)
}

// ObserveParticipant stores the latest state of a participant and returns
// the join, leave or host-change event it implies.
func (b *Base) ObserveParticipant(p bot.Participant) (bot.ParticipantEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, _ := b.monitor.Presence().Get(p.UUID)
	b.monitor.Observe(p)

	ev := bot.ParticipantEvent{ParticipantUUID: p.UUID, TimestampMs: b.now().UnixMilli()}
	switch {
	case prev.Active && !p.Active:
		ev.Type = bot.ParticipantLeave
	case !prev.Active && p.Active:
		ev.Type = bot.ParticipantJoin
	case prev.IsHost != p.IsHost:
		ev.Type = bot.ParticipantUpdate
		ev.Data = map[string]any{"isHost": map[string]any{"before": prev.IsHost, "after": p.IsHost}}
	default:
		return bot.ParticipantEvent{}, false
	}
	return ev, true
}

// CheckAutoLeaveConditions implements Adapter.
func (b *Base) CheckAutoLeaveConditions() {
	if b.Stopped() {
		return
	}
	b.mu.Lock()
	d, leave := b.monitor.Check()
	b.mu.Unlock()
	if leave {
		b.EmitLocal(RequestedLeave(d.Reason))
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
