// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator runs one meeting bot: it owns the bot's lifecycle
// state, the platform adapter and the media managers, and serializes
// commands, adapter events and timer ticks on a single dispatch loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/adapter/zoomsdk"
	"github.com/ManuGH/meetbot/internal/blob"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/config"
	"github.com/ManuGH/meetbot/internal/control"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/loop"
	"github.com/ManuGH/meetbot/internal/mediain"
	"github.com/ManuGH/meetbot/internal/mediaout"
	"github.com/ManuGH/meetbot/internal/metrics"
	"github.com/ManuGH/meetbot/internal/pipeline"
	"github.com/ManuGH/meetbot/internal/procgroup"
	"github.com/ManuGH/meetbot/internal/resilience"
	"github.com/ManuGH/meetbot/internal/store"
)

var (
	// ErrNotInitialized is returned by Run before Initialize succeeded.
	ErrNotInitialized = errors.New("orchestrator: not initialized")
	// ErrUnsupportedMeeting is returned when no adapter serves the meeting URL.
	ErrUnsupportedMeeting = errors.New("orchestrator: unsupported meeting url")
)

// AdapterFactory builds the adapter for a bot. base carries the shared
// adapter configuration, including the event sink.
type AdapterFactory func(b bot.Bot, base adapter.BaseConfig) (adapter.Adapter, error)

// PipelineFactory builds the media pipeline for a bot.
type PipelineFactory func(cfg pipeline.Configuration, cb pipeline.Callbacks) pipeline.Pipeline

// WebpageStreamer renders a voice agent page as the bot's camera and
// microphone.
type WebpageStreamer interface {
	Update(ctx context.Context, url, outputDestination string) error
	Cleanup()
}

// Deps are the orchestrator's collaborators. Only Store is required.
type Deps struct {
	Store     store.Store
	Uploader  blob.Uploader
	Artifacts blob.ArtifactSaver

	// Control subscribes to the bot's command topic when set.
	Control redis.UniversalClient
	// Transcription opens streaming transcription sessions.
	Transcription mediain.SessionFactory
	Webpage       WebpageStreamer
	// ZoomSDK loads the native Zoom binding.
	ZoomSDK zoomsdk.Opener

	NewAdapter  AdapterFactory
	NewPipeline PipelineFactory

	// Signals replaces the process signal subscription.
	Signals  <-chan os.Signal
	Now      func() time.Time
	KillSelf func() error
	Usage    func() (procgroup.Usage, error)
}

// work is one item on the dispatch loop.
type work struct {
	command *control.Command
	event   *adapter.Event
	signal  os.Signal
}

// eventSink feeds adapter events into the mailbox.
type eventSink struct {
	mailbox *loop.Mailbox[work]
}

func (s eventSink) Post(ctx context.Context, ev adapter.Event) error {
	return s.mailbox.Post(ctx, work{event: &ev})
}

func (s eventSink) PostLocal(ev adapter.Event) {
	s.mailbox.PostLocal(work{event: &ev})
}

// Orchestrator drives one bot from its stored state to a terminal state.
type Orchestrator struct {
	cfg    config.AppConfig
	deps   Deps
	logger zerolog.Logger

	mailbox *loop.Mailbox[work]

	botID     string
	bot       bot.Bot
	lifecycle *bot.Lifecycle

	adapter     adapter.Adapter
	pipelineCfg pipeline.Configuration
	pipe        pipeline.Pipeline
	pipeStarted bool
	rtmp        *pipeline.RTMPClient
	rtmpFailed  bool
	wsAudio     *pipeline.AudioStreamer
	realtime    *mediaout.Realtime

	buffered  *mediain.Buffered
	streaming *mediain.Streaming
	captions  mediain.CaptionManager

	audioQueue *mediaout.Queue
	videoQueue *mediaout.Queue
	images     *mediaout.Images
	breaker    *resilience.CircuitBreaker

	utteranceDelayMs int64
	participantRate  int

	// ctx outlives the dispatch loop so cleanup can still reach the store.
	ctx      context.Context
	stopLoop context.CancelFunc
	channel  *control.RedisChannel

	firstTickDone bool
	lastHeartbeat time.Time
	lastSnapshot  time.Time
	lastTick      atomic.Int64

	cleanupStarted atomic.Bool
	restarting     bool
	releaseOnce    sync.Once
}

// New creates an orchestrator. Call Initialize before Run.
func New(cfg config.AppConfig, deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.KillSelf == nil {
		deps.KillSelf = procgroup.KillSelf
	}
	if deps.Usage == nil {
		deps.Usage = procgroup.CurrentUsage
	}
	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		logger:  log.WithComponent("orchestrator"),
		mailbox: loop.NewMailbox[work]("orchestrator", cfg.Orchestrator.MailboxCapacity),
		ctx:     context.Background(),
	}
	if o.deps.NewAdapter == nil {
		o.deps.NewAdapter = o.defaultAdapter
	}
	if o.deps.NewPipeline == nil {
		o.deps.NewPipeline = o.defaultPipeline
	}
	return o
}

// Initialize loads the bot record and restores its lifecycle.
func (o *Orchestrator) Initialize(ctx context.Context, botID string) error {
	b, err := o.deps.Store.GetBot(ctx, botID)
	if err != nil {
		return fmt.Errorf("load bot %s: %w", botID, err)
	}
	o.botID = botID
	o.bot = b
	o.lifecycle = bot.NewLifecycle(b.State)
	if b.State == bot.StateJoiningBreakoutRoom || b.State == bot.StateLeavingBreakoutRoom {
		o.lifecycle.SetBreakoutOrigin(b.LastEventOldState)
	}
	if o.deps.Control != nil {
		o.channel = control.NewRedisChannel(o.deps.Control, botID, o.SubmitCommand)
	}
	o.logger = log.WithBot("orchestrator", botID).With().
		Str(log.FieldPlatform, string(b.MeetingType())).
		Logger()
	o.logger.Info().
		Str(log.FieldEvent, "orchestrator.initialized").
		Str("state", string(b.State)).
		Msg("bot loaded")
	return nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() bot.State {
	if o.lifecycle == nil {
		return ""
	}
	return o.lifecycle.State()
}

// LastTick is the time of the most recent completed timer tick.
func (o *Orchestrator) LastTick() time.Time {
	ms := o.lastTick.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ControlConnected reports whether the control channel subscription is live.
// Without a control channel it is always true.
func (o *Orchestrator) ControlConnected() bool {
	if o.channel == nil {
		return true
	}
	return o.channel.Connected()
}

// SubmitCommand queues a control command. It is safe for concurrent use.
func (o *Orchestrator) SubmitCommand(ctx context.Context, cmd control.Command) error {
	return o.mailbox.Post(ctx, work{command: &cmd})
}

// Run owns the dispatch loop until the bot reaches a terminal state, a
// restart is scheduled or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.lifecycle == nil {
		return ErrNotInitialized
	}
	o.ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()
	loopCtx, cancel := context.WithCancel(ctx)
	o.stopLoop = cancel
	defer cancel()

	if o.channel != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = o.channel.Run(loopCtx)
		}()
	}

	signals := o.deps.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, os.Interrupt)
		defer signal.Stop(ch)
		signals = ch
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-signals:
			if err := o.mailbox.Post(loopCtx, work{signal: sig}); err != nil {
				o.logger.Warn().Err(err).Str("signal", sig.String()).Msg("signal not delivered to loop")
			}
		case <-loopCtx.Done():
		}
	}()

	defer o.release()

	if err := o.build(loopCtx); err != nil {
		o.logger.Error().Err(err).Str(log.FieldEvent, "orchestrator.build_failed").Msg("could not build bot components")
		o.fatal(o.ctx, bot.SubFatalAttendeeInternalError, map[string]any{"error": err.Error()})
		o.Cleanup(o.ctx)
		return err
	}
	o.lastSnapshot = o.deps.Now()

	runner := loop.Runner[work]{
		Mailbox:  o.mailbox,
		Handle:   o.handle,
		Tick:     o.tick,
		Interval: o.cfg.Orchestrator.TickInterval,
		Now:      o.deps.Now,
	}
	err := runner.Run(loopCtx)
	switch {
	case err != nil:
		o.logger.Error().Err(err).Str(log.FieldEvent, "orchestrator.loop_failed").Msg("dispatch loop failed")
		if !o.cleanupStarted.Load() {
			o.fatal(o.ctx, bot.SubFatalAttendeeInternalError, map[string]any{"error": err.Error()})
			o.Cleanup(o.ctx)
		}
		return err
	case o.restarting:
		o.logger.Info().Str(log.FieldEvent, "orchestrator.exit_for_restart").Msg("loop stopped for restart")
		return nil
	case ctx.Err() != nil && !o.cleanupStarted.Load():
		o.fatal(o.ctx, bot.SubFatalProcessTerminated, nil)
		o.Cleanup(o.ctx)
	}
	return nil
}

// handle dispatches one loop item. Command and event failures are logged and
// the loop carries on; only tick failures end it.
func (o *Orchestrator) handle(ctx context.Context, w work) error {
	metrics.MailboxDepth.Set(float64(o.mailbox.Len()))
	switch {
	case w.signal != nil:
		o.logger.Info().Str(log.FieldEvent, "orchestrator.signal").Str("signal", w.signal.String()).Msg("termination signal received")
		if o.cleanupStarted.Load() {
			return nil
		}
		o.fatal(o.ctx, bot.SubFatalProcessTerminated, nil)
		o.Cleanup(o.ctx)
		return nil
	case o.cleanupStarted.Load():
		return nil
	case w.command != nil:
		if err := o.handleCommand(ctx, *w.command); err != nil {
			o.logger.Error().Err(err).
				Str(log.FieldEvent, "orchestrator.command_failed").
				Str(log.FieldCommand, string(w.command.Name)).
				Msg("command failed")
		}
	case w.event != nil:
		if err := o.handleEvent(ctx, *w.event); err != nil {
			o.logger.Error().Err(err).
				Str(log.FieldEvent, "orchestrator.event_failed").
				Str(log.FieldEventType, string(w.event.Kind)).
				Msg("adapter event failed")
		}
	}
	return nil
}

// release stops background workers that Cleanup did not reach.
func (o *Orchestrator) release() {
	o.releaseOnce.Do(func() {
		if o.wsAudio != nil {
			o.wsAudio.Stop()
		}
		if o.realtime != nil {
			o.realtime.Stop()
		}
		if o.streaming != nil {
			o.streaming.CloseAll()
		}
		if o.audioQueue != nil {
			o.audioQueue.Stop()
		}
		if o.videoQueue != nil {
			o.videoQueue.Stop()
		}
		o.mailbox.Close()
	})
}
