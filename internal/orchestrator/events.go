// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
	"github.com/ManuGH/meetbot/internal/pipeline"
)

var permissionDeniedReasons = map[bot.SubType]bool{
	bot.SubPermissionDeniedByHost:          true,
	bot.SubPermissionRequestTimedOut:       true,
	bot.SubPermissionHostClientCannotGrant: true,
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev adapter.Event) error {
	if ev.IsData() {
		o.handleData(ctx, ev)
		return nil
	}
	o.logger.Info().
		Str(log.FieldEvent, "orchestrator.adapter_event").
		Str(log.FieldEventType, string(ev.Kind)).
		Str(log.FieldReason, string(ev.Reason)).
		Msg("adapter event")

	switch ev.Kind {
	case adapter.KindJoinedMeeting:
		return o.onJoinedMeeting(ctx)

	case adapter.KindCouldNotJoin:
		metrics.RecordJoinAttempt(string(o.bot.MeetingType()), "failed")
		o.saveArtifacts(ctx, ev.Artifacts)
		err := o.emit(ctx, bot.EventCouldNotJoin, ev.Reason, ev.Metadata)
		o.Cleanup(o.ctx)
		return err

	case adapter.KindMeetingEnded, adapter.KindRemovedFromMeeting:
		o.flushUtterances()
		event := bot.EventMeetingEnded
		if o.lifecycle.State() == bot.StateLeaving {
			event = bot.EventLeftMeeting
		}
		err := o.emit(ctx, event, bot.SubTypeNone, nil)
		o.Cleanup(o.ctx)
		return err

	case adapter.KindRecordingPermissionGranted:
		if err := o.startOrResumeRecording(ctx); err != nil {
			return err
		}
		return o.emit(ctx, bot.EventRecordingPermissionGranted, bot.SubTypeNone, nil)

	case adapter.KindRecordingPermissionDenied:
		if !permissionDeniedReasons[ev.Reason] {
			return fmt.Errorf("unexpected recording permission denied reason %q", ev.Reason)
		}
		if err := o.pipe.Pause(); err != nil && !errors.Is(err, pipeline.ErrNotStarted) {
			return fmt.Errorf("pause pipeline: %w", err)
		}
		return o.emit(ctx, bot.EventRecordingPermissionDenied, ev.Reason, nil)

	case adapter.KindPutInWaitingRoom:
		return o.emit(ctx, bot.EventPutInWaitingRoom, bot.SubTypeNone, nil)

	case adapter.KindJoiningBreakoutRoom:
		return o.emit(ctx, bot.EventBeganJoiningBreakoutRoom, bot.SubTypeNone, nil)

	case adapter.KindLeavingBreakoutRoom:
		return o.emit(ctx, bot.EventBeganLeavingBreakoutRoom, bot.SubTypeNone, nil)

	case adapter.KindReadyToSendChat:
		o.sendChatMessageRequests(ctx)

	case adapter.KindReadyToShowImage:
		if err := o.images.Progress(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("image requests not progressed")
		}

	case adapter.KindCouldNotEnableCaptions:
		if err := o.deps.Store.CreateBotLogEntry(ctx, o.botID, bot.LogLevelWarning,
			bot.LogEntryCouldNotEnableClosedCaptions, "Bot could not enable closed captions"); err != nil {
			o.logger.Warn().Err(err).Msg("could not record bot log entry")
		}

	case adapter.KindRequestedLeave:
		return o.onRequestedLeave(ctx, ev.Reason)

	case adapter.KindUIElementNotFound:
		o.saveArtifacts(ctx, ev.Artifacts)
		o.fatal(ctx, bot.SubFatalUIElementNotFound, ev.Metadata)
		o.Cleanup(o.ctx)

	case adapter.KindBlockedRepeatedly:
		return o.onBlockedRepeatedly(ctx)

	case adapter.KindAppSessionConnected:
		if err := o.emit(ctx, bot.EventAppSessionConnected, bot.SubTypeNone, nil); err != nil {
			return err
		}
		return o.startOrResumeRecording(ctx)

	case adapter.KindAppSessionDisconnectRequested:
		if err := o.emit(ctx, bot.EventAppSessionDisconnectRequest, bot.SubTypeNone, nil); err != nil {
			return err
		}
		o.stampRequestedAction(ctx)
		if err := o.adapter.Disconnect(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("adapter disconnect failed")
		}

	case adapter.KindAppSessionDisconnected:
		o.flushUtterances()
		err := o.emit(ctx, bot.EventAppSessionDisconnected, bot.SubTypeNone, nil)
		o.Cleanup(o.ctx)
		return err

	default:
		o.logger.Warn().Str(log.FieldEventType, string(ev.Kind)).Msg("unhandled adapter event")
	}
	return nil
}

func (o *Orchestrator) onJoinedMeeting(ctx context.Context) error {
	switch o.lifecycle.State() {
	case bot.StateJoiningBreakoutRoom:
		return o.emit(ctx, bot.EventJoinedBreakoutRoom, bot.SubTypeNone, nil)
	case bot.StateLeavingBreakoutRoom:
		return o.emit(ctx, bot.EventLeftBreakoutRoom, bot.SubTypeNone, nil)
	}
	metrics.RecordJoinAttempt(string(o.bot.MeetingType()), "joined")
	return o.emit(ctx, bot.EventJoinedMeeting, bot.SubTypeNone, nil)
}

func (o *Orchestrator) onRequestedLeave(ctx context.Context, reason bot.SubType) error {
	if strings.HasPrefix(string(reason), "auto_leave_") {
		metrics.RecordAutoLeave(string(reason))
	}
	if _, err := o.transition(ctx, bot.EventLeaveRequested, reason, nil); err != nil {
		if errors.Is(err, bot.ErrIllegalTransition) {
			return nil
		}
		return err
	}
	o.stampRequestedAction(ctx)
	if err := o.adapter.Leave(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("adapter leave failed")
	}
	return nil
}

// onBlockedRepeatedly gives up once the bot has been trying for longer than
// the restart window; otherwise it asks for a fresh process.
func (o *Orchestrator) onBlockedRepeatedly(ctx context.Context) error {
	if o.deps.Now().Sub(o.bot.StartTime()) > o.cfg.Orchestrator.RestartWindow {
		o.fatal(ctx, bot.SubFatalUIElementNotFound, map[string]any{"bot_restarts_exceeded_max_retries": true})
		o.Cleanup(o.ctx)
		return nil
	}
	if err := o.deps.Store.ScheduleRestart(ctx, o.botID, o.cfg.Orchestrator.RestartDelay); err != nil {
		return fmt.Errorf("schedule restart: %w", err)
	}
	o.logger.Info().
		Str(log.FieldEvent, "orchestrator.restart_scheduled").
		Dur("delay", o.cfg.Orchestrator.RestartDelay).
		Msg("blocked by platform, restart scheduled")
	o.restarting = true
	o.stopLoop()
	return nil
}

// startOrResumeRecording starts the pipeline and relay on first use and
// resumes them afterwards.
func (o *Orchestrator) startOrResumeRecording(ctx context.Context) error {
	if !o.pipeStarted {
		if err := o.pipe.Start(ctx); err != nil {
			return fmt.Errorf("start pipeline: %w", err)
		}
		o.pipeStarted = true
		if o.rtmp != nil {
			if err := o.rtmp.Start(o.ctx); err != nil {
				o.fatal(ctx, bot.SubFatalRTMPConnectionFailed, map[string]any{"error": err.Error()})
				o.Cleanup(o.ctx)
				return nil
			}
		}
		return nil
	}
	if err := o.pipe.Resume(); err != nil {
		return fmt.Errorf("resume pipeline: %w", err)
	}
	return nil
}

// saveArtifacts stores debug captures and links them to the bot.
func (o *Orchestrator) saveArtifacts(ctx context.Context, artifacts map[string][]byte) {
	if len(artifacts) == 0 || o.deps.Artifacts == nil {
		return
	}
	kinds := make([]string, 0, len(artifacts))
	for kind := range artifacts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	stamp := o.deps.Now().UnixMilli()
	for _, kind := range kinds {
		name := fmt.Sprintf("%s/debug/%d-%s", o.botID, stamp, kind)
		key, err := o.deps.Artifacts.SaveCompressed(ctx, name, artifacts[kind])
		if err != nil {
			o.logger.Warn().Err(err).Str("artifact", kind).Msg("debug artifact not saved")
			continue
		}
		if err := o.deps.Store.SaveDebugArtifact(ctx, o.botID, kind, key); err != nil {
			o.logger.Warn().Err(err).Str("artifact", kind).Msg("debug artifact not recorded")
		}
	}
}
