// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/telemetry"
)

// DebugRecordingName is the file the browser adapters write their screen
// recording to, inside the recording directory.
func DebugRecordingName(botID string) string { return botID + "-debug.mp4" }

// Cleanup tears the bot down. Only the first call has any effect. A watchdog
// kills the process if teardown takes longer than the configured limit.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	if !o.cleanupStarted.CompareAndSwap(false, true) {
		o.logger.Debug().Msg("cleanup already ran")
		return
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "orchestrator.cleanup",
		trace.WithAttributes(telemetry.LifecycleAttributes(o.botID, string(o.State()), "cleanup")...))
	defer span.End()

	watchdog := time.AfterFunc(o.cfg.Orchestrator.CleanupWatchdog, func() {
		o.logger.Error().
			Str(log.FieldEvent, "orchestrator.cleanup_timeout").
			Dur("limit", o.cfg.Orchestrator.CleanupWatchdog).
			Msg("cleanup did not finish, killing process")
		if err := o.deps.KillSelf(); err != nil {
			o.logger.Error().Err(err).Msg("self kill failed")
		}
	})
	defer watchdog.Stop()

	o.logger.Info().Str(log.FieldEvent, "orchestrator.cleanup_start").Msg("cleaning up bot")

	if o.pipe != nil {
		if err := o.pipe.Stop(); err != nil {
			o.logger.Warn().Err(err).Msg("pipeline stop failed")
		}
	}
	if o.rtmp != nil {
		if err := o.rtmp.Stop(); err != nil {
			o.logger.Warn().Err(err).Msg("rtmp relay stop failed")
		}
	}
	if o.adapter != nil {
		if err := o.adapter.Leave(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("adapter leave failed")
		}
		if err := o.adapter.Cleanup(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("adapter cleanup failed")
		}
	}
	if o.stopLoop != nil {
		o.stopLoop()
	}

	if o.realtime != nil {
		o.realtime.Stop()
	}
	if o.audioQueue != nil {
		o.audioQueue.Stop()
	}
	if o.videoQueue != nil {
		o.videoQueue.Stop()
	}
	if o.streaming != nil {
		o.streaming.CloseAll()
	}
	if o.deps.Webpage != nil {
		o.deps.Webpage.Cleanup()
	}
	if o.wsAudio != nil {
		o.wsAudio.Stop()
	}

	o.uploadRecording(ctx)
	o.uploadDebugRecording(ctx)

	if o.State() == bot.StatePostProcessing {
		o.waitForTranscription(ctx)
		meta := map[string]any{}
		if summary, err := o.deps.Store.AggregateTranscriptionErrors(ctx, o.botID); err != nil {
			o.logger.Warn().Err(err).Msg("transcription errors not aggregated")
		} else if len(summary) > 0 {
			meta["transcription_errors"] = summary
		}
		if len(meta) == 0 {
			meta = nil
		}
		if err := o.emit(ctx, bot.EventPostProcessingCompleted, bot.SubTypeNone, meta); err != nil {
			o.logger.Error().Err(err).Msg("could not complete post processing")
		}
	}

	span.SetAttributes(attribute.String(telemetry.StateKey, string(o.State())))
	o.logger.Info().
		Str(log.FieldEvent, "orchestrator.cleanup_done").
		Str("state", string(o.State())).
		Msg("cleanup finished")
}

// uploadRecording moves the local recording to blob storage and records
// its key.
func (o *Orchestrator) uploadRecording(ctx context.Context) {
	if o.pipe == nil || o.deps.Uploader == nil {
		return
	}
	path := o.pipe.OutputPath()
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("recording not readable")
		}
		return
	}
	key, err := o.deps.Uploader.UploadFile(ctx, path)
	if err != nil {
		o.logger.Error().Err(err).Str(log.FieldPath, path).Msg("recording upload failed")
		return
	}
	if err := o.deps.Uploader.WaitForUpload(ctx); err != nil {
		o.logger.Error().Err(err).Str(log.FieldPath, path).Msg("recording upload did not finish")
		return
	}
	if err := o.deps.Uploader.DeleteLocalFile(path); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("local recording not deleted")
	}
	if err := o.deps.Store.SetRecordingFile(ctx, o.botID, key); err != nil {
		o.logger.Error().Err(err).Str("key", key).Msg("recording key not stored")
		return
	}
	o.logger.Info().Str(log.FieldEvent, "orchestrator.recording_uploaded").Str("key", key).Msg("recording uploaded")
}

func (o *Orchestrator) uploadDebugRecording(ctx context.Context) {
	if !o.bot.Settings.Debug.CreateDebugRecording || o.deps.Uploader == nil {
		return
	}
	path := filepath.Join(o.cfg.Recording.Dir, DebugRecordingName(o.botID))
	if _, err := os.Stat(path); err != nil {
		o.logger.Info().Str(log.FieldPath, path).Msg("no debug recording to save")
		return
	}
	key, err := o.deps.Uploader.UploadFile(ctx, path)
	if err == nil {
		err = o.deps.Uploader.WaitForUpload(ctx)
	}
	if err != nil {
		o.logger.Warn().Err(err).Msg("debug recording upload failed")
		return
	}
	if err := o.deps.Store.SaveDebugArtifact(ctx, o.botID, "debug_recording", key); err != nil {
		o.logger.Warn().Err(err).Msg("debug recording not recorded")
	}
}

// waitForTranscription polls until no utterance is pending or the wait
// limit passes.
func (o *Orchestrator) waitForTranscription(ctx context.Context) {
	limit := o.cfg.Orchestrator.TranscriptionWait
	if limit <= 0 {
		return
	}
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	poll := time.NewTicker(o.cfg.Orchestrator.TranscriptionPoll)
	defer poll.Stop()

	for {
		pending, err := o.deps.Store.PendingUtteranceCount(ctx, o.botID)
		if err != nil {
			o.logger.Warn().Err(err).Msg("pending utterances unknown")
			return
		}
		if pending == 0 {
			return
		}
		o.logger.Info().Int("pending", pending).Msg("waiting for transcriptions")
		select {
		case <-deadline.C:
			o.logger.Warn().Int("pending", pending).Dur("waited", limit).Msg("transcriptions still pending")
			return
		case <-poll.C:
		}
	}
}
