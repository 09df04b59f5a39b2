// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
)

const bytesPerMegabyte = 1 << 20

// tick runs the periodic work in a fixed order. An error ends the loop.
func (o *Orchestrator) tick(ctx context.Context, now time.Time) error {
	if o.cleanupStarted.Load() {
		return nil
	}
	defer func() {
		metrics.MailboxDepth.Set(float64(o.mailbox.Len()))
		o.lastTick.Store(now.UnixMilli())
	}()

	if !o.firstTickDone {
		o.firstTickDone = true
		if err := o.takeActionBasedOnState(ctx); err != nil {
			return err
		}
	}

	o.refreshHeartbeat(ctx, now)

	if o.buffered != nil {
		o.buffered.ProcessChunks()
	}
	if o.streaming != nil {
		o.streaming.MonitorTranscription()
	}
	if o.captions != nil {
		o.captions.ProcessCaptions()
	}

	o.adapter.CheckAutoLeaveConditions()

	if err := o.audioQueue.Monitor(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("audio output not progressed")
	}
	if err := o.videoQueue.Monitor(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("video output not progressed")
	}

	if err := o.joinIfStaged(ctx, now); err != nil {
		return err
	}

	o.snapshotIfDue(ctx, now)
	return nil
}

func (o *Orchestrator) refreshHeartbeat(ctx context.Context, now time.Time) {
	if !o.lastHeartbeat.IsZero() && now.Sub(o.lastHeartbeat) < o.cfg.Orchestrator.HeartbeatInterval {
		return
	}
	if err := o.deps.Store.SetHeartbeat(ctx, o.botID, now); err != nil {
		o.logger.Warn().Err(err).Msg("heartbeat not stored")
		return
	}
	o.lastHeartbeat = now
}

// joinIfStaged promotes a staged bot once join_at is within the adapter's
// join delay.
func (o *Orchestrator) joinIfStaged(ctx context.Context, now time.Time) error {
	if o.lifecycle.State() != bot.StateStaged || o.bot.JoinAt == nil {
		return nil
	}
	if o.bot.JoinAt.After(now.Add(o.adapter.StagedJoinDelay())) {
		return nil
	}
	o.logger.Info().
		Str(log.FieldEvent, "orchestrator.staged_join").
		Time("join_at", *o.bot.JoinAt).
		Msg("join time reached")
	if err := o.emit(ctx, bot.EventJoinRequested, bot.SubTypeNone, map[string]any{"source": "scheduler"}); err != nil {
		return err
	}
	return o.takeActionBasedOnState(ctx)
}

func (o *Orchestrator) snapshotIfDue(ctx context.Context, now time.Time) {
	if now.Sub(o.lastSnapshot) < o.cfg.Orchestrator.SnapshotInterval {
		return
	}
	o.lastSnapshot = now
	usage, err := o.deps.Usage()
	if err != nil {
		o.logger.Warn().Err(err).Msg("resource usage unavailable")
		return
	}
	data := map[string]any{
		"ram_usage_megabytes": usage.MaxRSSBytes / bytesPerMegabyte,
		"cpu_time_seconds":    (usage.UserTime + usage.SystemTime).Seconds(),
		"goroutines":          usage.Goroutines,
	}
	if err := o.deps.Store.CreateResourceSnapshot(ctx, o.botID, data); err != nil {
		o.logger.Warn().Err(err).Msg("resource snapshot not stored")
	}
}
