// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/mediain"
	"github.com/ManuGH/meetbot/internal/metrics"
	"github.com/ManuGH/meetbot/internal/store"
)

// handleData routes media and meeting content. Failures here are logged
// and never end the bot.
func (o *Orchestrator) handleData(ctx context.Context, ev adapter.Event) {
	switch ev.Kind {
	case adapter.KindParticipantEvent:
		if ev.Participant != nil {
			o.addParticipantEvent(ctx, *ev.Participant)
		}
	case adapter.KindChatMessage:
		if ev.Chat != nil {
			o.upsertChatMessage(ctx, *ev.Chat)
		}
	case adapter.KindCaption:
		if ev.Caption != nil && o.captions != nil {
			o.captions.UpsertCaption(*ev.Caption)
		}
	case adapter.KindAudioChunk:
		if ev.Audio == nil {
			return
		}
		switch {
		case o.streaming != nil:
			o.streaming.AddChunk(ev.Audio.ParticipantUUID, ev.Audio.PCM)
		case o.buffered != nil:
			o.buffered.AddChunk(ev.Audio.ParticipantUUID, ev.Audio.At, ev.Audio.PCM)
		}
	case adapter.KindMixedAudio:
		o.pipe.PushMixedAudio(ev.Data)
	case adapter.KindEncodedMedia:
		o.pipe.PushEncoded(ev.Data)
		if o.rtmpFailed && !o.cleanupStarted.Load() {
			o.fatal(ctx, bot.SubFatalRTMPConnectionFailed, map[string]any{"stderr": o.rtmp.LastStderr(10)})
			o.Cleanup(o.ctx)
		}
	}
}

func (o *Orchestrator) addParticipantEvent(ctx context.Context, ev bot.ParticipantEvent) {
	p, ok := o.adapter.GetParticipant(ev.ParticipantUUID)
	if !ok {
		o.logger.Warn().Str(log.FieldParticipantID, ev.ParticipantUUID).Msg("participant event for unknown participant")
		return
	}
	if err := o.deps.Store.UpsertParticipant(ctx, o.botID, p); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldParticipantID, p.UUID).Msg("participant not stored")
		return
	}

	if ev.Type == bot.ParticipantUpdate {
		if isHost, changed := ev.HostChange(); changed {
			if err := o.deps.Store.SetParticipantHost(ctx, o.botID, p.UUID, isHost); err != nil {
				o.logger.Warn().Err(err).Str(log.FieldParticipantID, p.UUID).Msg("host flag not stored")
			}
		}
		return
	}

	if err := o.deps.Store.CreateParticipantEvent(ctx, o.botID, ev); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldParticipantID, p.UUID).Msg("participant event not stored")
		return
	}
	if p.IsTheBot {
		return
	}
	o.webhook(ctx, store.TriggerParticipantEvent, map[string]any{
		"participant_uuid":      p.UUID,
		"participant_user_uuid": p.UserUUID,
		"participant_full_name": p.FullName,
		"participant_is_host":   p.IsHost,
		"event_type":            string(ev.Type),
		"event_data":            ev.Data,
		"timestamp_ms":          ev.TimestampMs,
	})
}

func (o *Orchestrator) upsertChatMessage(ctx context.Context, m bot.ChatMessage) {
	p, ok := o.adapter.GetParticipant(m.ParticipantUUID)
	if !ok {
		o.logger.Warn().Str(log.FieldParticipantID, m.ParticipantUUID).Msg("chat message from unknown participant")
		return
	}
	if err := o.deps.Store.UpsertParticipant(ctx, o.botID, p); err != nil {
		o.logger.Warn().Err(err).Msg("participant not stored")
		return
	}
	if err := o.deps.Store.UpsertChatMessage(ctx, o.botID, m); err != nil {
		o.logger.Warn().Err(err).Msg("chat message not stored")
		return
	}
	o.webhook(ctx, store.TriggerChatMessagesUpdate, map[string]any{
		"message_uuid":          m.MessageUUID,
		"participant_uuid":      p.UUID,
		"participant_full_name": p.FullName,
		"text":                  m.Text,
		"timestamp":             m.Timestamp,
		"to_bot":                m.ToBot,
	})
}

// saveSegment stores a per-participant audio utterance and queues its
// transcription. The timestamp is shifted back by the platform delay.
func (o *Orchestrator) saveSegment(seg mediain.Segment) {
	ctx := o.ctx
	if p, ok := o.adapter.GetParticipant(seg.ParticipantUUID); ok {
		if err := o.deps.Store.UpsertParticipant(ctx, o.botID, p); err != nil {
			o.logger.Warn().Err(err).Msg("participant not stored")
		}
	}
	u := bot.Utterance{
		ID:              uuid.NewString(),
		ParticipantUUID: seg.ParticipantUUID,
		Source:          bot.SourcePerParticipantAudio,
		TimestampMs:     seg.StartedAt.UnixMilli() - o.utteranceDelayMs,
		DurationMs:      mediain.DurationMs(len(seg.Audio), seg.SampleRate),
		SampleRate:      seg.SampleRate,
		Audio:           seg.Audio,
	}
	id, err := o.deps.Store.CreateUtterance(ctx, o.botID, u)
	if err != nil {
		o.logger.Error().Err(err).Str(log.FieldParticipantID, seg.ParticipantUUID).Msg("utterance not stored")
		return
	}
	metrics.RecordUtterance(string(u.Source))
	if err := o.deps.Store.EnqueueTranscriptionJob(ctx, o.botID, id); err != nil {
		o.logger.Error().Err(err).Str(log.FieldUtteranceID, id).Msg("transcription job not queued")
	}
}

// saveCaption upserts a caption utterance keyed by its caption id.
func (o *Orchestrator) saveCaption(c mediain.CaptionUtterance) {
	ctx := o.ctx
	if p, ok := o.adapter.GetParticipant(c.ParticipantUUID); ok {
		if err := o.deps.Store.UpsertParticipant(ctx, o.botID, p); err != nil {
			o.logger.Warn().Err(err).Msg("participant not stored")
		}
	}
	transcription := map[string]any{"transcript": c.Text}
	u := bot.Utterance{
		ParticipantUUID: c.ParticipantUUID,
		Source:          bot.SourceClosedCaption,
		SourceUUID:      o.botID + "-" + c.SourceID,
		TimestampMs:     c.TimestampMs,
		DurationMs:      c.DurationMs,
		Transcription:   transcription,
	}
	id, err := o.deps.Store.CreateUtterance(ctx, o.botID, u)
	if err != nil {
		o.logger.Error().Err(err).Str("source_uuid", u.SourceUUID).Msg("caption utterance not stored")
		return
	}
	metrics.RecordUtterance(string(u.Source))
	o.webhook(ctx, store.TriggerTranscriptUpdate, map[string]any{
		"utterance_id":     id,
		"participant_uuid": c.ParticipantUUID,
		"source_uuid":      u.SourceUUID,
		"timestamp_ms":     c.TimestampMs,
		"duration_ms":      c.DurationMs,
		"transcription":    transcription,
	})
}

func (o *Orchestrator) flushUtterances() {
	if o.buffered != nil {
		o.logger.Info().Msg("flushing utterances")
		o.buffered.Flush()
	}
	if o.captions != nil {
		o.logger.Info().Msg("flushing captions")
		o.captions.FlushCaptions()
	}
}
