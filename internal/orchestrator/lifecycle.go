// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/metrics"
	"github.com/ManuGH/meetbot/internal/store"
	"github.com/ManuGH/meetbot/internal/telemetry"
)

// transition applies event to the lifecycle, persists the lifecycle event
// and fires the state change webhook. Illegal transitions leave the state
// unchanged and return bot.ErrIllegalTransition.
func (o *Orchestrator) transition(ctx context.Context, event bot.EventType, sub bot.SubType, metadata map[string]any) (bot.Transition, error) {
	t, err := o.lifecycle.Apply(ctx, event, sub)
	if err != nil {
		metrics.RecordTransition(string(event), false)
		o.logger.Warn().Err(err).
			Str(log.FieldEvent, "orchestrator.transition_rejected").
			Str(log.FieldEventType, string(event)).
			Str(log.FieldSubType, string(sub)).
			Str(log.FieldOldState, string(t.OldState)).
			Msg("lifecycle event not allowed in current state")
		return t, err
	}
	metrics.RecordTransition(string(event), true)
	o.bot.State = t.NewState
	o.bot.LastEventType = event
	o.bot.LastEventOldState = t.OldState

	ev := bot.LifecycleEvent{
		ID:        uuid.NewString(),
		BotID:     o.botID,
		Type:      event,
		SubType:   sub,
		OldState:  t.OldState,
		NewState:  t.NewState,
		Metadata:  metadata,
		CreatedAt: o.deps.Now(),
	}
	if err := o.deps.Store.CreateLifecycleEvent(ctx, ev); err != nil {
		return t, fmt.Errorf("persist %s: %w", event, err)
	}
	o.logger.Info().
		Str(log.FieldEvent, "orchestrator.transition").
		Str(log.FieldEventType, string(event)).
		Str(log.FieldSubType, string(sub)).
		Str(log.FieldOldState, string(t.OldState)).
		Str(log.FieldNewState, string(t.NewState)).
		Msg("lifecycle transition")

	payload := map[string]any{
		"event_type":     string(event),
		"event_sub_type": string(sub),
		"old_state":      string(t.OldState),
		"new_state":      string(t.NewState),
		"created_at":     ev.CreatedAt,
	}
	if len(metadata) > 0 {
		payload["event_metadata"] = metadata
	}
	o.webhook(ctx, store.TriggerBotStateChange, payload)
	return t, nil
}

// emit is transition for handlers that treat an illegal transition as a
// logged no-op.
func (o *Orchestrator) emit(ctx context.Context, event bot.EventType, sub bot.SubType, metadata map[string]any) error {
	_, err := o.transition(ctx, event, sub, metadata)
	if errors.Is(err, bot.ErrIllegalTransition) {
		return nil
	}
	return err
}

// fatal records FATAL_ERROR. Persistence failures are only logged because
// cleanup follows regardless.
func (o *Orchestrator) fatal(ctx context.Context, sub bot.SubType, metadata map[string]any) {
	if o.lifecycle == nil {
		return
	}
	if _, err := o.transition(ctx, bot.EventFatalError, sub, metadata); err != nil && !errors.Is(err, bot.ErrIllegalTransition) {
		o.logger.Error().Err(err).Str(log.FieldSubType, string(sub)).Msg("could not record fatal error")
	}
}

func (o *Orchestrator) webhook(ctx context.Context, trigger string, payload map[string]any) {
	if err := o.deps.Store.TriggerWebhook(ctx, o.botID, trigger, payload); err != nil {
		o.logger.Warn().Err(err).Str("trigger", trigger).Msg("webhook not queued")
	}
}

func (o *Orchestrator) stampRequestedAction(ctx context.Context) {
	if err := o.deps.Store.SetRequestedActionTakenAt(ctx, o.botID, o.deps.Now()); err != nil {
		o.logger.Warn().Err(err).Msg("could not record requested action time")
	}
}

// takeActionBasedOnState performs the adapter call the stored state asks
// for.
func (o *Orchestrator) takeActionBasedOnState(ctx context.Context) error {
	state := o.lifecycle.State()
	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "orchestrator.take_action",
		trace.WithAttributes(telemetry.LifecycleAttributes(o.botID, string(state), "")...))
	defer span.End()

	var err error
	switch state {
	case bot.StateJoining, bot.StateConnecting:
		o.logger.Info().Str(log.FieldEvent, "orchestrator.init_adapter").Str("state", string(state)).Msg("starting adapter")
		err = o.adapter.Init(ctx)
		metrics.RecordJoinAttempt(string(o.bot.MeetingType()), "started")
	case bot.StateLeaving:
		o.logger.Info().Str(log.FieldEvent, "orchestrator.leave").Msg("leaving meeting")
		err = o.adapter.Leave(ctx)
	case bot.StateDisconnecting:
		o.logger.Info().Str(log.FieldEvent, "orchestrator.disconnect").Msg("disconnecting app session")
		err = o.adapter.Disconnect(ctx)
	default:
		return nil
	}
	o.stampRequestedAction(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s action: %w", state, err)
	}
	return nil
}

// reloadBot refreshes the stored record and re-syncs the lifecycle with
// the stored state, which API calls may have moved.
func (o *Orchestrator) reloadBot(ctx context.Context) error {
	b, err := o.deps.Store.GetBot(ctx, o.botID)
	if err != nil {
		return fmt.Errorf("reload bot: %w", err)
	}
	o.bot = b
	if b.State != o.lifecycle.State() {
		o.logger.Info().
			Str(log.FieldOldState, string(o.lifecycle.State())).
			Str(log.FieldNewState, string(b.State)).
			Msg("stored state changed")
		if b.State == bot.StateJoiningBreakoutRoom || b.State == bot.StateLeavingBreakoutRoom {
			o.lifecycle.SetBreakoutOrigin(b.LastEventOldState)
		}
		o.lifecycle.Restore(b.State)
	}
	return nil
}
