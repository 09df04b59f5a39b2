// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/control"
	"github.com/ManuGH/meetbot/internal/log"
)

func (o *Orchestrator) handleCommand(ctx context.Context, cmd control.Command) error {
	o.logger.Info().Str(log.FieldEvent, "orchestrator.command").Str(log.FieldCommand, string(cmd.Name)).Msg("handling command")

	switch cmd.Name {
	case control.Sync:
		if err := o.reloadBot(ctx); err != nil {
			return err
		}
		return o.takeActionBasedOnState(ctx)
	case control.SyncMediaRequests:
		o.syncMediaRequests(ctx)
	case control.SyncVoiceAgentSettings:
		if err := o.reloadBot(ctx); err != nil {
			return err
		}
		o.syncVoiceAgent(ctx)
	case control.SyncTranscriptionSettings:
		if err := o.reloadBot(ctx); err != nil {
			return err
		}
		o.syncTranscriptionSettings()
	case control.SyncChatMessageRequests:
		o.sendChatMessageRequests(ctx)
	case control.PauseRecording:
		return o.pauseRecording(ctx)
	case control.ResumeRecording:
		return o.resumeRecording(ctx)
	case control.AdmitFromWaitingRoom:
		o.inMeeting(cmd.Name, o.adapter.AdmitFromWaitingRoom)
	case control.ChangeGalleryViewPageNext:
		o.inMeeting(cmd.Name, func() error { return o.adapter.ChangeGalleryViewPage(true) })
	case control.ChangeGalleryViewPagePrevious:
		o.inMeeting(cmd.Name, func() error { return o.adapter.ChangeGalleryViewPage(false) })
	default:
		o.logger.Warn().Str(log.FieldCommand, string(cmd.Name)).Msg("unknown command ignored")
	}
	return nil
}

// inMeeting runs an adapter action only while the bot is in the meeting.
func (o *Orchestrator) inMeeting(name control.Name, fn func() error) {
	if state := o.lifecycle.State(); !state.IsJoined() {
		o.logger.Info().Str(log.FieldCommand, string(name)).Str("state", string(state)).Msg("command ignored outside the meeting")
		return
	}
	if err := fn(); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldCommand, string(name)).Msg("adapter rejected command")
	}
}

func (o *Orchestrator) syncMediaRequests(ctx context.Context) {
	if err := o.audioQueue.Progress(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("audio requests not progressed")
	}
	if err := o.images.Progress(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("image requests not progressed")
	}
	if err := o.videoQueue.Progress(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("video requests not progressed")
	}
}

func (o *Orchestrator) syncVoiceAgent(ctx context.Context) {
	va := o.bot.Settings.VoiceAgent
	if o.deps.Webpage == nil || va.URL == "" {
		return
	}
	if err := o.deps.Webpage.Update(ctx, va.URL, va.VideoOutputDestination); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldEvent, "orchestrator.voice_agent_failed").Msg("webpage streamer not updated")
	}
}

// syncTranscriptionSettings applies a new caption language. Only Teams and
// Google Meet can switch language mid-meeting.
func (o *Orchestrator) syncTranscriptionSettings() {
	meeting := o.bot.MeetingType()
	if meeting != bot.MeetingTeams && meeting != bot.MeetingGoogleMeet {
		return
	}
	if !o.savesCaptions() {
		return
	}
	lang := o.captionLanguage()
	if err := o.adapter.UpdateClosedCaptionsLanguage(lang); err != nil {
		o.logger.Warn().Err(err).Str("language", lang).Msg("caption language not updated")
	}
}

func (o *Orchestrator) sendChatMessageRequests(ctx context.Context) {
	if !o.adapter.IsReadyToSendChatMessages() {
		o.logger.Debug().Msg("adapter not ready for chat messages")
		return
	}
	reqs, err := o.deps.Store.ChatMessageRequests(ctx, o.botID, bot.ChatRequestEnqueued)
	if err != nil {
		o.logger.Warn().Err(err).Msg("could not list chat message requests")
		return
	}
	for _, req := range reqs {
		state := bot.ChatRequestSent
		if err := o.adapter.SendChatMessage(req.Message, req.ToUserUUID); err != nil {
			o.logger.Warn().Err(err).Str(log.FieldRequestID, req.ID).Msg("chat message not sent")
			state = bot.ChatRequestFailed
		}
		if err := o.deps.Store.SetChatMessageRequestState(ctx, req.ID, state); err != nil {
			o.logger.Warn().Err(err).Str(log.FieldRequestID, req.ID).Msg("could not update chat message request")
		}
	}
}

func (o *Orchestrator) pauseRecording(ctx context.Context) error {
	if state := o.lifecycle.State(); !bot.CanPauseRecording(state) {
		o.logger.Info().Str("state", string(state)).Msg("pause ignored in current state")
		return nil
	}
	if err := o.pipe.Pause(); err != nil {
		o.logger.Error().Err(err).Str(log.FieldEvent, "orchestrator.pause_failed").Msg("could not pause recording")
		return nil
	}
	if err := o.adapter.PauseRecording(); err != nil {
		o.logger.Error().Err(err).Str(log.FieldEvent, "orchestrator.pause_failed").Msg("adapter could not pause recording")
		return nil
	}
	return o.emit(ctx, bot.EventRecordingPaused, bot.SubTypeNone, nil)
}

func (o *Orchestrator) resumeRecording(ctx context.Context) error {
	if state := o.lifecycle.State(); !bot.CanResumeRecording(state) {
		o.logger.Info().Str("state", string(state)).Msg("resume ignored in current state")
		return nil
	}
	if err := o.pipe.Resume(); err != nil {
		o.logger.Error().Err(err).Str(log.FieldEvent, "orchestrator.resume_failed").Msg("could not resume recording")
		return nil
	}
	if err := o.adapter.ResumeRecording(); err != nil {
		o.logger.Error().Err(err).Str(log.FieldEvent, "orchestrator.resume_failed").Msg("adapter could not resume recording")
		return nil
	}
	return o.emit(ctx, bot.EventRecordingResumed, bot.SubTypeNone, nil)
}
