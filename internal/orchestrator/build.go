// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/adapter/rtms"
	"github.com/ManuGH/meetbot/internal/adapter/webbot"
	"github.com/ManuGH/meetbot/internal/adapter/zoomsdk"
	"github.com/ManuGH/meetbot/internal/autoleave"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/mediain"
	"github.com/ManuGH/meetbot/internal/mediaout"
	"github.com/ManuGH/meetbot/internal/pipeline"
	"github.com/ManuGH/meetbot/internal/resilience"
	"github.com/ManuGH/meetbot/internal/zoom"
)

const (
	mediaBreakerThreshold = 5
	mediaBreakerReset     = 30 * time.Second
)

// build creates the pipeline, the input and output managers and the
// adapter, in that order, so the adapter can be wired to all of them.
func (o *Orchestrator) build(ctx context.Context) error {
	s := o.bot.Settings
	meeting := o.bot.MeetingType()

	cfg, preset := pipeline.Select(s)
	o.pipelineCfg = cfg
	o.participantRate = pipeline.PerParticipantSampleRate(meeting, s.Zoom)
	o.utteranceDelayMs = pipeline.UtteranceDelayMs(meeting, s.Zoom)
	o.logger.Info().
		Str(log.FieldEvent, "orchestrator.pipeline_selected").
		Str("preset", preset).
		Msg("pipeline configuration selected")

	if cfg.Streams() {
		o.rtmp = pipeline.NewRTMPClient(s.RTMP.DestinationURL)
		if o.cfg.Recording.FFmpegBin != "" {
			o.rtmp.BinPath = o.cfg.Recording.FFmpegBin
		}
	}
	mixed := pipeline.MixedAudioFormat(meeting, s.Zoom)
	if cfg.WebsocketStreamAudio {
		o.wsAudio = pipeline.NewAudioStreamer(s.Websocket.AudioURL, o.botID, mixed.SampleRate, s.Websocket.AudioSampleRate)
		o.wsAudio.OnBotOutput = func(chunk []byte, sampleRate int) {
			if o.realtime != nil {
				o.realtime.AddChunk(chunk, sampleRate)
			}
		}
	}
	o.pipe = o.deps.NewPipeline(cfg, pipeline.Callbacks{
		OnEncoded:    o.relayEncoded,
		OnMixedAudio: o.streamMixedAudio,
	})

	o.buildInputManagers(ctx)

	a, err := o.deps.NewAdapter(o.bot, adapter.BaseConfig{
		BotID:       o.botID,
		DisplayName: s.DisplayName,
		AutoLeave:   autoleave.FromSettings(s.AutomaticLeave),
		Events:      eventSink{mailbox: o.mailbox},
		Now:         o.deps.Now,
	})
	if err != nil {
		return err
	}
	o.adapter = a

	o.breaker = resilience.NewCircuitBreaker("media_requests", mediaBreakerThreshold, mediaBreakerReset)
	o.audioQueue = mediaout.NewQueue(o.botID, bot.MediaAudio, o.deps.Store,
		mediaout.NewChunkedAudioPlayer(a, mediaout.ChunkInterval(meeting)), o.breaker)
	o.videoQueue = mediaout.NewQueue(o.botID, bot.MediaVideo, o.deps.Store,
		mediaout.NewVideoPlayer(a, o.deps.Now), o.breaker)
	o.images = mediaout.NewImages(o.botID, o.deps.Store, a, o.breaker)
	o.realtime = mediaout.NewRealtime(a, mediaout.ChunkInterval(meeting), mixed.SampleRate)

	if o.wsAudio != nil {
		o.wsAudio.Start(ctx)
	}
	return nil
}

func (o *Orchestrator) buildInputManagers(ctx context.Context) {
	s := o.bot.Settings.Transcription
	switch {
	case o.savesCaptions():
		if s.GroupCaptions {
			o.captions = mediain.NewGroupedCaptions(o.saveCaption, mediain.DefaultGroupGap, o.deps.Now)
		} else {
			o.captions = mediain.NewCaptions(o.saveCaption, o.deps.Now)
		}
	case !o.capturesAudioChunks():
	case s.Streaming && o.deps.Transcription != nil:
		lookup := func(id string) (bot.Participant, bool) {
			if o.adapter == nil {
				return bot.Participant{}, false
			}
			return o.adapter.GetParticipant(id)
		}
		idle := mediain.BufferedConfigFor(s.Provider, o.participantRate).SilenceGap
		o.streaming = mediain.NewStreaming(ctx, o.deps.Transcription, lookup, o.participantRate, idle, o.deps.Now)
	default:
		o.buffered = mediain.NewBuffered(mediain.BufferedConfigFor(s.Provider, o.participantRate), o.saveSegment, o.deps.Now)
	}
}

// savesCaptions reports whether utterances come from platform captions.
func (o *Orchestrator) savesCaptions() bool {
	return o.bot.Settings.Transcription.Provider == bot.TranscriptionClosedCaptions
}

// capturesAudioChunks reports whether per-participant audio is transcribed.
func (o *Orchestrator) capturesAudioChunks() bool {
	p := o.bot.Settings.Transcription.Provider
	return o.pipelineCfg.TranscribeAudio && p != bot.TranscriptionClosedCaptions && p != bot.TranscriptionNone
}

func (o *Orchestrator) captionLanguage() string {
	switch o.bot.MeetingType() {
	case bot.MeetingTeams:
		return o.bot.Settings.Transcription.TeamsCaptionLanguage
	case bot.MeetingGoogleMeet:
		return o.bot.Settings.Transcription.MeetCaptionLanguage
	}
	return ""
}

func (o *Orchestrator) zoomCredentials(b bot.Bot) zoom.Credentials {
	return zoom.Credentials{
		SDKKey:        o.cfg.Zoom.SDKKey,
		SDKSecret:     o.cfg.Zoom.SDKSecret,
		OnBehalfToken: b.Settings.Zoom.OnBehalfToken,
	}
}

// defaultAdapter picks the adapter from the meeting type and Zoom flags.
func (o *Orchestrator) defaultAdapter(b bot.Bot, base adapter.BaseConfig) (adapter.Adapter, error) {
	meeting := b.MeetingType()
	zs := b.Settings.Zoom

	if meeting == bot.MeetingZoom && zs.UseRTMS {
		return rtms.New(rtms.Config{
			BaseConfig:          base,
			ClientID:            o.cfg.RTMS.ClientID,
			ClientSecret:        o.cfg.RTMS.ClientSecret,
			MeetingUUID:         zs.RTMSMeetingUUID,
			StreamID:            zs.RTMSStreamID,
			SignalingURL:        zs.RTMSSignalingURL,
			MixedAudio:          o.pipelineCfg.UsesMixedAudio(),
			PerParticipantAudio: o.capturesAudioChunks(),
			Transcripts:         o.savesCaptions(),
		}), nil
	}
	if meeting == bot.MeetingZoom && !zs.UseWebAdapter {
		return zoomsdk.New(zoomsdk.Config{
			BaseConfig:  base,
			MeetingURL:  b.MeetingURL,
			Credentials: o.zoomCredentials(b),
			Open:        o.deps.ZoomSDK,
		}), nil
	}

	platform, ok := webbot.ForMeeting(meeting)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMeeting, b.MeetingURL)
	}
	return webbot.New(webbot.Config{
		BaseConfig:              base,
		MeetingURL:              b.MeetingURL,
		Platform:                platform,
		WebDriverURL:            o.cfg.Browser.WebDriverURL,
		ChromeDriverPath:        o.cfg.Browser.ChromeDriverPath,
		PayloadPath:             o.cfg.Browser.PayloadPath,
		Sandbox:                 o.cfg.Browser.Sandbox,
		DebugRecording:          b.Settings.Debug.CreateDebugRecording,
		SendMixedAudio:          o.pipelineCfg.UsesMixedAudio(),
		SendPerParticipantAudio: o.capturesAudioChunks(),
		CollectCaptions:         o.savesCaptions(),
		CaptionLanguage:         o.captionLanguage(),
		ParticipantSampleRate:   o.participantRate,
		Zoom:                    o.zoomCredentials(b),
	}), nil
}

func (o *Orchestrator) defaultPipeline(cfg pipeline.Configuration, cb pipeline.Callbacks) pipeline.Pipeline {
	return pipeline.NewRecorder(o.cfg.Recording.Dir, o.botID, cfg, cb)
}

// relayEncoded runs on the loop goroutine from PushEncoded.
func (o *Orchestrator) relayEncoded(chunk []byte) {
	if o.rtmp == nil || o.rtmpFailed {
		return
	}
	if err := o.rtmp.Write(chunk); err != nil {
		o.rtmpFailed = true
		o.logger.Error().Err(err).
			Str(log.FieldEvent, "orchestrator.rtmp_failed").
			Strs("stderr", o.rtmp.LastStderr(10)).
			Msg("rtmp relay is not accepting media")
	}
}

func (o *Orchestrator) streamMixedAudio(chunk []byte) {
	if o.wsAudio != nil {
		o.wsAudio.Send(chunk)
	}
}
