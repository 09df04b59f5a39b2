// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/meetbot/internal/log"
)

// Realtime audio triggers exchanged with the customer websocket.
const (
	TriggerMixedAudio     = "realtime_audio.mixed"
	TriggerBotOutputAudio = "realtime_audio.bot_output"
)

// AudioMessage is the JSON frame sent to and received from the websocket.
type AudioMessage struct {
	Trigger string           `json:"trigger"`
	BotID   string           `json:"bot_id,omitempty"`
	Data    AudioMessageData `json:"data"`
}

// AudioMessageData carries one base64 PCM chunk.
type AudioMessageData struct {
	Chunk      string `json:"chunk"`
	SampleRate int    `json:"sample_rate"`
	Timestamp  int64  `json:"timestamp_ms,omitempty"`
}

// AudioStreamer streams mixed meeting audio to a websocket and hands audio
// sent back by the peer to OnBotOutput.
type AudioStreamer struct {
	url        string
	botID      string
	inputRate  int
	outputRate int
	// OnBotOutput receives 16-bit PCM the peer wants the bot to speak.
	OnBotOutput func(chunk []byte, sampleRate int)

	logger    zerolog.Logger
	redial    *rate.Limiter
	badFrames rate.Sometimes

	startOnce sync.Once
	stopOnce  sync.Once
	out       chan []byte
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
	dropped int
}

// NewAudioStreamer creates a streamer. outputRate of 0 keeps the input rate.
func NewAudioStreamer(url, botID string, inputRate, outputRate int) *AudioStreamer {
	if outputRate == 0 {
		outputRate = inputRate
	}
	return &AudioStreamer{
		url:        url,
		botID:      botID,
		inputRate:  inputRate,
		outputRate: outputRate,
		logger:     log.WithBot("websocket_audio", botID),
		redial:     rate.NewLimiter(rate.Every(time.Second), 1),
		badFrames:  rate.Sometimes{First: 1, Every: 1000},
		out:        make(chan []byte, 256),
	}
}

// Started reports whether Start has run.
func (s *AudioStreamer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start connects in the background and keeps reconnecting until Stop.
func (s *AudioStreamer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		s.wg.Add(1)
		go s.run(ctx)
	})
}

// Send queues a mixed-audio chunk. Chunks are dropped while the queue is
// full.
func (s *AudioStreamer) Send(chunk []byte) {
	payload := Resample(chunk, s.inputRate, s.outputRate)
	select {
	case s.out <- payload:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Stop closes the connection and waits for the worker.
func (s *AudioStreamer) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *AudioStreamer) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		if err := s.redial.Wait(ctx); err != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEvent, "websocket_audio.dial_failed").Msg("websocket audio dial failed")
			continue
		}
		s.logger.Info().Str(log.FieldEvent, "websocket_audio.connected").Msg("websocket audio connected")
		s.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *AudioStreamer) serve(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(8 << 20)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleInbound(data)
		}
	}()

	defer func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = conn.Close()
		<-readDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case chunk := <-s.out:
			msg := AudioMessage{
				Trigger: TriggerMixedAudio,
				BotID:   s.botID,
				Data: AudioMessageData{
					Chunk:      base64.StdEncoding.EncodeToString(chunk),
					SampleRate: s.outputRate,
					Timestamp:  time.Now().UnixMilli(),
				},
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Warn().Err(err).Str(log.FieldEvent, "websocket_audio.write_failed").Msg("websocket audio write failed")
				return
			}
		}
	}
}

func (s *AudioStreamer) handleInbound(data []byte) {
	var msg AudioMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Trigger != TriggerBotOutputAudio {
		s.badFrames.Do(func() {
			s.logger.Error().Err(err).Str("trigger", msg.Trigger).Str(log.FieldEvent, "websocket_audio.unexpected_message").Msg("unexpected message from websocket")
		})
		return
	}
	chunk, err := base64.StdEncoding.DecodeString(msg.Data.Chunk)
	if err != nil {
		return
	}
	if s.OnBotOutput != nil {
		s.OnBotOutput(chunk, msg.Data.SampleRate)
	}
}
