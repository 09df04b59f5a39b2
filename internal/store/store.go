// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists bot state, lifecycle events, participants,
// utterances and outbound request queues.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnsupportedDSN is returned for DSNs with an unknown scheme.
	ErrUnsupportedDSN = errors.New("store: unsupported dsn")
)

// Webhook triggers.
const (
	TriggerBotStateChange         = "bot.state_change"
	TriggerParticipantEvent       = "participant_events.join_leave"
	TriggerTranscriptUpdate       = "transcript.update"
	TriggerChatMessagesUpdate     = "chat_messages.update"
	TriggerAsyncTranscriptionDone = "async_transcription.state_change"
)

// Store is the persistence collaborator the orchestrator depends on.
type Store interface {
	GetBot(ctx context.Context, botID string) (bot.Bot, error)
	SetHeartbeat(ctx context.Context, botID string, at time.Time) error
	SetRequestedActionTakenAt(ctx context.Context, botID string, at time.Time) error
	CreateLifecycleEvent(ctx context.Context, ev bot.LifecycleEvent) error

	UpsertParticipant(ctx context.Context, botID string, p bot.Participant) error
	SetParticipantHost(ctx context.Context, botID, participantUUID string, isHost bool) error
	CreateParticipantEvent(ctx context.Context, botID string, ev bot.ParticipantEvent) error

	// CreateUtterance inserts u, or updates the existing row with the same
	// SourceUUID when one is set. It returns the row id.
	CreateUtterance(ctx context.Context, botID string, u bot.Utterance) (string, error)
	EnqueueTranscriptionJob(ctx context.Context, botID, utteranceID string) error
	CompleteTranscription(ctx context.Context, utteranceID string, transcription, failure map[string]any) error
	PendingUtteranceCount(ctx context.Context, botID string) (int, error)
	AggregateTranscriptionErrors(ctx context.Context, botID string) (map[string]int, error)

	MediaRequests(ctx context.Context, botID string, mediaType bot.MediaType, state bot.MediaRequestState) ([]bot.MediaRequest, error)
	SetMediaRequestState(ctx context.Context, requestID string, state bot.MediaRequestState) error
	ChatMessageRequests(ctx context.Context, botID string, state bot.ChatMessageRequestState) ([]bot.ChatMessageRequest, error)
	SetChatMessageRequestState(ctx context.Context, requestID string, state bot.ChatMessageRequestState) error
	UpsertChatMessage(ctx context.Context, botID string, m bot.ChatMessage) error

	TriggerWebhook(ctx context.Context, botID, trigger string, payload map[string]any) error
	CreateResourceSnapshot(ctx context.Context, botID string, data map[string]any) error
	CreateBotLogEntry(ctx context.Context, botID string, level bot.LogLevel, entryType, message string) error
	SetRecordingFile(ctx context.Context, botID, key string) error
	SaveDebugArtifact(ctx context.Context, botID, kind, key string) error
	ScheduleRestart(ctx context.Context, botID string, delay time.Duration) error
}
