// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by bot spans.
const (
	BotIDKey       = "bot.id"
	PlatformKey    = "bot.platform"
	AttemptKey     = "bot.join_attempt"
	StateKey       = "bot.state"
	EventTypeKey   = "bot.event_type"
	CleanupStepKey = "bot.cleanup_step"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// BotAttributes describes a join attempt.
func BotAttributes(botID, platform string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BotIDKey, botID),
		attribute.String(PlatformKey, platform),
		attribute.Int(AttemptKey, attempt),
	}
}

// LifecycleAttributes describes a lifecycle transition.
func LifecycleAttributes(botID, state, eventType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BotIDKey, botID),
		attribute.String(StateKey, state),
		attribute.String(EventTypeKey, eventType),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
