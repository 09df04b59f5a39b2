// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldBotID         = "bot_id"
	FieldSessionID     = "session_id"
	FieldParticipantID = "participant_id"
	FieldRequestID     = "media_request_id"
	FieldUtteranceID   = "utterance_id"

	// Process / loop fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldCommand   = "command"
	FieldPlatform  = "platform"

	// Lifecycle fields
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"
	FieldEventType = "event_type"
	FieldSubType   = "event_sub_type"

	// Join attempt fields
	FieldAttempt = "attempt"
	FieldStep    = "step"
	FieldReason  = "reason"

	// Media fields
	FieldMediaType  = "media_type"
	FieldSampleRate = "sample_rate"
	FieldPath       = "path"
	FieldPort       = "port"
)
