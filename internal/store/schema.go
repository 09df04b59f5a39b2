// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		meeting_url TEXT NOT NULL,
		state TEXT NOT NULL,
		join_at_ms BIGINT,
		created_at_ms BIGINT NOT NULL,
		settings TEXT NOT NULL DEFAULT '{}',
		heartbeat_ms BIGINT,
		requested_action_taken_at_ms BIGINT,
		recording_key TEXT,
		last_event_type TEXT NOT NULL DEFAULT '',
		last_event_old_state TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS lifecycle_events (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		sub_type TEXT NOT NULL DEFAULT '',
		old_state TEXT NOT NULL,
		new_state TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at_ms BIGINT NOT NULL,
		seq BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lifecycle_bot ON lifecycle_events(bot_id, seq)`,
	`CREATE TABLE IF NOT EXISTS participants (
		bot_id TEXT NOT NULL,
		uuid TEXT NOT NULL,
		user_uuid TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		is_the_bot BOOLEAN NOT NULL DEFAULT FALSE,
		is_host BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (bot_id, uuid)
	)`,
	`CREATE TABLE IF NOT EXISTS participant_events (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		participant_uuid TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data TEXT NOT NULL DEFAULT '{}',
		timestamp_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS utterances (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		participant_uuid TEXT NOT NULL,
		source TEXT NOT NULL,
		source_uuid TEXT,
		timestamp_ms BIGINT NOT NULL,
		duration_ms BIGINT NOT NULL,
		sample_rate INTEGER NOT NULL DEFAULT 0,
		audio {{BLOB}},
		transcription TEXT,
		failure TEXT,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_utterances_source ON utterances(bot_id, source_uuid)`,
	`CREATE TABLE IF NOT EXISTS transcription_jobs (
		utterance_id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS media_requests (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		media_type TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL,
		blob {{BLOB}},
		url TEXT NOT NULL DEFAULT '',
		sample_rate INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_media_requests_queue ON media_requests(bot_id, media_type, state, created_at_ms)`,
	`CREATE TABLE IF NOT EXISTS chat_message_requests (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		message TEXT NOT NULL,
		to_user_uuid TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		bot_id TEXT NOT NULL,
		message_uuid TEXT NOT NULL,
		participant_uuid TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp_ms BIGINT NOT NULL,
		to_bot BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (bot_id, message_uuid)
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL,
		seq BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS resource_snapshots (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bot_log_entries (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		level TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS debug_artifacts (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		object_key TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bot_restarts (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		run_after_ms BIGINT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
}

func (s *SQLStore) blobType() string {
	if s.dialect == dialectPostgres {
		return "BYTEA"
	}
	return "BLOB"
}

func (s *SQLStore) migrate(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		stmt = strings.ReplaceAll(stmt, "{{BLOB}}", s.blobType())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	var current int
	err = tx.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, s.rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
			return err
		}
	case err != nil:
		return err
	case current < schemaVersion:
		if _, err := tx.ExecContext(ctx, s.rebind("UPDATE schema_version SET version = ?"), schemaVersion); err != nil {
			return err
		}
	}
	return tx.Commit()
}
