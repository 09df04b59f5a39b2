// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/meetbot/internal/bot"
)

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSONMap(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateBot inserts a bot row. Missing ids and creation times are filled in.
func (s *SQLStore) CreateBot(ctx context.Context, b bot.Bot) (bot.Bot, error) {
	if b.ID == "" {
		b.ID = "bot_" + uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	if b.State == "" {
		b.State = bot.StateReady
	}
	settings, err := json.Marshal(b.Settings)
	if err != nil {
		return bot.Bot{}, fmt.Errorf("encode settings: %w", err)
	}
	var joinAt sql.NullInt64
	if b.JoinAt != nil {
		joinAt = sql.NullInt64{Int64: b.JoinAt.UnixMilli(), Valid: true}
	}
	_, err = s.exec(ctx, `
	INSERT INTO bots (id, meeting_url, state, join_at_ms, created_at_ms, settings)
	VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.MeetingURL, string(b.State), joinAt, b.CreatedAt.UnixMilli(), string(settings))
	if err != nil {
		return bot.Bot{}, fmt.Errorf("insert bot %s: %w", b.ID, err)
	}
	return b, nil
}

// GetBot loads a bot by id.
func (s *SQLStore) GetBot(ctx context.Context, botID string) (bot.Bot, error) {
	var (
		b            bot.Bot
		state        string
		joinAt       sql.NullInt64
		createdAt    int64
		settings     string
		lastType     string
		lastOldState string
	)
	err := s.queryRow(ctx, `
	SELECT id, meeting_url, state, join_at_ms, created_at_ms, settings, last_event_type, last_event_old_state
	FROM bots WHERE id = ?`, botID).Scan(
		&b.ID, &b.MeetingURL, &state, &joinAt, &createdAt, &settings, &lastType, &lastOldState)
	if errors.Is(err, sql.ErrNoRows) {
		return bot.Bot{}, fmt.Errorf("bot %s: %w", botID, ErrNotFound)
	}
	if err != nil {
		return bot.Bot{}, fmt.Errorf("load bot %s: %w", botID, err)
	}
	b.State = bot.State(state)
	b.CreatedAt = msTime(createdAt)
	if joinAt.Valid {
		t := msTime(joinAt.Int64)
		b.JoinAt = &t
	}
	b.LastEventType = bot.EventType(lastType)
	b.LastEventOldState = bot.State(lastOldState)
	if err := json.Unmarshal([]byte(settings), &b.Settings); err != nil {
		return bot.Bot{}, fmt.Errorf("decode settings of bot %s: %w", botID, err)
	}
	return b, nil
}

func (s *SQLStore) updateBot(ctx context.Context, botID, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("bot %s: %w", botID, ErrNotFound)
	}
	return nil
}

// SetHeartbeat stamps the bot's liveness time.
func (s *SQLStore) SetHeartbeat(ctx context.Context, botID string, at time.Time) error {
	return s.updateBot(ctx, botID, `UPDATE bots SET heartbeat_ms = ? WHERE id = ?`, at.UnixMilli(), botID)
}

// Heartbeat returns the last heartbeat, or zero if never set.
func (s *SQLStore) Heartbeat(ctx context.Context, botID string) (time.Time, error) {
	var ms sql.NullInt64
	if err := s.queryRow(ctx, `SELECT heartbeat_ms FROM bots WHERE id = ?`, botID).Scan(&ms); err != nil {
		return time.Time{}, err
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return msTime(ms.Int64), nil
}

// SetRequestedActionTakenAt records when a requested action was carried out.
func (s *SQLStore) SetRequestedActionTakenAt(ctx context.Context, botID string, at time.Time) error {
	return s.updateBot(ctx, botID, `UPDATE bots SET requested_action_taken_at_ms = ? WHERE id = ?`, at.UnixMilli(), botID)
}

// CreateLifecycleEvent stores ev and moves the bot to ev.NewState.
func (s *SQLStore) CreateLifecycleEvent(ctx context.Context, ev bot.LifecycleEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	meta, err := encodeJSON(ev.Metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`
	INSERT INTO lifecycle_events (id, bot_id, event_type, sub_type, old_state, new_state, metadata, created_at_ms, seq)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.BotID, string(ev.Type), string(ev.SubType), string(ev.OldState), string(ev.NewState), meta, ev.CreatedAt.UnixMilli(), s.nextSeq()); err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`
	UPDATE bots SET state = ?, last_event_type = ?, last_event_old_state = ? WHERE id = ?`),
		string(ev.NewState), string(ev.Type), string(ev.OldState), ev.BotID); err != nil {
		return fmt.Errorf("update bot state: %w", err)
	}
	return tx.Commit()
}

// LifecycleEvents returns a bot's events oldest first.
func (s *SQLStore) LifecycleEvents(ctx context.Context, botID string) ([]bot.LifecycleEvent, error) {
	rows, err := s.query(ctx, `
	SELECT id, bot_id, event_type, sub_type, old_state, new_state, metadata, created_at_ms
	FROM lifecycle_events WHERE bot_id = ? ORDER BY seq`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bot.LifecycleEvent
	for rows.Next() {
		var (
			ev                           bot.LifecycleEvent
			typ, sub, oldState, newState string
			meta                         sql.NullString
			created                      int64
		)
		if err := rows.Scan(&ev.ID, &ev.BotID, &typ, &sub, &oldState, &newState, &meta, &created); err != nil {
			return nil, err
		}
		ev.Type = bot.EventType(typ)
		ev.SubType = bot.SubType(sub)
		ev.OldState = bot.State(oldState)
		ev.NewState = bot.State(newState)
		ev.CreatedAt = msTime(created)
		if ev.Metadata, err = decodeJSONMap(meta); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SetRecordingFile records the remote key of the uploaded recording.
func (s *SQLStore) SetRecordingFile(ctx context.Context, botID, key string) error {
	return s.updateBot(ctx, botID, `UPDATE bots SET recording_key = ? WHERE id = ?`, key, botID)
}

// RecordingFile returns the stored recording key, or "".
func (s *SQLStore) RecordingFile(ctx context.Context, botID string) (string, error) {
	var key sql.NullString
	if err := s.queryRow(ctx, `SELECT recording_key FROM bots WHERE id = ?`, botID).Scan(&key); err != nil {
		return "", err
	}
	return key.String, nil
}

// TriggerWebhook writes a delivery into the outbox.
func (s *SQLStore) TriggerWebhook(ctx context.Context, botID, trigger string, payload map[string]any) error {
	body, err := encodeJSON(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	_, err = s.exec(ctx, `
	INSERT INTO webhook_deliveries (id, bot_id, trigger_type, payload, created_at_ms, seq)
	VALUES (?, ?, ?, ?, ?, ?)`, uuid.NewString(), botID, trigger, body, s.nowMs(), s.nextSeq())
	return err
}

// WebhookDelivery is one queued webhook.
type WebhookDelivery struct {
	Trigger string
	Payload map[string]any
}

// WebhookDeliveries lists queued webhooks for a bot, oldest first.
func (s *SQLStore) WebhookDeliveries(ctx context.Context, botID string) ([]WebhookDelivery, error) {
	rows, err := s.query(ctx, `
	SELECT trigger_type, payload FROM webhook_deliveries WHERE bot_id = ? ORDER BY seq`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var (
			d   WebhookDelivery
			raw sql.NullString
		)
		if err := rows.Scan(&d.Trigger, &raw); err != nil {
			return nil, err
		}
		if d.Payload, err = decodeJSONMap(raw); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateResourceSnapshot stores a process resource sample.
func (s *SQLStore) CreateResourceSnapshot(ctx context.Context, botID string, data map[string]any) error {
	body, err := encodeJSON(data)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
	INSERT INTO resource_snapshots (id, bot_id, data, created_at_ms) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), botID, body, s.nowMs())
	return err
}

// CreateBotLogEntry stores a user-visible log line.
func (s *SQLStore) CreateBotLogEntry(ctx context.Context, botID string, level bot.LogLevel, entryType, message string) error {
	_, err := s.exec(ctx, `
	INSERT INTO bot_log_entries (id, bot_id, level, entry_type, message, created_at_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), botID, string(level), entryType, message, s.nowMs())
	return err
}

// SaveDebugArtifact records the object key of a screenshot or page dump.
func (s *SQLStore) SaveDebugArtifact(ctx context.Context, botID, kind, key string) error {
	_, err := s.exec(ctx, `
	INSERT INTO debug_artifacts (id, bot_id, kind, object_key, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), botID, kind, key, s.nowMs())
	return err
}

// ScheduleRestart asks the launcher to start the bot again after delay.
func (s *SQLStore) ScheduleRestart(ctx context.Context, botID string, delay time.Duration) error {
	now := s.now()
	_, err := s.exec(ctx, `
	INSERT INTO bot_restarts (id, bot_id, run_after_ms, created_at_ms) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), botID, now.Add(delay).UnixMilli(), now.UnixMilli())
	return err
}

// CountRows returns the number of rows of a bot in one of the append-only
// tables. It is meant for diagnostics and tests.
func (s *SQLStore) CountRows(ctx context.Context, table, botID string) (int, error) {
	switch table {
	case "resource_snapshots", "bot_log_entries", "debug_artifacts", "bot_restarts", "webhook_deliveries", "participant_events", "transcription_jobs", "chat_messages":
	default:
		return 0, fmt.Errorf("count rows: unknown table %q", table)
	}
	var n int
	err := s.queryRow(ctx, "SELECT COUNT(*) FROM "+table+" WHERE bot_id = ?", botID).Scan(&n)
	return n, err
}
