// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ManuGH/meetbot/internal/bot"
)

// UpsertParticipant inserts or refreshes a participant.
func (s *SQLStore) UpsertParticipant(ctx context.Context, botID string, p bot.Participant) error {
	_, err := s.exec(ctx, `
	INSERT INTO participants (bot_id, uuid, user_uuid, full_name, is_the_bot, is_host)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(bot_id, uuid) DO UPDATE SET
		user_uuid = excluded.user_uuid,
		full_name = excluded.full_name,
		is_the_bot = excluded.is_the_bot,
		is_host = excluded.is_host`,
		botID, p.UUID, p.UserUUID, p.FullName, p.IsTheBot, p.IsHost)
	if err != nil {
		return fmt.Errorf("upsert participant %s: %w", p.UUID, err)
	}
	return nil
}

// SetParticipantHost changes only the host flag.
func (s *SQLStore) SetParticipantHost(ctx context.Context, botID, participantUUID string, isHost bool) error {
	res, err := s.exec(ctx, `UPDATE participants SET is_host = ? WHERE bot_id = ? AND uuid = ?`, isHost, botID, participantUUID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("participant %s: %w", participantUUID, ErrNotFound)
	}
	return nil
}

// Participant loads one participant.
func (s *SQLStore) Participant(ctx context.Context, botID, participantUUID string) (bot.Participant, error) {
	var p bot.Participant
	err := s.queryRow(ctx, `
	SELECT uuid, user_uuid, full_name, is_the_bot, is_host FROM participants WHERE bot_id = ? AND uuid = ?`,
		botID, participantUUID).Scan(&p.UUID, &p.UserUUID, &p.FullName, &p.IsTheBot, &p.IsHost)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("participant %s: %w", participantUUID, ErrNotFound)
	}
	return p, err
}

// CreateParticipantEvent stores a join, leave or update event.
func (s *SQLStore) CreateParticipantEvent(ctx context.Context, botID string, ev bot.ParticipantEvent) error {
	data, err := encodeJSON(ev.Data)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
	INSERT INTO participant_events (id, bot_id, participant_uuid, event_type, event_data, timestamp_ms)
	VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), botID, ev.ParticipantUUID, string(ev.Type), data, ev.TimestampMs)
	return err
}

// CreateUtterance inserts an utterance or, for caption utterances, updates
// the row carrying the same source uuid.
func (s *SQLStore) CreateUtterance(ctx context.Context, botID string, u bot.Utterance) (string, error) {
	transcription, err := nullableJSON(u.Transcription)
	if err != nil {
		return "", err
	}
	failure, err := nullableJSON(u.Failure)
	if err != nil {
		return "", err
	}
	var sourceUUID sql.NullString
	if u.SourceUUID != "" {
		sourceUUID = sql.NullString{String: u.SourceUUID, Valid: true}
		var existing string
		err := s.queryRow(ctx, `SELECT id FROM utterances WHERE bot_id = ? AND source_uuid = ?`, botID, u.SourceUUID).Scan(&existing)
		switch {
		case err == nil:
			_, err = s.exec(ctx, `
			UPDATE utterances SET participant_uuid = ?, timestamp_ms = ?, duration_ms = ?, transcription = ?, failure = ?
			WHERE id = ?`,
				u.ParticipantUUID, u.TimestampMs, u.DurationMs, transcription, failure, existing)
			if err != nil {
				return "", fmt.Errorf("update utterance %s: %w", existing, err)
			}
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return "", err
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err = s.exec(ctx, `
	INSERT INTO utterances (id, bot_id, participant_uuid, source, source_uuid, timestamp_ms, duration_ms, sample_rate, audio, transcription, failure, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, botID, u.ParticipantUUID, string(u.Source), sourceUUID, u.TimestampMs, u.DurationMs, u.SampleRate, u.Audio, transcription, failure, s.nowMs())
	if err != nil {
		return "", fmt.Errorf("insert utterance: %w", err)
	}
	return u.ID, nil
}

func nullableJSON(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	raw, err := encodeJSON(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: raw, Valid: true}, nil
}

// Utterances lists a bot's utterances by timestamp.
func (s *SQLStore) Utterances(ctx context.Context, botID string) ([]bot.Utterance, error) {
	rows, err := s.query(ctx, `
	SELECT id, participant_uuid, source, source_uuid, timestamp_ms, duration_ms, sample_rate, transcription, failure
	FROM utterances WHERE bot_id = ? ORDER BY timestamp_ms, created_at_ms`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bot.Utterance
	for rows.Next() {
		var (
			u              bot.Utterance
			source         string
			sourceUUID     sql.NullString
			trans, failure sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.ParticipantUUID, &source, &sourceUUID, &u.TimestampMs, &u.DurationMs, &u.SampleRate, &trans, &failure); err != nil {
			return nil, err
		}
		u.Source = bot.UtteranceSource(source)
		u.SourceUUID = sourceUUID.String
		if u.Transcription, err = decodeJSONMap(trans); err != nil {
			return nil, err
		}
		if u.Failure, err = decodeJSONMap(failure); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// EnqueueTranscriptionJob queues an utterance for asynchronous transcription.
func (s *SQLStore) EnqueueTranscriptionJob(ctx context.Context, botID, utteranceID string) error {
	_, err := s.exec(ctx, `
	INSERT INTO transcription_jobs (utterance_id, bot_id, created_at_ms) VALUES (?, ?, ?)
	ON CONFLICT(utterance_id) DO NOTHING`, utteranceID, botID, s.nowMs())
	return err
}

// CompleteTranscription stores the outcome of a transcription job.
func (s *SQLStore) CompleteTranscription(ctx context.Context, utteranceID string, transcription, failure map[string]any) error {
	t, err := nullableJSON(transcription)
	if err != nil {
		return err
	}
	f, err := nullableJSON(failure)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE utterances SET transcription = ?, failure = ? WHERE id = ?`, t, f, utteranceID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("utterance %s: %w", utteranceID, ErrNotFound)
	}
	_, err = s.exec(ctx, `DELETE FROM transcription_jobs WHERE utterance_id = ?`, utteranceID)
	return err
}

// PendingUtteranceCount counts utterances that have neither a transcription
// nor a failure.
func (s *SQLStore) PendingUtteranceCount(ctx context.Context, botID string) (int, error) {
	var n int
	err := s.queryRow(ctx, `
	SELECT COUNT(*) FROM utterances WHERE bot_id = ? AND transcription IS NULL AND failure IS NULL`, botID).Scan(&n)
	return n, err
}

// AggregateTranscriptionErrors groups failed utterances by failure reason.
func (s *SQLStore) AggregateTranscriptionErrors(ctx context.Context, botID string) (map[string]int, error) {
	rows, err := s.query(ctx, `SELECT failure FROM utterances WHERE bot_id = ? AND failure IS NOT NULL`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		failure, err := decodeJSONMap(raw)
		if err != nil {
			return nil, err
		}
		reason, _ := failure["reason"].(string)
		if reason == "" {
			reason = "unknown"
		}
		out[reason]++
	}
	return out, rows.Err()
}

// CreateMediaRequest queues an outbound media request.
func (s *SQLStore) CreateMediaRequest(ctx context.Context, botID string, r bot.MediaRequest) (bot.MediaRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.State == "" {
		r.State = bot.MediaEnqueued
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.exec(ctx, `
	INSERT INTO media_requests (id, bot_id, media_type, state, created_at_ms, blob, url, sample_rate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, botID, string(r.Type), string(r.State), r.CreatedAt.UnixMilli(), r.Blob, r.URL, r.SampleRate)
	return r, err
}

// MediaRequests lists requests of one type and state, oldest first.
func (s *SQLStore) MediaRequests(ctx context.Context, botID string, mediaType bot.MediaType, state bot.MediaRequestState) ([]bot.MediaRequest, error) {
	rows, err := s.query(ctx, `
	SELECT id, media_type, state, created_at_ms, blob, url, sample_rate
	FROM media_requests WHERE bot_id = ? AND media_type = ? AND state = ?
	ORDER BY created_at_ms, id`, botID, string(mediaType), string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bot.MediaRequest
	for rows.Next() {
		var (
			r       bot.MediaRequest
			typ, st string
			created int64
		)
		if err := rows.Scan(&r.ID, &typ, &st, &created, &r.Blob, &r.URL, &r.SampleRate); err != nil {
			return nil, err
		}
		r.Type = bot.MediaType(typ)
		r.State = bot.MediaRequestState(st)
		r.CreatedAt = msTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetMediaRequestState overwrites the state column. Callers validate the move.
func (s *SQLStore) SetMediaRequestState(ctx context.Context, requestID string, state bot.MediaRequestState) error {
	res, err := s.exec(ctx, `UPDATE media_requests SET state = ? WHERE id = ?`, string(state), requestID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("media request %s: %w", requestID, ErrNotFound)
	}
	return nil
}

// CreateChatMessageRequest queues an outbound chat message.
func (s *SQLStore) CreateChatMessageRequest(ctx context.Context, botID string, r bot.ChatMessageRequest) (bot.ChatMessageRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.State == "" {
		r.State = bot.ChatRequestEnqueued
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.exec(ctx, `
	INSERT INTO chat_message_requests (id, bot_id, message, to_user_uuid, state, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, botID, r.Message, r.ToUserUUID, string(r.State), r.CreatedAt.UnixMilli())
	return r, err
}

// ChatMessageRequests lists chat requests in one state, oldest first.
func (s *SQLStore) ChatMessageRequests(ctx context.Context, botID string, state bot.ChatMessageRequestState) ([]bot.ChatMessageRequest, error) {
	rows, err := s.query(ctx, `
	SELECT id, message, to_user_uuid, state, created_at_ms
	FROM chat_message_requests WHERE bot_id = ? AND state = ? ORDER BY created_at_ms, id`, botID, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bot.ChatMessageRequest
	for rows.Next() {
		var (
			r       bot.ChatMessageRequest
			st      string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Message, &r.ToUserUUID, &st, &created); err != nil {
			return nil, err
		}
		r.State = bot.ChatMessageRequestState(st)
		r.CreatedAt = msTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetChatMessageRequestState updates a chat request.
func (s *SQLStore) SetChatMessageRequestState(ctx context.Context, requestID string, state bot.ChatMessageRequestState) error {
	_, err := s.exec(ctx, `UPDATE chat_message_requests SET state = ? WHERE id = ?`, string(state), requestID)
	return err
}

// UpsertChatMessage stores a received chat message keyed by its uuid.
func (s *SQLStore) UpsertChatMessage(ctx context.Context, botID string, m bot.ChatMessage) error {
	_, err := s.exec(ctx, `
	INSERT INTO chat_messages (bot_id, message_uuid, participant_uuid, text, timestamp_ms, to_bot)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(bot_id, message_uuid) DO UPDATE SET
		text = excluded.text,
		timestamp_ms = excluded.timestamp_ms`,
		botID, m.MessageUUID, m.ParticipantUUID, m.Text, m.Timestamp.UnixMilli(), m.ToBot)
	return err
}
