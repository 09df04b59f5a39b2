// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/store"
)

// OpenStore opens a migrated SQLite store in a temp dir. It is closed when
// the test ends.
func OpenStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite:"+filepath.Join(t.TempDir(), "bots.db"), store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedBot inserts b, filling in a Google Meet URL and the joining state
// when unset.
func SeedBot(t *testing.T, s *store.SQLStore, b bot.Bot) bot.Bot {
	t.Helper()
	if b.MeetingURL == "" {
		b.MeetingURL = "https://meet.google.com/abc-defg-hij"
	}
	if b.State == "" {
		b.State = bot.StateJoining
	}
	if b.Settings.DisplayName == "" {
		b.Settings.DisplayName = "Notes Bot"
	}
	created, err := s.CreateBot(context.Background(), b)
	require.NoError(t, err)
	return created
}

// EventTypes lists the stored lifecycle event types of a bot, oldest first.
func EventTypes(t *testing.T, s *store.SQLStore, botID string) []bot.EventType {
	t.Helper()
	events, err := s.LifecycleEvents(context.Background(), botID)
	require.NoError(t, err)
	out := make([]bot.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

// LastEvent returns the most recent lifecycle event of a bot.
func LastEvent(t *testing.T, s *store.SQLStore, botID string) bot.LifecycleEvent {
	t.Helper()
	events, err := s.LifecycleEvents(context.Background(), botID)
	require.NoError(t, err)
	require.NotEmpty(t, events, "bot %s has no lifecycle events", botID)
	return events[len(events)-1]
}
