// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/meetbot/internal/validate"
)

// Validate checks cfg and reports every failure at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("LogLevel", strings.ToLower(cfg.LogLevel), validate.LogLevels)
	v.OneOf("LogFormat", cfg.LogFormat, []string{"json", "console"})

	v.NotEmpty("Store.DSN", cfg.Store.DSN)
	if cfg.Store.DSN != "" && !strings.HasPrefix(cfg.Store.DSN, "sqlite://") &&
		!strings.HasPrefix(cfg.Store.DSN, "postgres://") && !strings.HasPrefix(cfg.Store.DSN, "postgresql://") {
		v.AddError("Store.DSN", "scheme must be sqlite, postgres or postgresql", "")
	}
	v.Positive("Store.MaxOpenConns", cfg.Store.MaxOpenConns)

	v.URL("Redis.URL", cfg.Redis.URL, "redis", "rediss")

	v.NotEmpty("Blob.Root", cfg.Blob.Root)
	v.NotEmpty("Recording.Dir", cfg.Recording.Dir)

	if cfg.Browser.WebDriverURL != "" {
		v.URL("Browser.WebDriverURL", cfg.Browser.WebDriverURL, "http", "https")
	}

	v.Both("Zoom", cfg.Zoom.SDKKey, cfg.Zoom.SDKSecret)
	v.Both("RTMS", cfg.RTMS.ClientID, cfg.RTMS.ClientSecret)

	v.ListenAddr("HTTP.Addr", cfg.HTTP.Addr)
	v.Positive("HTTP.RequestsPerMinute", cfg.HTTP.RequestsPerMinute)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.ExporterType", cfg.Telemetry.ExporterType, []string{"grpc", "http", "noop"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
	}
	v.Fraction("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate)

	o := cfg.Orchestrator
	v.MinDuration("Orchestrator.TickInterval", o.TickInterval, 10*time.Millisecond)
	v.MinDuration("Orchestrator.HeartbeatInterval", o.HeartbeatInterval, time.Second)
	v.MinDuration("Orchestrator.SnapshotInterval", o.SnapshotInterval, time.Second)
	v.Range("Orchestrator.MailboxCapacity", o.MailboxCapacity, 16, 1<<20)
	v.MinDuration("Orchestrator.CleanupWatchdog", o.CleanupWatchdog, time.Second)
	v.MinDuration("Orchestrator.TranscriptionWait", o.TranscriptionWait, 0)
	v.MinDuration("Orchestrator.TranscriptionPoll", o.TranscriptionPoll, 10*time.Millisecond)
	v.MinDuration("Orchestrator.RestartDelay", o.RestartDelay, 0)
	v.MinDuration("Orchestrator.RestartWindow", o.RestartWindow, 0)
	if o.TranscriptionPoll > o.TranscriptionWait && o.TranscriptionWait > 0 {
		v.AddError("Orchestrator.TranscriptionPoll", "must not exceed TranscriptionWait", o.TranscriptionPoll)
	}

	return v.Err()
}
