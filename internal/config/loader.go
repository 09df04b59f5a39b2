// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader builds an AppConfig.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every variable the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key string, dst *string) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseString(key, *dst)
}

func (l *Loader) envBool(key string, dst *bool) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseBool(key, *dst)
}

func (l *Loader) envInt(key string, dst *int) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseInt(key, *dst)
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseDuration(key, *dst)
}

func (l *Loader) envFloat(key string, dst *float64) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseFloat(key, *dst)
}

// Load applies defaults, the file and the environment, then validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// UnknownEnvKeys lists MEETBOT_ variables in environ that Load never read.
func (l *Loader) UnknownEnvKeys(environ []string) []string {
	var unknown []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// loadFile decodes the YAML file over cfg. Unknown keys are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	l.envString("LOG_LEVEL", &cfg.LogLevel)
	l.envString("LOG_FORMAT", &cfg.LogFormat)

	l.envString("STORE_DSN", &cfg.Store.DSN)
	l.envDuration("STORE_BUSY_TIMEOUT", &cfg.Store.BusyTimeout)
	l.envInt("STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns)

	l.envString("REDIS_URL", &cfg.Redis.URL)

	l.envString("BLOB_ROOT", &cfg.Blob.Root)
	l.envString("BLOB_PREFIX", &cfg.Blob.Prefix)
	l.envDuration("BLOB_STABILITY_WINDOW", &cfg.Blob.StabilityWindow)

	l.envString("RECORDING_DIR", &cfg.Recording.Dir)
	l.envString("FFMPEG_BIN", &cfg.Recording.FFmpegBin)

	l.envString("WEBDRIVER_URL", &cfg.Browser.WebDriverURL)
	l.envString("CHROMEDRIVER_PATH", &cfg.Browser.ChromeDriverPath)
	l.envString("PAYLOAD_PATH", &cfg.Browser.PayloadPath)
	l.envBool("BROWSER_SANDBOX", &cfg.Browser.Sandbox)

	l.envString("ZOOM_SDK_KEY", &cfg.Zoom.SDKKey)
	l.envString("ZOOM_SDK_SECRET", &cfg.Zoom.SDKSecret)
	l.envString("RTMS_CLIENT_ID", &cfg.RTMS.ClientID)
	l.envString("RTMS_CLIENT_SECRET", &cfg.RTMS.ClientSecret)

	l.envString("HTTP_ADDR", &cfg.HTTP.Addr)
	l.envInt("HTTP_REQUESTS_PER_MINUTE", &cfg.HTTP.RequestsPerMinute)

	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	l.envString("TELEMETRY_EXPORTER", &cfg.Telemetry.ExporterType)
	l.envString("TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
	l.envString("TELEMETRY_ENVIRONMENT", &cfg.Telemetry.Environment)
	l.envFloat("TELEMETRY_SAMPLING_RATE", &cfg.Telemetry.SamplingRate)

	o := &cfg.Orchestrator
	l.envDuration("TICK_INTERVAL", &o.TickInterval)
	l.envDuration("HEARTBEAT_INTERVAL", &o.HeartbeatInterval)
	l.envDuration("SNAPSHOT_INTERVAL", &o.SnapshotInterval)
	l.envInt("MAILBOX_CAPACITY", &o.MailboxCapacity)
	l.envDuration("CLEANUP_WATCHDOG", &o.CleanupWatchdog)
	l.envDuration("TRANSCRIPTION_WAIT", &o.TranscriptionWait)
	l.envDuration("TRANSCRIPTION_POLL", &o.TranscriptionPoll)
	l.envDuration("RESTART_DELAY", &o.RestartDelay)
	l.envDuration("RESTART_WINDOW", &o.RestartWindow)
}
