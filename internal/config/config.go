// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the bot runner configuration. Precedence is
// environment, then the YAML file, then defaults. The result is immutable.
package config

import "time"

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "MEETBOT_"

// AppConfig is the runner configuration.
type AppConfig struct {
	Version   string `yaml:"-"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	Store        StoreConfig        `yaml:"store"`
	Redis        RedisConfig        `yaml:"redis"`
	Blob         BlobConfig         `yaml:"blob"`
	Recording    RecordingConfig    `yaml:"recording"`
	Browser      BrowserConfig      `yaml:"browser"`
	Zoom         ZoomConfig         `yaml:"zoom"`
	RTMS         RTMSConfig         `yaml:"rtms"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// StoreConfig selects the database. sqlite:// and postgres:// DSNs are
// supported.
type StoreConfig struct {
	DSN          string        `yaml:"dsn"`
	BusyTimeout  time.Duration `yaml:"busyTimeout"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
}

// RedisConfig points at the control channel broker.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// BlobConfig configures the recording bucket.
type BlobConfig struct {
	Root   string `yaml:"root"`
	Prefix string `yaml:"prefix"`
	// StabilityWindow is how long a file must stay unchanged before upload.
	StabilityWindow time.Duration `yaml:"stabilityWindow"`
}

// RecordingConfig configures local media output.
type RecordingConfig struct {
	Dir string `yaml:"dir"`
	// FFmpegBin relays RTMP streams.
	FFmpegBin string `yaml:"ffmpegBin"`
}

// BrowserConfig configures the Chrome based adapters.
type BrowserConfig struct {
	WebDriverURL     string `yaml:"webDriverURL"`
	ChromeDriverPath string `yaml:"chromeDriverPath"`
	PayloadPath      string `yaml:"payloadPath"`
	Sandbox          bool   `yaml:"sandbox"`
}

// ZoomConfig holds the Meeting SDK app credentials.
type ZoomConfig struct {
	SDKKey    string `yaml:"sdkKey"`
	SDKSecret string `yaml:"sdkSecret"`
}

// RTMSConfig holds the realtime media streams app credentials.
type RTMSConfig struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
}

// HTTPConfig configures the health and metrics side server.
type HTTPConfig struct {
	Addr              string `yaml:"addr"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporterType"`
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// OrchestratorConfig holds the dispatch loop timings.
type OrchestratorConfig struct {
	TickInterval      time.Duration `yaml:"tickInterval"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	SnapshotInterval  time.Duration `yaml:"snapshotInterval"`
	MailboxCapacity   int           `yaml:"mailboxCapacity"`
	// CleanupWatchdog kills the process when cleanup has not finished.
	CleanupWatchdog time.Duration `yaml:"cleanupWatchdog"`
	// TranscriptionWait bounds how long cleanup waits for utterances.
	TranscriptionWait time.Duration `yaml:"transcriptionWait"`
	TranscriptionPoll time.Duration `yaml:"transcriptionPoll"`
	// RestartDelay is how long a restart request is deferred after the bot
	// was blocked by the platform.
	RestartDelay time.Duration `yaml:"restartDelay"`
	// RestartWindow is how long after its start time a bot may still be
	// restarted instead of failing.
	RestartWindow time.Duration `yaml:"restartWindow"`
}

// Default returns the configuration used when nothing is overridden.
func Default() AppConfig {
	return AppConfig{
		LogLevel:  "info",
		LogFormat: "json",
		Store: StoreConfig{
			DSN:          "sqlite://data/meetbot.db",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 4,
		},
		Redis: RedisConfig{URL: "redis://localhost:6379/0"},
		Blob: BlobConfig{
			Root:            "data/bucket",
			Prefix:          "recordings",
			StabilityWindow: 2 * time.Second,
		},
		Recording: RecordingConfig{Dir: "data/recordings", FFmpegBin: "ffmpeg"},
		Browser:   BrowserConfig{ChromeDriverPath: "chromedriver", PayloadPath: "payload.js", Sandbox: true},
		HTTP:      HTTPConfig{Addr: ":9090", RequestsPerMinute: 120},
		Telemetry: TelemetryConfig{ExporterType: "grpc", Endpoint: "localhost:4317", Environment: "production", SamplingRate: 1.0},
		Orchestrator: OrchestratorConfig{
			TickInterval:      100 * time.Millisecond,
			HeartbeatInterval: 60 * time.Second,
			SnapshotInterval:  5 * time.Minute,
			MailboxCapacity:   1024,
			CleanupWatchdog:   600 * time.Second,
			TranscriptionWait: 300 * time.Second,
			TranscriptionPoll: 5 * time.Second,
			RestartDelay:      60 * time.Second,
			RestartWindow:     15 * time.Minute,
		},
	}
}
