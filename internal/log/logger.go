// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // defaults to $MEETBOT_LOG_LEVEL, then info
	Format  string    // FormatJSON (default) or FormatConsole
	Output  io.Writer // defaults to os.Stdout
	Service string    // defaults to "meetbot"
	Version string
}

var (
	mu         sync.RWMutex
	base       zerolog.Logger
	configured bool
)

// Configure (re)initialises the global zerolog logger. The first call happens
// from init with defaults; the CLI calls it again once configuration is loaded.
func Configure(cfg Config) {
	level := cfg.Level
	if level == "" {
		level = os.Getenv("MEETBOT_LOG_LEVEL")
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writer io.Writer = os.Stdout
	if cfg.Output != nil {
		writer = cfg.Output
	}
	if cfg.Format == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.TimeOnly}
	}
	if cfg.Service == "" {
		cfg.Service = "meetbot"
	}

	zctx := zerolog.New(writer).With().Timestamp().Str("service", cfg.Service)
	if cfg.Version != "" {
		zctx = zctx.Str("version", cfg.Version)
	}
	l := zctx.Logger()

	mu.Lock()
	base = l
	configured = true
	mu.Unlock()
}

func logger() zerolog.Logger {
	mu.RLock()
	l, ok := base, configured
	mu.RUnlock()
	if !ok {
		Configure(Config{})
		return logger()
	}
	return l
}

// L returns the configured base logger.
func L() *zerolog.Logger {
	l := logger()
	return &l
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}

// WithBot returns a child logger annotated with component and bot id.
func WithBot(component, botID string) zerolog.Logger {
	return logger().With().
		Str(FieldComponent, component).
		Str(FieldBotID, botID).
		Logger()
}

// Derive attaches arbitrary fields to a child logger using the provided builder function.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}

func init() {
	Configure(Config{})
}
