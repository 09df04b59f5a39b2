// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/meetbot/internal/blob"
	"github.com/ManuGH/meetbot/internal/config"
	"github.com/ManuGH/meetbot/internal/control"
	"github.com/ManuGH/meetbot/internal/health"
	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/orchestrator"
	"github.com/ManuGH/meetbot/internal/store"
	"github.com/ManuGH/meetbot/internal/telemetry"
)

const (
	serviceName = "meetbot"
	// loopStallAfter marks the bot not ready when the loop stopped ticking.
	loopStallAfter = 30 * time.Second
)

type runOptions struct {
	botID      string
	configPath string
	envFile    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one bot until it ends, fails or is restarted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.botID == "" {
				return usageError{errors.New("--bot-id is required")}
			}
			return runBot(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.botID, "bot-id", "", "id of the bot to run")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	return cmd
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	return u.String()
}

func runBot(ctx context.Context, opts *runOptions) error {
	cfg, loader, err := loadConfig(opts.configPath, opts.envFile)
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: serviceName, Version: cfg.Version})
	logger := log.WithBot("cli", opts.botID)
	if unknown := loader.UnknownEnvKeys(os.Environ()); len(unknown) > 0 {
		logger.Warn().Str(log.FieldEvent, "config.unknown_env").Strs("keys", unknown).Msg("ignoring unknown environment variables")
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("store", maskURL(cfg.Store.DSN)).
		Str("redis", maskURL(cfg.Redis.URL)).
		Str("config_path", opts.configPath).
		Msg("configuration loaded")

	tp, err := telemetry.NewProvider(ctx, telemetryConfig(cfg, opts.botID))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	st, err := store.Open(ctx, cfg.Store.DSN, store.Config{BusyTimeout: cfg.Store.BusyTimeout, MaxOpenConns: cfg.Store.MaxOpenConns})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rdb, err := control.NewClient(cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	bucket, err := blob.NewFileBucket(cfg.Blob.Root, cfg.Blob.Prefix, cfg.Blob.StabilityWindow)
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}

	// Native Zoom bots need an injected Deps.ZoomSDK opener; without one Init fails.
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Store:     st,
		Uploader:  bucket,
		Artifacts: bucket,
		Control:   rdb,
	})
	if err := orch.Initialize(ctx, opts.botID); err != nil {
		return err
	}

	hm := health.NewManager(cfg.Version, opts.botID)
	hm.RegisterChecker(health.NewLastBeatChecker("loop", orch.LastTick, loopStallAfter))
	hm.RegisterChecker(health.NewConnectedChecker("control", orch.ControlConnected))
	hm.ReportState(func() string { return string(orch.State()) })
	srv, err := health.Listen(hm, health.ServerConfig{
		Addr:              cfg.HTTP.Addr,
		RequestsPerMinute: cfg.HTTP.RequestsPerMinute,
		ServiceName:       serviceName,
	})
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error {
		defer stop()
		return orch.Run(gctx)
	})
	err = g.Wait()
	logger.Info().
		Str(log.FieldEvent, "cli.exit").
		Str("state", string(orch.State())).
		Msg("bot process exiting")
	return err
}

func telemetryConfig(cfg config.AppConfig, botID string) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		BotID:          botID,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	}
}
