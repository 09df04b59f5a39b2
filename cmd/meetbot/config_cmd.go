// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/meetbot/internal/config"
)

const redacted = "***"

func newConfigCmd() *cobra.Command {
	var (
		file    string
		envFile string
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the runner configuration",
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := loadConfig(file, envFile); err != nil {
				return fmt.Errorf("configuration error in %s: %w", describePath(file), err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", describePath(file))
			return err
		},
	}

	var format string
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(file, envFile)
			if err != nil {
				return fmt.Errorf("configuration error in %s: %w", describePath(file), err)
			}
			return dumpConfig(cmd.OutOrStdout(), redactSecrets(cfg), format)
		},
	}
	dump.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")

	cmd.AddCommand(validate, dump)
	return cmd
}

func describePath(path string) string {
	if path == "" {
		return "defaults+environment"
	}
	return path
}

func dumpConfig(w io.Writer, cfg config.AppConfig, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return usageError{fmt.Errorf("unsupported format %q (use yaml or json)", format)}
	}
}

func redactSecrets(cfg config.AppConfig) config.AppConfig {
	if cfg.Zoom.SDKSecret != "" {
		cfg.Zoom.SDKSecret = redacted
	}
	if cfg.RTMS.ClientSecret != "" {
		cfg.RTMS.ClientSecret = redacted
	}
	cfg.Store.DSN = maskURL(cfg.Store.DSN)
	cfg.Redis.URL = maskURL(cfg.Redis.URL)
	return cfg
}
