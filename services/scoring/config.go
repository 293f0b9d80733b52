// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the scoring service.
//
// Defaults suit a local single-process deployment. Every field can be
// overridden by a SCORING_* environment variable, and optionally seeded from
// a YAML file named in SCORING_CONFIG; environment variables win over the
// file.
type Config struct {
	Port string

	// ArtifactPath is the scoring artifact file loaded at startup and
	// re-read on every reload.
	ArtifactPath string

	// WatchArtifact enables the fsnotify watcher that reloads the
	// artifact when the file changes on disk.
	WatchArtifact bool

	// LedgerPath is the Badger directory. The value "memory" selects an
	// in-memory store with no persistence.
	LedgerPath string

	LedgerRetention     time.Duration
	LedgerPruneInterval time.Duration

	MonitorInterval   time.Duration
	MonitorWindow     time.Duration
	MonitorMinSamples int
	MonitorThreshold  float64
	MonitorCooldown   time.Duration

	// MonitorStatistic selects the drift measure: rate_gap or brier_score.
	MonitorStatistic string

	// RetrainWebhookURL receives drift signals via POST. Empty means
	// signals are logged only.
	RetrainWebhookURL string

	// RateLimitRPS caps requests per client per second on the /v1 group.
	// Zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel  string
	LogFormat string
}

func defaultConfig() Config {
	return Config{
		Port:                "12310",
		ArtifactPath:        "./artifacts/model.json",
		WatchArtifact:       true,
		LedgerPath:          "./data/ledger",
		LedgerRetention:     720 * time.Hour,
		LedgerPruneInterval: time.Hour,
		MonitorInterval:     time.Minute,
		MonitorWindow:       24 * time.Hour,
		MonitorMinSamples:   50,
		MonitorThreshold:    0.15,
		MonitorCooldown:     6 * time.Hour,
		MonitorStatistic:    "rate_gap",
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// fileConfig mirrors Config for the YAML overlay. Durations are strings in
// Go duration syntax ("720h"). Pointer fields distinguish absent keys from
// explicit zero values so a file can set false or 0.
type fileConfig struct {
	Port                string   `yaml:"port"`
	ArtifactPath        string   `yaml:"artifact_path"`
	WatchArtifact       *bool    `yaml:"watch_artifact"`
	LedgerPath          string   `yaml:"ledger_path"`
	LedgerRetention     string   `yaml:"ledger_retention"`
	LedgerPruneInterval string   `yaml:"ledger_prune_interval"`
	MonitorInterval     string   `yaml:"monitor_interval"`
	MonitorWindow       string   `yaml:"monitor_window"`
	MonitorMinSamples   *int     `yaml:"monitor_min_samples"`
	MonitorThreshold    *float64 `yaml:"monitor_threshold"`
	MonitorCooldown     string   `yaml:"monitor_cooldown"`
	MonitorStatistic    string   `yaml:"monitor_statistic"`
	RetrainWebhookURL   string   `yaml:"retrain_webhook_url"`
	RateLimitRPS        *float64 `yaml:"rate_limit_rps"`
	RateLimitBurst      *int     `yaml:"rate_limit_burst"`
	LogLevel            string   `yaml:"log_level"`
	LogFormat           string   `yaml:"log_format"`
}

// loadConfig builds the service configuration in three layers: built-in
// defaults, then the optional YAML file named in SCORING_CONFIG, then
// SCORING_* environment variables.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("SCORING_CONFIG"); path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}

	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if fc.ArtifactPath != "" {
		cfg.ArtifactPath = fc.ArtifactPath
	}
	if fc.WatchArtifact != nil {
		cfg.WatchArtifact = *fc.WatchArtifact
	}
	if fc.LedgerPath != "" {
		cfg.LedgerPath = fc.LedgerPath
	}
	if err := setDuration(&cfg.LedgerRetention, fc.LedgerRetention, "ledger_retention"); err != nil {
		return err
	}
	if err := setDuration(&cfg.LedgerPruneInterval, fc.LedgerPruneInterval, "ledger_prune_interval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.MonitorInterval, fc.MonitorInterval, "monitor_interval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.MonitorWindow, fc.MonitorWindow, "monitor_window"); err != nil {
		return err
	}
	if fc.MonitorMinSamples != nil {
		cfg.MonitorMinSamples = *fc.MonitorMinSamples
	}
	if fc.MonitorThreshold != nil {
		cfg.MonitorThreshold = *fc.MonitorThreshold
	}
	if err := setDuration(&cfg.MonitorCooldown, fc.MonitorCooldown, "monitor_cooldown"); err != nil {
		return err
	}
	if fc.MonitorStatistic != "" {
		cfg.MonitorStatistic = fc.MonitorStatistic
	}
	if fc.RetrainWebhookURL != "" {
		cfg.RetrainWebhookURL = fc.RetrainWebhookURL
	}
	if fc.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.RateLimitRPS
	}
	if fc.RateLimitBurst != nil {
		cfg.RateLimitBurst = *fc.RateLimitBurst
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	return nil
}

func setDuration(dst *time.Duration, raw, name string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config field %s: %w", name, err)
	}
	*dst = d
	return nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.Port, "SCORING_PORT")
	envString(&cfg.ArtifactPath, "SCORING_ARTIFACT_PATH")
	if err := envBool(&cfg.WatchArtifact, "SCORING_WATCH_ARTIFACT"); err != nil {
		return err
	}
	envString(&cfg.LedgerPath, "SCORING_LEDGER_PATH")
	if err := envDuration(&cfg.LedgerRetention, "SCORING_LEDGER_RETENTION"); err != nil {
		return err
	}
	if err := envDuration(&cfg.LedgerPruneInterval, "SCORING_LEDGER_PRUNE_INTERVAL"); err != nil {
		return err
	}
	if err := envDuration(&cfg.MonitorInterval, "SCORING_MONITOR_INTERVAL"); err != nil {
		return err
	}
	if err := envDuration(&cfg.MonitorWindow, "SCORING_MONITOR_WINDOW"); err != nil {
		return err
	}
	if err := envInt(&cfg.MonitorMinSamples, "SCORING_MONITOR_MIN_SAMPLES"); err != nil {
		return err
	}
	if err := envFloat(&cfg.MonitorThreshold, "SCORING_MONITOR_THRESHOLD"); err != nil {
		return err
	}
	if err := envDuration(&cfg.MonitorCooldown, "SCORING_MONITOR_COOLDOWN"); err != nil {
		return err
	}
	envString(&cfg.MonitorStatistic, "SCORING_MONITOR_STATISTIC")
	envString(&cfg.RetrainWebhookURL, "SCORING_RETRAIN_WEBHOOK_URL")
	if err := envFloat(&cfg.RateLimitRPS, "SCORING_RATE_LIMIT_RPS"); err != nil {
		return err
	}
	if err := envInt(&cfg.RateLimitBurst, "SCORING_RATE_LIMIT_BURST"); err != nil {
		return err
	}
	envString(&cfg.LogLevel, "SCORING_LOG_LEVEL")
	envString(&cfg.LogFormat, "SCORING_LOG_FORMAT")
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
