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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Port != "12310" {
		t.Errorf("Port = %q, want %q", cfg.Port, "12310")
	}
	if !cfg.WatchArtifact {
		t.Error("WatchArtifact should default to true")
	}
	if cfg.LedgerRetention != 720*time.Hour {
		t.Errorf("LedgerRetention = %v, want %v", cfg.LedgerRetention, 720*time.Hour)
	}
	if cfg.MonitorStatistic != "rate_gap" {
		t.Errorf("MonitorStatistic = %q, want %q", cfg.MonitorStatistic, "rate_gap")
	}
	if cfg.RateLimitRPS != 0 {
		t.Errorf("RateLimitRPS = %v, want rate limiting off by default", cfg.RateLimitRPS)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SCORING_PORT", "9999")
	t.Setenv("SCORING_ARTIFACT_PATH", "/srv/models/current.json")
	t.Setenv("SCORING_WATCH_ARTIFACT", "false")
	t.Setenv("SCORING_LEDGER_PATH", "memory")
	t.Setenv("SCORING_MONITOR_WINDOW", "48h")
	t.Setenv("SCORING_MONITOR_MIN_SAMPLES", "10")
	t.Setenv("SCORING_MONITOR_THRESHOLD", "0.3")
	t.Setenv("SCORING_MONITOR_STATISTIC", "brier_score")
	t.Setenv("SCORING_RATE_LIMIT_RPS", "25.5")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9999")
	}
	if cfg.ArtifactPath != "/srv/models/current.json" {
		t.Errorf("ArtifactPath = %q", cfg.ArtifactPath)
	}
	if cfg.WatchArtifact {
		t.Error("WatchArtifact should be overridden to false")
	}
	if cfg.LedgerPath != "memory" {
		t.Errorf("LedgerPath = %q, want %q", cfg.LedgerPath, "memory")
	}
	if cfg.MonitorWindow != 48*time.Hour {
		t.Errorf("MonitorWindow = %v, want %v", cfg.MonitorWindow, 48*time.Hour)
	}
	if cfg.MonitorMinSamples != 10 {
		t.Errorf("MonitorMinSamples = %d, want 10", cfg.MonitorMinSamples)
	}
	if cfg.MonitorThreshold != 0.3 {
		t.Errorf("MonitorThreshold = %v, want 0.3", cfg.MonitorThreshold)
	}
	if cfg.MonitorStatistic != "brier_score" {
		t.Errorf("MonitorStatistic = %q, want %q", cfg.MonitorStatistic, "brier_score")
	}
	if cfg.RateLimitRPS != 25.5 {
		t.Errorf("RateLimitRPS = %v, want 25.5", cfg.RateLimitRPS)
	}

	// Untouched fields keep their defaults
	if cfg.MonitorInterval != time.Minute {
		t.Errorf("MonitorInterval = %v, want the default %v", cfg.MonitorInterval, time.Minute)
	}
}

func TestLoadConfig_InvalidEnvValue(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad bool", "SCORING_WATCH_ARTIFACT", "sometimes"},
		{"bad duration", "SCORING_MONITOR_INTERVAL", "five minutes"},
		{"bad int", "SCORING_MONITOR_MIN_SAMPLES", "many"},
		{"bad float", "SCORING_MONITOR_THRESHOLD", "high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := loadConfig(); err == nil {
				t.Errorf("loadConfig() with %s=%q should fail", tt.key, tt.value)
			}
		})
	}
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	content := `
port: "8800"
watch_artifact: false
ledger_retention: 168h
monitor_threshold: 0.25
monitor_statistic: brier_score
`
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SCORING_CONFIG", path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Port != "8800" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8800")
	}
	if cfg.WatchArtifact {
		t.Error("watch_artifact: false in the file should apply")
	}
	if cfg.LedgerRetention != 168*time.Hour {
		t.Errorf("LedgerRetention = %v, want %v", cfg.LedgerRetention, 168*time.Hour)
	}
	if cfg.MonitorThreshold != 0.25 {
		t.Errorf("MonitorThreshold = %v, want 0.25", cfg.MonitorThreshold)
	}
	if cfg.MonitorStatistic != "brier_score" {
		t.Errorf("MonitorStatistic = %q", cfg.MonitorStatistic)
	}
	// Keys absent from the file keep their defaults
	if cfg.ArtifactPath != "./artifacts/model.json" {
		t.Errorf("ArtifactPath = %q, want the default", cfg.ArtifactPath)
	}
}

func TestLoadConfig_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	if err := os.WriteFile(path, []byte("port: \"8800\"\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SCORING_CONFIG", path)
	t.Setenv("SCORING_PORT", "9100")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("Port = %q, want the env value %q", cfg.Port, "9100")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("SCORING_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig() should fail when SCORING_CONFIG names a missing file")
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	if err := os.WriteFile(path, []byte("port: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SCORING_CONFIG", path)
	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig() should fail on malformed YAML")
	}
}

func TestLoadConfig_BadDurationInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	if err := os.WriteFile(path, []byte("monitor_window: yesterday\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SCORING_CONFIG", path)
	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig() should fail on an unparseable duration")
	}
}
