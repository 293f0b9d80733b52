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
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianServe/pkg/ux"
)

// cliVersion is stamped by the release build via
// -ldflags "-X main.cliVersion=...".
var cliVersion = "dev"

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var healthJSONOutput bool // Output as JSON

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// healthCmd checks liveness and readiness of a running scoring service.
//
// # Description
//
// Combines GET /health and GET /ready into one operator view. Exits 1
// when the service is unreachable or not ready, so the command can gate
// a deployment or feed a periodic check.
//
// # Examples
//
//	aleutianserve health
//	aleutianserve health --server http://scoring.internal:12310
//	aleutianserve health --json
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check liveness and readiness of the scoring service",
	Run:   runHealthCommand,
}

// versionCmd prints the CLI version and, when reachable, the service version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version and the scoring service version",
	Run:   runVersionCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runHealthCommand(cmd *cobra.Command, args []string) {
	baseURL := resolveServerURL()

	health, err := fetchHealth(baseURL)
	if err != nil {
		ux.Error(err.Error())
		if errors.Is(err, errUnreachable) {
			ux.Hint("is the scoring service running at " + baseURL + "?")
		}
		os.Exit(1)
	}

	ready, err := fetchReady(baseURL)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if healthJSONOutput {
		outputJSON(struct {
			Status          string `json:"status"`
			Version         string `json:"version"`
			Ready           bool   `json:"ready"`
			ArtifactVersion string `json:"artifact_version,omitempty"`
			MonitorRunning  bool   `json:"monitor_running"`
		}{health.Status, health.Version, ready.Ready, ready.ArtifactVersion, ready.MonitorRunning})
		if !ready.Ready {
			os.Exit(1)
		}
		return
	}

	ux.Title("Scoring Service")
	ux.Field("server", baseURL)
	ux.Field("status", health.Status)
	ux.Field("version", health.Version)

	if ready.Ready {
		ux.CheckStatus("ready", ux.IconSuccess, "artifact "+ready.ArtifactVersion)
	} else {
		ux.CheckStatus("ready", ux.IconError, "no artifact loaded")
	}
	if ready.MonitorRunning {
		ux.CheckStatus("drift monitor", ux.IconSuccess, "running")
	} else {
		ux.CheckStatus("drift monitor", ux.IconWarning, "not running")
	}

	if !ready.Ready {
		os.Exit(1)
	}
}

func runVersionCommand(cmd *cobra.Command, args []string) {
	ux.Field("aleutianserve", cliVersion)

	// Best effort: a missing server is normal for local artifact work.
	baseURL := resolveServerURL()
	health, err := fetchHealth(baseURL)
	if err != nil {
		ux.Muted("scoring service not reachable at " + baseURL)
		return
	}
	ux.Field("scoring service", health.Version)
}
