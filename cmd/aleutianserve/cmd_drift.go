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
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianServe/pkg/ux"
	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	driftJSONOutput bool // Output as JSON
	driftHistory    bool // Include recent verdict history
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// driftCmd groups drift monitor operations.
var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Watch the drift monitor of a running scoring service",
	Long: `Reports on the drift monitor, the background loop that compares
realized outcomes against the predictions the model made and raises a
retraining signal when they diverge past the configured threshold.`,
}

// driftStatusCmd reports the monitor state and its latest verdict.
//
// # Description
//
// Shows where the monitor's state machine stands (normal, drifting, or
// signaled), the statistic it computes, and the most recent verdict. The
// exit code follows the state so scripts can alert on it: 0 for normal,
// 2 once drift has been signaled.
//
// # Examples
//
//	aleutianserve drift status
//	aleutianserve drift status --history
//	aleutianserve drift status --json | jq .last_verdict.value
var driftStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the drift monitor state and latest verdict",
	Run:   runDriftStatusCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	driftStatusCmd.Flags().BoolVar(&driftJSONOutput, "json", false,
		"Output as JSON for scripting")
	driftStatusCmd.Flags().BoolVar(&driftHistory, "history", false,
		"Include the recent verdict history")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runDriftStatusCommand(cmd *cobra.Command, args []string) {
	baseURL := resolveServerURL()
	drift, err := fetchDriftStatus(baseURL)
	if err != nil {
		ux.Error(err.Error())
		if errors.Is(err, errUnreachable) {
			ux.Hint("is the scoring service running at " + baseURL + "?")
		}
		os.Exit(1)
	}

	if driftJSONOutput {
		outputJSON(drift)
	} else {
		printDriftStatus(drift)
	}

	// Signaled drift is the condition operators page on.
	if drift.State == "signaled" {
		os.Exit(2)
	}
}

func printDriftStatus(drift driftStatusResponse) {
	ux.Title("Drift Monitor")
	ux.Field("state", drift.State)
	ux.Field("statistic", drift.Statistic)
	ux.Field("threshold", formatProbability(drift.Threshold))
	ux.Field("window", drift.Window)
	ux.Field("min_samples", strconv.Itoa(drift.MinSamples))
	ux.Field("cooldown", drift.Cooldown)
	if drift.LastSignalAt != nil {
		ux.Field("last_signal_at", formatTime(*drift.LastSignalAt))
	}

	if drift.LastVerdict == nil {
		ux.Muted("no evaluation has completed yet")
		return
	}

	ux.Title("Last Verdict")
	printVerdict(*drift.LastVerdict)

	if driftHistory && len(drift.History) > 0 {
		ux.Title("History")
		for _, verdict := range drift.History {
			ux.Info(verdictLine(verdict))
		}
	}
}

func printVerdict(verdict datatypes.DriftVerdict) {
	ux.Field("status", string(verdict.Status))
	ux.Field("value", formatProbability(verdict.Value))
	ux.Field("sample_size", strconv.Itoa(verdict.SampleSize))
	ux.Field("pending", strconv.Itoa(verdict.Pending))
	ux.Field("window_start", formatTime(verdict.WindowStart))
	ux.Field("window_end", formatTime(verdict.WindowEnd))
	ux.Field("evaluated_at", formatTime(verdict.EvaluatedAt))
}

// verdictLine renders one history entry on a single line.
func verdictLine(verdict datatypes.DriftVerdict) string {
	return fmt.Sprintf("%s  %s=%s  samples=%d  %s",
		formatTime(verdict.EvaluatedAt), verdict.Statistic,
		formatProbability(verdict.Value), verdict.SampleSize, verdict.Status)
}
