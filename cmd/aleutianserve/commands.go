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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianServe/pkg/ux"
)

// --- Global Command Variables ---
var (
	serverURL        string // Scoring service base URL override
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "aleutianserve",
		Short: "A CLI to operate the AleutianServe scoring service",
		Long: `Aleutianserve is a tool for operating an online inference service:
inspect and validate scoring artifacts, request predictions, deliver
realized outcomes, and watch the drift monitor.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Scoring service base URL (default SCORING_SERVER_URL or http://localhost:12310)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output personality (full, standard, minimal, machine)")

	// Prediction and outcome commands
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(outcomeCmd)

	// Artifact administration commands
	rootCmd.AddCommand(artifactCmd)
	artifactCmd.AddCommand(artifactInspectCmd)
	artifactCmd.AddCommand(artifactValidateCmd)
	artifactCmd.AddCommand(artifactShowCmd)
	artifactCmd.AddCommand(artifactReloadCmd)

	// Drift monitor commands
	rootCmd.AddCommand(driftCmd)
	driftCmd.AddCommand(driftStatusCmd)

	// Service status commands
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}
