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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianServe/pkg/ux"
	"github.com/AleutianAI/AleutianServe/pkg/validation"
	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

var (
	outcomeID         string // Request id of the earlier prediction
	outcomeLabel      int    // Realized label, 0 or 1
	outcomeObservedAt string // Optional RFC3339 observation time
)

// outcomeCmd delivers a realized outcome for an earlier prediction. The
// ledger upserts by request id, so redelivering the same outcome is safe.
var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Deliver the realized outcome for an earlier prediction",
	Long: `Reports what actually happened for a request the service scored
earlier. The request id must match the one returned by 'predict'; the
drift monitor joins outcomes against predictions by that id.`,
	Run: runOutcomeCommand,
}

func init() {
	outcomeCmd.Flags().StringVar(&outcomeID, "id", "",
		"Request id returned by the predict call (required)")
	outcomeCmd.Flags().IntVar(&outcomeLabel, "label", -1,
		"Realized label, 0 or 1 (required)")
	outcomeCmd.Flags().StringVar(&outcomeObservedAt, "observed-at", "",
		"When the outcome was observed, RFC3339 (default: now)")
	outcomeCmd.MarkFlagRequired("id")
	outcomeCmd.MarkFlagRequired("label")
}

func runOutcomeCommand(cmd *cobra.Command, args []string) {
	if err := validation.ValidateRequestID(outcomeID); err != nil {
		ux.Error(fmt.Sprintf("invalid --id: %v", err))
		os.Exit(1)
	}
	if outcomeLabel != 0 && outcomeLabel != 1 {
		ux.Error(fmt.Sprintf("realized label must be 0 or 1, got %d", outcomeLabel))
		os.Exit(1)
	}

	req := datatypes.OutcomeRequest{
		RequestID:     outcomeID,
		RealizedLabel: &outcomeLabel,
	}
	if outcomeObservedAt != "" {
		observed, err := time.Parse(time.RFC3339, outcomeObservedAt)
		if err != nil {
			ux.Error(fmt.Sprintf("invalid --observed-at %q: %v", outcomeObservedAt, err))
			os.Exit(1)
		}
		req.ObservedAt = &observed
	}

	baseURL := resolveServerURL()
	ack, err := sendOutcomeRequest(baseURL, req)
	if err != nil {
		ux.Error(err.Error())
		if errors.Is(err, errUnreachable) {
			ux.Hint("is the scoring service running at " + baseURL + "?")
		}
		os.Exit(1)
	}

	ux.Success("Outcome recorded for " + ack.RequestID)
}
