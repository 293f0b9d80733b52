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
	"encoding/json"
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
	predictData string // Inline JSON feature map
	predictFile string // Path to a JSON feature map file
	predictID   string // Caller-supplied request id (UUIDv4)
	predictJSON bool   // Output as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// predictCmd requests one prediction from the scoring service.
//
// # Description
//
// Sends a feature record to POST /v1/predict and prints the label,
// probability, and the artifact version that scored it. The request id in
// the response is the join key for a later 'outcome' call.
//
// # Examples
//
//	aleutianserve predict --data '{"tenure": 12, "contract_type": "Two year"}'
//	aleutianserve predict --file record.json
//	aleutianserve predict --file record.json --id 6e8bc430-9c3a-4f92-81c7-9d6a9e2b3c4d
//	aleutianserve predict --data '{...}' --json   # JSON output for scripting
//
// # Limitations
//
//   - Feature values must be scalars; nested objects are rejected
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Request a prediction from the scoring service",
	Long: `Sends one feature record to the scoring service and prints the
predicted label, the model probability, and the artifact version that
produced the score. Keep the returned request_id: it is the join key
for delivering the realized outcome later.`,
	Run: runPredictCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	predictCmd.Flags().StringVarP(&predictData, "data", "d", "",
		"Feature map as inline JSON")
	predictCmd.Flags().StringVarP(&predictFile, "file", "f", "",
		"Path to a JSON file holding the feature map")
	predictCmd.Flags().StringVar(&predictID, "id", "",
		"Request id (UUIDv4) to use as the outcome join key")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runPredictCommand(cmd *cobra.Command, args []string) {
	features, err := parseFeatures(predictData, predictFile)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	req := datatypes.PredictRequest{RequestID: predictID, Features: features}
	if err := req.Validate(); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	baseURL := resolveServerURL()
	prediction, err := sendPredictRequest(baseURL, req)
	if err != nil {
		ux.Error(err.Error())
		if errors.Is(err, errUnreachable) {
			ux.Hint("is the scoring service running at " + baseURL + "?")
		}
		os.Exit(1)
	}

	if predictJSON {
		outputJSON(prediction)
		return
	}

	ux.Title("Prediction")
	ux.Field("request_id", prediction.RequestID)
	ux.Field("label", strconv.Itoa(prediction.Label))
	ux.Field("probability", formatProbability(prediction.Probability))
	ux.Field("model_version", prediction.ModelVersion)
}

// parseFeatures reads the feature map from exactly one of the inline --data
// JSON or the --file path.
func parseFeatures(data, file string) (map[string]any, error) {
	if data != "" && file != "" {
		return nil, fmt.Errorf("use --data or --file, not both")
	}

	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case file != "":
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read feature file %s: %w", file, err)
		}
		raw = content
	default:
		return nil, fmt.Errorf("one of --data or --file is required")
	}

	var features map[string]any
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, fmt.Errorf("failed to parse features: %w", err)
	}
	return features, nil
}
