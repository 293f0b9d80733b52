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
	"fmt"
	"os"
	"strconv"
	"time"
)

// outputJSON prints v as indented JSON for scripting.
func outputJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

// formatProbability renders probabilities and thresholds with stable precision.
func formatProbability(p float64) string {
	return strconv.FormatFloat(p, 'f', 4, 64)
}

// formatTime renders timestamps in UTC RFC3339.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
