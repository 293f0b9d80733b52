// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// ledger keys, log lines, or outbound requests. Using these validators keeps
// untrusted identifiers out of storage key space and prevents oversized or
// structurally invalid payloads from reaching the aligner.
package validation

import (
	"fmt"
	"regexp"
)

// requestIDPattern matches canonical UUID request identifiers.
// Lowercase or uppercase hex, RFC 4122 grouping. Request ids become ledger
// key suffixes, so anything outside this shape is rejected outright.
var requestIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// featureNamePattern matches acceptable feature field names.
// Allows: letters, digits, underscores, dots; must start with a letter.
// Max length: 64 characters.
var featureNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]{0,63}$`)

// MaxFeatureStringBytes is the maximum byte length of a category label value.
const MaxFeatureStringBytes = 1024

// ValidateRequestID validates a request identifier before it is used as a
// ledger join key.
//
// Valid ids are canonical UUIDs:
//   - 36 characters, 8-4-4-4-12 hex groups
//   - Case-insensitive hex digits
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateRequestID(id); err != nil {
//	    return fmt.Errorf("invalid request_id: %w", err)
//	}
//	// Safe to embed in a storage key
func ValidateRequestID(id string) error {
	if id == "" {
		return fmt.Errorf("request id cannot be empty")
	}
	if !requestIDPattern.MatchString(id) {
		return fmt.Errorf("invalid request id format: %q (must be a canonical UUID)", id)
	}
	return nil
}

// ValidateFeatureName validates a single feature field name.
func ValidateFeatureName(name string) error {
	if name == "" {
		return fmt.Errorf("feature name cannot be empty")
	}
	if !featureNamePattern.MatchString(name) {
		return fmt.Errorf("invalid feature name: %q (must be 1-64 chars, letters/digits/underscore/dot, starting with a letter)", name)
	}
	return nil
}

// ValidateFeatureValues validates a predict payload's feature map.
// Returns an error naming the first offending field if any value is not a
// scalar number or a bounded string, or if any field name is malformed.
//
// Use this outside gin binding (the CLI, replay tools); the HTTP path
// enforces the same contract through the feature_map binding rule.
func ValidateFeatureValues(features map[string]any) error {
	if len(features) == 0 {
		return fmt.Errorf("features cannot be empty")
	}
	for name, raw := range features {
		if err := ValidateFeatureName(name); err != nil {
			return err
		}
		switch v := raw.(type) {
		case float64, float32, int, int32, int64:
			continue
		case string:
			if v == "" {
				return fmt.Errorf("feature %q: category value cannot be empty", name)
			}
			if len(v) > MaxFeatureStringBytes {
				return fmt.Errorf("feature %q: category value exceeds %d bytes", name, MaxFeatureStringBytes)
			}
		default:
			return fmt.Errorf("feature %q: value must be a number or category string, got %T", name, raw)
		}
	}
	return nil
}
