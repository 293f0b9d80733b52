// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package align maps incoming feature records onto the fixed-width numeric
// vectors a scoring artifact expects.
//
// Alignment is schema-driven: the artifact schema alone fixes the vector
// length and column order. The request payload's field ordering, and which
// optional categorical levels happen to appear in it, never influence the
// layout. Encoding a request against the same schema therefore always
// produces vectors with identical shape, which is the property the model
// relies on.
package align

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// Sentinel errors for feature alignment. Both are client-caused: the payload
// violated the schema contract recorded with the artifact.
var (
	// ErrMissingFeature indicates a schema field was absent from the record
	// or carried a value of the wrong type.
	ErrMissingFeature = errors.New("missing required feature")

	// ErrUnknownCategory indicates a categorical value outside the schema's
	// known levels. Unknown categories fail loudly instead of being
	// zero-filled; silent zero-filling hides data contract violations that
	// corrupt downstream scores.
	ErrUnknownCategory = errors.New("unknown category level")
)

// AlignmentError reports which field broke alignment and why.
//
// Description:
//
//	AlignmentError wraps one of the sentinel errors above with the field
//	name and, for category failures, the offending value. errors.Is reaches
//	the wrapped sentinel, so handlers can map it to a status code without
//	string matching.
type AlignmentError struct {
	Field string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *AlignmentError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %q: %v: %q", e.Field, e.Err, e.Value)
	}
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *AlignmentError) Unwrap() error {
	return e.Err
}

// Align encodes one feature record against a schema.
//
// Description:
//
//	Align walks the schema in order and builds the model input vector.
//	Numeric fields pass through as float64. Categorical fields expand to
//	one indicator position per non-reference level, in the schema's level
//	order; the position matching the record's value is set to 1, every
//	other position (including all of them when the value is the reference
//	level) stays 0. Fields present in the record but absent from the schema
//	are ignored, which keeps old schemas forward-compatible with newer
//	clients.
//
// Inputs:
//
//	record - Decoded request payload. Not mutated.
//	schema - The artifact schema fixing width and order. Must be valid.
//
// Outputs:
//   - datatypes.FeatureVector: Exactly schema.VectorWidth() values, schema order.
//   - error: *AlignmentError wrapping ErrMissingFeature or ErrUnknownCategory.
//     On error the vector is nil, never partially filled.
//
// Example:
//
//	vec, err := align.Align(record, artifact.Schema)
//	if errors.Is(err, align.ErrUnknownCategory) {
//	    // reject with a client error
//	}
//
// Thread Safety: Pure function, safe for unbounded concurrency.
func Align(record datatypes.FeatureRecord, schema datatypes.Schema) (datatypes.FeatureVector, error) {
	vector := make(datatypes.FeatureVector, 0, schema.VectorWidth())

	for i := range schema.Fields {
		field := &schema.Fields[i]

		switch field.Kind {
		case datatypes.FieldKindNumeric:
			value, ok := record.NumericValue(field.Name)
			if !ok {
				return nil, &AlignmentError{Field: field.Name, Err: ErrMissingFeature}
			}
			vector = append(vector, value)

		case datatypes.FieldKindCategorical:
			label, ok := record.CategoryValue(field.Name)
			if !ok {
				return nil, &AlignmentError{Field: field.Name, Err: ErrMissingFeature}
			}
			indicators, err := encodeCategory(field, label)
			if err != nil {
				return nil, err
			}
			vector = append(vector, indicators...)

		default:
			// Schema.Validate rejects unknown kinds; a miss here means the
			// schema was not validated at load time.
			return nil, &AlignmentError{Field: field.Name, Err: ErrMissingFeature}
		}
	}

	return vector, nil
}

// encodeCategory produces the indicator block for one categorical field.
func encodeCategory(field *datatypes.FieldSpec, label string) ([]float64, error) {
	known := false
	for _, level := range field.Levels {
		if level == label {
			known = true
			break
		}
	}
	if !known {
		return nil, &AlignmentError{Field: field.Name, Value: label, Err: ErrUnknownCategory}
	}

	encoded := field.EncodedLevels()
	indicators := make([]float64, len(encoded))
	for i, level := range encoded {
		if level == label {
			indicators[i] = 1
		}
	}
	return indicators, nil
}
