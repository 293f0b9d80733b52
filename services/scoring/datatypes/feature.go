// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides type definitions for the AleutianServe scoring
// service.
//
// This file contains the feature schema types shared between the training
// collaborator (which embeds a schema in every scoring artifact) and the
// request-time feature aligner.
package datatypes

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// ENUMS
// =============================================================================

// FieldKind classifies a schema field as numeric or categorical.
//
// Description:
//
//	FieldKind determines how the feature aligner encodes a field into the
//	model input vector. Numeric fields occupy one position and pass through
//	unchanged. Categorical fields expand into one indicator position per
//	non-reference level.
//
// Valid Values:
//   - "numeric": scalar value, one vector position
//   - "categorical": finite label set, one position per non-reference level
//
// Example:
//
//	kind := datatypes.FieldKindCategorical
//	if kind.IsValid() {
//	    log.Println("categorical field")
//	}
type FieldKind string

const (
	FieldKindNumeric     FieldKind = "numeric"
	FieldKindCategorical FieldKind = "categorical"
)

// validFieldKinds contains all valid FieldKind values for validation.
var validFieldKinds = map[FieldKind]bool{
	FieldKindNumeric:     true,
	FieldKindCategorical: true,
}

// IsValid checks if the FieldKind is a valid value.
func (k FieldKind) IsValid() bool {
	return validFieldKinds[k]
}

// =============================================================================
// SCHEMA
// =============================================================================

// FieldSpec describes one expected input field.
//
// Description:
//
//	FieldSpec is a single entry in a scoring artifact's schema. For
//	categorical fields it carries the complete set of category levels the
//	model was trained with, in canonical order, plus the reference level
//	that the training-time encoding dropped.
//
// Fields:
//   - Name: Input field name as it appears in request payloads
//   - Kind: Numeric or categorical
//   - Levels: Known category labels in canonical order (categorical only)
//   - Reference: The omitted baseline level (categorical only, must be in Levels)
//
// JSON Tags:
//
//	All fields are serialized with snake_case names.
//
// Example:
//
//	spec := FieldSpec{
//	    Name:      "contract_type",
//	    Kind:      FieldKindCategorical,
//	    Levels:    []string{"Month-to-month", "One year", "Two year"},
//	    Reference: "Month-to-month",
//	}
//
// Limitations:
//   - Levels must be unique; duplicates fail schema validation
//
// Assumptions:
//   - Level strings are compared case-sensitively, exactly as trained
type FieldSpec struct {
	Name      string    `json:"name"`
	Kind      FieldKind `json:"kind"`
	Levels    []string  `json:"levels,omitempty"`
	Reference string    `json:"reference,omitempty"`
}

// Validate checks that the FieldSpec is internally consistent.
//
// Outputs:
//   - error: Non-nil if validation fails, with descriptive message
func (f *FieldSpec) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("field name is required")
	}
	if !f.Kind.IsValid() {
		return fmt.Errorf("field %q: kind is invalid: %s", f.Name, f.Kind)
	}

	switch f.Kind {
	case FieldKindNumeric:
		if len(f.Levels) > 0 || f.Reference != "" {
			return fmt.Errorf("field %q: numeric fields must not declare levels", f.Name)
		}
	case FieldKindCategorical:
		if len(f.Levels) < 2 {
			return fmt.Errorf("field %q: categorical fields need at least two levels, got %d",
				f.Name, len(f.Levels))
		}
		seen := make(map[string]bool, len(f.Levels))
		for _, level := range f.Levels {
			if level == "" {
				return fmt.Errorf("field %q: empty category level", f.Name)
			}
			if seen[level] {
				return fmt.Errorf("field %q: duplicate category level %q", f.Name, level)
			}
			seen[level] = true
		}
		if f.Reference == "" {
			return fmt.Errorf("field %q: reference level is required", f.Name)
		}
		if !seen[f.Reference] {
			return fmt.Errorf("field %q: reference level %q is not a known level",
				f.Name, f.Reference)
		}
	}
	return nil
}

// EncodedLevels returns the non-reference levels in canonical order.
//
// Description:
//
//	EncodedLevels lists the category levels that receive an indicator
//	position in the feature vector. The reference level is omitted,
//	mirroring the training-time encoding. Order follows Levels, never the
//	request payload.
//
// Outputs:
//   - []string: Levels that map to vector positions; nil for numeric fields
func (f *FieldSpec) EncodedLevels() []string {
	if f.Kind != FieldKindCategorical {
		return nil
	}
	encoded := make([]string, 0, len(f.Levels)-1)
	for _, level := range f.Levels {
		if level == f.Reference {
			continue
		}
		encoded = append(encoded, level)
	}
	return encoded
}

// Schema is the ordered feature contract embedded in a scoring artifact.
//
// Description:
//
//	Schema fixes the width and column order of every feature vector the
//	model accepts. The order of Fields, and within a categorical field the
//	order of its non-reference Levels, fully determines vector layout. The
//	incoming request's field order never influences the encoding.
//
// Fields:
//   - Fields: Expected input fields in canonical order
//
// Example:
//
//	width := schema.VectorWidth()
//	cols := schema.ColumnNames()
//
// Assumptions:
//   - A Schema is immutable after artifact load
type Schema struct {
	Fields []FieldSpec `json:"fields"`
}

// Validate checks the schema for structural errors.
//
// Validations Performed:
//   - At least one field is declared
//   - Every FieldSpec validates
//   - Field names are unique
//
// Outputs:
//   - error: Non-nil if validation fails, with descriptive message
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema declares no fields")
	}
	names := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		if err := s.Fields[i].Validate(); err != nil {
			return err
		}
		name := s.Fields[i].Name
		if names[name] {
			return fmt.Errorf("duplicate field name %q", name)
		}
		names[name] = true
	}
	return nil
}

// VectorWidth returns the fixed length of an aligned feature vector.
func (s *Schema) VectorWidth() int {
	width := 0
	for i := range s.Fields {
		switch s.Fields[i].Kind {
		case FieldKindNumeric:
			width++
		case FieldKindCategorical:
			width += len(s.Fields[i].Levels) - 1
		}
	}
	return width
}

// ColumnNames returns one name per vector position in schema order.
//
// Description:
//
//	Numeric fields contribute their own name. Categorical fields contribute
//	"name=level" for each non-reference level. The result has exactly
//	VectorWidth() entries and is stable across processes for a given schema.
//
// Outputs:
//   - []string: Column names in vector order
func (s *Schema) ColumnNames() []string {
	names := make([]string, 0, s.VectorWidth())
	for i := range s.Fields {
		field := &s.Fields[i]
		switch field.Kind {
		case FieldKindNumeric:
			names = append(names, field.Name)
		case FieldKindCategorical:
			for _, level := range field.EncodedLevels() {
				names = append(names, fmt.Sprintf("%s=%s", field.Name, level))
			}
		}
	}
	return names
}

// =============================================================================
// REQUEST-TIME RECORDS
// =============================================================================

// FeatureRecord maps input field names to scalar values.
//
// Description:
//
//	FeatureRecord is the decoded request payload handed to the feature
//	aligner. Values are either numeric (any JSON number) or category label
//	strings. Fields not named by the schema are ignored by alignment, which
//	keeps old clients forward-compatible with schema growth.
//
// Assumptions:
//   - Produced once per request and never mutated afterwards
type FeatureRecord map[string]any

// NumericValue extracts a numeric field from the record.
//
// Description:
//
//	NumericValue tolerates the value representations JSON decoding can
//	produce for a number: float64, json.Number, and native integer widths.
//
// Outputs:
//   - float64: The numeric value
//   - bool: False if the field is absent or not numeric
func (r FeatureRecord) NumericValue(name string) (float64, bool) {
	raw, ok := r[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// CategoryValue extracts a category label from the record.
//
// Outputs:
//   - string: The category label
//   - bool: False if the field is absent or not a string
func (r FeatureRecord) CategoryValue(name string) (string, bool) {
	raw, ok := r[name]
	if !ok {
		return "", false
	}
	label, ok := raw.(string)
	return label, ok
}

// FeatureVector is an aligned model input.
//
// Description:
//
//	FeatureVector is the ordered numeric encoding of one FeatureRecord.
//	Length and position meaning are fixed by the artifact schema at load
//	time; see Schema.ColumnNames for the layout.
type FeatureVector []float64
