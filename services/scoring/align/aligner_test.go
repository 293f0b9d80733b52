// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package align

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

func churnSchema() datatypes.Schema {
	return datatypes.Schema{Fields: []datatypes.FieldSpec{
		{Name: "tenure", Kind: datatypes.FieldKindNumeric},
		{Name: "usage", Kind: datatypes.FieldKindNumeric},
		{Name: "age", Kind: datatypes.FieldKindNumeric},
		{Name: "monthly_charges", Kind: datatypes.FieldKindNumeric},
		{
			Name:      "contract_type",
			Kind:      datatypes.FieldKindCategorical,
			Levels:    []string{"Month-to-month", "One year", "Two year"},
			Reference: "Month-to-month",
		},
	}}
}

func TestAlign_ReferenceLevelZerosAllIndicators(t *testing.T) {
	record := datatypes.FeatureRecord{
		"tenure":          12.0,
		"usage":           50.0,
		"age":             30.0,
		"monthly_charges": 70.0,
		"contract_type":   "Month-to-month",
	}

	vec, err := Align(record, churnSchema())
	require.NoError(t, err)
	assert.Equal(t, datatypes.FeatureVector{12, 50, 30, 70, 0, 0}, vec)
}

func TestAlign_NonReferenceLevelSetsOneIndicator(t *testing.T) {
	record := datatypes.FeatureRecord{
		"tenure":          12.0,
		"usage":           50.0,
		"age":             30.0,
		"monthly_charges": 70.0,
		"contract_type":   "Two year",
	}

	vec, err := Align(record, churnSchema())
	require.NoError(t, err)
	// Columns: tenure, usage, age, monthly_charges, c=One year, c=Two year.
	assert.Equal(t, datatypes.FeatureVector{12, 50, 30, 70, 0, 1}, vec)
}

func TestAlign_OutputIgnoresInputFieldOrder(t *testing.T) {
	schema := churnSchema()

	// Same payload decoded from two differently ordered JSON documents.
	first := `{"contract_type":"One year","monthly_charges":70,"age":30,"usage":50,"tenure":12}`
	second := `{"tenure":12,"usage":50,"age":30,"monthly_charges":70,"contract_type":"One year"}`

	var recA, recB datatypes.FeatureRecord
	require.NoError(t, json.Unmarshal([]byte(first), &recA))
	require.NoError(t, json.Unmarshal([]byte(second), &recB))

	vecA, err := Align(recA, schema)
	require.NoError(t, err)
	vecB, err := Align(recB, schema)
	require.NoError(t, err)

	assert.Equal(t, vecA, vecB)
	assert.Len(t, vecA, schema.VectorWidth())
	assert.Equal(t, datatypes.FeatureVector{12, 50, 30, 70, 1, 0}, vecA)
}

func TestAlign_ExtraFieldsIgnored(t *testing.T) {
	record := datatypes.FeatureRecord{
		"tenure":          1.0,
		"usage":           2.0,
		"age":             3.0,
		"monthly_charges": 4.0,
		"contract_type":   "One year",
		"loyalty_tier":    "gold", // not in schema
		"signup_channel":  "web",  // not in schema
	}

	vec, err := Align(record, churnSchema())
	require.NoError(t, err)
	assert.Len(t, vec, 6)
}

func TestAlign_MissingNumericFeature(t *testing.T) {
	record := datatypes.FeatureRecord{
		"tenure":        12.0,
		"usage":         50.0,
		"age":           30.0,
		"contract_type": "One year",
		// monthly_charges absent
	}

	vec, err := Align(record, churnSchema())
	assert.Nil(t, vec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFeature))

	var alignErr *AlignmentError
	require.True(t, errors.As(err, &alignErr))
	assert.Equal(t, "monthly_charges", alignErr.Field)
}

func TestAlign_MissingCategoricalFeature(t *testing.T) {
	record := datatypes.FeatureRecord{
		"tenure":          12.0,
		"usage":           50.0,
		"age":             30.0,
		"monthly_charges": 70.0,
	}

	_, err := Align(record, churnSchema())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFeature))
}

func TestAlign_WrongTypeIsMissingFeature(t *testing.T) {
	record := datatypes.FeatureRecord{
		"tenure":          "twelve", // string where a number is required
		"usage":           50.0,
		"age":             30.0,
		"monthly_charges": 70.0,
		"contract_type":   "One year",
	}

	_, err := Align(record, churnSchema())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFeature))
}

func TestAlign_UnknownCategoryFailsLoudly(t *testing.T) {
	record := datatypes.FeatureRecord{
		"tenure":          12.0,
		"usage":           50.0,
		"age":             30.0,
		"monthly_charges": 70.0,
		"contract_type":   "Three year", // not a known level
	}

	vec, err := Align(record, churnSchema())
	assert.Nil(t, vec, "failed alignment must never return a partial vector")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCategory))

	var alignErr *AlignmentError
	require.True(t, errors.As(err, &alignErr))
	assert.Equal(t, "contract_type", alignErr.Field)
	assert.Equal(t, "Three year", alignErr.Value)
}

func TestAlign_IntegerNumericsAccepted(t *testing.T) {
	// Decoders and CLI callers may hand over native ints.
	record := datatypes.FeatureRecord{
		"tenure":          12,
		"usage":           int64(50),
		"age":             json.Number("30"),
		"monthly_charges": 70.0,
		"contract_type":   "Two year",
	}

	vec, err := Align(record, churnSchema())
	require.NoError(t, err)
	assert.Equal(t, datatypes.FeatureVector{12, 50, 30, 70, 0, 1}, vec)
}

func TestAlign_MiddleReferenceLevel(t *testing.T) {
	schema := datatypes.Schema{Fields: []datatypes.FieldSpec{
		{
			Name:      "plan",
			Kind:      datatypes.FieldKindCategorical,
			Levels:    []string{"basic", "standard", "premium"},
			Reference: "standard",
		},
	}}

	vec, err := Align(datatypes.FeatureRecord{"plan": "basic"}, schema)
	require.NoError(t, err)
	assert.Equal(t, datatypes.FeatureVector{1, 0}, vec)

	vec, err = Align(datatypes.FeatureRecord{"plan": "premium"}, schema)
	require.NoError(t, err)
	assert.Equal(t, datatypes.FeatureVector{0, 1}, vec)

	vec, err = Align(datatypes.FeatureRecord{"plan": "standard"}, schema)
	require.NoError(t, err)
	assert.Equal(t, datatypes.FeatureVector{0, 0}, vec)
}
