// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// joinedPair builds one joined pair with the given prediction and outcome.
func joinedPair(predicted int, probability float64, realized int) datatypes.JoinedPair {
	id := uuid.NewString()
	ts := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	return datatypes.JoinedPair{
		Prediction: datatypes.PredictionRecord{
			RequestID:    id,
			Timestamp:    ts,
			Label:        predicted,
			Probability:  probability,
			ModelVersion: "churn-lr-2025-08-01",
		},
		Outcome: &datatypes.OutcomeUpdate{
			RequestID:     id,
			RealizedLabel: realized,
			ObservedAt:    ts.Add(time.Hour),
		},
	}
}

// TestRateGapStatistic_Compute verifies the rate gap on hand-computed fixtures.
func TestRateGapStatistic_Compute(t *testing.T) {
	stat := NewRateGapStatistic()
	assert.Equal(t, "rate_gap", stat.Name())

	t.Run("gap between predicted and realized rates", func(t *testing.T) {
		// Predicted positive rate 1/4, realized 3/4.
		pairs := []datatypes.JoinedPair{
			joinedPair(1, 0.9, 1),
			joinedPair(0, 0.2, 1),
			joinedPair(0, 0.3, 1),
			joinedPair(0, 0.1, 0),
		}
		value, err := stat.Compute(pairs)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, value, 1e-12)
	})

	t.Run("agreement yields zero", func(t *testing.T) {
		pairs := []datatypes.JoinedPair{
			joinedPair(1, 0.8, 0),
			joinedPair(0, 0.2, 1),
		}
		// Rates agree (both 0.5) even though individual pairs disagree.
		value, err := stat.Compute(pairs)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, value, 1e-12)
	})

	t.Run("gap is symmetric", func(t *testing.T) {
		over := []datatypes.JoinedPair{joinedPair(1, 0.9, 0), joinedPair(1, 0.9, 0)}
		under := []datatypes.JoinedPair{joinedPair(0, 0.1, 1), joinedPair(0, 0.1, 1)}

		overValue, err := stat.Compute(over)
		require.NoError(t, err)
		underValue, err := stat.Compute(under)
		require.NoError(t, err)
		assert.InDelta(t, overValue, underValue, 1e-12)
		assert.InDelta(t, 1.0, overValue, 1e-12)
	})
}

// TestBrierScoreStatistic_Compute verifies the Brier score on hand-computed
// fixtures.
func TestBrierScoreStatistic_Compute(t *testing.T) {
	stat := NewBrierScoreStatistic()
	assert.Equal(t, "brier_score", stat.Name())

	t.Run("perfect predictions score zero", func(t *testing.T) {
		pairs := []datatypes.JoinedPair{
			joinedPair(1, 1.0, 1),
			joinedPair(0, 0.0, 0),
		}
		value, err := stat.Compute(pairs)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, value, 1e-12)
	})

	t.Run("coin flip scores a quarter", func(t *testing.T) {
		pairs := []datatypes.JoinedPair{
			joinedPair(1, 0.5, 1),
			joinedPair(0, 0.5, 0),
		}
		value, err := stat.Compute(pairs)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, value, 1e-12)
	})

	t.Run("mixed errors", func(t *testing.T) {
		// (0.2^2 + 0.3^2 + 0.9^2) / 3
		pairs := []datatypes.JoinedPair{
			joinedPair(1, 0.8, 1),
			joinedPair(0, 0.3, 0),
			joinedPair(1, 0.9, 0),
		}
		value, err := stat.Compute(pairs)
		require.NoError(t, err)
		assert.InDelta(t, 0.94/3.0, value, 1e-12)
	})
}

// TestStatistic_ComputeErrors verifies defensive checks on bad inputs.
func TestStatistic_ComputeErrors(t *testing.T) {
	statistics := []Statistic{NewRateGapStatistic(), NewBrierScoreStatistic()}

	for _, stat := range statistics {
		t.Run(stat.Name()+" rejects empty input", func(t *testing.T) {
			_, err := stat.Compute(nil)
			assert.Error(t, err)
		})

		t.Run(stat.Name()+" rejects unjoined pair", func(t *testing.T) {
			pair := joinedPair(1, 0.9, 1)
			pair.Outcome = nil
			_, err := stat.Compute([]datatypes.JoinedPair{pair})
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "no outcome")
		})
	}
}

// TestParseStatistic verifies statistic name resolution.
func TestParseStatistic(t *testing.T) {
	t.Run("empty selects the default", func(t *testing.T) {
		stat, err := ParseStatistic("")
		require.NoError(t, err)
		assert.Equal(t, "rate_gap", stat.Name())
	})

	t.Run("rate_gap", func(t *testing.T) {
		stat, err := ParseStatistic("rate_gap")
		require.NoError(t, err)
		assert.Equal(t, "rate_gap", stat.Name())
	})

	t.Run("brier_score", func(t *testing.T) {
		stat, err := ParseStatistic("brier_score")
		require.NoError(t, err)
		assert.Equal(t, "brier_score", stat.Name())
	})

	t.Run("unknown name fails", func(t *testing.T) {
		_, err := ParseStatistic("kolmogorov_smirnov")
		assert.ErrorIs(t, err, ErrUnknownStatistic)
		assert.Contains(t, err.Error(), "kolmogorov_smirnov")
	})
}
