// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor evaluates prediction/outcome drift on a fixed interval and
// raises retraining signals.
//
// Each cycle queries the outcome ledger for the trailing window, computes a
// pluggable summary statistic over the joined pairs, and compares it against
// a configured threshold. Signals to the external retraining trigger are
// rate-limited by a cooldown so one drift episode produces one signal, not a
// storm.
package monitor

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// Statistic names accepted by ParseStatistic.
const (
	StatisticRateGap    = "rate_gap"
	StatisticBrierScore = "brier_score"
)

// ErrUnknownStatistic indicates a statistic name ParseStatistic does not know.
var ErrUnknownStatistic = errors.New("unknown drift statistic")

// Statistic computes one drift measure over joined prediction/outcome pairs.
//
// Description:
//
//	Implementations receive only joined pairs; the monitor filters pending
//	predictions out before calling Compute. Compute must be deterministic
//	and side-effect-free.
type Statistic interface {
	// Name returns the configuration name of the statistic.
	Name() string

	// Compute returns the statistic value for the joined pairs. Returns an
	// error on an empty slice or a pair with no outcome, both of which
	// indicate a caller bug.
	Compute(pairs []datatypes.JoinedPair) (float64, error)
}

// RateGapStatistic measures |realized positive rate - predicted positive rate|.
//
// Description:
//
//	The cheapest useful drift measure for a binary classifier: if the model
//	predicts churn for 20% of requests but 35% actually churn, the gap is
//	0.15 and the model's calibration has moved. Values are in [0, 1].
type RateGapStatistic struct{}

// NewRateGapStatistic creates the default drift statistic.
func NewRateGapStatistic() *RateGapStatistic {
	return &RateGapStatistic{}
}

// Name returns "rate_gap".
func (s *RateGapStatistic) Name() string {
	return StatisticRateGap
}

// Compute returns the absolute gap between realized and predicted positive rates.
func (s *RateGapStatistic) Compute(pairs []datatypes.JoinedPair) (float64, error) {
	if len(pairs) == 0 {
		return 0, errors.New("rate gap requires at least one joined pair")
	}

	var predicted, realized float64
	for i := range pairs {
		if pairs[i].Outcome == nil {
			return 0, fmt.Errorf("pair %s has no outcome", pairs[i].Prediction.RequestID)
		}
		predicted += float64(pairs[i].Prediction.Label)
		realized += float64(pairs[i].Outcome.RealizedLabel)
	}

	n := float64(len(pairs))
	return math.Abs(realized/n - predicted/n), nil
}

// BrierScoreStatistic measures the mean squared error of predicted
// probabilities against realized labels.
//
// Description:
//
//	Stricter than the rate gap: it penalizes confident wrong predictions
//	even when aggregate rates agree. A perfectly calibrated oracle scores
//	0; predicting 0.5 everywhere scores 0.25. Values are in [0, 1].
type BrierScoreStatistic struct{}

// NewBrierScoreStatistic creates the Brier score statistic.
func NewBrierScoreStatistic() *BrierScoreStatistic {
	return &BrierScoreStatistic{}
}

// Name returns "brier_score".
func (s *BrierScoreStatistic) Name() string {
	return StatisticBrierScore
}

// Compute returns the mean squared probability error over the joined pairs.
func (s *BrierScoreStatistic) Compute(pairs []datatypes.JoinedPair) (float64, error) {
	if len(pairs) == 0 {
		return 0, errors.New("brier score requires at least one joined pair")
	}

	var sum float64
	for i := range pairs {
		if pairs[i].Outcome == nil {
			return 0, fmt.Errorf("pair %s has no outcome", pairs[i].Prediction.RequestID)
		}
		diff := pairs[i].Prediction.Probability - float64(pairs[i].Outcome.RealizedLabel)
		sum += diff * diff
	}

	return sum / float64(len(pairs)), nil
}

// ParseStatistic resolves a configured statistic name.
//
// Inputs:
//
//	name - One of "rate_gap" or "brier_score". Empty selects the default.
//
// Outputs:
//   - Statistic: The resolved implementation.
//   - error: ErrUnknownStatistic for anything else.
func ParseStatistic(name string) (Statistic, error) {
	switch name {
	case "", StatisticRateGap:
		return NewRateGapStatistic(), nil
	case StatisticBrierScore:
		return NewBrierScoreStatistic(), nil
	default:
		return nil, fmt.Errorf("%w: %q (known: %s, %s)",
			ErrUnknownStatistic, name, StatisticRateGap, StatisticBrierScore)
	}
}

// Compile-time interface checks.
var (
	_ Statistic = (*RateGapStatistic)(nil)
	_ Statistic = (*BrierScoreStatistic)(nil)
)
