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
// This file contains the request/response contracts for the inference
// endpoint, the ledger record types, and the drift verdict exchanged with
// the retraining trigger.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianServe/pkg/validation"
)

// =============================================================================
// Constants for Input Bounding
// =============================================================================

const (
	// MaxFeatureFields is the maximum number of entries accepted in a
	// predict payload's feature map. Requests above this are rejected
	// before alignment.
	MaxFeatureFields = 256

	// MaxCategoryValueBytes is the maximum byte length of a single category
	// label in a predict payload.
	MaxCategoryValueBytes = 1024
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// scoringValidate is the validator instance for scoring datatypes.
// Initialized in init() with custom validators. The same custom rules are
// registered on gin's binding engine via RegisterValidations.
var scoringValidate *validator.Validate

func init() {
	scoringValidate = validator.New()
	// Read the binding tags so Struct() enforces the same rules gin does.
	scoringValidate.SetTagName("binding")
	_ = scoringValidate.RegisterValidation("feature_map", validateFeatureMap)
}

// RegisterValidations installs the custom scoring rules on an external
// validator engine, typically gin's binding engine:
//
//	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
//	    datatypes.RegisterValidations(v)
//	}
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("feature_map", validateFeatureMap)
}

// validateFeatureMap checks that a feature map is bounded and holds only
// scalar values.
//
// Description:
//
//	Feature payloads are open maps, so tag-level validation cannot rely on
//	struct shape. This rule enforces the scalar-values contract: values must
//	be JSON numbers or bounded strings. Nested objects, arrays, and booleans
//	fail here instead of surfacing later as alignment errors.
func validateFeatureMap(fl validator.FieldLevel) bool {
	features, ok := fl.Field().Interface().(map[string]any)
	if !ok {
		return false
	}
	if len(features) == 0 || len(features) > MaxFeatureFields {
		return false
	}
	for name, raw := range features {
		if name == "" {
			return false
		}
		switch v := raw.(type) {
		case float64, float32, int, int32, int64:
			continue
		case string:
			if len(v) == 0 || len(v) > MaxCategoryValueBytes {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// =============================================================================
// Inference Endpoint Contracts
// =============================================================================

// PredictRequest is the body of POST /v1/predict.
//
// Description:
//
//	PredictRequest carries one feature record to score. The caller may
//	supply its own request_id (a UUIDv4) so the downstream outcome feed can
//	join on an identifier the caller already tracks; otherwise the service
//	generates one and returns it in the response.
//
// Fields:
//   - RequestID: Optional caller-supplied UUIDv4 used as the ledger join key
//   - Features: Field name to scalar value map, validated by feature_map
//
// Example:
//
//	req := PredictRequest{
//	    Features: map[string]any{
//	        "tenure":          12,
//	        "usage":           50,
//	        "age":             30,
//	        "monthly_charges": 70,
//	        "contract_type":   "Month-to-month",
//	    },
//	}
//
// Limitations:
//   - Feature values must be scalars; nested structures are rejected
type PredictRequest struct {
	RequestID string         `json:"request_id,omitempty" binding:"omitempty,uuid4"`
	Features  map[string]any `json:"features" binding:"required,feature_map"`
}

// Validate checks the request outside of gin binding (CLI callers).
func (r *PredictRequest) Validate() error {
	if r.RequestID != "" {
		if err := validation.ValidateRequestID(r.RequestID); err != nil {
			return fmt.Errorf("invalid request_id: %w", err)
		}
	}
	if err := validation.ValidateFeatureValues(r.Features); err != nil {
		return err
	}
	return nil
}

// Record converts the request into a FeatureRecord for alignment.
func (r *PredictRequest) Record() FeatureRecord {
	return FeatureRecord(r.Features)
}

// PredictResponse is the body of a successful POST /v1/predict.
//
// Fields:
//   - RequestID: The join key for later outcome updates
//   - Label: Predicted class, 0 or 1
//   - Probability: Model probability of the positive class, in [0, 1]
//   - ModelVersion: Version identifier of the artifact that scored this request
type PredictResponse struct {
	RequestID    string  `json:"request_id"`
	Label        int     `json:"label"`
	Probability  float64 `json:"probability"`
	ModelVersion string  `json:"model_version"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// =============================================================================
// Ledger Records
// =============================================================================

// PredictionRecord is the immutable ledger entry written once per served
// request.
//
// Description:
//
//	PredictionRecord snapshots what the model saw and said, keyed by
//	request id. It is appended fire-and-forget after the response is
//	produced and never mutated afterwards. Records with no later outcome
//	stay in the ledger as "pending" until retention compaction drops them.
//
// Fields:
//   - RequestID: Join key, unique per served request
//   - Timestamp: When the request reached its terminal state (UTC)
//   - Features: Input snapshot for audit and replay
//   - Label: Predicted class, 0 or 1
//   - Probability: Predicted probability of the positive class
//   - ModelVersion: Artifact version that produced the score
type PredictionRecord struct {
	RequestID    string        `json:"request_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Features     FeatureRecord `json:"features"`
	Label        int           `json:"label"`
	Probability  float64       `json:"probability"`
	ModelVersion string        `json:"model_version"`
}

// Validate checks that the record is complete enough to append.
func (p *PredictionRecord) Validate() error {
	if err := validation.ValidateRequestID(p.RequestID); err != nil {
		return fmt.Errorf("invalid request_id: %w", err)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if p.Label != 0 && p.Label != 1 {
		return fmt.Errorf("label must be 0 or 1, got: %d", p.Label)
	}
	if p.Probability < 0 || p.Probability > 1 {
		return fmt.Errorf("probability must be in [0, 1], got: %f", p.Probability)
	}
	if p.ModelVersion == "" {
		return fmt.Errorf("model_version is required")
	}
	return nil
}

// OutcomeRequest is the body of POST /v1/outcomes, delivered by the external
// outcome feed.
//
// Description:
//
//	The feed is at-least-once and out-of-order; the ledger upserts by
//	request id, so redelivery is harmless. RealizedLabel is a pointer so
//	that binding can distinguish a missing label from a legitimate 0.
type OutcomeRequest struct {
	RequestID     string     `json:"request_id" binding:"required,uuid4"`
	RealizedLabel *int       `json:"realized_label" binding:"required,min=0,max=1"`
	ObservedAt    *time.Time `json:"observed_at,omitempty"`
}

// Update converts the request into the domain OutcomeUpdate, filling
// ObservedAt with now when the feed did not supply it.
func (r *OutcomeRequest) Update(now time.Time) OutcomeUpdate {
	observed := now
	if r.ObservedAt != nil && !r.ObservedAt.IsZero() {
		observed = *r.ObservedAt
	}
	return OutcomeUpdate{
		RequestID:     r.RequestID,
		RealizedLabel: *r.RealizedLabel,
		ObservedAt:    observed.UTC(),
	}
}

// OutcomeUpdate is the realized label for an earlier prediction.
//
// Fields:
//   - RequestID: Join key matching a PredictionRecord
//   - RealizedLabel: Observed class, 0 or 1
//   - ObservedAt: When the outcome was observed (UTC)
type OutcomeUpdate struct {
	RequestID     string    `json:"request_id"`
	RealizedLabel int       `json:"realized_label"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Validate checks that the update is well formed.
func (o *OutcomeUpdate) Validate() error {
	if err := validation.ValidateRequestID(o.RequestID); err != nil {
		return fmt.Errorf("invalid request_id: %w", err)
	}
	if o.RealizedLabel != 0 && o.RealizedLabel != 1 {
		return fmt.Errorf("realized_label must be 0 or 1, got: %d", o.RealizedLabel)
	}
	if o.ObservedAt.IsZero() {
		return fmt.Errorf("observed_at is required")
	}
	return nil
}

// JoinedPair is one prediction joined with its outcome, if any has arrived.
//
// Description:
//
//	The ledger's query operation returns the trailing window as joined
//	pairs. Outcome is nil while the prediction is still pending; pending
//	pairs are excluded from drift statistics but counted for observability.
type JoinedPair struct {
	Prediction PredictionRecord `json:"prediction"`
	Outcome    *OutcomeUpdate   `json:"outcome,omitempty"`
}

// Joined reports whether an outcome has arrived for this pair.
func (j *JoinedPair) Joined() bool {
	return j.Outcome != nil
}

// =============================================================================
// Drift Verdicts
// =============================================================================

// VerdictStatus is the outcome of one drift evaluation cycle.
//
// Valid Values:
//   - "normal": statistic computed, below threshold
//   - "triggered": statistic computed, threshold breached
//   - "inconclusive": too few joined pairs to evaluate; expected, not an error
type VerdictStatus string

const (
	VerdictNormal       VerdictStatus = "normal"
	VerdictTriggered    VerdictStatus = "triggered"
	VerdictInconclusive VerdictStatus = "inconclusive"
)

// validVerdictStatuses contains all valid VerdictStatus values for validation.
var validVerdictStatuses = map[VerdictStatus]bool{
	VerdictNormal:       true,
	VerdictTriggered:    true,
	VerdictInconclusive: true,
}

// IsValid checks if the VerdictStatus is a valid value.
func (s VerdictStatus) IsValid() bool {
	return validVerdictStatuses[s]
}

// DriftVerdict is the result of one drift monitor cycle.
//
// Description:
//
//	One DriftVerdict is produced per evaluation cycle and consumed by the
//	external retraining trigger. Inconclusive verdicts carry a zero Value
//	and are never triggered. Verdicts are immutable once emitted.
//
// Fields:
//   - WindowStart, WindowEnd: The trailing window the ledger was queried for
//   - Statistic: Name of the statistic that was computed (e.g. "rate_gap")
//   - Value: Computed statistic value; zero when inconclusive
//   - Threshold: Configured trigger threshold
//   - SampleSize: Joined pairs used in the computation
//   - Pending: Predictions in the window with no outcome yet
//   - Status: normal, triggered, or inconclusive
//   - Triggered: True iff Status is "triggered"
//   - EvaluatedAt: When the cycle ran (UTC)
type DriftVerdict struct {
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Statistic   string        `json:"statistic"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	SampleSize  int           `json:"sample_size"`
	Pending     int           `json:"pending"`
	Status      VerdictStatus `json:"status"`
	Triggered   bool          `json:"triggered"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Validate checks internal consistency of the verdict.
func (v *DriftVerdict) Validate() error {
	if !v.Status.IsValid() {
		return fmt.Errorf("status is invalid: %s", v.Status)
	}
	if v.Triggered != (v.Status == VerdictTriggered) {
		return fmt.Errorf("triggered flag disagrees with status %s", v.Status)
	}
	if v.WindowEnd.Before(v.WindowStart) {
		return fmt.Errorf("window_end precedes window_start")
	}
	if v.SampleSize < 0 || v.Pending < 0 {
		return fmt.Errorf("sample_size and pending must be non-negative")
	}
	return nil
}
