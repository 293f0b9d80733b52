// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact loads and serves the versioned scoring artifact produced
// by the offline training job.
//
// An artifact is an opaque, immutable unit: the feature schema and the
// fitted model travel together, so a loaded artifact can never disagree
// with itself about vector layout. The Adapter holds exactly one artifact
// at a time and swaps it atomically on reload; concurrent scorers always
// see a complete artifact, never a partially updated one.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// Sentinel errors for artifact loading and scoring.
var (
	// ErrUnavailable indicates no artifact is loaded. Server-caused;
	// handlers map it to a 5xx response.
	ErrUnavailable = errors.New("scoring artifact unavailable")

	// ErrInvalidArtifact indicates the artifact source was unreadable or
	// failed structural validation.
	ErrInvalidArtifact = errors.New("invalid scoring artifact")

	// ErrVectorWidth indicates a feature vector whose length does not match
	// the artifact schema. This is a programming error: aligned vectors
	// always match the schema they were aligned against.
	ErrVectorWidth = errors.New("feature vector width mismatch")
)

// ModelType identifies the scoring function family embedded in an artifact.
//
// Valid Values:
//   - "logistic_regression": linear model with sigmoid link
type ModelType string

const (
	ModelTypeLogisticRegression ModelType = "logistic_regression"
)

// validModelTypes contains all valid ModelType values for validation.
var validModelTypes = map[ModelType]bool{
	ModelTypeLogisticRegression: true,
}

// IsValid checks if the ModelType is a valid value.
func (m ModelType) IsValid() bool {
	return validModelTypes[m]
}

// Model holds the fitted coefficients for one artifact.
//
// Fields:
//   - Type: Scoring function family
//   - Intercept: Bias term
//   - Coefficients: One weight per vector position, schema order
//   - DecisionThreshold: Probability cut for the positive label; 0.5 when
//     the training job does not set one
type Model struct {
	Type              ModelType `json:"type"`
	Intercept         float64   `json:"intercept"`
	Coefficients      []float64 `json:"coefficients"`
	DecisionThreshold float64   `json:"decision_threshold,omitempty"`
}

// Artifact is one immutable scoring artifact.
//
// Description:
//
//	Artifact is the unit of exchange with the training collaborator: a
//	JSON document holding the feature schema and the fitted model, plus a
//	version identifier that is surfaced in every PredictionRecord. An
//	Artifact is never mutated after Load; hot reload builds a fresh one
//	and swaps the Adapter's pointer.
//
// Thread Safety: Immutable after Load; safe for unbounded concurrent reads.
type Artifact struct {
	Version     string           `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	TrainedRows int64            `json:"trained_rows,omitempty"`
	Schema      datatypes.Schema `json:"schema"`
	Model       Model            `json:"model"`

	// LoadedAt records when this process loaded the artifact. Not part of
	// the file format.
	LoadedAt time.Time `json:"-"`
}

// Load reads and validates a scoring artifact from disk.
//
// Description:
//
//	Load is fatal-at-startup, recoverable-on-reload: main exits when the
//	initial Load fails, while the Adapter keeps serving the stale artifact
//	when a hot reload fails. Validation failures, unreadable files, and
//	malformed JSON all wrap ErrInvalidArtifact.
//
// Inputs:
//
//	path - Artifact file written by the training job.
//
// Outputs:
//   - *Artifact: Validated artifact with LoadedAt set.
//   - error: Non-nil wrapping ErrInvalidArtifact on any failure.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidArtifact, path, err)
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidArtifact, path, err)
	}

	if art.Model.DecisionThreshold == 0 {
		art.Model.DecisionThreshold = 0.5
	}

	if err := art.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	art.LoadedAt = time.Now().UTC()
	return &art, nil
}

// Validate checks the artifact for structural consistency.
//
// Validations Performed:
//   - Version is non-empty
//   - Schema validates
//   - Model type is known
//   - Coefficient count equals the schema's vector width
//   - Decision threshold lies in (0, 1)
func (a *Artifact) Validate() error {
	if a.Version == "" {
		return fmt.Errorf("artifact version is required")
	}
	if err := a.Schema.Validate(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if !a.Model.Type.IsValid() {
		return fmt.Errorf("model type is invalid: %q", a.Model.Type)
	}
	if want, got := a.Schema.VectorWidth(), len(a.Model.Coefficients); want != got {
		return fmt.Errorf("coefficient count %d does not match schema width %d", got, want)
	}
	if a.Model.DecisionThreshold <= 0 || a.Model.DecisionThreshold >= 1 {
		return fmt.Errorf("decision threshold must be in (0, 1), got: %f", a.Model.DecisionThreshold)
	}
	return nil
}

// Score applies the model to one aligned feature vector.
//
// Description:
//
//	Score computes the positive-class probability through the sigmoid link
//	and cuts it at the decision threshold. It is deterministic: the same
//	vector against the same artifact version always yields the same
//	result. Cost is one dot product over the schema width, which keeps the
//	per-request budget bounded.
//
// Inputs:
//
//	vector - Aligned feature vector; length must equal the schema width.
//
// Outputs:
//   - int: Predicted label, 0 or 1.
//   - float64: Probability of the positive class, in [0, 1].
//   - error: ErrVectorWidth if the vector length disagrees with the schema.
//
// Thread Safety: Read-only; safe to call concurrently against one artifact.
func (a *Artifact) Score(vector datatypes.FeatureVector) (int, float64, error) {
	if len(vector) != len(a.Model.Coefficients) {
		return 0, 0, fmt.Errorf("%w: got %d, schema expects %d",
			ErrVectorWidth, len(vector), len(a.Model.Coefficients))
	}

	z := a.Model.Intercept
	for i, w := range a.Model.Coefficients {
		z += w * vector[i]
	}
	probability := sigmoid(z)

	label := 0
	if probability >= a.Model.DecisionThreshold {
		label = 1
	}
	return label, probability, nil
}

// sigmoid maps a linear score into (0, 1). math.Exp saturates to +Inf for
// large negative z, which cleanly collapses the quotient to 0.
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
