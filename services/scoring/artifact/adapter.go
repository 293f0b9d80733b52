// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"log/slog"
	"sync/atomic"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// Adapter serves the current scoring artifact and swaps it on reload.
//
// Description:
//
//	Adapter is the single point of access for scoring. It holds one
//	*Artifact behind an atomic pointer: readers load the pointer once and
//	score against that snapshot for the rest of the request, so a reload
//	mid-request cannot split a prediction across two model versions.
//	Reload keeps the previous artifact when the new file fails to load,
//	so a bad deploy degrades to stale-but-consistent scoring instead of
//	an outage.
//
// Thread Safety: All methods are safe for concurrent use.
type Adapter struct {
	path    string
	current atomic.Pointer[Artifact]
	logger  *slog.Logger
}

// NewAdapter creates an Adapter and performs the initial artifact load.
//
// Inputs:
//
//	path - Artifact file to load now and on every Reload.
//	logger - Structured logger; nil falls back to slog.Default().
//
// Outputs:
//   - *Adapter: Ready adapter holding the loaded artifact.
//   - error: Non-nil when the initial load fails; the caller should treat
//     this as fatal.
func NewAdapter(path string, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	art, err := Load(path)
	if err != nil {
		return nil, err
	}

	a := &Adapter{path: path, logger: logger}
	a.current.Store(art)
	a.logger.Info("Scoring artifact loaded",
		"version", art.Version,
		"schema_width", art.Schema.VectorWidth(),
		"trained_rows", art.TrainedRows)
	return a, nil
}

// Current returns the artifact snapshot in service.
//
// Outputs:
//   - *Artifact: The loaded artifact. Callers must not mutate it.
//   - error: ErrUnavailable when no artifact is loaded.
func (a *Adapter) Current() (*Artifact, error) {
	art := a.current.Load()
	if art == nil {
		return nil, ErrUnavailable
	}
	return art, nil
}

// Version returns the version of the artifact in service, or "" when none
// is loaded. Intended for logs and gauges where an error return is noise.
func (a *Adapter) Version() string {
	if art := a.current.Load(); art != nil {
		return art.Version
	}
	return ""
}

// Reload re-reads the artifact file and swaps it in atomically.
//
// Description:
//
//	On success the new artifact becomes visible to all subsequent
//	Current() calls in one atomic store. On failure the previous artifact
//	stays in service untouched and the error is returned for the caller
//	to log and count.
//
// Outputs:
//   - *Artifact: The newly loaded artifact on success.
//   - error: Non-nil when the load failed; the served artifact is unchanged.
func (a *Adapter) Reload() (*Artifact, error) {
	art, err := Load(a.path)
	if err != nil {
		a.logger.Error("Artifact reload failed, keeping current version",
			"path", a.path,
			"serving_version", a.Version(),
			"error", err)
		return nil, err
	}

	previous := a.current.Swap(art)
	previousVersion := ""
	if previous != nil {
		previousVersion = previous.Version
	}
	a.logger.Info("Scoring artifact reloaded",
		"previous_version", previousVersion,
		"version", art.Version,
		"schema_width", art.Schema.VectorWidth())
	return art, nil
}

// Score aligns nothing and validates nothing beyond width: it scores the
// given pre-aligned vector against the current artifact snapshot.
//
// Outputs:
//   - int: Predicted label, 0 or 1.
//   - float64: Positive-class probability.
//   - string: Version of the artifact that produced the score.
//   - error: ErrUnavailable or ErrVectorWidth.
func (a *Adapter) Score(vector datatypes.FeatureVector) (int, float64, string, error) {
	art, err := a.Current()
	if err != nil {
		return 0, 0, "", err
	}
	label, probability, err := art.Score(vector)
	if err != nil {
		return 0, 0, art.Version, err
	}
	return label, probability, art.Version, nil
}
