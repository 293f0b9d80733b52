// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger persists prediction records and their asynchronously
// realized outcomes, joined by request id.
//
// The ledger is append-only from the caller's point of view: predictions are
// written once at serve time, outcomes upsert idempotently as the outcome
// feed delivers them (at-least-once, out-of-order), and nothing is mutated
// except by retention pruning. Reads are snapshot-isolated so the drift
// monitor's window queries never block concurrent appends.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// Key prefixes. Request ids are validated UUIDs, so a prefixed id can never
// collide across the two namespaces.
const (
	predictionKeyPrefix = "pred:"
	outcomeKeyPrefix    = "out:"
)

// Sentinel errors for ledger operations.
var (
	// ErrClosed indicates an operation on a closed ledger.
	ErrClosed = errors.New("ledger is closed")

	// ErrInvalidWindow indicates a query window whose end does not follow
	// its start.
	ErrInvalidWindow = errors.New("invalid ledger window")
)

// Window is a half-open time range [Start, End) over prediction timestamps.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the window is well-formed.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidWindow, w.End, w.Start)
	}
	return nil
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// TrailingWindow returns the window covering the span duration ending at now.
func TrailingWindow(now time.Time, span time.Duration) Window {
	return Window{Start: now.Add(-span), End: now}
}

// Ledger is the durable store joining predictions with realized outcomes.
//
// Description:
//
//	AppendPrediction writes the serve-time record; AppendOutcome upserts
//	the realized label when the outcome feed delivers it. Query returns
//	every prediction inside the window paired with its outcome if one has
//	arrived. A prediction may stay unjoined indefinitely (churn labels
//	can take months to realize); such records are excluded from drift
//	statistics by the caller but reported through PendingCount.
//
// Thread Safety: Implementations must support concurrent appends and
// snapshot-isolated reads that do not block each other.
type Ledger interface {
	// AppendPrediction stores one serve-time record. Re-appending the same
	// request id is an idempotent overwrite, tolerating delivery retries.
	AppendPrediction(ctx context.Context, record datatypes.PredictionRecord) error

	// AppendOutcome upserts the realized outcome for a request id.
	// Duplicate deliveries are idempotent; conflicting payloads resolve
	// last-write-wins.
	AppendOutcome(ctx context.Context, update datatypes.OutcomeUpdate) error

	// Query returns all predictions whose timestamp falls in the window,
	// each joined with its outcome when one exists. Results are in request
	// id order.
	Query(ctx context.Context, window Window) ([]datatypes.JoinedPair, error)

	// PendingCount returns how many stored predictions have no outcome yet.
	PendingCount(ctx context.Context) (int64, error)

	// Prune removes predictions older than the cutoff together with their
	// outcomes, and orphaned outcomes older than the cutoff. Returns the
	// number of records removed.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Close releases the underlying store. Further calls return ErrClosed.
	Close() error
}

// predictionKey returns the storage key for a prediction record.
func predictionKey(requestID string) []byte {
	return []byte(predictionKeyPrefix + requestID)
}

// outcomeKey returns the storage key for an outcome update.
func outcomeKey(requestID string) []byte {
	return []byte(outcomeKeyPrefix + requestID)
}
