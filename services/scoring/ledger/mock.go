// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// MockLedger is an in-memory Ledger for testing.
type MockLedger struct {
	mu          sync.RWMutex
	predictions map[string]datatypes.PredictionRecord
	outcomes    map[string]datatypes.OutcomeUpdate

	// Error injection. When set, the corresponding method fails.
	AppendPredictionErr error
	AppendOutcomeErr    error
	QueryErr            error
	PruneErr            error
}

// NewMockLedger creates a new mock ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		predictions: make(map[string]datatypes.PredictionRecord),
		outcomes:    make(map[string]datatypes.OutcomeUpdate),
	}
}

// AppendPrediction records a prediction, overwriting any previous one.
func (m *MockLedger) AppendPrediction(_ context.Context, record datatypes.PredictionRecord) error {
	if m.AppendPredictionErr != nil {
		return m.AppendPredictionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[record.RequestID] = record
	return nil
}

// AppendOutcome upserts an outcome.
func (m *MockLedger) AppendOutcome(_ context.Context, update datatypes.OutcomeUpdate) error {
	if m.AppendOutcomeErr != nil {
		return m.AppendOutcomeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[update.RequestID] = update
	return nil
}

// Query returns joined pairs for predictions inside the window.
func (m *MockLedger) Query(_ context.Context, window Window) ([]datatypes.JoinedPair, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pairs []datatypes.JoinedPair
	for id, record := range m.predictions {
		if !window.Contains(record.Timestamp) {
			continue
		}
		pair := datatypes.JoinedPair{Prediction: record}
		if outcome, ok := m.outcomes[id]; ok {
			o := outcome
			pair.Outcome = &o
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// PendingCount returns how many predictions lack an outcome.
func (m *MockLedger) PendingCount(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending int64
	for id := range m.predictions {
		if _, ok := m.outcomes[id]; !ok {
			pending++
		}
	}
	return pending, nil
}

// Prune removes predictions older than the cutoff with their outcomes.
func (m *MockLedger) Prune(_ context.Context, before time.Time) (int, error) {
	if m.PruneErr != nil {
		return 0, m.PruneErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, record := range m.predictions {
		if record.Timestamp.Before(before) {
			delete(m.predictions, id)
			removed++
			if _, ok := m.outcomes[id]; ok {
				delete(m.outcomes, id)
				removed++
			}
		}
	}
	for id, outcome := range m.outcomes {
		if _, ok := m.predictions[id]; ok {
			continue
		}
		if outcome.ObservedAt.Before(before) {
			delete(m.outcomes, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the mock.
func (m *MockLedger) Close() error {
	return nil
}

// PredictionCount returns the number of stored predictions.
func (m *MockLedger) PredictionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.predictions)
}

// OutcomeCount returns the number of stored outcomes.
func (m *MockLedger) OutcomeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.outcomes)
}

// PredictionFor returns the stored prediction for a request id, if any.
func (m *MockLedger) PredictionFor(requestID string) (datatypes.PredictionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.predictions[requestID]
	return record, ok
}

// OutcomeFor returns the stored outcome for a request id, if any.
func (m *MockLedger) OutcomeFor(requestID string) (datatypes.OutcomeUpdate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	outcome, ok := m.outcomes[requestID]
	return outcome, ok
}

// Compile-time interface check.
var _ Ledger = (*MockLedger)(nil)
