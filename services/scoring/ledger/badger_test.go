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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// testLedger opens an in-memory ledger that is closed when the test ends.
func testLedger(t *testing.T) *BadgerLedger {
	t.Helper()
	l, err := NewBadgerLedger(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// testPrediction builds a valid prediction record at the given timestamp.
func testPrediction(requestID string, ts time.Time) datatypes.PredictionRecord {
	return datatypes.PredictionRecord{
		RequestID: requestID,
		Timestamp: ts,
		Features: datatypes.FeatureRecord{
			"tenure":        12.0,
			"usage":         50.0,
			"contract_type": "Month-to-month",
		},
		Label:        1,
		Probability:  0.73,
		ModelVersion: "churn-lr-2025-08-01",
	}
}

// testOutcome builds a valid outcome update.
func testOutcome(requestID string, label int, observed time.Time) datatypes.OutcomeUpdate {
	return datatypes.OutcomeUpdate{
		RequestID:     requestID,
		RealizedLabel: label,
		ObservedAt:    observed,
	}
}

// TestNewBadgerLedger_RequiresPath verifies that persistent mode requires a path.
func TestNewBadgerLedger_RequiresPath(t *testing.T) {
	cfg := Config{
		InMemory: false,
		Path:     "", // Missing path
	}
	_, err := NewBadgerLedger(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestConfigFunctions verifies default configurations.
func TestConfigFunctions(t *testing.T) {
	t.Run("DefaultConfig has SyncWrites", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.True(t, cfg.SyncWrites)
		assert.False(t, cfg.InMemory)
		assert.Equal(t, 5*time.Minute, cfg.GCInterval)
	})

	t.Run("InMemoryConfig disables GC", func(t *testing.T) {
		cfg := InMemoryConfig()
		assert.True(t, cfg.InMemory)
		assert.False(t, cfg.SyncWrites)
		assert.Equal(t, time.Duration(0), cfg.GCInterval)
	})
}

// TestBadgerLedger_AppendAndQuery verifies the prediction/outcome join.
func TestBadgerLedger_AppendAndQuery(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	joinedID := uuid.NewString()
	pendingID := uuid.NewString()

	require.NoError(t, l.AppendPrediction(ctx, testPrediction(joinedID, base)))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(pendingID, base.Add(time.Minute))))
	require.NoError(t, l.AppendOutcome(ctx, testOutcome(joinedID, 0, base.Add(time.Hour))))

	pairs, err := l.Query(ctx, Window{Start: base.Add(-time.Hour), End: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	byID := make(map[string]datatypes.JoinedPair, len(pairs))
	for _, pair := range pairs {
		byID[pair.Prediction.RequestID] = pair
	}

	joined := byID[joinedID]
	require.NotNil(t, joined.Outcome)
	assert.True(t, joined.Joined())
	assert.Equal(t, 0, joined.Outcome.RealizedLabel)
	assert.Equal(t, 1, joined.Prediction.Label)
	assert.Equal(t, "churn-lr-2025-08-01", joined.Prediction.ModelVersion)

	pending := byID[pendingID]
	assert.Nil(t, pending.Outcome)
	assert.False(t, pending.Joined())
}

// TestBadgerLedger_AppendPrediction_RejectsInvalid verifies record validation.
func TestBadgerLedger_AppendPrediction_RejectsInvalid(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	t.Run("bad request id", func(t *testing.T) {
		record := testPrediction("not-a-uuid", time.Now().UTC())
		err := l.AppendPrediction(ctx, record)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid prediction record")
	})

	t.Run("probability out of range", func(t *testing.T) {
		record := testPrediction(uuid.NewString(), time.Now().UTC())
		record.Probability = 1.5
		err := l.AppendPrediction(ctx, record)
		assert.Error(t, err)
	})

	t.Run("zero timestamp", func(t *testing.T) {
		record := testPrediction(uuid.NewString(), time.Time{})
		err := l.AppendPrediction(ctx, record)
		assert.Error(t, err)
	})
}

// TestBadgerLedger_OutcomeUpsert verifies idempotent, last-write-wins outcomes.
func TestBadgerLedger_OutcomeUpsert(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	id := uuid.NewString()
	window := Window{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}

	require.NoError(t, l.AppendPrediction(ctx, testPrediction(id, base)))

	t.Run("duplicate delivery creates no second pair", func(t *testing.T) {
		outcome := testOutcome(id, 1, base.Add(time.Minute))
		require.NoError(t, l.AppendOutcome(ctx, outcome))
		require.NoError(t, l.AppendOutcome(ctx, outcome)) // redelivered

		pairs, err := l.Query(ctx, window)
		require.NoError(t, err)
		require.Len(t, pairs, 1)
		require.NotNil(t, pairs[0].Outcome)
		assert.Equal(t, 1, pairs[0].Outcome.RealizedLabel)
	})

	t.Run("conflicting payload resolves last write wins", func(t *testing.T) {
		correction := testOutcome(id, 0, base.Add(2*time.Minute))
		require.NoError(t, l.AppendOutcome(ctx, correction))

		pairs, err := l.Query(ctx, window)
		require.NoError(t, err)
		require.Len(t, pairs, 1)
		require.NotNil(t, pairs[0].Outcome)
		assert.Equal(t, 0, pairs[0].Outcome.RealizedLabel)
	})
}

// TestBadgerLedger_QueryWindowBounds verifies the half-open [Start, End) window.
func TestBadgerLedger_QueryWindowBounds(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	start := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	window := Window{Start: start, End: end}

	atStart := uuid.NewString()
	inside := uuid.NewString()
	atEnd := uuid.NewString()
	before := uuid.NewString()

	require.NoError(t, l.AppendPrediction(ctx, testPrediction(atStart, start)))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(inside, start.Add(30*time.Minute))))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(atEnd, end)))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(before, start.Add(-time.Second))))

	pairs, err := l.Query(ctx, window)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	got := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		got[pair.Prediction.RequestID] = true
	}
	assert.True(t, got[atStart], "start boundary is inclusive")
	assert.True(t, got[inside])
	assert.False(t, got[atEnd], "end boundary is exclusive")
	assert.False(t, got[before])
}

// TestBadgerLedger_QueryRejectsInvalidWindow verifies window validation.
func TestBadgerLedger_QueryRejectsInvalidWindow(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()

	_, err := l.Query(ctx, Window{Start: now, End: now})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = l.Query(ctx, Window{Start: now, End: now.Add(-time.Minute)})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = l.Query(ctx, Window{})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

// TestBadgerLedger_OutOfOrderOutcome verifies an outcome arriving before its
// prediction joins once the prediction lands.
func TestBadgerLedger_OutOfOrderOutcome(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	id := uuid.NewString()
	window := Window{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}

	// Outcome first. The feed is out-of-order.
	require.NoError(t, l.AppendOutcome(ctx, testOutcome(id, 1, base)))

	pairs, err := l.Query(ctx, window)
	require.NoError(t, err)
	assert.Empty(t, pairs, "orphan outcome must not surface as a pair")

	// Prediction lands later and the pair joins.
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(id, base)))

	pairs, err = l.Query(ctx, window)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.NotNil(t, pairs[0].Outcome)
	assert.Equal(t, 1, pairs[0].Outcome.RealizedLabel)
}

// TestBadgerLedger_PendingCount verifies the unjoined prediction count.
func TestBadgerLedger_PendingCount(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

	count, err := l.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	joinedID := uuid.NewString()
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(joinedID, base)))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(uuid.NewString(), base)))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(uuid.NewString(), base)))

	count, err = l.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, l.AppendOutcome(ctx, testOutcome(joinedID, 1, base.Add(time.Minute))))

	count, err = l.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

// TestBadgerLedger_Prune verifies retention compaction.
func TestBadgerLedger_Prune(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	cutoff := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	oldTS := cutoff.Add(-48 * time.Hour)
	freshTS := cutoff.Add(time.Hour)

	expiredJoined := uuid.NewString()
	expiredPending := uuid.NewString()
	freshID := uuid.NewString()
	orphanID := uuid.NewString()

	require.NoError(t, l.AppendPrediction(ctx, testPrediction(expiredJoined, oldTS)))
	require.NoError(t, l.AppendOutcome(ctx, testOutcome(expiredJoined, 1, oldTS.Add(time.Hour))))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(expiredPending, oldTS)))
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(freshID, freshTS)))
	require.NoError(t, l.AppendOutcome(ctx, testOutcome(orphanID, 0, oldTS)))

	// Expired prediction pair (2 keys), expired pending prediction (1 key),
	// expired orphan outcome (1 key).
	removed, err := l.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	pairs, err := l.Query(ctx, Window{Start: oldTS.Add(-time.Hour), End: freshTS.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, freshID, pairs[0].Prediction.RequestID)

	// A second prune finds nothing left to remove.
	removed, err = l.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

// TestBadgerLedger_PruneKeepsFreshOrphans verifies a recent orphan outcome
// survives pruning so its prediction can still arrive and join.
func TestBadgerLedger_PruneKeepsFreshOrphans(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	cutoff := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	id := uuid.NewString()

	require.NoError(t, l.AppendOutcome(ctx, testOutcome(id, 1, cutoff.Add(time.Hour))))

	removed, err := l.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// The late prediction still joins.
	ts := cutoff.Add(30 * time.Minute)
	require.NoError(t, l.AppendPrediction(ctx, testPrediction(id, ts)))

	pairs, err := l.Query(ctx, Window{Start: cutoff, End: cutoff.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.NotNil(t, pairs[0].Outcome)
}

// TestBadgerLedger_Close verifies closed-ledger behavior.
func TestBadgerLedger_Close(t *testing.T) {
	l, err := NewBadgerLedger(InMemoryConfig())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close()) // idempotent

	ctx := context.Background()
	now := time.Now().UTC()

	err = l.AppendPrediction(ctx, testPrediction(uuid.NewString(), now))
	assert.ErrorIs(t, err, ErrClosed)

	err = l.AppendOutcome(ctx, testOutcome(uuid.NewString(), 1, now))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = l.Query(ctx, TrailingWindow(now, time.Hour))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = l.PendingCount(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = l.Prune(ctx, now)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestBadgerLedger_ContextCancelled verifies cancellation is honored.
func TestBadgerLedger_ContextCancelled(t *testing.T) {
	l := testLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := l.AppendPrediction(ctx, testPrediction(uuid.NewString(), time.Now().UTC()))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

// TestBadgerLedger_PersistsAcrossReopen verifies records survive a restart.
func TestBadgerLedger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Path: dir, SyncWrites: false}

	base := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	id := uuid.NewString()

	l, err := NewBadgerLedger(cfg)
	require.NoError(t, err)
	require.NoError(t, l.AppendPrediction(context.Background(), testPrediction(id, base)))
	require.NoError(t, l.Close())

	reopened, err := NewBadgerLedger(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	pairs, err := reopened.Query(context.Background(), TrailingWindow(base.Add(time.Minute), time.Hour))
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, id, pairs[0].Prediction.RequestID)
	assert.Equal(t, 0.73, pairs[0].Prediction.Probability)
}
