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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// pruneBatchSize bounds deletes per transaction so retention never exceeds
// Badger's transaction size limit.
const pruneBatchSize = 1000

// Config holds configuration for the Badger-backed ledger.
type Config struct {
	// Path is the directory for ledger files.
	// Required for persistent ledgers. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for storage operations.
	// If nil, Badger's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5 (GC when 50% of value log is garbage).
	GCDiscardRatio float64
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0, // disabled
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerLedger implements Ledger on an embedded Badger store.
//
// Description:
//
//	Predictions live under "pred:<request_id>", outcomes under
//	"out:<request_id>", both as JSON. Badger gives each read transaction a
//	consistent snapshot, which is exactly the isolation the drift
//	monitor's window queries need against concurrent serve-time appends.
//	Window filtering happens value-side (keys carry no timestamp), so
//	Query and PendingCount cost one pass over the prediction prefix; the
//	retention horizon keeps that pass bounded.
//
// Thread Safety: Safe for concurrent use.
type BadgerLedger struct {
	db     *badger.DB
	logger *slog.Logger
	gc     *gcRunner
	closed atomic.Bool
}

// NewBadgerLedger opens the ledger with the given configuration.
//
// Inputs:
//
//	cfg - Ledger configuration. Path is required unless InMemory is true.
//
// Outputs:
//   - *BadgerLedger: The opened ledger. Caller must Close() it.
//   - error: Non-nil if the path is invalid or the store cannot be opened.
func NewBadgerLedger(cfg Config) (*BadgerLedger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent ledger")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable Badger's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	l := &BadgerLedger{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = DefaultConfig().GCDiscardRatio
		}
		l.gc = newGCRunner(db, cfg.GCInterval, ratio, logger)
		l.gc.Start()
	}

	return l, nil
}

// AppendPrediction stores one serve-time record.
func (l *BadgerLedger) AppendPrediction(ctx context.Context, record datatypes.PredictionRecord) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid prediction record: %w", err)
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode prediction record: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(predictionKey(record.RequestID), value)
	})
}

// AppendOutcome upserts a realized outcome, last write winning.
func (l *BadgerLedger) AppendOutcome(ctx context.Context, update datatypes.OutcomeUpdate) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := update.Validate(); err != nil {
		return fmt.Errorf("invalid outcome update: %w", err)
	}

	value, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode outcome update: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(outcomeKey(update.RequestID), value)
	})
}

// Query returns the joined pairs for all predictions inside the window.
//
// The outcome lookups run inside the same read transaction as the
// prediction scan, so the result is one consistent snapshot even while
// appends land concurrently.
func (l *BadgerLedger) Query(ctx context.Context, window Window) ([]datatypes.JoinedPair, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var pairs []datatypes.JoinedPair
	prefix := []byte(predictionKeyPrefix)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var record datatypes.PredictionRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				l.logger.Warn("Skipping undecodable prediction record",
					"key", string(it.Item().Key()),
					"error", err)
				continue
			}

			if !window.Contains(record.Timestamp) {
				continue
			}

			pair := datatypes.JoinedPair{Prediction: record}
			outcome, err := l.readOutcome(txn, record.RequestID)
			if err != nil {
				return err
			}
			pair.Outcome = outcome
			pairs = append(pairs, pair)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query ledger window: %w", err)
	}
	return pairs, nil
}

// readOutcome fetches the outcome for a request id within txn, returning
// nil when none has arrived yet.
func (l *BadgerLedger) readOutcome(txn *badger.Txn, requestID string) (*datatypes.OutcomeUpdate, error) {
	item, err := txn.Get(outcomeKey(requestID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outcome %s: %w", requestID, err)
	}

	var update datatypes.OutcomeUpdate
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &update)
	})
	if err != nil {
		return nil, fmt.Errorf("decode outcome %s: %w", requestID, err)
	}
	return &update, nil
}

// PendingCount returns how many predictions still lack an outcome.
func (l *BadgerLedger) PendingCount(ctx context.Context) (int64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	var pending int64
	prefix := []byte(predictionKeyPrefix)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // keys are enough

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			requestID := string(it.Item().Key()[len(prefix):])
			_, err := txn.Get(outcomeKey(requestID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				pending++
				continue
			}
			if err != nil {
				return fmt.Errorf("read outcome %s: %w", requestID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count pending predictions: %w", err)
	}
	return pending, nil
}

// Prune removes records older than the cutoff.
//
// Description:
//
//	Predictions with Timestamp before the cutoff are removed together
//	with their outcomes. Orphaned outcomes (no surviving prediction)
//	observed before the cutoff are removed too, so bogus request ids from
//	the outcome feed cannot accumulate forever. Deletes are chunked into
//	bounded transactions.
//
// Outputs:
//   - int: Number of keys removed.
//   - error: Non-nil on storage failure; partial progress may persist.
func (l *BadgerLedger) Prune(ctx context.Context, before time.Time) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	victims, err := l.collectPruneVictims(ctx, before)
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(victims); start += pruneBatchSize {
		end := start + pruneBatchSize
		if end > len(victims) {
			end = len(victims)
		}
		batch := victims[start:end]

		err := l.db.Update(func(txn *badger.Txn) error {
			for _, key := range batch {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("prune ledger batch: %w", err)
		}
		removed += len(batch)
	}

	if removed > 0 {
		l.logger.Info("Ledger pruned",
			"removed", removed,
			"cutoff", before.Format(time.RFC3339))
	}
	return removed, nil
}

// collectPruneVictims gathers, in one snapshot, every key whose record
// predates the cutoff.
func (l *BadgerLedger) collectPruneVictims(ctx context.Context, before time.Time) ([][]byte, error) {
	var victims [][]byte
	prunedPredictions := make(map[string]bool)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		// Pass 1: expired predictions and their outcomes.
		it := txn.NewIterator(opts)
		defer it.Close()

		predPrefix := []byte(predictionKeyPrefix)
		for it.Seek(predPrefix); it.ValidForPrefix(predPrefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var record datatypes.PredictionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				// Undecodable records are removed outright.
				victims = append(victims, it.Item().KeyCopy(nil))
				continue
			}
			if record.Timestamp.Before(before) {
				victims = append(victims, it.Item().KeyCopy(nil))
				prunedPredictions[record.RequestID] = true
				if _, err := txn.Get(outcomeKey(record.RequestID)); err == nil {
					victims = append(victims, outcomeKey(record.RequestID))
				} else if !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("read outcome %s: %w", record.RequestID, err)
				}
			}
		}

		// Pass 2: expired orphan outcomes.
		outIt := txn.NewIterator(opts)
		defer outIt.Close()

		outPrefix := []byte(outcomeKeyPrefix)
		for outIt.Seek(outPrefix); outIt.ValidForPrefix(outPrefix); outIt.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			requestID := string(outIt.Item().Key()[len(outPrefix):])
			if prunedPredictions[requestID] {
				continue // already scheduled with its prediction
			}
			if _, err := txn.Get(predictionKey(requestID)); err == nil {
				continue // joined to a surviving prediction
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("read prediction %s: %w", requestID, err)
			}

			var update datatypes.OutcomeUpdate
			if err := outIt.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &update)
			}); err != nil {
				victims = append(victims, outIt.Item().KeyCopy(nil))
				continue
			}
			if update.ObservedAt.Before(before) {
				victims = append(victims, outIt.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect prune victims: %w", err)
	}
	return victims, nil
}

// Close stops garbage collection and closes the store.
func (l *BadgerLedger) Close() error {
	if l.closed.Swap(true) {
		return nil // already closed
	}
	if l.gc != nil {
		l.gc.Stop()
	}
	return l.db.Close()
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start begins periodic garbage collection.
func (r *gcRunner) Start() {
	go r.run()
}

// Stop halts garbage collection and waits for the loop to exit.
func (r *gcRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// RunValueLogGC returns nil if GC was triggered, ErrNoRewrite if not needed
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		r.logger.Debug("ledger value log GC completed")
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		r.logger.Warn("ledger value log GC error", slog.String("error", err.Error()))
	}
}

// Compile-time interface check.
var _ Ledger = (*BadgerLedger)(nil)
