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
	"errors"
	"log/slog"
	"sync"
	"time"
)

// pruneTimeout bounds one retention pass so a slow store cannot wedge the
// runner loop.
const pruneTimeout = 1 * time.Minute

// RetentionOptions configures the retention runner.
type RetentionOptions struct {
	// Horizon is how long records survive. Predictions older than
	// now-Horizon are pruned together with their outcomes. Required.
	Horizon time.Duration

	// Interval is how often pruning runs. Required.
	Interval time.Duration

	// Logger for retention events. If nil, uses slog.Default().
	Logger *slog.Logger

	// OnPrune, if set, observes each completed pass. Used to feed the
	// metrics sink without coupling this package to it.
	OnPrune func(removed int, err error)
}

// RetentionRunner periodically prunes ledger records past the horizon.
//
// Description:
//
//	Retention is what keeps the ledger's prefix scans bounded: without it
//	the store, and every Query and PendingCount pass over it, grows
//	without limit. One pass runs per interval on a single goroutine, so
//	passes never overlap. Failures are logged and the next tick retries;
//	a failed pass never takes the runner down.
//
// Thread Safety: Start and Stop are safe to call from any goroutine.
type RetentionRunner struct {
	ledger  Ledger
	horizon time.Duration
	opts    RetentionOptions
	logger  *slog.Logger

	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	running bool
	started bool
}

// NewRetentionRunner creates a retention runner.
//
// Inputs:
//
//	ledger - Store to prune. Must not be nil.
//	opts - Options. Horizon and Interval must be positive.
//
// Outputs:
//   - *RetentionRunner: The runner. Not started until Start() is called.
//   - error: Non-nil if inputs are invalid.
func NewRetentionRunner(ledger Ledger, opts RetentionOptions) (*RetentionRunner, error) {
	if ledger == nil {
		return nil, errors.New("ledger must not be nil")
	}
	if opts.Horizon <= 0 {
		return nil, errors.New("retention horizon must be positive")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("retention interval must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RetentionRunner{
		ledger:  ledger,
		horizon: opts.Horizon,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins periodic pruning. Returns an error if already started.
func (r *RetentionRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("retention runner already started")
	}
	r.running = true
	r.started = true

	go r.run()

	r.logger.Info("Ledger retention started",
		"horizon", r.horizon,
		"interval", r.opts.Interval)
	return nil
}

// Stop halts pruning and waits for an in-flight pass to finish.
// Safe to call multiple times, including before Start.
func (r *RetentionRunner) Stop() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if started {
		<-r.doneCh
	}
}

func (r *RetentionRunner) run() {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(r.doneCh)
	}()

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.prune()
		}
	}
}

// prune executes one retention pass.
func (r *RetentionRunner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	cutoff := r.now().Add(-r.horizon)
	removed, err := r.ledger.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Error("Ledger retention pass failed",
			"cutoff", cutoff.Format(time.RFC3339),
			"error", err)
	} else if removed > 0 {
		r.logger.Debug("Ledger retention pass completed",
			"removed", removed,
			"cutoff", cutoff.Format(time.RFC3339))
	}

	if r.opts.OnPrune != nil {
		r.opts.OnPrune(removed, err)
	}
}
