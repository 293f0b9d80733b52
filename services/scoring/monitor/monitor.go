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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
	"github.com/AleutianAI/AleutianServe/services/scoring/ledger"
	"github.com/AleutianAI/AleutianServe/services/scoring/telemetry"
)

const tracerName = "aleutian.scoring.monitor"

// historySize is how many verdicts the status endpoint can look back on.
const historySize = 32

// MonitorState represents where the drift episode state machine is.
type MonitorState int

const (
	// StateNormal means no active drift episode.
	StateNormal MonitorState = iota

	// StateDrifting means a breach was observed but the retraining signal
	// has not been delivered yet.
	StateDrifting

	// StateSignaled means the retraining signal was delivered and the
	// cooldown is active.
	StateSignaled
)

// String returns the human-readable name for the monitor state.
func (s MonitorState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateDrifting:
		return "drifting"
	case StateSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// Config configures the drift monitor.
type Config struct {
	// Interval is how often evaluation cycles run. Default: 1 minute.
	Interval time.Duration

	// Window is the trailing ledger window each cycle evaluates.
	// Default: 24 hours.
	Window time.Duration

	// MinSamples is the minimum number of joined pairs for a conclusive
	// verdict. Cycles below it are inconclusive, never triggered.
	// Default: 50.
	MinSamples int

	// Threshold is the statistic value above which a cycle is triggered.
	// Default: 0.15.
	Threshold float64

	// Cooldown suppresses repeat signals after one is delivered, so one
	// drift episode produces one signal. Default: 1 hour.
	Cooldown time.Duration

	// Statistic computes the drift measure. Default: RateGapStatistic.
	Statistic Statistic
}

// DefaultConfig returns sensible defaults for the drift monitor.
func DefaultConfig() Config {
	return Config{
		Interval:   1 * time.Minute,
		Window:     24 * time.Hour,
		MinSamples: 50,
		Threshold:  0.15,
		Cooldown:   1 * time.Hour,
		Statistic:  NewRateGapStatistic(),
	}
}

// Monitor periodically evaluates drift and raises retraining signals.
//
// # Description
//
// Runs one evaluation cycle per interval on a single background goroutine.
// Each cycle queries the ledger for the trailing window, splits joined from
// pending pairs, computes the configured statistic over the joined ones, and
// compares it against the threshold. Cycles never overlap: if a cycle is
// still running when the next tick fires, the tick is skipped, not queued.
//
// The episode state machine rate-limits signal delivery:
//
//	Normal --breach--> Drifting --signal delivered--> Signaled
//	Drifting --recovered--> Normal
//	Drifting --delivery failed--> Drifting (retried next breached cycle)
//	Signaled --cooldown expired and recovered--> Normal
//	Signaled --cooldown expired, still breached--> Drifting (new episode)
//
// Inconclusive cycles never transition state.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Status and StatisticValue
// read a consistent snapshot without blocking evaluation.
type Monitor struct {
	cfg     Config
	ledger  ledger.Ledger
	trigger Trigger
	metrics *telemetry.Metrics
	logger  *slog.Logger

	now func() time.Time

	// cycleMu serializes evaluation cycles. The ticker path uses TryLock
	// and skips when it cannot acquire.
	cycleMu sync.Mutex

	mu           sync.RWMutex
	state        MonitorState
	lastVerdict  *datatypes.DriftVerdict
	lastValue    float64
	lastSignalAt time.Time
	history      []datatypes.DriftVerdict

	done    chan struct{}
	runMu   sync.Mutex
	running bool
}

// New creates a drift monitor.
//
// Inputs:
//
//	cfg - Monitor configuration. Zero fields take defaults.
//	store - Outcome ledger to evaluate. Must not be nil.
//	trigger - Retraining signal sink. Must not be nil.
//	metrics - Telemetry instruments. May be nil (no metrics recorded).
//	logger - Logger. May be nil (slog.Default()).
//
// Outputs:
//   - *Monitor: Ready to Start().
//   - error: Non-nil if required dependencies are missing.
func New(cfg Config, store ledger.Ledger, trigger Trigger, metrics *telemetry.Metrics, logger *slog.Logger) (*Monitor, error) {
	if store == nil {
		return nil, errors.New("ledger must not be nil")
	}
	if trigger == nil {
		return nil, errors.New("trigger must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaults.MinSamples
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if cfg.Statistic == nil {
		cfg.Statistic = defaults.Statistic
	}

	return &Monitor{
		cfg:     cfg,
		ledger:  store,
		trigger: trigger,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		state:   StateNormal,
		done:    make(chan struct{}),
	}, nil
}

// Start begins periodic evaluation. Returns an error if already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	if m.running {
		m.runMu.Unlock()
		return errors.New("monitor is already running")
	}
	m.running = true
	m.done = make(chan struct{}) // Reset done channel for potential restart
	m.runMu.Unlock()

	m.logger.Info("Drift monitor starting",
		"interval", m.cfg.Interval.String(),
		"window", m.cfg.Window.String(),
		"statistic", m.cfg.Statistic.Name(),
		"threshold", m.cfg.Threshold,
		"min_samples", m.cfg.MinSamples,
		"cooldown", m.cfg.Cooldown.String())

	go m.runLoop(ctx)
	return nil
}

// Stop gracefully stops the monitor. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return // Already stopped
	}

	m.logger.Info("Drift monitor stopping")
	close(m.done)
	m.running = false
}

// IsRunning reports whether the background loop is active.
func (m *Monitor) IsRunning() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// runLoop is the monitor goroutine.
func (m *Monitor) runLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// Run an initial cycle immediately on start.
	m.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Drift monitor stopped (context cancelled)")
			return
		case <-m.done:
			m.logger.Info("Drift monitor stopped (stop requested)")
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// runCycle executes one cycle with overlap control and error handling.
func (m *Monitor) runCycle(ctx context.Context) {
	if !m.cycleMu.TryLock() {
		// Previous cycle still running. Skip this tick, never queue it.
		m.logger.Debug("Drift cycle skipped, previous cycle still running")
		m.countCycle(ctx, "skipped")
		return
	}
	defer m.cycleMu.Unlock()

	verdict, err := m.evaluate(ctx)
	if err != nil {
		// Evaluation failures skip the cycle; the loop keeps running.
		m.logger.Error("Drift cycle failed", "error", err)
		m.countCycle(ctx, "error")
		return
	}
	m.countCycle(ctx, string(verdict.Status))
}

// EvaluateOnce runs one evaluation cycle immediately.
//
// Unlike ticker cycles, a manual evaluation waits for any in-flight cycle
// to finish instead of being skipped. Useful for tests and operational
// tooling.
func (m *Monitor) EvaluateOnce(ctx context.Context) (datatypes.DriftVerdict, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.evaluate(ctx)
}

// evaluate performs one evaluation. Caller must hold cycleMu.
func (m *Monitor) evaluate(ctx context.Context) (datatypes.DriftVerdict, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "monitor.Evaluate")
	defer span.End()

	now := m.now().UTC()
	window := ledger.TrailingWindow(now, m.cfg.Window)

	pairs, err := m.ledger.Query(ctx, window)
	if err != nil {
		telemetry.RecordError(span, err)
		return datatypes.DriftVerdict{}, fmt.Errorf("query ledger window: %w", err)
	}

	joined := make([]datatypes.JoinedPair, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Joined() {
			joined = append(joined, pair)
		}
	}
	pending := len(pairs) - len(joined)

	verdict := datatypes.DriftVerdict{
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Statistic:   m.cfg.Statistic.Name(),
		Threshold:   m.cfg.Threshold,
		SampleSize:  len(joined),
		Pending:     pending,
		EvaluatedAt: now,
	}

	if len(joined) < m.cfg.MinSamples {
		// Too few joined pairs to say anything. Expected, not an error.
		verdict.Status = datatypes.VerdictInconclusive
		m.logger.Debug("Drift cycle inconclusive",
			"joined", len(joined),
			"pending", pending,
			"min_samples", m.cfg.MinSamples)
		m.record(ctx, verdict)
		return verdict, nil
	}

	value, err := m.cfg.Statistic.Compute(joined)
	if err != nil {
		telemetry.RecordError(span, err)
		return datatypes.DriftVerdict{}, fmt.Errorf("compute %s: %w", m.cfg.Statistic.Name(), err)
	}
	verdict.Value = value

	if value > m.cfg.Threshold {
		verdict.Status = datatypes.VerdictTriggered
		verdict.Triggered = true
	} else {
		verdict.Status = datatypes.VerdictNormal
	}

	span.SetAttributes(
		attribute.String("verdict.status", string(verdict.Status)),
		attribute.Float64("verdict.value", value),
		attribute.Int("verdict.sample_size", verdict.SampleSize))

	m.advance(ctx, verdict, now)
	m.record(ctx, verdict)
	return verdict, nil
}

// advance applies one conclusive verdict to the episode state machine.
//
// Writes to episode state happen only under cycleMu, so the snapshot read
// here cannot go stale before the commit. Trigger.Raise runs outside the
// state lock so a slow webhook never blocks Status readers.
func (m *Monitor) advance(ctx context.Context, verdict datatypes.DriftVerdict, now time.Time) {
	m.mu.RLock()
	state := m.state
	lastSignalAt := m.lastSignalAt
	m.mu.RUnlock()

	cooldownExpired := lastSignalAt.IsZero() || now.Sub(lastSignalAt) >= m.cfg.Cooldown

	if !verdict.Triggered {
		switch state {
		case StateDrifting:
			// Breach cleared before the signal was ever delivered.
			m.setState(StateNormal)
			m.logger.Info("Drift episode ended before signal delivery")
		case StateSignaled:
			if cooldownExpired {
				m.setState(StateNormal)
				m.logger.Info("Drift episode ended, cooldown expired and statistic recovered")
			}
		}
		return
	}

	shouldRaise := false
	switch state {
	case StateNormal:
		m.setState(StateDrifting)
		shouldRaise = true
	case StateDrifting:
		// Delivery failed on an earlier cycle. Retry.
		shouldRaise = true
	case StateSignaled:
		if cooldownExpired {
			// Still breached after the cooldown: a new episode.
			m.setState(StateDrifting)
			shouldRaise = true
		}
	}

	if !shouldRaise {
		m.logger.Debug("Drift breach within cooldown, signal suppressed",
			"value", verdict.Value,
			"threshold", verdict.Threshold,
			"last_signal_at", lastSignalAt.Format(time.RFC3339))
		return
	}

	if err := m.trigger.Raise(ctx, verdict); err != nil {
		// Stay Drifting; the next breached cycle retries.
		m.logger.Error("Retraining signal delivery failed", "error", err)
		return
	}

	m.mu.Lock()
	m.state = StateSignaled
	m.lastSignalAt = now
	m.mu.Unlock()

	m.logger.Warn("Retraining signal delivered, cooldown active",
		"statistic", verdict.Statistic,
		"value", verdict.Value,
		"threshold", verdict.Threshold,
		"sample_size", verdict.SampleSize,
		"cooldown", m.cfg.Cooldown.String())
}

// setState commits a state transition.
func (m *Monitor) setState(state MonitorState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// record stores the verdict for the status surface and counts it.
func (m *Monitor) record(ctx context.Context, verdict datatypes.DriftVerdict) {
	m.mu.Lock()
	v := verdict
	m.lastVerdict = &v
	if verdict.Status != datatypes.VerdictInconclusive {
		m.lastValue = verdict.Value
	}
	m.history = append(m.history, verdict)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.DriftVerdictsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(verdict.Status))))
	}
}

// countCycle counts one cycle by result.
func (m *Monitor) countCycle(ctx context.Context, result string) {
	if m.metrics == nil {
		return
	}
	m.metrics.MonitorCyclesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result)))
}

// State returns the current episode state.
func (m *Monitor) State() MonitorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// StatisticValue returns the most recently computed statistic value.
//
// Inconclusive cycles do not update it, so the value reflects the last
// conclusive evaluation. Wired into the drift statistic gauge.
func (m *Monitor) StatisticValue() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastValue
}

// Status is a point-in-time snapshot of the monitor for the status endpoint.
type Status struct {
	State        string                   `json:"state"`
	Statistic    string                   `json:"statistic"`
	Threshold    float64                  `json:"threshold"`
	Window       string                   `json:"window"`
	MinSamples   int                      `json:"min_samples"`
	Cooldown     string                   `json:"cooldown"`
	LastVerdict  *datatypes.DriftVerdict  `json:"last_verdict,omitempty"`
	LastSignalAt *time.Time               `json:"last_signal_at,omitempty"`
	History      []datatypes.DriftVerdict `json:"history,omitempty"`
}

// Status returns a consistent snapshot of monitor state and verdict history.
// History is ordered oldest to newest.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:      m.state.String(),
		Statistic:  m.cfg.Statistic.Name(),
		Threshold:  m.cfg.Threshold,
		Window:     m.cfg.Window.String(),
		MinSamples: m.cfg.MinSamples,
		Cooldown:   m.cfg.Cooldown.String(),
	}
	if m.lastVerdict != nil {
		v := *m.lastVerdict
		status.LastVerdict = &v
	}
	if !m.lastSignalAt.IsZero() {
		t := m.lastSignalAt
		status.LastSignalAt = &t
	}
	if len(m.history) > 0 {
		status.History = make([]datatypes.DriftVerdict, len(m.history))
		copy(status.History, m.history)
	}
	return status
}
