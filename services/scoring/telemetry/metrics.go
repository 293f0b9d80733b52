// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the scoring service.
//
// Description:
//
//	Provides standard counters, histograms, and gauges for HTTP requests,
//	predictions, ledger writes, artifact reloads, and drift monitor cycles.
//	All metrics use the "scoring_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks currently active HTTP requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Prediction Metrics ---

	// RequestsTotal counts predict requests by terminal state
	// (responded, rejected). Incremented exactly once per request.
	RequestsTotal metric.Int64Counter

	// PredictionsTotal counts scored predictions by label and model version.
	PredictionsTotal metric.Int64Counter

	// PredictionDuration records predict request duration in seconds,
	// observed once at scope exit for every terminal state.
	PredictionDuration metric.Float64Histogram

	// --- Ledger Metrics ---

	// LedgerWritesTotal counts ledger writes by kind (prediction, outcome)
	// and status (ok, error).
	LedgerWritesTotal metric.Int64Counter

	// LedgerPending tracks predictions awaiting an outcome. Registered via
	// RegisterLedgerPending.
	LedgerPending metric.Int64ObservableGauge

	// --- Artifact Metrics ---

	// ArtifactReloadsTotal counts artifact reload attempts by status.
	ArtifactReloadsTotal metric.Int64Counter

	// ArtifactInfo reports 1 with the serving artifact version as an
	// attribute. Registered via RegisterArtifactInfo.
	ArtifactInfo metric.Int64ObservableGauge

	// --- Drift Monitor Metrics ---

	// MonitorCyclesTotal counts monitor evaluations by result
	// (normal, triggered, inconclusive, skipped, error).
	MonitorCyclesTotal metric.Int64Counter

	// DriftVerdictsTotal counts verdicts by status.
	DriftVerdictsTotal metric.Int64Counter

	// DriftStatistic reports the latest computed drift statistic value.
	// Registered via RegisterDriftStatistic.
	DriftStatistic metric.Float64ObservableGauge

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by type and component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Description:
//
//	Registers all pre-defined metrics with the provided meter.
//	Returns an error if any metric registration fails. Observable gauges
//	are registered separately via the Register* methods once their value
//	sources exist.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters and histograms initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	meter := otel.Meter("scoring")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.PredictionsTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- HTTP Metrics ---
	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"scoring_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"scoring_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"scoring_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	// --- Prediction Metrics ---
	m.RequestsTotal, err = meter.Int64Counter(
		"scoring_requests_total",
		metric.WithDescription("Predict requests by terminal state"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create requests_total: %w", err)
	}

	m.PredictionsTotal, err = meter.Int64Counter(
		"scoring_predictions_total",
		metric.WithDescription("Total predictions served"),
		metric.WithUnit("{prediction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create predictions_total: %w", err)
	}

	m.PredictionDuration, err = meter.Float64Histogram(
		"scoring_prediction_duration_seconds",
		metric.WithDescription("Predict request duration from receipt to terminal state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create prediction_duration: %w", err)
	}

	// --- Ledger Metrics ---
	m.LedgerWritesTotal, err = meter.Int64Counter(
		"scoring_ledger_writes_total",
		metric.WithDescription("Total ledger writes by kind and status"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_writes_total: %w", err)
	}

	// Note: LedgerPending requires a callback registration, handled separately

	// --- Artifact Metrics ---
	m.ArtifactReloadsTotal, err = meter.Int64Counter(
		"scoring_artifact_reloads_total",
		metric.WithDescription("Total artifact reload attempts by status"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create artifact_reloads_total: %w", err)
	}

	// --- Drift Monitor Metrics ---
	m.MonitorCyclesTotal, err = meter.Int64Counter(
		"scoring_monitor_cycles_total",
		metric.WithDescription("Total drift monitor evaluation cycles by result"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create monitor_cycles_total: %w", err)
	}

	m.DriftVerdictsTotal, err = meter.Int64Counter(
		"scoring_drift_verdicts_total",
		metric.WithDescription("Total drift verdicts by status"),
		metric.WithUnit("{verdict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create drift_verdicts_total: %w", err)
	}

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"scoring_errors_total",
		metric.WithDescription("Total errors by type and component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterLedgerPending registers a callback for the pending-outcome gauge.
//
// Description:
//
//	Sets up an observable gauge that reports how many predictions are still
//	waiting for a realized outcome. The callback is invoked each time
//	metrics are scraped.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	pendingFunc - A function that returns the current pending count.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterLedgerPending(meter metric.Meter, pendingFunc func() int64) (metric.Registration, error) {
	var err error
	m.LedgerPending, err = meter.Int64ObservableGauge(
		"scoring_ledger_pending",
		metric.WithDescription("Predictions awaiting a realized outcome"),
		metric.WithUnit("{prediction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_pending: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.LedgerPending, pendingFunc())
		return nil
	}, m.LedgerPending)
}

// RegisterArtifactInfo registers a callback for the artifact info gauge.
//
// Description:
//
//	Sets up an observable gauge that always reports 1 with the serving
//	artifact version attached as an attribute, the usual Prometheus idiom
//	for exposing build or model identity.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	versionFunc - A function that returns the serving artifact version.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterArtifactInfo(meter metric.Meter, versionFunc func() string) (metric.Registration, error) {
	var err error
	m.ArtifactInfo, err = meter.Int64ObservableGauge(
		"scoring_artifact_info",
		metric.WithDescription("Serving artifact identity (value is always 1)"),
		metric.WithUnit("{artifact}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create artifact_info: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.ArtifactInfo, 1, metric.WithAttributes(
			attribute.String("version", versionFunc()),
		))
		return nil
	}, m.ArtifactInfo)
}

// RegisterDriftStatistic registers a callback for the drift statistic gauge.
//
// Description:
//
//	Sets up an observable gauge that reports the most recently computed
//	drift statistic value with the statistic name as an attribute.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	statisticName - Name of the configured statistic (e.g. "rate_gap").
//	valueFunc - A function that returns the latest computed value.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterDriftStatistic(meter metric.Meter, statisticName string, valueFunc func() float64) (metric.Registration, error) {
	var err error
	m.DriftStatistic, err = meter.Float64ObservableGauge(
		"scoring_drift_statistic",
		metric.WithDescription("Latest computed drift statistic value"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create drift_statistic: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(m.DriftStatistic, valueFunc(), metric.WithAttributes(
			attribute.String("statistic", statisticName),
		))
		return nil
	}, m.DriftStatistic)
}
