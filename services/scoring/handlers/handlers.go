// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP handlers for the scoring service.
//
// Handlers bind and validate the wire contracts from datatypes, run the
// align-then-score path against one artifact snapshot, and feed the outcome
// ledger. Every error response carries the same shape, ErrorResponse{Error,
// Code}, with a stable machine-readable code per failure class.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianServe/services/scoring/artifact"
	"github.com/AleutianAI/AleutianServe/services/scoring/ledger"
	"github.com/AleutianAI/AleutianServe/services/scoring/monitor"
	"github.com/AleutianAI/AleutianServe/services/scoring/telemetry"
)

// ServiceVersion is the scoring service version.
const ServiceVersion = "0.1.0"

// ledgerWriteTimeout bounds each ledger write issued from a handler. The
// deadline applies after the write has been decoupled from the client's
// context, so a disconnect never shortens it.
const ledgerWriteTimeout = 5 * time.Second

// Terminal states for the predict request counter.
const (
	outcomeResponded = "responded"
	outcomeRejected  = "rejected"
)

// Handlers contains the HTTP handlers for the scoring service.
type Handlers struct {
	adapter *artifact.Adapter
	store   ledger.Ledger
	monitor *monitor.Monitor
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewHandlers creates handlers over the given artifact adapter and ledger.
// A nil logger falls back to slog.Default().
func NewHandlers(adapter *artifact.Adapter, store ledger.Ledger, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{adapter: adapter, store: store, logger: logger}
}

// WithMonitor sets the drift monitor backing the status endpoint.
func (h *Handlers) WithMonitor(m *monitor.Monitor) *Handlers {
	h.monitor = m
	return h
}

// WithMetrics sets the metrics instance. Handlers record nothing when no
// metrics are configured.
func (h *Handlers) WithMetrics(metrics *telemetry.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// currentArtifact returns the serving artifact snapshot.
func (h *Handlers) currentArtifact() (*artifact.Artifact, error) {
	if h.adapter == nil {
		return nil, artifact.ErrUnavailable
	}
	return h.adapter.Current()
}

// observePredict records the terminal state of one predict request: one
// counter increment and one latency observation, whatever the exit path.
func (h *Handlers) observePredict(ctx context.Context, outcome string, seconds float64) {
	if h.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	h.metrics.RequestsTotal.Add(ctx, 1, attrs)
	h.metrics.PredictionDuration.Record(ctx, seconds, attrs)
}

// countPrediction counts one served prediction by label and artifact version.
func (h *Handlers) countPrediction(ctx context.Context, label int, version string) {
	if h.metrics == nil {
		return
	}
	h.metrics.PredictionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("label", label),
		attribute.String("model_version", version),
	))
}

// recordLedgerWrite counts one ledger write by kind and status.
func (h *Handlers) recordLedgerWrite(ctx context.Context, kind string, err error) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.LedgerWritesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// recordReload counts one artifact reload attempt by status.
func (h *Handlers) recordReload(ctx context.Context, err error) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.ArtifactReloadsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}
