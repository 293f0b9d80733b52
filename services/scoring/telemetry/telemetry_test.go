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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "scoring-service" {
		t.Errorf("ServiceName = %q, want scoring-service", cfg.ServiceName)
	}
	if cfg.ServiceVersion == "" {
		t.Error("ServiceVersion is empty")
	}
	if cfg.TraceExporter == "" {
		t.Error("TraceExporter is empty")
	}
	if cfg.MetricExporter == "" {
		t.Error("MetricExporter is empty")
	}
	if cfg.OTLPEndpoint == "" {
		t.Error("OTLPEndpoint is empty")
	}
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, DefaultConfig()) //nolint:staticcheck
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil) error = %v, want ErrNilContext", err)
	}
}

func TestInit_UnknownTraceExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "carrier-pigeon"
	cfg.MetricExporter = "none"

	_, err := Init(context.Background(), cfg)
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("Init() error = %v, want ErrUnknownExporter", err)
	}
}

func TestInit_UnknownMetricExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "carrier-pigeon"

	_, err := Init(context.Background(), cfg)
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("Init() error = %v, want ErrUnknownExporter", err)
	}
}

func TestInit_DisabledExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	tel, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if tel.MetricsHandler() != nil {
		t.Error("MetricsHandler() should be nil with metrics disabled")
	}
	// Meter must still be usable as a no-op
	counter, err := NewMetrics(tel.Meter("disabled"))
	if err != nil {
		t.Fatalf("NewMetrics() on noop meter error = %v", err)
	}
	counter.PredictionsTotal.Add(context.Background(), 1)

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInit_PrometheusExposesOwnedRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	tel, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer tel.Shutdown(context.Background())

	handler := tel.MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() is nil after prometheus init")
	}

	metrics, err := NewMetrics(tel.Meter("scoring"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	metrics.PredictionsTotal.Add(context.Background(), 3)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "scoring_predictions_total") {
		t.Error("scrape output missing scoring_predictions_total")
	}
}

func TestInit_IndependentInstances(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	first, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() first error = %v", err)
	}
	defer first.Shutdown(context.Background())

	second, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() second error = %v", err)
	}
	defer second.Shutdown(context.Background())

	metrics, err := NewMetrics(first.Meter("scoring"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	metrics.PredictionsTotal.Add(context.Background(), 1)

	// The second instance's registry must not see the first's counter.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	second.MetricsHandler().ServeHTTP(w, req)
	if strings.Contains(w.Body.String(), "scoring_predictions_total") {
		t.Error("second registry leaked metrics recorded against the first")
	}
}
