// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package e2e exercises the scoring service through its full HTTP surface:
// real router, real Badger ledger (in memory), real drift monitor. Only the
// network listener is replaced by httptest.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianServe/services/scoring/artifact"
	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
	"github.com/AleutianAI/AleutianServe/services/scoring/handlers"
	"github.com/AleutianAI/AleutianServe/services/scoring/ledger"
	"github.com/AleutianAI/AleutianServe/services/scoring/middleware"
	"github.com/AleutianAI/AleutianServe/services/scoring/monitor"
	"github.com/AleutianAI/AleutianServe/services/scoring/routes"
	"github.com/AleutianAI/AleutianServe/services/scoring/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = datatypes.RegisterValidations(v)
	}
}

// artifactV1 scores the churn fixture. With tenure=12, usage=100, and a
// "Two year" contract: z = -1.2 + 0.24 - 1.0 - 1.1 = -3.06, so label 0.
const artifactV1 = `{
  "version": "churn-lr-2025-08-01",
  "created_at": "2025-08-01T06:00:00Z",
  "trained_rows": 42133,
  "schema": {"fields": [
    {"name": "tenure", "kind": "numeric"},
    {"name": "usage", "kind": "numeric"},
    {"name": "contract_type", "kind": "categorical",
     "levels": ["Month-to-month", "One year", "Two year"],
     "reference": "Month-to-month"}
  ]},
  "model": {"type": "logistic_regression", "intercept": -1.2,
            "coefficients": [0.02, -0.01, -0.6, -1.1],
            "decision_threshold": 0.5}
}`

// artifactV2 keeps the schema but shifts the intercept, so the same record
// crosses the threshold: z = 2.0 + 0.24 - 1.0 - 1.1 = 0.14, label 1.
const artifactV2 = `{
  "version": "churn-lr-2025-09-01",
  "created_at": "2025-09-01T06:00:00Z",
  "trained_rows": 55710,
  "schema": {"fields": [
    {"name": "tenure", "kind": "numeric"},
    {"name": "usage", "kind": "numeric"},
    {"name": "contract_type", "kind": "categorical",
     "levels": ["Month-to-month", "One year", "Two year"],
     "reference": "Month-to-month"}
  ]},
  "model": {"type": "logistic_regression", "intercept": 2.0,
            "coefficients": [0.02, -0.01, -0.6, -1.1],
            "decision_threshold": 0.5}
}`

// stack is one fully wired service instance.
type stack struct {
	router       *gin.Engine
	store        *ledger.BadgerLedger
	monitor      *monitor.Monitor
	trigger      *monitor.MockTrigger
	artifactPath string
}

// newStack wires the service the way main does, minus the listener: live
// adapter over a temp artifact, in-memory Badger ledger, drift monitor with
// a recording trigger, owned telemetry registry, and the real route table.
func newStack(t *testing.T) *stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(artifactV1), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	adapter, err := artifact.NewAdapter(path, logger)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	ledgerCfg := ledger.InMemoryConfig()
	ledgerCfg.Logger = logger
	store, err := ledger.NewBadgerLedger(ledgerCfg)
	if err != nil {
		t.Fatalf("NewBadgerLedger() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tel, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "scoring-service",
		ServiceVersion: "e2e",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
	})
	if err != nil {
		t.Fatalf("telemetry.Init() error = %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	metrics, err := telemetry.NewMetrics(tel.Meter("scoring"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	trigger := monitor.NewMockTrigger()
	mon, err := monitor.New(monitor.Config{
		Interval:   time.Hour,
		Window:     24 * time.Hour,
		MinSamples: 1,
		Threshold:  0.15,
		Cooldown:   time.Hour,
	}, store, trigger, metrics, logger)
	if err != nil {
		t.Fatalf("monitor.New() error = %v", err)
	}

	h := handlers.NewHandlers(adapter, store, logger).
		WithMonitor(mon).
		WithMetrics(metrics)

	router := gin.New()
	router.Use(telemetry.MetricsMiddleware(metrics))
	routes.SetupRoutes(router, h, middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()), tel)

	return &stack{
		router:       router,
		store:        store,
		monitor:      mon,
		trigger:      trigger,
		artifactPath: path,
	}
}

func (s *stack) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

// waitForPending polls until the ledger reports want predictions awaiting
// an outcome. The predict handler appends after responding, so the e2e
// flow has to wait for the write to land.
func (s *stack) waitForPending(t *testing.T, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.store.PendingCount(context.Background())
		if err != nil {
			t.Fatalf("PendingCount() error = %v", err)
		}
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := s.store.PendingCount(context.Background())
	t.Fatalf("ledger pending = %d, want %d", got, want)
}

var churnRecord = map[string]any{
	"tenure":        12,
	"usage":         100,
	"contract_type": "Two year",
}

// TestScoringLifecycle walks the full loop one request takes through the
// service: readiness, predict, ledger append, outcome join, drift
// evaluation, and the retraining signal.
func TestScoringLifecycle(t *testing.T) {
	s := newStack(t)

	// Service is live and ready before any traffic.
	if w := s.get(t, "/health"); w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", w.Code)
	}
	w := s.get(t, "/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /ready = %d, want 200", w.Code)
	}
	var ready handlers.ReadyResponse
	decodeInto(t, w, &ready)
	if !ready.Ready || ready.ArtifactVersion != "churn-lr-2025-08-01" {
		t.Fatalf("ready = %+v, want ready with v1 artifact", ready)
	}

	// Predict: the fixture record lands well below the threshold.
	w = s.postJSON(t, "/v1/predict", datatypes.PredictRequest{Features: churnRecord})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /v1/predict = %d, body %s", w.Code, w.Body.String())
	}
	var prediction datatypes.PredictResponse
	decodeInto(t, w, &prediction)
	if prediction.Label != 0 {
		t.Errorf("label = %d, want 0", prediction.Label)
	}
	if prediction.ModelVersion != "churn-lr-2025-08-01" {
		t.Errorf("model_version = %q, want v1", prediction.ModelVersion)
	}
	if prediction.RequestID == "" {
		t.Fatal("response carries no request_id")
	}
	if got := w.Header().Get("X-Request-ID"); got != prediction.RequestID {
		t.Errorf("X-Request-ID = %q, want %q", got, prediction.RequestID)
	}

	// The append is decoupled from the response; it lands shortly after.
	s.waitForPending(t, 1)

	// Deliver the realized outcome; the model was wrong on purpose.
	label := 1
	w = s.postJSON(t, "/v1/outcomes", datatypes.OutcomeRequest{
		RequestID:     prediction.RequestID,
		RealizedLabel: &label,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /v1/outcomes = %d, body %s", w.Code, w.Body.String())
	}
	s.waitForPending(t, 0)

	// One joined pair with a maximal rate gap: the monitor must raise.
	verdict, err := s.monitor.EvaluateOnce(context.Background())
	if err != nil {
		t.Fatalf("EvaluateOnce() error = %v", err)
	}
	if verdict.Status != datatypes.VerdictTriggered {
		t.Fatalf("verdict status = %s, want triggered (value %f)", verdict.Status, verdict.Value)
	}
	if s.trigger.RaiseCount() != 1 {
		t.Errorf("trigger raise count = %d, want 1", s.trigger.RaiseCount())
	}

	// The status endpoint reflects the signaled episode.
	w = s.get(t, "/v1/drift/status")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /v1/drift/status = %d", w.Code)
	}
	var status monitor.Status
	decodeInto(t, w, &status)
	if status.State != "signaled" {
		t.Errorf("drift state = %q, want signaled", status.State)
	}
	if status.LastVerdict == nil || !status.LastVerdict.Triggered {
		t.Errorf("last verdict = %+v, want triggered", status.LastVerdict)
	}

	// The scrape surface carries the request that just flowed through.
	w = s.get(t, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	exposition := w.Body.String()
	for _, metricName := range []string{
		"scoring_predictions_total",
		"scoring_http_requests_total",
		"scoring_drift_verdicts_total",
	} {
		if !strings.Contains(exposition, metricName) {
			t.Errorf("metrics exposition missing %s", metricName)
		}
	}
}

// TestArtifactReloadFlow verifies a new artifact takes effect for
// subsequent predictions without dropping the service.
func TestArtifactReloadFlow(t *testing.T) {
	s := newStack(t)

	w := s.get(t, "/v1/artifact")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /v1/artifact = %d", w.Code)
	}
	var art handlers.ArtifactResponse
	decodeInto(t, w, &art)
	if art.Version != "churn-lr-2025-08-01" {
		t.Fatalf("artifact version = %q, want v1", art.Version)
	}

	if err := os.WriteFile(s.artifactPath, []byte(artifactV2), 0o644); err != nil {
		t.Fatalf("write v2 artifact: %v", err)
	}
	w = s.postJSON(t, "/v1/artifact/reload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /v1/artifact/reload = %d, body %s", w.Code, w.Body.String())
	}
	var reload handlers.ReloadResponse
	decodeInto(t, w, &reload)
	if reload.PreviousVersion != "churn-lr-2025-08-01" || reload.Version != "churn-lr-2025-09-01" {
		t.Fatalf("reload = %+v, want v1 to v2", reload)
	}

	// Same record, new intercept: the prediction flips.
	w = s.postJSON(t, "/v1/predict", datatypes.PredictRequest{Features: churnRecord})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /v1/predict = %d", w.Code)
	}
	var prediction datatypes.PredictResponse
	decodeInto(t, w, &prediction)
	if prediction.ModelVersion != "churn-lr-2025-09-01" {
		t.Errorf("model_version = %q, want v2", prediction.ModelVersion)
	}
	if prediction.Label != 1 {
		t.Errorf("label = %d, want 1 under the v2 intercept", prediction.Label)
	}
}

// TestPredictValidationSurface verifies the HTTP error contract for the
// request shapes clients actually get wrong.
func TestPredictValidationSurface(t *testing.T) {
	s := newStack(t)

	cases := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed JSON",
			body:     `{"features": `,
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_REQUEST",
		},
		{
			name:     "missing features",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_REQUEST",
		},
		{
			name:     "missing schema field",
			body:     `{"features": {"tenure": 12, "usage": 100}}`,
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "MISSING_FEATURE",
		},
		{
			name:     "unknown category",
			body:     `{"features": {"tenure": 12, "usage": 100, "contract_type": "Decade"}}`,
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "UNKNOWN_CATEGORY",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantCode, w.Body.String())
			}
			var errResp datatypes.ErrorResponse
			decodeInto(t, w, &errResp)
			if errResp.Code != tc.wantErr {
				t.Errorf("error code = %q, want %q", errResp.Code, tc.wantErr)
			}
		})
	}
}
