// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

const (
	defaultServerURL = "http://localhost:12310"
	requestTimeout   = 30 * time.Second
)

// errUnreachable marks transport failures so commands can suggest checking
// the service instead of showing a bare dial error.
var errUnreachable = errors.New("scoring service unreachable")

var httpClient = &http.Client{Timeout: requestTimeout}

// =============================================================================
// RESPONSE SHAPES
// =============================================================================

// The CLI declares its own views of the service responses so a wire change
// shows up here as a decode failure instead of a silent drift.

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type readyResponse struct {
	Ready           bool   `json:"ready"`
	ArtifactVersion string `json:"artifact_version,omitempty"`
	MonitorRunning  bool   `json:"monitor_running"`
}

type artifactResponse struct {
	Version           string    `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	LoadedAt          time.Time `json:"loaded_at"`
	TrainedRows       int64     `json:"trained_rows"`
	ModelType         string    `json:"model_type"`
	DecisionThreshold float64   `json:"decision_threshold"`
	Features          []string  `json:"features"`
	VectorWidth       int       `json:"vector_width"`
}

type reloadResponse struct {
	Status          string `json:"status"`
	PreviousVersion string `json:"previous_version"`
	Version         string `json:"version"`
}

type driftStatusResponse struct {
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

type outcomeAck struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

type serverError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// TRANSPORT
// =============================================================================

// resolveServerURL picks the scoring service base URL. The --server flag
// wins, then SCORING_SERVER_URL, then the local default.
func resolveServerURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if env := os.Getenv("SCORING_SERVER_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return defaultServerURL
}

// doRequest executes one API call and returns the raw body and status code.
// Transport failures wrap errUnreachable; status handling is the caller's.
func doRequest(method, url string, payload any) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request body: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// apiError turns a non-2xx response into a readable error, preferring the
// service's own message when the body carries one.
func apiError(op string, status int, body []byte) error {
	var se serverError
	if err := json.Unmarshal(body, &se); err == nil && se.Error != "" {
		return fmt.Errorf("%s: %s (status %d)", op, se.Error, status)
	}
	return fmt.Errorf("%s: scoring service returned status %d", op, status)
}

// =============================================================================
// API OPERATIONS
// =============================================================================

func fetchHealth(baseURL string) (healthResponse, error) {
	var health healthResponse
	body, status, err := doRequest(http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return health, err
	}
	if status != http.StatusOK {
		return health, apiError("health check", status, body)
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return health, fmt.Errorf("failed to parse health response: %w", err)
	}
	return health, nil
}

// fetchReady returns the readiness report. A 503 is a valid "not ready"
// answer, not an error; the body is decoded either way.
func fetchReady(baseURL string) (readyResponse, error) {
	var ready readyResponse
	body, status, err := doRequest(http.MethodGet, baseURL+"/ready", nil)
	if err != nil {
		return ready, err
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return ready, apiError("readiness check", status, body)
	}
	if err := json.Unmarshal(body, &ready); err != nil {
		return ready, fmt.Errorf("failed to parse readiness response: %w", err)
	}
	return ready, nil
}

func fetchArtifact(baseURL string) (artifactResponse, error) {
	var art artifactResponse
	body, status, err := doRequest(http.MethodGet, baseURL+"/v1/artifact", nil)
	if err != nil {
		return art, err
	}
	if status != http.StatusOK {
		return art, apiError("artifact lookup", status, body)
	}
	if err := json.Unmarshal(body, &art); err != nil {
		return art, fmt.Errorf("failed to parse artifact response: %w", err)
	}
	return art, nil
}

func triggerReload(baseURL string) (reloadResponse, error) {
	var reload reloadResponse
	body, status, err := doRequest(http.MethodPost, baseURL+"/v1/artifact/reload", nil)
	if err != nil {
		return reload, err
	}
	if status != http.StatusOK {
		return reload, apiError("artifact reload", status, body)
	}
	if err := json.Unmarshal(body, &reload); err != nil {
		return reload, fmt.Errorf("failed to parse reload response: %w", err)
	}
	return reload, nil
}

func fetchDriftStatus(baseURL string) (driftStatusResponse, error) {
	var drift driftStatusResponse
	body, status, err := doRequest(http.MethodGet, baseURL+"/v1/drift/status", nil)
	if err != nil {
		return drift, err
	}
	if status != http.StatusOK {
		return drift, apiError("drift status", status, body)
	}
	if err := json.Unmarshal(body, &drift); err != nil {
		return drift, fmt.Errorf("failed to parse drift status response: %w", err)
	}
	return drift, nil
}

func sendPredictRequest(baseURL string, req datatypes.PredictRequest) (datatypes.PredictResponse, error) {
	var prediction datatypes.PredictResponse
	body, status, err := doRequest(http.MethodPost, baseURL+"/v1/predict", req)
	if err != nil {
		return prediction, err
	}
	if status != http.StatusOK {
		return prediction, apiError("predict", status, body)
	}
	if err := json.Unmarshal(body, &prediction); err != nil {
		return prediction, fmt.Errorf("failed to parse predict response: %w", err)
	}
	return prediction, nil
}

func sendOutcomeRequest(baseURL string, req datatypes.OutcomeRequest) (outcomeAck, error) {
	var ack outcomeAck
	body, status, err := doRequest(http.MethodPost, baseURL+"/v1/outcomes", req)
	if err != nil {
		return ack, err
	}
	if status != http.StatusAccepted {
		return ack, apiError("outcome", status, body)
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return ack, fmt.Errorf("failed to parse outcome response: %w", err)
	}
	return ack, nil
}
