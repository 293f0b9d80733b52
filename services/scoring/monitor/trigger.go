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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// webhookTimeout bounds one signal delivery attempt. The monitor retries on
// the next breached cycle, so a short timeout is enough.
const webhookTimeout = 10 * time.Second

// Trigger delivers triggered drift verdicts to the external retraining
// system, which owns the decision of whether and when to actually retrain.
type Trigger interface {
	// Raise delivers one triggered verdict. The monitor calls Raise from a
	// single goroutine, at most once per cooldown period.
	Raise(ctx context.Context, verdict datatypes.DriftVerdict) error
}

// LogTrigger writes retraining signals to the log.
//
// The default trigger when no webhook is configured: operators alert on the
// log line or on the drift metrics instead.
type LogTrigger struct {
	logger *slog.Logger
}

// NewLogTrigger creates a log-only trigger.
func NewLogTrigger(logger *slog.Logger) *LogTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTrigger{logger: logger}
}

// Raise logs the verdict and always succeeds.
func (t *LogTrigger) Raise(_ context.Context, verdict datatypes.DriftVerdict) error {
	t.logger.Warn("Retraining signal raised",
		"statistic", verdict.Statistic,
		"value", verdict.Value,
		"threshold", verdict.Threshold,
		"sample_size", verdict.SampleSize,
		"window_start", verdict.WindowStart.Format(time.RFC3339),
		"window_end", verdict.WindowEnd.Format(time.RFC3339))
	return nil
}

// WebhookTrigger POSTs triggered verdicts to the retraining endpoint as JSON.
type WebhookTrigger struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookTrigger creates a webhook trigger for the given endpoint URL.
//
// Inputs:
//
//	rawURL - Retraining endpoint. Must be an absolute http(s) URL.
//	logger - Logger for delivery attempts. May be nil.
//
// Outputs:
//   - *WebhookTrigger: The trigger.
//   - error: Non-nil if the URL is invalid.
func NewWebhookTrigger(rawURL string, logger *slog.Logger) (*WebhookTrigger, error) {
	if rawURL == "" {
		return nil, errors.New("webhook url must not be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse webhook url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("webhook url must be http or https, got: %q", parsed.Scheme)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookTrigger{
		url:    rawURL,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}, nil
}

// Raise delivers the verdict. Any non-2xx response is an error, leaving the
// monitor free to retry on the next breached cycle.
func (t *WebhookTrigger) Raise(ctx context.Context, verdict datatypes.DriftVerdict) error {
	body, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("encode drift verdict: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver retraining signal: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("retraining endpoint returned status %d", resp.StatusCode)
	}

	t.logger.Info("Retraining signal delivered",
		"url", t.url,
		"statistic", verdict.Statistic,
		"value", verdict.Value)
	return nil
}

// MockTrigger records raised verdicts for testing.
type MockTrigger struct {
	mu     sync.RWMutex
	raised []datatypes.DriftVerdict

	// RaiseErr, when set, makes every Raise fail.
	RaiseErr error
}

// NewMockTrigger creates a new mock trigger.
func NewMockTrigger() *MockTrigger {
	return &MockTrigger{
		raised: make([]datatypes.DriftVerdict, 0),
	}
}

// Raise records the verdict.
func (t *MockTrigger) Raise(_ context.Context, verdict datatypes.DriftVerdict) error {
	if t.RaiseErr != nil {
		return t.RaiseErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raised = append(t.raised, verdict)
	return nil
}

// RaiseCount returns the number of delivered signals.
func (t *MockTrigger) RaiseCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.raised)
}

// Raised returns a copy of the delivered verdicts.
func (t *MockTrigger) Raised() []datatypes.DriftVerdict {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]datatypes.DriftVerdict, len(t.raised))
	copy(out, t.raised)
	return out
}

// Compile-time interface checks.
var (
	_ Trigger = (*LogTrigger)(nil)
	_ Trigger = (*WebhookTrigger)(nil)
	_ Trigger = (*MockTrigger)(nil)
)
