// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianServe/services/scoring/align"
	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// HandlePredict handles POST /v1/predict.
//
// Description:
//
//	Scores one feature record against the artifact currently in service.
//	The request moves through bind, align, and score; the first failure
//	produces the response and no partial prediction ever leaves the
//	handler. On success the prediction is appended to the outcome ledger
//	asynchronously, so ledger trouble can never fail a served prediction.
//
// Request Body:
//
//	PredictRequest
//
// Response:
//
//	200 OK: PredictResponse
//	400 Bad Request: Malformed body or invalid request_id
//	422 Unprocessable Entity: Feature set rejected by the schema
//	503 Service Unavailable: No scoring artifact loaded
func (h *Handlers) HandlePredict(c *gin.Context) {
	start := time.Now()
	outcome := outcomeRejected
	defer func() {
		h.observePredict(context.WithoutCancel(c.Request.Context()), outcome, time.Since(start).Seconds())
	}()

	logger := h.logger.With("handler", "HandlePredict")

	var req datatypes.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	// The caller-supplied id is the ledger join key; mint one otherwise.
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	logger = logger.With("request_id", requestID)

	art, err := h.currentArtifact()
	if err != nil {
		logger.Error("No scoring artifact available", "error", err)
		c.Header("Retry-After", "10")
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "Scoring artifact unavailable",
			Code:  "ARTIFACT_UNAVAILABLE",
		})
		return
	}

	vector, err := align.Align(req.Record(), art.Schema)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "INTERNAL_ERROR"

		if errors.Is(err, align.ErrMissingFeature) {
			statusCode = http.StatusUnprocessableEntity
			errCode = "MISSING_FEATURE"
		} else if errors.Is(err, align.ErrUnknownCategory) {
			statusCode = http.StatusUnprocessableEntity
			errCode = "UNKNOWN_CATEGORY"
		}

		logger.Warn("Feature alignment rejected", "error", err)
		c.JSON(statusCode, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	label, probability, err := art.Score(vector)
	if err != nil {
		logger.Error("Scoring failed", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: "Scoring failed",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	h.countPrediction(c.Request.Context(), label, art.Version)

	if h.store != nil {
		record := datatypes.PredictionRecord{
			RequestID:    requestID,
			Timestamp:    time.Now().UTC(),
			Features:     req.Record(),
			Label:        label,
			Probability:  probability,
			ModelVersion: art.Version,
		}
		// The append never blocks the response, and a disconnecting
		// client must not abort it either.
		go h.appendPrediction(context.WithoutCancel(c.Request.Context()), record)
	}

	outcome = outcomeResponded
	logger.Info("Prediction served",
		"label", label,
		"probability", probability,
		"model_version", art.Version)

	c.JSON(http.StatusOK, datatypes.PredictResponse{
		RequestID:    requestID,
		Label:        label,
		Probability:  probability,
		ModelVersion: art.Version,
	})
}

// appendPrediction writes one serve-time record with a bounded deadline.
// Failures are logged and counted, never surfaced to the client.
func (h *Handlers) appendPrediction(ctx context.Context, record datatypes.PredictionRecord) {
	ctx, cancel := context.WithTimeout(ctx, ledgerWriteTimeout)
	defer cancel()

	err := h.store.AppendPrediction(ctx, record)
	h.recordLedgerWrite(ctx, "prediction", err)
	if err != nil {
		h.logger.Error("Prediction ledger append failed",
			"request_id", record.RequestID,
			"error", err)
	}
}
