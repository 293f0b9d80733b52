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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// HandleOutcome handles POST /v1/outcomes.
//
// Description:
//
//	Ingests one realized outcome from the external feed. The feed is
//	at-least-once and out-of-order: the ledger upserts by request id, so
//	redelivery and outcomes arriving before their prediction are both
//	harmless. The write happens synchronously before the ack, because an
//	error response is what makes the feed redeliver.
//
// Request Body:
//
//	OutcomeRequest
//
// Response:
//
//	202 Accepted: Outcome recorded
//	400 Bad Request: Malformed body, bad request_id, or label outside {0, 1}
//	500 Internal Server Error: Ledger write failed
//	503 Service Unavailable: No ledger configured
func (h *Handlers) HandleOutcome(c *gin.Context) {
	logger := h.logger.With("handler", "HandleOutcome")

	var req datatypes.OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	logger = logger.With("request_id", req.RequestID)

	if h.store == nil {
		logger.Error("Outcome received but no ledger is configured")
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "Outcome ledger unavailable",
			Code:  "LEDGER_UNAVAILABLE",
		})
		return
	}

	update := req.Update(time.Now().UTC())

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), ledgerWriteTimeout)
	defer cancel()

	err := h.store.AppendOutcome(ctx, update)
	h.recordLedgerWrite(ctx, "outcome", err)
	if err != nil {
		logger.Error("Outcome ledger append failed", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: "Failed to record outcome",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	logger.Info("Outcome recorded",
		"realized_label", update.RealizedLabel,
		"observed_at", update.ObservedAt)

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"request_id": update.RequestID,
	})
}
