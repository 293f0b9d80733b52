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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// HandleDriftStatus handles GET /v1/drift/status.
//
// Description:
//
//	Returns a point-in-time snapshot of the drift monitor: its state
//	machine position, the configured statistic and threshold, the latest
//	verdict, and the bounded verdict history.
//
// Response:
//
//	200 OK: monitor.Status
//	503 Service Unavailable: No drift monitor configured
func (h *Handlers) HandleDriftStatus(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "Drift monitor is not configured",
			Code:  "MONITOR_NOT_CONFIGURED",
		})
		return
	}
	c.JSON(http.StatusOK, h.monitor.Status())
}
