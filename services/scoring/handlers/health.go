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
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the body of GET /ready.
type ReadyResponse struct {
	Ready           bool   `json:"ready"`
	ArtifactVersion string `json:"artifact_version,omitempty"`
	MonitorRunning  bool   `json:"monitor_running"`
}

// HandleHealth handles GET /health. Liveness only: the process is up and
// serving, regardless of artifact state.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /ready.
//
// Description:
//
//	Readiness requires a loaded scoring artifact; a scorer with no model
//	must not receive traffic. Returns 503 with Retry-After until the
//	artifact is in service.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	version := ""
	if h.adapter != nil {
		version = h.adapter.Version()
	}

	resp := ReadyResponse{
		Ready:           version != "",
		ArtifactVersion: version,
		MonitorRunning:  h.monitor != nil && h.monitor.IsRunning(),
	}

	if !resp.Ready {
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}
