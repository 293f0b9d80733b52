// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianServe/services/scoring/handlers"
	"github.com/AleutianAI/AleutianServe/services/scoring/middleware"
	"github.com/AleutianAI/AleutianServe/services/scoring/telemetry"
)

func SetupRoutes(router *gin.Engine, h *handlers.Handlers,
	limiter *middleware.RateLimiter, tel *telemetry.Telemetry) {

	router.GET("/health", h.HandleHealth)
	router.GET("/ready", h.HandleReady)

	// Prometheus exposition stays outside the versioned group and its
	// rate limits so scrapes never contend with clients
	if tel != nil {
		if metricsHandler := tel.MetricsHandler(); metricsHandler != nil {
			router.GET("/metrics", gin.WrapH(metricsHandler))
		}
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		if limiter != nil {
			v1.Use(middleware.RateLimit(limiter))
		}
		v1.POST("/predict", h.HandlePredict)
		v1.POST("/outcomes", h.HandleOutcome)
		v1.GET("/drift/status", h.HandleDriftStatus)
		// Artifact administration routes
		artifactAdmin := v1.Group("/artifact")
		{
			artifactAdmin.GET("", h.HandleGetArtifact)
			artifactAdmin.POST("/reload", h.HandleArtifactReload)
		}
	}
}
