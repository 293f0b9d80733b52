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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianServe/services/scoring/artifact"
	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// ArtifactResponse describes the artifact currently in service.
type ArtifactResponse struct {
	Version           string    `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	LoadedAt          time.Time `json:"loaded_at"`
	TrainedRows       int64     `json:"trained_rows"`
	ModelType         string    `json:"model_type"`
	DecisionThreshold float64   `json:"decision_threshold"`
	Features          []string  `json:"features"`
	VectorWidth       int       `json:"vector_width"`
}

// ReloadResponse is the body of a successful POST /v1/artifact/reload.
type ReloadResponse struct {
	Status          string `json:"status"`
	PreviousVersion string `json:"previous_version"`
	Version         string `json:"version"`
}

// artifactResponseFrom summarizes one artifact for the wire.
func artifactResponseFrom(art *artifact.Artifact) ArtifactResponse {
	features := make([]string, 0, len(art.Schema.Fields))
	for _, field := range art.Schema.Fields {
		features = append(features, field.Name)
	}
	return ArtifactResponse{
		Version:           art.Version,
		CreatedAt:         art.CreatedAt,
		LoadedAt:          art.LoadedAt,
		TrainedRows:       art.TrainedRows,
		ModelType:         string(art.Model.Type),
		DecisionThreshold: art.Model.DecisionThreshold,
		Features:          features,
		VectorWidth:       art.Schema.VectorWidth(),
	}
}

// HandleGetArtifact handles GET /v1/artifact.
//
// Response:
//
//	200 OK: ArtifactResponse
//	503 Service Unavailable: No scoring artifact loaded
func (h *Handlers) HandleGetArtifact(c *gin.Context) {
	art, err := h.currentArtifact()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "Scoring artifact unavailable",
			Code:  "ARTIFACT_UNAVAILABLE",
		})
		return
	}
	c.JSON(http.StatusOK, artifactResponseFrom(art))
}

// HandleArtifactReload handles POST /v1/artifact/reload.
//
// Description:
//
//	Re-reads the artifact file and swaps it in atomically. This is the
//	explicit new-version signal for deployments where the training job
//	notifies the service instead of relying on the file watcher. A failed
//	reload leaves the previous artifact in service.
//
// Response:
//
//	200 OK: ReloadResponse
//	500 Internal Server Error: Reload failed, previous artifact still serving
//	503 Service Unavailable: No adapter configured
func (h *Handlers) HandleArtifactReload(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleArtifactReload")

	if h.adapter == nil {
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "Scoring artifact unavailable",
			Code:  "ARTIFACT_UNAVAILABLE",
		})
		return
	}

	previous := h.adapter.Version()
	art, err := h.adapter.Reload()
	h.recordReload(c.Request.Context(), err)
	if err != nil {
		logger.Error("Artifact reload failed, still serving previous version",
			"serving_version", previous,
			"error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "RELOAD_FAILED",
		})
		return
	}

	logger.Info("Artifact reloaded",
		"previous_version", previous,
		"version", art.Version)

	c.JSON(http.StatusOK, ReloadResponse{
		Status:          "reloaded",
		PreviousVersion: previous,
		Version:         art.Version,
	})
}
