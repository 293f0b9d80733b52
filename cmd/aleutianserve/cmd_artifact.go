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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianServe/pkg/ux"
	"github.com/AleutianAI/AleutianServe/services/scoring/artifact"
	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	artifactJSONOutput bool // Output as JSON
	artifactColumns    bool // Show the encoded vector layout
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// artifactCmd groups artifact operations. Inspect and validate work on a
// local file before it is shipped; show and reload talk to a running
// service.
var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect, validate, and manage scoring artifacts",
	Long: `Works with scoring artifacts, the versioned JSON documents the
training job hands to the service.

'inspect' and 'validate' read a local artifact file, so a new artifact
can be checked before it replaces the live one. 'show' and 'reload'
operate on the artifact a running service currently serves.`,
}

// artifactInspectCmd prints the contents of a local artifact file.
//
// # Description
//
// Loads the artifact through the same code path the service uses, so an
// artifact that inspects cleanly here will also load there. Prints the
// version, model metadata, and the feature schema.
//
// # Examples
//
//	aleutianserve artifact inspect model/churn.json
//	aleutianserve artifact inspect model/churn.json --columns
//	aleutianserve artifact inspect model/churn.json --json
var artifactInspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Print the contents of a local artifact file",
	Args:  cobra.ExactArgs(1),
	Run:   runArtifactInspectCommand,
}

// artifactValidateCmd checks a local artifact file and reports each check.
//
// # Description
//
// The pre-deployment gate: run this against a freshly trained artifact
// before copying it over the live one. Exits 1 when the artifact would be
// rejected by the service, so it can guard a deployment script.
//
// # Examples
//
//	aleutianserve artifact validate model/churn.json && cp model/churn.json /srv/scoring/
var artifactValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a local artifact file before deployment",
	Args:  cobra.ExactArgs(1),
	Run:   runArtifactValidateCommand,
}

// artifactShowCmd reports the artifact a running service is serving.
var artifactShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the artifact the scoring service currently serves",
	Run:   runArtifactShowCommand,
}

// artifactReloadCmd asks a running service to reload its artifact now.
//
// The service watches the artifact file and reloads on change, so this is
// only needed when the watcher is disabled or a reload must not wait for
// the debounce.
var artifactReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the scoring service to reload its artifact from disk",
	Run:   runArtifactReloadCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	artifactInspectCmd.Flags().BoolVar(&artifactJSONOutput, "json", false,
		"Output as JSON for scripting")
	artifactInspectCmd.Flags().BoolVar(&artifactColumns, "columns", false,
		"Show the encoded vector layout with per-column coefficients")
	artifactShowCmd.Flags().BoolVar(&artifactJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runArtifactInspectCommand(cmd *cobra.Command, args []string) {
	path := args[0]
	art, err := artifact.Load(path)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if artifactJSONOutput {
		outputJSON(art)
		return
	}

	ux.Title("Artifact " + art.Version)
	ux.Field("model_type", string(art.Model.Type))
	if !art.CreatedAt.IsZero() {
		ux.Field("created_at", formatTime(art.CreatedAt))
	}
	if art.TrainedRows > 0 {
		ux.Field("trained_rows", strconv.FormatInt(art.TrainedRows, 10))
	}
	ux.Field("decision_threshold", formatProbability(art.Model.DecisionThreshold))
	ux.Field("fields", strconv.Itoa(len(art.Schema.Fields)))
	ux.Field("vector_width", strconv.Itoa(art.Schema.VectorWidth()))

	ux.Title("Schema")
	for i := range art.Schema.Fields {
		field := &art.Schema.Fields[i]
		switch field.Kind {
		case datatypes.FieldKindNumeric:
			ux.Info(field.Name + " (numeric)")
		case datatypes.FieldKindCategorical:
			ux.Info(fmt.Sprintf("%s (categorical: %s; reference %q)",
				field.Name, strings.Join(field.Levels, ", "), field.Reference))
		}
	}

	if artifactColumns {
		ux.Title("Vector Layout")
		for i, name := range art.Schema.ColumnNames() {
			ux.Info(fmt.Sprintf("[%d] %s  coefficient=%s",
				i, name, strconv.FormatFloat(art.Model.Coefficients[i], 'g', -1, 64)))
		}
	}
}

func runArtifactValidateCommand(cmd *cobra.Command, args []string) {
	path := args[0]
	ux.Title("Validating " + path)

	// Load runs the full structural validation the service applies at
	// startup and on reload, so pass/fail here matches the service.
	art, err := artifact.Load(path)
	if err != nil {
		ux.CheckStatus("artifact loads", ux.IconError, "")
		ux.Error(err.Error())
		ux.Summary(0, 0, 1)
		os.Exit(1)
	}

	schema := &art.Schema
	ux.CheckStatus("artifact loads", ux.IconSuccess, art.Version)
	ux.CheckStatus("model type", ux.IconSuccess, string(art.Model.Type))
	ux.CheckStatus("schema", ux.IconSuccess,
		fmt.Sprintf("%d fields, vector width %d", len(schema.Fields), schema.VectorWidth()))
	ux.CheckStatus("coefficients", ux.IconSuccess,
		fmt.Sprintf("%d weights match schema width", len(art.Model.Coefficients)))
	ux.CheckStatus("decision threshold", ux.IconSuccess,
		formatProbability(art.Model.DecisionThreshold))
	passed := 5

	// Optional training metadata is worth a warning: the service loads
	// the artifact either way, but provenance questions get harder.
	warnings := 0
	if art.TrainedRows > 0 {
		ux.CheckStatus("trained rows", ux.IconSuccess, strconv.FormatInt(art.TrainedRows, 10))
		passed++
	} else {
		ux.CheckStatus("trained rows", ux.IconWarning, "not recorded")
		warnings++
	}
	if !art.CreatedAt.IsZero() {
		ux.CheckStatus("created at", ux.IconSuccess, formatTime(art.CreatedAt))
		passed++
	} else {
		ux.CheckStatus("created at", ux.IconWarning, "not recorded")
		warnings++
	}

	ux.Summary(passed, warnings, 0)
	if warnings > 0 {
		ux.Hint("missing metadata does not block deployment, but makes provenance harder to trace")
	}
}

func runArtifactShowCommand(cmd *cobra.Command, args []string) {
	baseURL := resolveServerURL()
	art, err := fetchArtifact(baseURL)
	if err != nil {
		ux.Error(err.Error())
		if errors.Is(err, errUnreachable) {
			ux.Hint("is the scoring service running at " + baseURL + "?")
		}
		os.Exit(1)
	}

	if artifactJSONOutput {
		outputJSON(art)
		return
	}

	ux.Title("Artifact " + art.Version)
	ux.Field("model_type", art.ModelType)
	ux.Field("created_at", formatTime(art.CreatedAt))
	ux.Field("loaded_at", formatTime(art.LoadedAt))
	if art.TrainedRows > 0 {
		ux.Field("trained_rows", strconv.FormatInt(art.TrainedRows, 10))
	}
	ux.Field("decision_threshold", formatProbability(art.DecisionThreshold))
	ux.Field("vector_width", strconv.Itoa(art.VectorWidth))
	ux.Field("features", strings.Join(art.Features, ", "))
}

func runArtifactReloadCommand(cmd *cobra.Command, args []string) {
	baseURL := resolveServerURL()
	reload, err := triggerReload(baseURL)
	if err != nil {
		ux.Error(err.Error())
		if errors.Is(err, errUnreachable) {
			ux.Hint("is the scoring service running at " + baseURL + "?")
		}
		os.Exit(1)
	}

	if reload.PreviousVersion == reload.Version {
		ux.Success("Reloaded artifact " + reload.Version + " (version unchanged)")
		return
	}
	ux.Success("Reloaded artifact: " + reload.PreviousVersion + " is now " + reload.Version)
}
