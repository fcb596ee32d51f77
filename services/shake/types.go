// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shake

import (
	"encoding/json"

	"github.com/AleutianAI/shake/services/shake/graphdoc"
	"github.com/AleutianAI/shake/services/shake/journal"
)

// ServiceVersion is the shake service version.
const ServiceVersion = "0.1.0"

// RunRequest is the request body for POST /v1/shake/run.
type RunRequest struct {
	// Graph is a graph document: a JSON object, or a JSON string holding
	// the YAML form. Required.
	Graph json.RawMessage `json:"graph" binding:"required"`

	// Except adds entries to the configured exception list.
	Except []string `json:"except"`

	// OverloadMatching overrides the configured matching, "coarse" or "strict".
	OverloadMatching string `json:"overload_matching" binding:"omitempty,oneof=coarse strict"`

	// DropStaleImports overrides the configured import cleanup.
	DropStaleImports *bool `json:"drop_stale_imports"`

	// ReturnGraph includes the shaken graph in the response.
	ReturnGraph bool `json:"return_graph"`

	// Source is a free-form label stored with the run.
	Source string `json:"source"`
}

// RunResponse is the response for POST /v1/shake/run.
type RunResponse struct {
	// RunID identifies the run in the journal.
	RunID string `json:"run_id"`

	// Report summarizes the run.
	Report *Report `json:"report"`

	// Graph is the shaken graph, when requested.
	Graph *graphdoc.Document `json:"graph,omitempty"`
}

// ListRunsResponse is the response for GET /v1/shake/runs.
type ListRunsResponse struct {
	Runs  []journal.RunRecord `json:"runs"`
	Count int                 `json:"count"`
}

// HealthResponse is the response for GET /v1/shake/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Journal bool   `json:"journal"`
}

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`

	// Code is a stable machine-readable code.
	Code string `json:"code"`

	// Details carries extra context, such as the document path of a
	// decode error.
	Details string `json:"details,omitempty"`
}
