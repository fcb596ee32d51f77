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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/shake/services/shake/graphdoc"
	"github.com/AleutianAI/shake/services/shake/journal"
)

// defaultListLimit bounds GET /v1/shake/runs when no limit is given.
const defaultListLimit = 50

// Handlers contains the HTTP handlers for the shake service.
type Handlers struct {
	svc     *Service
	limiter *rate.Limiter
}

// NewHandlers creates handlers for svc. Requests to the run endpoint are
// limited to the rate and burst of the service configuration at creation.
func NewHandlers(svc *Service) *Handlers {
	server := svc.Config().Server
	return &Handlers{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(server.RateLimit), server.Burst),
	}
}

// HandleRun handles POST /v1/shake/run.
//
// Description:
//
//	Decodes the graph document in the request, shakes it and returns the
//	report. The body is capped at server.max_body_bytes.
//
// Request Body:
//
//	RunRequest
//
// Response:
//
//	200 OK: RunResponse
//	400 Bad Request: Invalid body or graph document
//	413 Request Entity Too Large: Body over the limit
//	422 Unprocessable Entity: Unsupported document format
//	499/504: Request cancelled or timed out
//	500 Internal Server Error: Run failed
func (h *Handlers) HandleRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRun")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.svc.Config().Server.MaxBodyBytes)

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("Request body too large", "limit", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: "Request body too large",
				Code:  "BODY_TOO_LARGE",
			})
			return
		}
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.svc.Shake(c.Request.Context(), req)
	if err != nil {
		status, code := runErrorStatus(err)
		logger.Error("Run failed", "error", err, "code", code)
		c.JSON(status, ErrorResponse{
			Error: err.Error(),
			Code:  code,
		})
		return
	}

	logger.Info("Run complete",
		"run_id", resp.RunID,
		"assembly", resp.Report.Assembly,
		"removed", resp.Report.Result.Total)
	c.JSON(http.StatusOK, resp)
}

// runErrorStatus maps a Shake error to an HTTP status and error code.
func runErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, graphdoc.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT"
	case errors.Is(err, graphdoc.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_GRAPH"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "RUN_TIMEOUT"
	case errors.Is(err, context.Canceled):
		return 499, "RUN_CANCELLED"
	default:
		return http.StatusInternalServerError, "RUN_FAILED"
	}
}

// HandleListRuns handles GET /v1/shake/runs.
//
// Query Parameters:
//
//	limit - Maximum number of runs (default 50, 0 for all)
//
// Response:
//
//	200 OK: ListRunsResponse
//	400 Bad Request: Invalid limit
//	404 Not Found: Journal disabled
func (h *Handlers) HandleListRuns(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListRuns")

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a non-negative integer",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = n
	}

	runs, err := h.svc.Runs(c.Request.Context(), limit)
	if err != nil {
		h.journalError(c, logger, err)
		return
	}
	if runs == nil {
		runs = []journal.RunRecord{}
	}
	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs, Count: len(runs)})
}

// HandleGetRun handles GET /v1/shake/runs/:id.
//
// Response:
//
//	200 OK: journal.RunRecord
//	404 Not Found: Unknown run or journal disabled
func (h *Handlers) HandleGetRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetRun")

	rec, err := h.svc.RunRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.journalError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) journalError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrJournalDisabled):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "JOURNAL_DISABLED"})
	case errors.Is(err, ErrRunNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
	default:
		logger.Error("Journal query failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "JOURNAL_ERROR"})
	}
}

// HandleHealth handles GET /v1/shake/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Journal: h.svc.HasJournal(),
	})
}

// RateLimit rejects requests beyond the handler's rate with 429.
func (h *Handlers) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Too many requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// getOrCreateRequestID returns the X-Request-ID header or generates one,
// echoing it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
