// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package soltrace

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
)

// ErrorResponse is the JSON error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AnalyzeRequest is the body of POST /v1/soltrace/analyze.
type AnalyzeRequest struct {
	Owner          string `json:"owner" binding:"required"`
	Repo           string `json:"repo" binding:"required"`
	Branch         string `json:"branch"`
	SeedPath       string `json:"seed_path" binding:"required"`
	StartFunction  string `json:"start_function" binding:"required"`
	MaxImportDepth int    `json:"max_import_depth"`
	MaxCallDepth   int    `json:"max_call_depth"`
}

// Handlers holds the HTTP handlers for the soltrace service.
type Handlers struct {
	analyzer *Analyzer
	logger   *slog.Logger
}

// NewHandlers creates handlers over the given analyzer.
func NewHandlers(analyzer *Analyzer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{analyzer: analyzer, logger: logger}
}

// HandleAnalyze handles POST /v1/soltrace/analyze.
//
// Description:
//
//	Runs one full analysis: seed ingestion, bounded import-closure
//	ingestion, call tree expansion, and report assembly.
//
// Response:
//
//	200 OK: report.Report
//	400 Bad Request: malformed body or missing required field
//	404 Not Found: seed unreachable or start function absent
//	422 Unprocessable Entity: seed fetched but failed to parse
//
// Thread Safety: Safe for concurrent use; each request gets its own
// session.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleAnalyze"))

	var body AnalyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if body.Branch == "" {
		body.Branch = "main"
	}

	req := Request{
		Coords: fetch.Coords{
			Owner:  body.Owner,
			Repo:   body.Repo,
			Branch: body.Branch,
		},
		SeedPath:       body.SeedPath,
		StartFunction:  body.StartFunction,
		MaxImportDepth: body.MaxImportDepth,
		MaxCallDepth:   body.MaxCallDepth,
	}

	rep, err := h.analyzer.Run(c.Request.Context(), req)
	if err != nil {
		logger.Warn("analysis failed", slog.String("error", err.Error()))
		c.JSON(statusForRunError(err), ErrorResponse{
			Error: err.Error(),
			Code:  codeForRunError(err),
		})
		return
	}

	c.JSON(http.StatusOK, rep)
}

// HandleHealth handles GET /v1/soltrace/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusForRunError(err error) int {
	switch {
	case errors.Is(err, ErrSeedFetch), errors.Is(err, ErrStartFunctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSeedParse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func codeForRunError(err error) string {
	switch {
	case errors.Is(err, ErrSeedFetch):
		return "SEED_FETCH_FAILED"
	case errors.Is(err, ErrSeedParse):
		return "SEED_PARSE_FAILED"
	case errors.Is(err, ErrStartFunctionNotFound):
		return "START_FUNCTION_NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
