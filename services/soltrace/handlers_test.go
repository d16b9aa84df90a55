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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/report"
)

func newTestRouter(fetcher fetch.Fetcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := NewHandlers(NewAnalyzer(fetcher), nil)
	RegisterRoutes(router.Group("/v1"), handlers)
	return router
}

func postAnalyze(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/soltrace/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleAnalyzeReturnsReport(t *testing.T) {
	fetcher := fetch.NewMapFetcher(map[string]string{
		key("contracts/Token.sol"): seedSource,
	})
	router := newTestRouter(fetcher)

	w := postAnalyze(router, `{
		"owner": "acme",
		"repo": "vault",
		"branch": "main",
		"seed_path": "contracts/Token.sol",
		"start_function": "transfer"
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var rep report.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "acme/vault@main", rep.Repository)
	assert.Equal(t, "transfer", rep.StartFunction)
	require.NotNil(t, rep.CallTree)
	assert.Equal(t, "transfer", rep.CallTree.Name)
}

func TestHandleAnalyzeMissingFieldIsBadRequest(t *testing.T) {
	router := newTestRouter(fetch.NewMapFetcher(nil))

	w := postAnalyze(router, `{"owner": "acme", "repo": "vault"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Code)
}

func TestHandleAnalyzeUnreachableSeedIsNotFound(t *testing.T) {
	router := newTestRouter(fetch.NewMapFetcher(nil))

	w := postAnalyze(router, `{
		"owner": "acme",
		"repo": "vault",
		"seed_path": "contracts/Token.sol",
		"start_function": "transfer"
	}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SEED_FETCH_FAILED", resp.Code)
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(fetch.NewMapFetcher(nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/soltrace/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
