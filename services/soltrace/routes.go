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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all soltrace routes with the router.
//
// Description:
//
//	Registers all /v1/soltrace/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/soltrace/analyze - Run one analysis
//	GET  /v1/soltrace/health - Health check
//
// Example:
//
//	analyzer := soltrace.NewAnalyzer(fetcher)
//	handlers := soltrace.NewHandlers(analyzer, logger)
//
//	v1 := router.Group("/v1")
//	soltrace.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	st := rg.Group("/soltrace")
	{
		st.POST("/analyze", handlers.HandleAnalyze)

		st.GET("/health", handlers.HandleHealth)
	}
}
