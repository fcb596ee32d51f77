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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the /v1/shake endpoints with the router group.
//
// Endpoints:
//
//	POST /v1/shake/run      - Shake a graph document (rate limited)
//	GET  /v1/shake/runs     - List recorded runs, newest first
//	GET  /v1/shake/runs/:id - Get one recorded run with its removals
//	GET  /v1/shake/health   - Health check
//
// Example:
//
//	svc := shake.NewService(cfg, shake.WithJournal(j))
//	handlers := shake.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	shake.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	shake := rg.Group("/shake")
	{
		shake.POST("/run", handlers.RateLimit(), handlers.HandleRun)

		shake.GET("/runs", handlers.HandleListRuns)
		shake.GET("/runs/:id", handlers.HandleGetRun)

		shake.GET("/health", handlers.HandleHealth)
	}
}
