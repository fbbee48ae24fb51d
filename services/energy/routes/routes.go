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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianFlux/services/energy/handlers"
)

// SetupRoutes registers the API on router. metrics serves GET /metrics and
// may be nil.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers, metrics http.Handler) {
	router.GET("/health", handlers.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/state", h.GetState)
		v1.POST("/period", h.ChangePeriod)
		v1.POST("/editing", h.SetEditing)
		v1.GET("/flux", h.GetFlux)
		v1.POST("/flux", h.AnalyseFlux)
		v1.POST("/analyze", h.Analyze)

		tree := v1.Group("/tree")
		{
			tree.POST("/attach", h.Attach)
			tree.POST("/detach", h.Detach)
			tree.POST("/union", h.CreateUnion)
			tree.POST("/move", h.Move)
			tree.PATCH("/node", h.EditNode)
			tree.POST("/save", h.Save)
		}
	}
}
