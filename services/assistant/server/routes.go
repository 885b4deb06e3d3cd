// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every endpoint:
//
//	GET  /health                    liveness
//	GET  /metrics                   Prometheus scrape surface
//	POST /v1/query                  execute one query
//	GET  /v1/events                 websocket workflow event stream
//	GET  /v1/ratelimit/stats        caller's current window usage
//	GET  /v1/analytics/metrics      aggregate routing metrics (JSON)
//	GET  /v1/analytics/report       accuracy report (plain text)
//	GET  /v1/analytics/misrouting   unresolved misrouting patterns
func SetupRoutes(router *gin.Engine, s *Server) {
	router.GET("/health", s.HealthCheck())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(ClientIdentity())
	{
		v1.POST("/query", RateLimit(s.limiter), s.HandleQuery())
		v1.GET("/events", s.HandleEventsWebSocket())

		ratelimits := v1.Group("/ratelimit")
		{
			ratelimits.GET("/stats", s.HandleRateLimitStats())
		}

		analyticsGroup := v1.Group("/analytics")
		{
			analyticsGroup.GET("/metrics", s.HandleAnalyticsMetrics())
			analyticsGroup.GET("/report", s.HandleAnalyticsReport())
			analyticsGroup.GET("/misrouting", s.HandleMisroutingPatterns())
		}
	}
}
