// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the assistant orchestrator over HTTP: a query
// endpoint, a websocket event stream, rate-limit and analytics introspection,
// and the usual health and Prometheus surfaces.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianAssist/services/assistant"
	"github.com/AleutianAI/AleutianAssist/services/assistant/analytics"
	"github.com/AleutianAI/AleutianAssist/services/assistant/ratelimit"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// validate checks request payloads beyond what JSON binding enforces.
var validate = validator.New()

// Server holds the wired components the HTTP handlers close over.
type Server struct {
	orch    *assistant.Orchestrator
	limiter *ratelimit.Limiter
	store   *analytics.SQLiteStore
	tools   *tools.Set
	logger  *slog.Logger
}

// NewServer builds a server. limiter and store may be nil; the corresponding
// endpoints then report 503.
func NewServer(orch *assistant.Orchestrator, limiter *ratelimit.Limiter, store *analytics.SQLiteStore, available *tools.Set, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orch: orch, limiter: limiter, store: store, tools: available, logger: logger}
}

// QueryRequest is the POST /v1/query payload.
type QueryRequest struct {
	Query                 string   `json:"query" validate:"required,max=4096"`
	UserID                string   `json:"user_id,omitempty" validate:"omitempty,max=128"`
	SessionID             string   `json:"session_id,omitempty" validate:"omitempty,max=128"`
	MemoryRecommendations []string `json:"memory_recommendations,omitempty" validate:"omitempty,max=16,dive,max=64"`
}

// HandleQuery runs one query through the orchestrator.
//
// A query that fails (bad decomposition, every step failing) is still a 200:
// the outcome lives in the result body. Only malformed requests and
// orchestrator contract violations map to error statuses.
func (s *Server) HandleQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.UserID == "" {
			req.UserID = ClientID(c)
		}

		result, err := s.orch.ExecuteQuery(c.Request.Context(), assistant.Request{
			Query:                 req.Query,
			UserID:                req.UserID,
			SessionID:             req.SessionID,
			Available:             s.tools,
			MemoryRecommendations: req.MemoryRecommendations,
		})
		if err != nil {
			s.logger.Error("query execution rejected", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleRateLimitStats reports the caller's current window usage.
func (s *Server) HandleRateLimitStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiting is not configured"})
			return
		}
		stats, err := s.limiter.GetStats(c.Request.Context(), ClientID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// HandleAnalyticsMetrics returns aggregate routing metrics as JSON.
// The window query parameter takes a Go duration; default 24h. The optional
// domain and tool parameters narrow the view to one detected domain or one
// routed tool.
func (s *Server) HandleAnalyticsMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage is not configured"})
			return
		}
		since, ok := sinceParam(c)
		if !ok {
			return
		}
		filter := analytics.MetricsFilter{
			Domain: c.Query("domain"),
			Tool:   c.Query("tool"),
		}
		payload, err := s.store.ExportMetrics(c.Request.Context(), since, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", payload)
	}
}

// HandleAnalyticsReport returns the plain-text accuracy report.
func (s *Server) HandleAnalyticsReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage is not configured"})
			return
		}
		since, ok := sinceParam(c)
		if !ok {
			return
		}
		report, err := s.store.GenerateReport(c.Request.Context(), since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, report)
	}
}

// HandleMisroutingPatterns lists unresolved misrouting aggregates, most
// frequent first.
func (s *Server) HandleMisroutingPatterns() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage is not configured"})
			return
		}
		patterns, err := s.store.GetMisroutingPatterns(c.Request.Context(), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"patterns": patterns})
	}
}

// HealthCheck reports liveness plus the event-stream subscriber count.
func (s *Server) HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"subscribers": s.orch.Events().SubscriberCount(),
		})
	}
}

func sinceParam(c *gin.Context) (time.Time, bool) {
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window duration"})
			return time.Time{}, false
		}
		window = d
	}
	return time.Now().Add(-window), true
}
