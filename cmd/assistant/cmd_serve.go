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
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/pkg/logging"
	"github.com/AleutianAI/AleutianAssist/services/assistant"
	"github.com/AleutianAI/AleutianAssist/services/assistant/analytics"
	"github.com/AleutianAI/AleutianAssist/services/assistant/ratelimit"
	"github.com/AleutianAI/AleutianAssist/services/assistant/server"
	"github.com/AleutianAI/AleutianAssist/services/llm"
)

func runServe(cmd *cobra.Command, args []string) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Logging.Level),
		JSON:    config.Logging.JSON,
		LogDir:  config.Logging.Dir,
		Service: config.Logging.Service,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	var store *analytics.SQLiteStore
	if config.Analytics.Path != "" {
		var err error
		store, err = analytics.NewSQLiteStore(config.Analytics.Path, logger.Slog())
		if err != nil {
			log.Fatalf("Failed to open the analytics store: %v", err)
		}
		defer store.Close()
	} else {
		slog.Info("analytics.path not set, routing analytics disabled")
	}

	var limiter *ratelimit.Limiter
	if config.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(buildRateLimitStore(), ratelimit.Limits{
			PerMinute: config.RateLimit.PerMinute,
			PerHour:   config.RateLimit.PerHour,
		}, logger.Slog())
	}

	var llmClient llm.LLMClient
	switch config.LLM.Backend {
	case "openai":
		client, err := llm.NewOpenAIClient()
		if err != nil {
			log.Fatalf("Failed to initialize the OpenAI client: %v", err)
		}
		llmClient = client
		slog.Info("Using OpenAI LLM backend")
	case "", "none":
		slog.Info("No LLM backend configured, pattern-only mode")
	default:
		slog.Warn("Unknown LLM backend, pattern-only mode",
			slog.String("backend", config.LLM.Backend))
	}

	var recorder analytics.Recorder = analytics.Nop{}
	if store != nil {
		recorder = store
	}
	orch, err := assistant.New(assistant.Options{
		Strict:   strictRouting || config.Routing.Strict,
		LLM:      llmClient,
		Recorder: recorder,
		Logger:   logger.Slog(),
	})
	if err != nil {
		log.Fatalf("Failed to build the orchestrator: %v", err)
	}

	available := buildToolSet(logger.Slog())

	router := gin.Default()
	server.SetupRoutes(router, server.NewServer(orch, limiter, store, available, logger.Slog()))

	port := config.Server.Port
	if portOverride != 0 {
		port = portOverride
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Starting the assistant server", slog.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", slog.Any("error", err))
	}
}

// buildRateLimitStore picks redis when configured, the in-process store
// otherwise.
func buildRateLimitStore() ratelimit.Store {
	if addr := config.RateLimit.RedisAddr; addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		slog.Info("Using redis rate-limit store", slog.String("addr", addr))
		return ratelimit.NewRedisStore(client)
	}
	return ratelimit.NewLocalStore()
}
