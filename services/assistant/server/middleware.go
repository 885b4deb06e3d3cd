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
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/services/assistant/ratelimit"
)

// clientIDKey is the gin context key the identity middleware stores under.
const clientIDKey = "assistant_client_id"

// ClientID returns the identity the middleware resolved for this request,
// or "anonymous" when the middleware did not run.
func ClientID(c *gin.Context) string {
	if v, ok := c.Get(clientIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anonymous"
}

// ClientIdentity resolves a stable per-client identity for rate limiting
// and analytics. The chain, most to least specific:
//
//  1. X-User-ID header
//  2. X-Session-ID header
//  3. Authorization bearer token prefix (first 12 characters)
//  4. first X-Forwarded-For entry
//  5. the remote address
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(clientIDKey, resolveClientID(c))
		c.Next()
	}
}

func resolveClientID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
		return "user:" + id
	}
	if id := strings.TrimSpace(c.GetHeader("X-Session-ID")); id != "" {
		return "session:" + id
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != "" {
			if len(token) > 12 {
				token = token[:12]
			}
			return "key:" + token
		}
	}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return "ip:" + first
		}
	}
	return "ip:" + c.ClientIP()
}

// RateLimit enforces the sliding windows for the resolved client. Allowed
// requests carry X-RateLimit-* headers; rejections answer 429 with a
// Retry-After hint. A nil limiter disables enforcement.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		decision := limiter.IsAllowed(c.Request.Context(), ClientID(c))
		limits := limiter.Limits()
		c.Header("X-RateLimit-Limit-Minute", fmt.Sprintf("%d", limits.PerMinute))
		c.Header("X-RateLimit-Limit-Hour", fmt.Sprintf("%d", limits.PerHour))
		if !decision.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": decision.Reason})
			return
		}
		c.Header("X-RateLimit-Remaining-Minute", fmt.Sprintf("%d", decision.RemainingMinute))
		c.Header("X-RateLimit-Remaining-Hour", fmt.Sprintf("%d", decision.RemainingHour))
		c.Next()
	}
}
