// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Default window limits.
const (
	DefaultPerMinute = 60
	DefaultPerHour   = 1000

	minuteWindow = 60 * time.Second
	hourWindow   = 3600 * time.Second
)

// Limits configures the two sliding windows. Zero values take the defaults.
type Limits struct {
	PerMinute int
	PerHour   int
}

func (l Limits) withDefaults() Limits {
	if l.PerMinute <= 0 {
		l.PerMinute = DefaultPerMinute
	}
	if l.PerHour <= 0 {
		l.PerHour = DefaultPerHour
	}
	return l
}

// Decision is the outcome of one IsAllowed check.
type Decision struct {
	Allowed bool
	// Reason is a client-facing message, set only on rejection.
	Reason string
	// RetryAfter is how long until the violated window has room again.
	RetryAfter time.Duration
	// RemainingMinute and RemainingHour are what is left in each window
	// after this request.
	RemainingMinute int64
	RemainingHour   int64
}

// Stats is the current usage snapshot for one client.
type Stats struct {
	MinuteUsed      int64 `json:"requests_last_minute"`
	MinuteLimit     int   `json:"limit_per_minute"`
	MinuteRemaining int64 `json:"remaining_minute"`
	HourUsed        int64 `json:"requests_last_hour"`
	HourLimit       int   `json:"limit_per_hour"`
	HourRemaining   int64 `json:"remaining_hour"`
}

// Limiter enforces both sliding windows against a Store.
//
// Store errors fail open: availability beats strictness for a personal
// assistant, and the failure is logged and counted for operators.
type Limiter struct {
	store  Store
	limits Limits
	logger *slog.Logger
}

// NewLimiter builds a limiter over store.
func NewLimiter(store Store, limits Limits, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, limits: limits.withDefaults(), logger: logger}
}

// IsAllowed records one request for clientID and checks both windows.
// A rejected request is rolled back from both windows so it consumes no
// quota.
func (l *Limiter) IsAllowed(ctx context.Context, clientID string) Decision {
	member := uuid.NewString()
	minuteKey := windowKey(clientID, "minute")
	hourKey := windowKey(clientID, "hour")

	minuteCount, err := l.store.Hit(ctx, minuteKey, member, minuteWindow)
	if err != nil {
		return l.failOpen(clientID, err)
	}
	hourCount, err := l.store.Hit(ctx, hourKey, member, hourWindow)
	if err != nil {
		return l.failOpen(clientID, err)
	}

	if minuteCount > int64(l.limits.PerMinute) {
		l.rollback(ctx, clientID, member)
		rateLimitRejections.WithLabelValues("minute").Inc()
		return Decision{
			Allowed:    false,
			Reason:     fmt.Sprintf("Rate limit exceeded: %d requests per minute", l.limits.PerMinute),
			RetryAfter: minuteWindow,
		}
	}
	if hourCount > int64(l.limits.PerHour) {
		l.rollback(ctx, clientID, member)
		rateLimitRejections.WithLabelValues("hour").Inc()
		return Decision{
			Allowed:    false,
			Reason:     fmt.Sprintf("Rate limit exceeded: %d requests per hour", l.limits.PerHour),
			RetryAfter: hourWindow,
		}
	}

	return Decision{
		Allowed:         true,
		RemainingMinute: int64(l.limits.PerMinute) - minuteCount,
		RemainingHour:   int64(l.limits.PerHour) - hourCount,
	}
}

// GetStats reports current usage without recording a hit.
func (l *Limiter) GetStats(ctx context.Context, clientID string) (Stats, error) {
	minuteUsed, err := l.store.Count(ctx, windowKey(clientID, "minute"), minuteWindow)
	if err != nil {
		return Stats{}, err
	}
	hourUsed, err := l.store.Count(ctx, windowKey(clientID, "hour"), hourWindow)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		MinuteUsed:      minuteUsed,
		MinuteLimit:     l.limits.PerMinute,
		MinuteRemaining: max64(0, int64(l.limits.PerMinute)-minuteUsed),
		HourUsed:        hourUsed,
		HourLimit:       l.limits.PerHour,
		HourRemaining:   max64(0, int64(l.limits.PerHour)-hourUsed),
	}, nil
}

// Limits returns the configured limits.
func (l *Limiter) Limits() Limits { return l.limits }

func (l *Limiter) failOpen(clientID string, err error) Decision {
	l.logger.Warn("rate limit store unavailable, failing open",
		slog.String("client", clientID), slog.Any("error", err))
	rateLimitStoreErrors.Inc()
	return Decision{
		Allowed:         true,
		RemainingMinute: int64(l.limits.PerMinute),
		RemainingHour:   int64(l.limits.PerHour),
	}
}

func (l *Limiter) rollback(ctx context.Context, clientID, member string) {
	for _, w := range []string{"minute", "hour"} {
		if err := l.store.Forget(ctx, windowKey(clientID, w), member); err != nil {
			l.logger.Debug("rate limit rollback failed",
				slog.String("client", clientID), slog.Any("error", err))
		}
	}
}

func windowKey(clientID, window string) string {
	return fmt.Sprintf("ratelimit:%s:%s", clientID, window)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
