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
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, limits Limits) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(NewRedisStore(client), limits, nil), mr
}

func TestIsAllowed_UnderLimit(t *testing.T) {
	l, _ := newRedisLimiter(t, Limits{PerMinute: 5, PerHour: 100})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := l.IsAllowed(ctx, "client-a")
		if !d.Allowed {
			t.Fatalf("request %d rejected: %s", i+1, d.Reason)
		}
	}
}

func TestIsAllowed_MinuteBoundary(t *testing.T) {
	// Requests 1..N pass, N+1 is rejected with the minute message.
	l, _ := newRedisLimiter(t, Limits{PerMinute: 60, PerHour: 1000})
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if d := l.IsAllowed(ctx, "client-b"); !d.Allowed {
			t.Fatalf("request %d rejected early: %s", i+1, d.Reason)
		}
	}
	d := l.IsAllowed(ctx, "client-b")
	if d.Allowed {
		t.Fatal("61st request allowed")
	}
	if d.Reason != "Rate limit exceeded: 60 requests per minute" {
		t.Errorf("reason = %q", d.Reason)
	}
	if d.RetryAfter != 60*time.Second {
		t.Errorf("retry after = %v", d.RetryAfter)
	}
}

func TestIsAllowed_RejectionConsumesNoQuota(t *testing.T) {
	l, mr := newRedisLimiter(t, Limits{PerMinute: 2, PerHour: 100})
	ctx := context.Background()

	l.IsAllowed(ctx, "client-c")
	l.IsAllowed(ctx, "client-c")
	if d := l.IsAllowed(ctx, "client-c"); d.Allowed {
		t.Fatal("3rd request allowed")
	}

	// The rejected hit was rolled back, so after the window expires exactly
	// the two allowed hits are gone and new requests pass.
	mr.FastForward(61 * time.Second)
	if d := l.IsAllowed(ctx, "client-c"); !d.Allowed {
		t.Fatalf("request after window rejected: %s", d.Reason)
	}
}

func TestIsAllowed_HourLimit(t *testing.T) {
	l, _ := newRedisLimiter(t, Limits{PerMinute: 1000, PerHour: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := l.IsAllowed(ctx, "client-d"); !d.Allowed {
			t.Fatalf("request %d rejected early", i+1)
		}
	}
	d := l.IsAllowed(ctx, "client-d")
	if d.Allowed {
		t.Fatal("4th request allowed")
	}
	if !strings.Contains(d.Reason, "per hour") {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestIsAllowed_ClientsIsolated(t *testing.T) {
	l, _ := newRedisLimiter(t, Limits{PerMinute: 1, PerHour: 100})
	ctx := context.Background()

	if d := l.IsAllowed(ctx, "client-e"); !d.Allowed {
		t.Fatal("client-e first request rejected")
	}
	if d := l.IsAllowed(ctx, "client-e"); d.Allowed {
		t.Fatal("client-e second request allowed")
	}
	if d := l.IsAllowed(ctx, "client-f"); !d.Allowed {
		t.Fatal("client-f blocked by client-e's usage")
	}
}

func TestIsAllowed_WindowSlides(t *testing.T) {
	l, mr := newRedisLimiter(t, Limits{PerMinute: 1, PerHour: 100})
	ctx := context.Background()

	if d := l.IsAllowed(ctx, "client-g"); !d.Allowed {
		t.Fatal("first request rejected")
	}
	mr.FastForward(61 * time.Second)
	if d := l.IsAllowed(ctx, "client-g"); !d.Allowed {
		t.Fatalf("request after window slide rejected: %s", d.Reason)
	}
}

func TestIsAllowed_FailsOpenOnStoreError(t *testing.T) {
	l, mr := newRedisLimiter(t, Limits{PerMinute: 1, PerHour: 1})
	mr.Close()

	if d := l.IsAllowed(context.Background(), "client-h"); !d.Allowed {
		t.Fatalf("store failure must fail open, got rejection: %s", d.Reason)
	}
}

func TestGetStats(t *testing.T) {
	l, _ := newRedisLimiter(t, Limits{PerMinute: 10, PerHour: 100})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.IsAllowed(ctx, "client-i")
	}
	stats, err := l.GetStats(ctx, "client-i")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.MinuteUsed != 3 || stats.MinuteRemaining != 7 {
		t.Errorf("minute stats = %+v", stats)
	}
	if stats.HourUsed != 3 || stats.HourRemaining != 97 {
		t.Errorf("hour stats = %+v", stats)
	}
}

func TestStats_SerializedFieldNames(t *testing.T) {
	out, err := json.Marshal(Stats{MinuteUsed: 1, MinuteLimit: 5, HourUsed: 2, HourLimit: 100})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, key := range []string{
		"requests_last_minute", "limit_per_minute",
		"requests_last_hour", "limit_per_hour",
	} {
		if !strings.Contains(string(out), `"`+key+`"`) {
			t.Errorf("stats JSON missing %q: %s", key, out)
		}
	}
}

func TestLocalStore(t *testing.T) {
	l := NewLimiter(NewLocalStore(), Limits{PerMinute: 2, PerHour: 100}, nil)
	ctx := context.Background()

	if d := l.IsAllowed(ctx, "x"); !d.Allowed {
		t.Fatal("first rejected")
	}
	if d := l.IsAllowed(ctx, "x"); !d.Allowed {
		t.Fatal("second rejected")
	}
	if d := l.IsAllowed(ctx, "x"); d.Allowed {
		t.Fatal("third allowed")
	}
	stats, err := l.GetStats(ctx, "x")
	if err != nil || stats.MinuteUsed != 2 {
		t.Errorf("stats = %+v, err = %v", stats, err)
	}
}

func TestLocalStore_WindowExpiry(t *testing.T) {
	store := NewLocalStore()
	base := time.Now()
	store.now = func() time.Time { return base }

	l := NewLimiter(store, Limits{PerMinute: 1, PerHour: 100}, nil)
	ctx := context.Background()

	if d := l.IsAllowed(ctx, "y"); !d.Allowed {
		t.Fatal("first rejected")
	}
	if d := l.IsAllowed(ctx, "y"); d.Allowed {
		t.Fatal("second allowed")
	}
	store.now = func() time.Time { return base.Add(61 * time.Second) }
	if d := l.IsAllowed(ctx, "y"); !d.Allowed {
		t.Fatal("request after expiry rejected")
	}
}

var errBroken = errors.New("broken store")

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, string, time.Duration) (int64, error) {
	return 0, errBroken
}
func (brokenStore) Forget(context.Context, string, string) error { return errBroken }
func (brokenStore) Count(context.Context, string, time.Duration) (int64, error) {
	return 0, errBroken
}

func TestGetStats_PropagatesStoreError(t *testing.T) {
	l := NewLimiter(brokenStore{}, Limits{}, nil)
	if _, err := l.GetStats(context.Background(), "z"); !errors.Is(err, errBroken) {
		t.Fatalf("want store error, got %v", err)
	}
}
