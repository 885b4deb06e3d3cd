// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit enforces per-client sliding-window request limits.
//
// The Redis store coordinates limits across replicas; the local store covers
// single-process deployments and tests. Store failures fail open: an
// unreachable limiter backend must not take query serving down with it.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store records request hits in sliding windows.
type Store interface {
	// Hit records member under key at the current time and returns the
	// number of hits inside the trailing window, including this one.
	Hit(ctx context.Context, key, member string, window time.Duration) (int64, error)

	// Forget removes a previously recorded member, rolling back a hit that
	// pushed the count over the limit. Rejected requests consume no quota.
	Forget(ctx context.Context, key, member string) error

	// Count returns the number of hits inside the trailing window without
	// recording anything.
	Count(ctx context.Context, key string, window time.Duration) (int64, error)
}

// LocalStore is an in-process Store for single-replica deployments and tests.
type LocalStore struct {
	mu   sync.Mutex
	hits map[string][]localHit
	// now is swappable for tests.
	now func() time.Time
}

type localHit struct {
	member string
	at     time.Time
}

// NewLocalStore returns an empty in-process store.
func NewLocalStore() *LocalStore {
	return &LocalStore{hits: make(map[string][]localHit), now: time.Now}
}

// Hit implements Store.
func (s *LocalStore) Hit(_ context.Context, key, member string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	kept := s.prune(key, now, window)
	kept = append(kept, localHit{member: member, at: now})
	s.hits[key] = kept
	return int64(len(kept)), nil
}

// Forget implements Store.
func (s *LocalStore) Forget(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.hits[key]
	for i, h := range entries {
		if h.member == member {
			s.hits[key] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Count implements Store.
func (s *LocalStore) Count(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.prune(key, s.now(), window)
	s.hits[key] = kept
	return int64(len(kept)), nil
}

// prune drops entries older than the window. Caller holds the lock.
func (s *LocalStore) prune(key string, now time.Time, window time.Duration) []localHit {
	cutoff := now.Add(-window)
	entries := s.hits[key]
	kept := entries[:0]
	for _, h := range entries {
		if h.at.After(cutoff) {
			kept = append(kept, h)
		}
	}
	return kept
}
