// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// fakeTool is a minimal Tool; parser is optional.
type fakeTool struct {
	name   string
	parser tools.QueryParser
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Run(_ context.Context, _ datatypes.Action, _ string, _ map[string]any) (string, error) {
	return "ok", nil
}

func (f *fakeTool) Parser() tools.QueryParser { return f.parser }

// fixedParser always returns the same result.
type fixedParser struct {
	res *tools.ParseResult
	err error
}

func (p *fixedParser) ParseQuery(context.Context, string) (*tools.ParseResult, error) {
	return p.res, p.err
}

func newTestSelector() *Selector {
	return NewSelector(catalog.NewWithDefaults(nil), nil, nil)
}

func TestSelect_ParserAuthoritative(t *testing.T) {
	s := newTestSelector()
	avail := tools.NewSet(&fakeTool{name: "email"}, &fakeTool{name: "tasks"})

	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "find the report email",
		Intent:    "task",
		ParserResults: map[string]*tools.ParseResult{
			"email": {Action: datatypes.ActionSearch, Confidence: 0.80},
		},
		Available: avail,
	})
	if err != nil || name != "email" {
		t.Errorf("got (%q, %v), want parser-authoritative email", name, err)
	}
}

func TestSelect_ParserConfidenceBoundary(t *testing.T) {
	// 0.79 is below the authoritative cutoff: path 1 must not fire, and
	// the live probe (path 2) handles it instead.
	probe := &fixedParser{res: &tools.ParseResult{Action: datatypes.ActionSearch, Confidence: 0.79}}
	s := newTestSelector()
	avail := tools.NewSet(
		&fakeTool{name: "email", parser: probe},
		&fakeTool{name: "tasks"},
	)

	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "find the report email",
		Intent:    "general",
		ParserResults: map[string]*tools.ParseResult{
			"email": {Action: datatypes.ActionSearch, Confidence: 0.79},
		},
		Available: avail,
	})
	if err != nil || name != "email" {
		t.Errorf("got (%q, %v), want probe-path email", name, err)
	}
}

func TestSelect_ProbeExcludesRejects(t *testing.T) {
	s := newTestSelector()
	avail := tools.NewSet(
		&fakeTool{name: "email", parser: &fixedParser{res: &tools.ParseResult{Action: datatypes.ActionReject, Confidence: 0.99}}},
		&fakeTool{name: "tasks", parser: &fixedParser{res: &tools.ParseResult{Action: datatypes.ActionList, Confidence: 0.75}}},
	)

	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "what do i need to do",
		Intent:    "general",
		Available: avail,
	})
	if err != nil || name != "tasks" {
		t.Errorf("got (%q, %v), want tasks (email rejected)", name, err)
	}
}

func TestSelect_ProbeBelowThresholdFallsThrough(t *testing.T) {
	s := newTestSelector()
	avail := tools.NewSet(
		&fakeTool{name: "tasks", parser: &fixedParser{res: &tools.ParseResult{Action: datatypes.ActionList, Confidence: 0.5}}},
		&fakeTool{name: "calendar"},
	)

	// Probe confidence 0.5 < 0.70, so the intent map decides.
	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "anything",
		Intent:    "calendar",
		Available: avail,
	})
	if err != nil || name != "calendar" {
		t.Errorf("got (%q, %v), want calendar via intent map", name, err)
	}
}

func TestSelect_MemoryRecommendation(t *testing.T) {
	s := newTestSelector()
	avail := tools.NewSet(&fakeTool{name: "todoist"}, &fakeTool{name: "email"})

	// "todoist" is registered under task, matching the intent's domain.
	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery:             "add milk to my list",
		Intent:                "task",
		MemoryRecommendations: []string{"ghost_tool", "todoist"},
		Available:             avail,
	})
	if err != nil || name != "todoist" {
		t.Errorf("got (%q, %v), want todoist via memory", name, err)
	}
}

func TestSelect_CatalogCanonical(t *testing.T) {
	s := newTestSelector()
	// Intent "meeting" maps through the intent map to "calendar", which is
	// unavailable; the catalog path then finds the registered alias.
	avail := tools.NewSet(&fakeTool{name: "gcal"})
	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "when is my next meeting",
		Intent:    "meeting",
		Available: avail,
	})
	if err != nil || name != "gcal" {
		t.Errorf("got (%q, %v), want gcal via catalog", name, err)
	}
}

func TestSelect_NameMatch(t *testing.T) {
	s := newTestSelector()
	avail := tools.NewSet(&fakeTool{name: "weatherbot"})
	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "forecast",
		Intent:    "WeatherBot",
		Available: avail,
	})
	if err != nil || name != "weatherbot" {
		t.Errorf("got (%q, %v), want case-insensitive name match", name, err)
	}
}

func TestSelect_FirstToolFallback(t *testing.T) {
	s := newTestSelector()
	avail := tools.NewSet(&fakeTool{name: "alpha"}, &fakeTool{name: "beta"})
	name, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "???",
		Intent:    "nonsense",
		Available: avail,
	})
	if err != nil || name != "alpha" {
		t.Errorf("got (%q, %v), want first tool", name, err)
	}
}

func TestSelect_EmptySet(t *testing.T) {
	s := newTestSelector()
	_, err := s.Select(context.Background(), SelectionInput{
		StepQuery: "q",
		Intent:    "task",
		Available: tools.NewSet(),
	})
	if !errors.Is(err, datatypes.ErrToolUnavailable) {
		t.Errorf("want ErrToolUnavailable, got %v", err)
	}
}
