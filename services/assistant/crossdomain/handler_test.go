// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crossdomain

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/analytics"
	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/executor"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
	"github.com/AleutianAI/AleutianAssist/services/assistant/synthesis"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

type stubTool struct {
	name string
	run  func(ctx context.Context, action datatypes.Action, query string) (string, error)
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Run(ctx context.Context, action datatypes.Action, query string, _ map[string]any) (string, error) {
	if s.run == nil {
		return "ok from " + s.name, nil
	}
	return s.run(ctx, action, query)
}

type memoryRecorder struct {
	routings []datatypes.RoutingRecord
}

func (m *memoryRecorder) RecordRouting(_ context.Context, r *datatypes.RoutingRecord) (int64, error) {
	m.routings = append(m.routings, *r)
	return int64(len(m.routings)), nil
}
func (m *memoryRecorder) RecordCorrection(context.Context, *datatypes.CorrectionRecord) error { return nil }
func (m *memoryRecorder) RecordMisrouting(context.Context, string, string, string, float64) error {
	return nil
}

func newTestHandler(t *testing.T, rec analytics.Recorder) *Handler {
	t.Helper()
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	patterns, err := routing.DefaultPatterns()
	if err != nil {
		t.Fatalf("DefaultPatterns: %v", err)
	}
	cat := catalog.NewWithDefaults(nil)
	det := routing.NewDetector(patterns, nil, nil)
	val := routing.NewValidator(det, cat, false, nil)
	exec := executor.NewExecutor(val, synthesis.NewSynthesizer(nil, nil), cat, rec, nil, nil)
	return NewHandler(cfg, cat, exec, rec, nil)
}

func TestAnalyze_ExplicitPattern(t *testing.T) {
	h := newTestHandler(t, nil)
	an := h.Analyze("create tasks from my emails about the budget")
	if !an.IsCrossDomain || !an.Engaged() {
		t.Fatalf("analysis = %+v", an)
	}
	if an.Confidence != explicitConfidence || an.Mode != ModeDependent {
		t.Errorf("analysis = %+v", an)
	}
	if len(an.Domains) != 2 || an.Domains[0] != datatypes.DomainEmail || an.Domains[1] != datatypes.DomainTask {
		t.Errorf("domains = %v", an.Domains)
	}
}

func TestAnalyze_TaskPerEmailFanOut(t *testing.T) {
	h := newTestHandler(t, nil)
	an := h.Analyze("create a task for each unread email from my boss")
	if !an.Engaged() || an.Mode != ModeDependent {
		t.Fatalf("analysis = %+v", an)
	}
	if len(an.Domains) != 2 || an.Domains[0] != datatypes.DomainEmail || an.Domains[1] != datatypes.DomainTask {
		t.Errorf("domains = %v", an.Domains)
	}
}

func TestAnalyze_SingleDomainShortcut(t *testing.T) {
	// Mentions "messages" only in an email sense: the shortcut keeps it out
	// of the fan-out path.
	h := newTestHandler(t, nil)
	an := h.Analyze("check my emails for anything from bob")
	if an.IsCrossDomain {
		t.Fatalf("shortcut missed: %+v", an)
	}
	if len(an.Domains) != 1 || an.Domains[0] != datatypes.DomainEmail {
		t.Errorf("domains = %v", an.Domains)
	}
}

func TestAnalyze_TasksAndMeetingsParallel(t *testing.T) {
	h := newTestHandler(t, nil)
	an := h.Analyze("show my tasks and meetings for tomorrow")
	if !an.IsCrossDomain || !an.Engaged() {
		t.Fatalf("analysis = %+v", an)
	}
	if an.Confidence != explicitConfidence || an.Mode != ModeParallel {
		t.Errorf("analysis = %+v", an)
	}
	if len(an.Domains) != 2 || an.Domains[0] != datatypes.DomainTask || an.Domains[1] != datatypes.DomainCalendar {
		t.Errorf("domains = %v", an.Domains)
	}
}

func TestAnalyze_BucketEvidenceBelowThreshold(t *testing.T) {
	h := newTestHandler(t, nil)
	an := h.Analyze("my inbox and my todo list are both a mess")
	if !an.IsCrossDomain {
		t.Fatalf("bucket detection missed: %+v", an)
	}
	if an.Engaged() {
		t.Error("bucket-only evidence must stay below the engagement threshold")
	}
	if an.Confidence != bucketConfidence {
		t.Errorf("confidence = %v", an.Confidence)
	}
}

func TestAnalyze_EngageThresholdFromConfig(t *testing.T) {
	cfg, err := LoadConfig([]byte("engage_threshold: 0.50\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	h := NewHandler(cfg, catalog.NewWithDefaults(nil), nil, nil, nil)

	// Bucket-only evidence scores 0.60, which clears a lowered threshold.
	an := h.Analyze("my inbox and my todo list are both a mess")
	if !an.IsCrossDomain || !an.Engaged() {
		t.Fatalf("analysis = %+v", an)
	}
	if an.Threshold != 0.50 {
		t.Errorf("threshold = %v", an.Threshold)
	}
}

func TestLoadConfig_EngageThresholdDefaultsAndBounds(t *testing.T) {
	cfg, err := LoadConfig([]byte("explicit_patterns: []\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.EngageThreshold != DefaultEngageThreshold {
		t.Errorf("threshold = %v, want %v", cfg.EngageThreshold, DefaultEngageThreshold)
	}

	if _, err := LoadConfig([]byte("engage_threshold: 1.5\n")); !errors.Is(err, datatypes.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestAnalyze_BareEventNotCalendar(t *testing.T) {
	h := newTestHandler(t, nil)
	an := h.Analyze("create a task about the event")
	if an.IsCrossDomain {
		t.Fatalf("bare 'event' counted as calendar evidence: %+v", an)
	}
}

func TestAnalyze_EmptyQuery(t *testing.T) {
	h := newTestHandler(t, nil)
	if an := h.Analyze("   "); an.IsCrossDomain || len(an.Domains) != 0 {
		t.Errorf("analysis = %+v", an)
	}
}

func TestHandle_DependentFanOut(t *testing.T) {
	rec := &memoryRecorder{}
	h := newTestHandler(t, rec)

	email := &stubTool{name: "email", run: func(_ context.Context, _ datatypes.Action, q string) (string, error) {
		return "Found 2 emails from bob@example.com\nSubject: Budget review", nil
	}}
	var taskQuery atomic.Value
	tasks := &stubTool{name: "tasks", run: func(_ context.Context, _ datatypes.Action, q string) (string, error) {
		taskQuery.Store(q)
		return "2 tasks created", nil
	}}
	avail := tools.NewSet(email, tasks)

	query := "create tasks from my emails about the budget"
	an := h.Analyze(query)
	res, err := h.Handle(context.Background(), query, an, avail, executor.Meta{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.Success || res.StepsExecuted != 2 {
		t.Fatalf("result = %+v", res)
	}
	got, _ := taskQuery.Load().(string)
	if !strings.Contains(got, "Budget review") {
		t.Errorf("dependent sub-query missing source context: %q", got)
	}

	// The fan-out row is recorded with the mixed outcome on top of the
	// per-step rows.
	last := rec.routings[len(rec.routings)-1]
	if !last.CrossDomain || last.Outcome != datatypes.OutcomeMixed || last.RoutedTool != "cross_domain" {
		t.Errorf("fan-out record = %+v", last)
	}
	for _, r := range rec.routings {
		if !r.CrossDomain {
			t.Errorf("step record missing cross_domain flag: %+v", r)
		}
	}
}

func TestHandle_ParallelFanOut(t *testing.T) {
	h := newTestHandler(t, nil)
	tasks := &stubTool{name: "tasks", run: func(context.Context, datatypes.Action, string) (string, error) {
		return "You have 3 tasks tomorrow", nil
	}}
	calendar := &stubTool{name: "calendar", run: func(context.Context, datatypes.Action, string) (string, error) {
		return "You have 2 meetings tomorrow", nil
	}}
	avail := tools.NewSet(tasks, calendar)

	query := "show my tasks and meetings for tomorrow"
	res, err := h.Handle(context.Background(), query, h.Analyze(query), avail, executor.Meta{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.Success || res.StepsExecuted != 2 || res.TotalSteps != 2 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.FinalResult, "3 tasks") || !strings.Contains(res.FinalResult, "2 meetings") {
		t.Errorf("final result = %q", res.FinalResult)
	}
}

func TestHandle_PartialFailureNoted(t *testing.T) {
	h := newTestHandler(t, nil)

	email := &stubTool{name: "email", run: func(context.Context, datatypes.Action, string) (string, error) {
		return "Found 1 email\nSubject: Offsite plan", nil
	}}
	tasks := &stubTool{name: "tasks", run: func(context.Context, datatypes.Action, string) (string, error) {
		return "", errors.New("task backend down")
	}}
	avail := tools.NewSet(email, tasks)

	query := "create tasks from my emails about the offsite"
	res, err := h.Handle(context.Background(), query, h.Analyze(query), avail, executor.Meta{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.Success {
		t.Error("one completed sub-query keeps Success true")
	}
	if !strings.Contains(res.FinalResult, "Note: some steps could not be completed") {
		t.Errorf("final result missing failure note: %q", res.FinalResult)
	}
}

func TestHandle_MissingDomainToolShrinksFanOut(t *testing.T) {
	h := newTestHandler(t, nil)
	email := &stubTool{name: "email"}
	avail := tools.NewSet(email) // no task tool

	query := "create tasks from my emails about the budget"
	res, err := h.Handle(context.Background(), query, h.Analyze(query), avail, executor.Meta{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.TotalSteps != 1 || !res.Success {
		t.Errorf("result = %+v", res)
	}
}

func TestHandle_NotEngagedRejected(t *testing.T) {
	h := newTestHandler(t, nil)
	an := h.Analyze("my inbox and my todo list are both a mess")
	_, err := h.Handle(context.Background(), "q", an, tools.NewSet(&stubTool{name: "email"}), executor.Meta{})
	if !errors.Is(err, datatypes.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestHandle_NoToolsAtAll(t *testing.T) {
	h := newTestHandler(t, nil)
	query := "create tasks from my emails about the budget"
	_, err := h.Handle(context.Background(), query, h.Analyze(query), tools.NewSet(), executor.Meta{})
	if !errors.Is(err, datatypes.ErrToolUnavailable) {
		t.Fatalf("want ErrToolUnavailable, got %v", err)
	}
}
