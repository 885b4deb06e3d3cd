// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/decompose"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

type fakeTool struct{ name string }

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Run(_ context.Context, _ datatypes.Action, _ string, _ map[string]any) (string, error) {
	return "ok", nil
}

func newTestPlanner(t *testing.T, strict bool, opts Options) *Planner {
	t.Helper()
	cfg, err := routing.DefaultPatterns()
	if err != nil {
		t.Fatalf("DefaultPatterns: %v", err)
	}
	cat := catalog.NewWithDefaults(nil)
	det := routing.NewDetector(cfg, nil, nil)
	return NewPlanner(
		routing.NewSelector(cat, nil, nil),
		routing.NewValidator(det, cat, strict, nil),
		cat,
		opts,
		nil,
	)
}

func TestPlan_SingleStep(t *testing.T) {
	p := newTestPlanner(t, true, Options{})
	avail := tools.NewSet(&fakeTool{name: "tasks"}, &fakeTool{name: "email"})

	plan, corrections, err := p.Plan(context.Background(), []decompose.StepDescriptor{
		{ID: "step_1", Intent: "task", Action: datatypes.ActionList, Query: "what tasks do I have today"},
	}, avail, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(corrections) != 0 {
		t.Errorf("unexpected corrections: %+v", corrections)
	}
	if len(plan.Steps) != 1 {
		t.Fatalf("want 1 step, got %d", len(plan.Steps))
	}
	s := plan.Steps[0]
	if s.ToolName != "tasks" || s.Domain != datatypes.DomainTask || s.Status != datatypes.StepPending {
		t.Errorf("unexpected step: %+v", s)
	}
}

func TestPlan_AutoCorrection(t *testing.T) {
	// Intent says email, query is confidently task-domain. Strict validation
	// rejects the email routing; the planner corrects to the task tool and
	// records the correction.
	p := newTestPlanner(t, true, Options{})
	avail := tools.NewSet(&fakeTool{name: "email"}, &fakeTool{name: "tasks"})

	plan, corrections, err := p.Plan(context.Background(), []decompose.StepDescriptor{
		{ID: "step_1", Intent: "email", Action: datatypes.ActionCreate, Query: "create a task to call Alice"},
	}, avail, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].ToolName != "tasks" {
		t.Fatalf("want corrected routing to tasks, got %+v", plan.Steps)
	}
	if len(corrections) != 1 {
		t.Fatalf("want 1 correction, got %d", len(corrections))
	}
	c := corrections[0]
	if c.OriginalTool != "email" || c.CorrectedTool != "tasks" || c.StepID != "step_1" {
		t.Errorf("unexpected correction: %+v", c)
	}
}

func TestPlan_LenientModeNoCorrection(t *testing.T) {
	// Lenient validation admits the mismatch with a warning verdict, so the
	// original routing stands and nothing is corrected.
	p := newTestPlanner(t, false, Options{})
	avail := tools.NewSet(&fakeTool{name: "email"}, &fakeTool{name: "tasks"})

	plan, corrections, err := p.Plan(context.Background(), []decompose.StepDescriptor{
		{ID: "step_1", Intent: "email", Action: datatypes.ActionCreate, Query: "create a task to call Alice"},
	}, avail, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(corrections) != 0 {
		t.Errorf("lenient mode must not correct: %+v", corrections)
	}
	if plan.Steps[0].ToolName != "email" {
		t.Errorf("tool = %q, want email", plan.Steps[0].ToolName)
	}
}

func TestPlan_DropsUncorrectableStep(t *testing.T) {
	// The task tool is unavailable, so the rejected step cannot be corrected
	// and is dropped; the dependent step survives with the edge removed.
	p := newTestPlanner(t, true, Options{})
	avail := tools.NewSet(&fakeTool{name: "email"})

	plan, _, err := p.Plan(context.Background(), []decompose.StepDescriptor{
		{ID: "step_1", Intent: "email", Action: datatypes.ActionCreate, Query: "create a task to call Alice"},
		{ID: "step_2", Intent: "email", Action: datatypes.ActionList, Query: "check my email for messages from Bob", Dependencies: []string{"step_1"}},
	}, avail, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].ID != "step_2" {
		t.Fatalf("want only step_2, got %+v", plan.Steps)
	}
	if len(plan.Steps[0].Dependencies) != 0 {
		t.Errorf("dangling dependency survived: %v", plan.Steps[0].Dependencies)
	}
	if len(plan.Warnings) == 0 {
		t.Error("dropping a step should leave a plan warning")
	}
}

func TestPlan_AllStepsRejected(t *testing.T) {
	p := newTestPlanner(t, true, Options{})
	avail := tools.NewSet(&fakeTool{name: "email"})

	_, _, err := p.Plan(context.Background(), []decompose.StepDescriptor{
		{ID: "step_1", Intent: "email", Action: datatypes.ActionCreate, Query: "create a task to call Alice"},
	}, avail, nil)
	if !errors.Is(err, datatypes.ErrValidationRejected) {
		t.Fatalf("want ErrValidationRejected, got %v", err)
	}
}

func TestPlan_DependenciesPreserved(t *testing.T) {
	p := newTestPlanner(t, true, Options{})
	avail := tools.NewSet(&fakeTool{name: "email"}, &fakeTool{name: "tasks"})

	plan, _, err := p.Plan(context.Background(), []decompose.StepDescriptor{
		{ID: "step_1", Intent: "email", Action: datatypes.ActionSearch, Query: "check my email for messages from Bob"},
		{ID: "step_2", Intent: "task", Action: datatypes.ActionCreate, Query: "create a task to follow up", Dependencies: []string{"step_1"}},
	}, avail, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	s2 := plan.Step("step_2")
	if s2 == nil || len(s2.Dependencies) != 1 || s2.Dependencies[0] != "step_1" {
		t.Fatalf("step_2 deps wrong: %+v", s2)
	}
	if s2.DependencyType != datatypes.DependencyTypeRequiresData {
		t.Errorf("dependency type = %q", s2.DependencyType)
	}
	levels, err := plan.Levels()
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	if len(levels) != 2 {
		t.Errorf("want 2 levels, got %d", len(levels))
	}
}

func TestPlan_RejectOnPlanWarnings(t *testing.T) {
	p := newTestPlanner(t, true, Options{RejectOnPlanWarnings: true})
	avail := tools.NewSet(&fakeTool{name: "email"})

	// Two steps: the first drops (warning), the second is fine, so the
	// warning gate fires.
	_, _, err := p.Plan(context.Background(), []decompose.StepDescriptor{
		{ID: "step_1", Intent: "email", Action: datatypes.ActionCreate, Query: "create a task to call Alice"},
		{ID: "step_2", Intent: "email", Action: datatypes.ActionList, Query: "check my email for messages from Bob"},
	}, avail, nil)
	if !errors.Is(err, datatypes.ErrValidationRejected) {
		t.Fatalf("want ErrValidationRejected with warning gating, got %v", err)
	}
}

func TestPlan_EmptyDescriptors(t *testing.T) {
	p := newTestPlanner(t, true, Options{})
	_, _, err := p.Plan(context.Background(), nil, tools.NewSet(&fakeTool{name: "email"}), nil)
	if !errors.Is(err, datatypes.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}
