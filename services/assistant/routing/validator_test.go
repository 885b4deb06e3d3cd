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
	"math"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

func newTestValidator(t *testing.T, strict bool) *Validator {
	t.Helper()
	cfg, err := DefaultPatterns()
	if err != nil {
		t.Fatal(err)
	}
	cat := catalog.NewWithDefaults(nil)
	return NewValidator(NewDetector(cfg, nil, nil), cat, strict, nil)
}

func TestValidate_DomainMatch(t *testing.T) {
	v := newTestValidator(t, true)
	verdict := v.Validate(context.Background(), "what tasks do I have today", "tasks", nil)
	if !verdict.Valid {
		t.Fatalf("expected valid, got %+v", verdict)
	}
	if verdict.DetectedDomain != datatypes.DomainTask || verdict.TargetDomain != datatypes.DomainTask {
		t.Errorf("domains: %+v", verdict)
	}
	// Matching domains get the detection confidence plus the bonus.
	d := newTestDetector(t)
	_, detConf, _ := d.Detect(context.Background(), "what tasks do I have today")
	want := math.Min(1.0, detConf+matchBonus)
	if math.Abs(verdict.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", verdict.Confidence, want)
	}
}

func TestValidate_DomainMatchWithParserBlend(t *testing.T) {
	v := newTestValidator(t, true)
	parserConf := 0.9
	verdict := v.Validate(context.Background(), "what tasks do I have today", "tasks", &parserConf)

	d := newTestDetector(t)
	_, detConf, _ := d.Detect(context.Background(), "what tasks do I have today")
	want := parserBlendDetection*detConf + parserBlendParser*parserConf
	if math.Abs(verdict.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want blended %v", verdict.Confidence, want)
	}
}

func TestValidate_MixedTargetInSet(t *testing.T) {
	v := newTestValidator(t, true)
	verdict := v.Validate(context.Background(), "show my tasks and meetings for tomorrow", "calendar", nil)
	if !verdict.Valid || verdict.Confidence != mixedTargetInSetConfidence {
		t.Errorf("got %+v, want valid at %v", verdict, mixedTargetInSetConfidence)
	}
}

func TestValidate_MixedTargetOutsideSet_Strict(t *testing.T) {
	v := newTestValidator(t, true)
	verdict := v.Validate(context.Background(), "show my tasks and meetings for tomorrow", "notion", nil)
	if verdict.Valid {
		t.Fatalf("strict mode should reject, got %+v", verdict)
	}
	if verdict.Confidence != mixedStrictRejectConf {
		t.Errorf("confidence = %v", verdict.Confidence)
	}
	if len(verdict.Suggestions) == 0 {
		t.Error("expected the involved domains as suggestions")
	}
}

func TestValidate_GeneralAdmitted(t *testing.T) {
	v := newTestValidator(t, true)
	verdict := v.Validate(context.Background(), "hello there", "tasks", nil)
	if !verdict.Valid || verdict.Confidence != generalAdmitConfidence {
		t.Errorf("got %+v, want valid at %v", verdict, generalAdmitConfidence)
	}
	if len(verdict.Suggestions) == 0 || !strings.Contains(verdict.Suggestions[0], "vague") {
		t.Errorf("suggestions = %v", verdict.Suggestions)
	}
}

func TestValidate_MismatchStrictRejects(t *testing.T) {
	v := newTestValidator(t, true)
	// Confident task query routed to calendar: strict mode rejects and
	// suggests the detected domain's canonical tool.
	verdict := v.Validate(context.Background(), "create a task to call Alice", "calendar", nil)
	if verdict.Valid {
		t.Fatalf("expected rejection, got %+v", verdict)
	}
	if verdict.Confidence != mismatchRejectConfidence {
		t.Errorf("confidence = %v", verdict.Confidence)
	}
	if len(verdict.Suggestions) == 0 || !strings.Contains(verdict.Suggestions[0], "tasks") {
		t.Errorf("suggestions = %v, want route-to-tasks", verdict.Suggestions)
	}
}

func TestValidate_MismatchLenientWarns(t *testing.T) {
	v := newTestValidator(t, false)
	verdict := v.Validate(context.Background(), "create a task to call Alice", "calendar", nil)
	if !verdict.Valid || verdict.Confidence != mismatchWarnConfidence {
		t.Errorf("lenient mode: got %+v, want valid at %v", verdict, mismatchWarnConfidence)
	}
}

func TestValidate_ConfidenceAlwaysInRange(t *testing.T) {
	v := newTestValidator(t, true)
	queries := []string{"", "what tasks do i have", "show my tasks and meetings for tomorrow", "zzz"}
	tools := []string{"tasks", "email", "calendar", "notion", "unknown_tool"}
	for _, q := range queries {
		for _, tool := range tools {
			verdict := v.Validate(context.Background(), q, tool, nil)
			if verdict.Confidence < 0 || verdict.Confidence > 1 {
				t.Errorf("Validate(%q, %q) confidence %v out of range", q, tool, verdict.Confidence)
			}
		}
	}
}

func TestValidatePlan(t *testing.T) {
	v := newTestValidator(t, false)
	steps := []*datatypes.ExecutionStep{
		datatypes.NewExecutionStep("step_1", "tasks", datatypes.ActionList, "what tasks do i have today"),
		datatypes.NewExecutionStep("step_2", "calendar", datatypes.ActionList, "show my meetings for tomorrow"),
	}
	plan := v.ValidatePlan(context.Background(), steps)
	if !plan.OverallValid {
		t.Errorf("plan invalid: %+v", plan)
	}
	if len(plan.StepVerdicts) != 2 {
		t.Fatalf("verdicts = %d", len(plan.StepVerdicts))
	}
	min := math.Min(plan.StepVerdicts[0].Confidence, plan.StepVerdicts[1].Confidence)
	if plan.Confidence != min {
		t.Errorf("plan confidence %v != min step confidence %v", plan.Confidence, min)
	}
}

func TestValidatePlan_Empty(t *testing.T) {
	v := newTestValidator(t, false)
	plan := v.ValidatePlan(context.Background(), nil)
	if plan.OverallValid || len(plan.Errors) == 0 {
		t.Errorf("empty plan should be invalid: %+v", plan)
	}
}
