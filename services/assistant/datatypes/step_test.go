// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"testing"
)

func TestStepTransitions_HappyPath(t *testing.T) {
	s := NewExecutionStep("step_1", "tasks", ActionList, "show tasks")
	if s.Status != StepPending {
		t.Fatalf("new step status = %s, want pending", s.Status)
	}
	for _, to := range []StepStatus{StepInProgress, StepCompleted} {
		if err := s.Transition(to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	if !s.Status.Terminal() {
		t.Error("completed should be terminal")
	}
}

func TestStepTransitions_RetryLoop(t *testing.T) {
	s := NewExecutionStep("step_1", "email", ActionSearch, "find emails")
	mustTransition(t, s, StepInProgress)
	s.Result = "partial"
	s.Error = "timeout"
	mustTransition(t, s, StepRetrying)
	if s.Result != "" || s.Error != "" {
		t.Error("retry should reset result and error")
	}
	mustTransition(t, s, StepInProgress)
	mustTransition(t, s, StepFailed)
}

func TestStepTransitions_Invalid(t *testing.T) {
	s := NewExecutionStep("step_1", "tasks", ActionList, "q")
	if err := s.Transition(StepCompleted); err == nil {
		t.Fatal("pending -> completed should be rejected")
	} else if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("want ErrInvalidTransition, got %v", err)
	}

	mustTransition(t, s, StepBlocked)
	if err := s.Transition(StepInProgress); err == nil {
		t.Fatal("blocked is terminal")
	}
}

func TestSetDependencies_Invariant(t *testing.T) {
	s := NewExecutionStep("step_2", "tasks", ActionCreate, "q")
	s.SetDependencies([]string{"step_1"})
	if s.DependencyType != DependencyTypeRequiresData {
		t.Errorf("dependency_type = %q, want %q", s.DependencyType, DependencyTypeRequiresData)
	}
	s.SetDependencies(nil)
	if s.DependencyType != "" {
		t.Errorf("dependency_type = %q, want empty", s.DependencyType)
	}
}

func TestActionRetryable(t *testing.T) {
	if !ActionList.Retryable() || !ActionCheckConflicts.Retryable() {
		t.Error("read-only actions should be retryable")
	}
	if ActionCreate.Retryable() || ActionSend.Retryable() || ActionDelete.Retryable() {
		t.Error("mutating actions must not be retryable by default")
	}
}

func mustTransition(t *testing.T, s *ExecutionStep, to StepStatus) {
	t.Helper()
	if err := s.Transition(to); err != nil {
		t.Fatalf("Transition(%s): %v", to, err)
	}
}
