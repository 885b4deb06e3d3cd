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
	"fmt"
	"time"
)

// StepStatus is the lifecycle state of an ExecutionStep.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepRetrying   StepStatus = "retrying"
	StepBlocked    StepStatus = "blocked"
)

// Terminal reports whether the status admits no further transitions.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepBlocked
}

// stepTransitions encodes the step state machine:
//
//	pending ──execute──▶ in_progress ──ok──▶ completed
//	                               ├──err, retries left──▶ retrying ──▶ in_progress
//	                               └──err, no retries──▶ failed
//	pending ──dep failed──▶ blocked
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending:    {StepInProgress, StepBlocked},
	StepInProgress: {StepCompleted, StepRetrying, StepFailed},
	StepRetrying:   {StepInProgress},
}

// DependencyTypeRequiresData is the only dependency type the core uses:
// a step with dependencies requires their data before it can run.
const DependencyTypeRequiresData = "requires_data"

// ContextRequirements flags what accumulated context a step's query needs
// injected before execution.
type ContextRequirements struct {
	NeedsPreviousResults bool `json:"needs_previous_results"`
	NeedsSourceData      bool `json:"needs_source_data"`
	NeedsParticipantData bool `json:"needs_participant_data"`
}

// Any reports whether at least one requirement flag is set.
func (c ContextRequirements) Any() bool {
	return c.NeedsPreviousResults || c.NeedsSourceData || c.NeedsParticipantData
}

// ExecutionStep is one unit of work in an ExecutionPlan.
//
// Ownership: the plan exclusively owns its steps. Steps are mutated only by
// the executor while in_progress or retrying; other components treat them as
// read-only after planning.
type ExecutionStep struct {
	// ID is stable and unique within the plan (e.g. "step_1").
	ID string `json:"id"`

	ToolName string `json:"tool_name"`
	Action   Action `json:"action"`

	// Query is the sub-string handed to the tool, possibly enriched with
	// injected context before invocation.
	Query string `json:"query"`

	// Domain is resolved at planning time; inferred from the tool if unset.
	Domain Domain `json:"domain"`

	// Dependencies lists prior step IDs. The plan-wide graph must be a DAG.
	Dependencies []string `json:"dependencies,omitempty"`

	// DependencyType is "requires_data" iff Dependencies is non-empty.
	DependencyType string `json:"dependency_type,omitempty"`

	ContextRequirements ContextRequirements `json:"context_requirements"`

	Status        StepStatus    `json:"status"`
	Result        string        `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	RetryCount    int           `json:"retry_count"`
	ExecutionTime time.Duration `json:"execution_time"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewExecutionStep returns a pending step with CreatedAt set and the
// dependency-type invariant established.
func NewExecutionStep(id, toolName string, action Action, query string) *ExecutionStep {
	return &ExecutionStep{
		ID:        id,
		ToolName:  toolName,
		Action:    action,
		Query:     query,
		Status:    StepPending,
		CreatedAt: time.Now(),
	}
}

// SetDependencies assigns deps and keeps DependencyType consistent.
func (s *ExecutionStep) SetDependencies(deps []string) {
	s.Dependencies = deps
	if len(deps) > 0 {
		s.DependencyType = DependencyTypeRequiresData
	} else {
		s.DependencyType = ""
	}
}

// Transition moves the step to a new status, enforcing the state machine.
// Terminal states admit no transitions.
func (s *ExecutionStep) Transition(to StepStatus) error {
	for _, allowed := range stepTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			if to == StepRetrying {
				// A retry starts clean.
				s.Result = ""
				s.Error = ""
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (step %s)", ErrInvalidTransition, s.Status, to, s.ID)
}
