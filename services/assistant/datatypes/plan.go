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

import "fmt"

// ExecutionPlan is an ordered list of steps with a derivable level grouping.
// Warnings and Errors come from plan-level validation; they are attached for
// observability but never gate execution on their own.
type ExecutionPlan struct {
	Steps    []*ExecutionStep `json:"steps"`
	Warnings []string         `json:"warnings,omitempty"`
	Errors   []string         `json:"errors,omitempty"`
}

// Step returns the step with the given ID, or nil.
func (p *ExecutionPlan) Step(id string) *ExecutionStep {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Levels partitions the steps into dependency levels: level 0 holds steps
// with no dependencies, level k holds steps whose dependencies all live in
// levels < k. This is the canonical topological grouping — it preserves
// cross-level ordering while exposing in-level parallelism.
//
// Returns ErrCycle if the graph is not a DAG, and ErrInvalidInput if a step
// depends on an unknown step ID.
func (p *ExecutionPlan) Levels() ([][]*ExecutionStep, error) {
	if len(p.Steps) == 0 {
		return nil, nil
	}

	byID := make(map[string]*ExecutionStep, len(p.Steps))
	for _, s := range p.Steps {
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id %q", ErrInvalidInput, s.ID)
		}
		byID[s.ID] = s
	}

	level := make(map[string]int, len(p.Steps))
	var assign func(id string, visiting map[string]bool) (int, error)
	assign = func(id string, visiting map[string]bool) (int, error) {
		if lv, ok := level[id]; ok {
			return lv, nil
		}
		if visiting[id] {
			return 0, fmt.Errorf("%w: involving step %q", ErrCycle, id)
		}
		step, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("%w: unknown dependency %q", ErrInvalidInput, id)
		}
		visiting[id] = true
		lv := 0
		for _, dep := range step.Dependencies {
			depLv, err := assign(dep, visiting)
			if err != nil {
				return 0, err
			}
			if depLv+1 > lv {
				lv = depLv + 1
			}
		}
		delete(visiting, id)
		level[id] = lv
		return lv, nil
	}

	maxLevel := 0
	for _, s := range p.Steps {
		lv, err := assign(s.ID, map[string]bool{})
		if err != nil {
			return nil, err
		}
		if lv > maxLevel {
			maxLevel = lv
		}
	}

	groups := make([][]*ExecutionStep, maxLevel+1)
	// Iterate plan order so in-level ordering stays deterministic for tests,
	// even though callers must not depend on it.
	for _, s := range p.Steps {
		lv := level[s.ID]
		groups[lv] = append(groups[lv], s)
	}
	return groups, nil
}
