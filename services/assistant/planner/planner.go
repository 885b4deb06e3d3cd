// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner turns step descriptors into a validated ExecutionPlan.
//
// Planning is where routing decisions become concrete: each descriptor gets a
// tool via the selection cascade, the choice is validated, and confidently
// wrong choices are auto-corrected to the detected domain's canonical tool.
// Steps that survive neither validation nor correction are dropped, and the
// dependency graph is rewritten around them.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/decompose"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// planningTimeout bounds one Plan call.
const planningTimeout = 10 * time.Second

// Options tunes planner behavior.
type Options struct {
	// RejectOnPlanWarnings makes plan-level validation warnings fatal.
	// Default off: warnings are attached to the plan for observability but
	// never gate execution.
	RejectOnPlanWarnings bool
}

// Correction describes one auto-correction made during planning. Query and
// DetectedDomain carry enough context for the caller to persist the
// correction as a routing decision plus a linked correction record.
type Correction struct {
	StepID              string
	Query               string
	DetectedDomain      datatypes.Domain
	OriginalTool        string
	CorrectedTool       string
	Reason              string
	ValidatorConfidence float64
}

// Planner assembles execution plans.
type Planner struct {
	selector  *routing.Selector
	validator *routing.Validator
	catalog   *catalog.Catalog
	opts      Options
	logger    *slog.Logger
}

// NewPlanner builds a planner.
func NewPlanner(sel *routing.Selector, val *routing.Validator, cat *catalog.Catalog, opts Options, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{selector: sel, validator: val, catalog: cat, opts: opts, logger: logger}
}

// Plan maps descriptors to tools, validates each choice, auto-corrects
// confident mismatches, and returns the plan plus the corrections made.
//
// A step whose routing is rejected and cannot be corrected is dropped;
// downstream steps lose the dependency edge rather than being dropped
// themselves. If every step is dropped the plan is rejected outright.
func (p *Planner) Plan(ctx context.Context, descriptors []decompose.StepDescriptor, available *tools.Set, memoryRecommendations []string) (*datatypes.ExecutionPlan, []Correction, error) {
	if len(descriptors) == 0 {
		return nil, nil, fmt.Errorf("%w: no step descriptors", datatypes.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, planningTimeout)
	defer cancel()

	plan := &datatypes.ExecutionPlan{}
	var corrections []Correction
	dropped := make(map[string]bool)

	for _, desc := range descriptors {
		toolName, err := p.selector.Select(ctx, routing.SelectionInput{
			StepQuery:             desc.Query,
			Intent:                desc.Intent,
			MemoryRecommendations: memoryRecommendations,
			Available:             available,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("selecting tool for %s: %w", desc.ID, err)
		}

		verdict := p.validator.Validate(ctx, desc.Query, toolName, nil)
		if !verdict.Valid {
			corrected, ok := p.correct(desc, toolName, verdict, available)
			if !ok {
				p.logger.Warn("dropping step: routing rejected and no correction available",
					slog.String("step", desc.ID),
					slog.String("tool", toolName),
					slog.String("reason", verdict.Reason))
				plan.Warnings = append(plan.Warnings,
					fmt.Sprintf("step %s dropped: %s", desc.ID, verdict.Reason))
				dropped[desc.ID] = true
				continue
			}
			corrections = append(corrections, Correction{
				StepID:              desc.ID,
				Query:               desc.Query,
				DetectedDomain:      verdict.DetectedDomain,
				OriginalTool:        toolName,
				CorrectedTool:       corrected,
				Reason:              verdict.Reason,
				ValidatorConfidence: verdict.Confidence,
			})
			p.logger.Info("auto-corrected step routing",
				slog.String("step", desc.ID),
				slog.String("from", toolName),
				slog.String("to", corrected))
			toolName = corrected
		}

		step := datatypes.NewExecutionStep(desc.ID, toolName, desc.Action, desc.Query)
		step.ContextRequirements = desc.ContextRequirements
		if d, ok := p.catalog.DomainForTool(toolName); ok {
			step.Domain = d
		} else {
			step.Domain = datatypes.DomainGeneral
		}
		plan.Steps = append(plan.Steps, step)
	}

	if len(plan.Steps) == 0 {
		return nil, nil, fmt.Errorf("%w: all steps were rejected during planning", datatypes.ErrValidationRejected)
	}

	// Rewrite dependencies around dropped steps, preserving descriptor order.
	byID := make(map[string]*datatypes.ExecutionStep, len(plan.Steps))
	for _, s := range plan.Steps {
		byID[s.ID] = s
	}
	for _, desc := range descriptors {
		step, ok := byID[desc.ID]
		if !ok {
			continue
		}
		var deps []string
		for _, dep := range desc.Dependencies {
			if !dropped[dep] {
				deps = append(deps, dep)
			}
		}
		step.SetDependencies(deps)
	}

	// Plan-level validation attaches warnings; it gates only when opted in.
	pv := p.validator.ValidatePlan(ctx, plan.Steps)
	plan.Warnings = append(plan.Warnings, pv.Warnings...)
	plan.Errors = append(plan.Errors, pv.Errors...)
	if p.opts.RejectOnPlanWarnings && len(plan.Warnings) > 0 {
		return nil, corrections, fmt.Errorf("%w: plan has warnings and strict plan gating is enabled", datatypes.ErrValidationRejected)
	}

	if _, err := plan.Levels(); err != nil {
		return nil, corrections, fmt.Errorf("plan graph: %w", err)
	}
	return plan, corrections, nil
}

// correct finds a replacement tool for a rejected routing: the canonical
// available tool of the detected domain. Mixed and general detections have
// no single canonical tool, so they never correct.
func (p *Planner) correct(desc decompose.StepDescriptor, original string, verdict datatypes.ValidationVerdict, available *tools.Set) (string, bool) {
	if !verdict.DetectedDomain.Concrete() {
		return "", false
	}
	name, ok := p.catalog.CanonicalAvailableTool(verdict.DetectedDomain, available)
	if !ok || name == original {
		return "", false
	}
	return name, true
}
