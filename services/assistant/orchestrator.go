// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant is the facade over the query orchestration core: one
// entry point that decomposes a query, routes and validates each step,
// executes the plan, and reports the aggregate outcome.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/analytics"
	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/crossdomain"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/decompose"
	"github.com/AleutianAI/AleutianAssist/services/assistant/executor"
	"github.com/AleutianAI/AleutianAssist/services/assistant/planner"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
	"github.com/AleutianAI/AleutianAssist/services/assistant/synthesis"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
	"github.com/AleutianAI/AleutianAssist/services/llm"
)

// Options configures an Orchestrator. Zero values give a working pattern-only
// core: no LLM, in-memory analytics discard, lenient validation off.
type Options struct {
	// Strict enables strict routing validation (confident mismatches are
	// rejected and auto-corrected instead of admitted with a warning).
	Strict bool

	// LLM, when set, accelerates decomposition and fact extraction. Every
	// LLM path has a pattern fallback; a nil client is fully supported.
	LLM llm.LLMClient

	// Recorder receives routing analytics. Defaults to analytics.Nop{}.
	Recorder analytics.Recorder

	// Catalog defaults to a fresh default catalog.
	Catalog *catalog.Catalog

	// Analyzer optionally replaces pattern-based domain detection.
	Analyzer routing.Analyzer

	// IntentToolMap overrides the selector's static intent table.
	IntentToolMap map[string]string

	// Planner tunes plan gating.
	Planner planner.Options

	Logger *slog.Logger
}

// Request is one query execution request.
type Request struct {
	Query     string
	UserID    string
	SessionID string

	// Available is the tool set for this request. Required.
	Available *tools.Set

	// MemoryRecommendations are tool names a memory layer suggests, best
	// first. Optional.
	MemoryRecommendations []string
}

// Orchestrator wires the core components behind a single ExecuteQuery call.
type Orchestrator struct {
	catalog     *catalog.Catalog
	detector    *routing.Detector
	validator   *routing.Validator
	decomposer  *decompose.Decomposer
	planner     *planner.Planner
	executor    *executor.Executor
	crossDomain *crossdomain.Handler
	recorder    analytics.Recorder
	bus         *datatypes.EventBus
	logger      *slog.Logger
}

// New builds an orchestrator from options.
func New(opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = analytics.Nop{}
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.NewWithDefaults(logger)
	}

	patterns, err := routing.DefaultPatterns()
	if err != nil {
		return nil, fmt.Errorf("loading routing patterns: %w", err)
	}
	cdConfig, err := crossdomain.DefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading cross-domain config: %w", err)
	}

	detector := routing.NewDetector(patterns, opts.Analyzer, logger)
	validator := routing.NewValidator(detector, cat, opts.Strict, logger)
	selector := routing.NewSelector(cat, opts.IntentToolMap, logger)
	synthesizer := synthesis.NewSynthesizer(opts.LLM, logger)
	bus := datatypes.NewEventBus()
	exec := executor.NewExecutor(validator, synthesizer, cat, recorder, bus, logger)

	return &Orchestrator{
		catalog:     cat,
		detector:    detector,
		validator:   validator,
		decomposer:  decompose.NewDecomposer(detector, opts.LLM, logger),
		planner:     planner.NewPlanner(selector, validator, cat, opts.Planner, logger),
		executor:    exec,
		crossDomain: crossdomain.NewHandler(cdConfig, cat, exec, recorder, logger),
		recorder:    recorder,
		bus:         bus,
		logger:      logger,
	}, nil
}

// Events returns the workflow event bus for push-stream subscribers.
func (o *Orchestrator) Events() *datatypes.EventBus { return o.bus }

// Catalog returns the tool-domain catalog the orchestrator routes against.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog }

// ExecuteQuery runs one query end to end.
//
// The error return covers programmer mistakes (nil context, missing tool
// set); user-visible failures, including an empty query, come back inside
// the result with Success false.
func (o *Orchestrator) ExecuteQuery(ctx context.Context, req Request) (*datatypes.OrchestrationResult, error) {
	if ctx == nil {
		return nil, datatypes.ErrNilContext
	}
	if req.Available == nil {
		return nil, fmt.Errorf("%w: nil tool set", datatypes.ErrInvalidInput)
	}

	start := time.Now()
	if isBlank(req.Query) {
		return &datatypes.OrchestrationResult{
			Success:       false,
			FinalResult:   "Please provide a query to execute.",
			ExecutionTime: time.Since(start).Seconds(),
		}, nil
	}

	o.bus.Publish(datatypes.EventReasoningStart, "analyzing query", map[string]any{
		"session_id": req.SessionID,
	})

	meta := executor.Meta{UserID: req.UserID, SessionID: req.SessionID}

	// Cross-domain fan-out path.
	if an := o.crossDomain.Analyze(req.Query); an.Engaged() {
		o.logger.Info("query routed to cross-domain fan-out",
			slog.String("session_id", req.SessionID),
			slog.Any("domains", an.Domains))
		return o.crossDomain.Handle(ctx, req.Query, an, req.Available, meta)
	}

	// Standard path: decompose, plan, execute.
	descriptors, err := o.decomposer.Decompose(ctx, req.Query, req.MemoryRecommendations)
	if err != nil {
		return o.failure(start, fmt.Sprintf("The query could not be analyzed: %v.", err)), nil
	}

	plan, corrections, err := o.planner.Plan(ctx, descriptors, req.Available, req.MemoryRecommendations)
	if err != nil {
		return o.failure(start, fmt.Sprintf("No valid execution plan could be built: %v.", err)), nil
	}
	o.recordCorrections(ctx, corrections)

	result, err := o.executor.Execute(ctx, plan, req.Available, meta)
	if err != nil {
		return nil, err
	}
	result.ExecutionTime = time.Since(start).Seconds()
	return result, nil
}

// recordCorrections persists planner auto-corrections; failures only log.
// Each correction lands as a routing decision row with the correction
// outcome plus a correction record keyed to it.
func (o *Orchestrator) recordCorrections(ctx context.Context, corrections []planner.Correction) {
	for _, c := range corrections {
		id, err := o.recorder.RecordRouting(ctx, &datatypes.RoutingRecord{
			Timestamp:      time.Now().UTC(),
			Query:          c.Query,
			DetectedDomain: c.DetectedDomain,
			RoutedTool:     c.CorrectedTool,
			Confidence:     c.ValidatorConfidence,
			ValidatorUsed:  true,
			Outcome:        datatypes.OutcomeCorrection,
		})
		if err != nil {
			o.logger.Warn("recording correction routing row", slog.Any("error", err))
			continue
		}
		if err := o.recorder.RecordCorrection(ctx, &datatypes.CorrectionRecord{
			RoutingDecisionID:   id,
			Timestamp:           time.Now().UTC(),
			OriginalTool:        c.OriginalTool,
			CorrectedTool:       c.CorrectedTool,
			Reason:              c.Reason,
			ValidatorConfidence: c.ValidatorConfidence,
		}); err != nil {
			o.logger.Warn("recording correction", slog.Any("error", err))
		}
	}
}

func (o *Orchestrator) failure(start time.Time, message string) *datatypes.OrchestrationResult {
	return &datatypes.OrchestrationResult{
		Success:       false,
		FinalResult:   message,
		ExecutionTime: time.Since(start).Seconds(),
		Errors:        []string{message},
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
