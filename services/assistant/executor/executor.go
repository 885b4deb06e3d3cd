// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor runs execution plans level by level.
//
// Steps inside a level run in parallel; a level starts only after the
// previous one finished. Between levels, completed results are synthesized
// into context enrichments for downstream steps that asked for them.
//
// A step failure never aborts the plan: dependents of a failed step are
// blocked, independent steps keep running, and the result reports the
// partial outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAssist/services/assistant/analytics"
	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
	"github.com/AleutianAI/AleutianAssist/services/assistant/synthesis"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

const (
	// stepTimeout bounds one tool invocation, per attempt.
	stepTimeout = 30 * time.Second

	// maxRetries is the retry budget per step, shared by transient and
	// rejection retries.
	maxRetries = 2

	// parserRefineThreshold is the parser confidence needed to override the
	// planned action with the parser's.
	parserRefineThreshold = 0.70
)

// Meta carries request identity into analytics rows.
type Meta struct {
	UserID    string
	SessionID string

	// CrossDomain marks rows produced by cross-domain fan-out plans.
	CrossDomain bool
}

// Executor runs plans against an available tool set.
type Executor struct {
	validator   *routing.Validator
	synthesizer *synthesis.Synthesizer
	catalog     *catalog.Catalog
	recorder    analytics.Recorder
	bus         *datatypes.EventBus // optional
	logger      *slog.Logger
}

// NewExecutor builds an executor. recorder may be analytics.Nop{}; bus may
// be nil.
func NewExecutor(val *routing.Validator, syn *synthesis.Synthesizer, cat *catalog.Catalog, rec analytics.Recorder, bus *datatypes.EventBus, logger *slog.Logger) *Executor {
	if rec == nil {
		rec = analytics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		validator:   val,
		synthesizer: syn,
		catalog:     cat,
		recorder:    rec,
		bus:         bus,
		logger:      logger,
	}
}

// Execute runs the plan to completion and returns the aggregate result.
//
// The returned error covers structural failures only (nil context, cyclic
// plan); step-level failures are reported inside the result.
func (e *Executor) Execute(ctx context.Context, plan *datatypes.ExecutionPlan, available *tools.Set, meta Meta) (*datatypes.OrchestrationResult, error) {
	if ctx == nil {
		return nil, datatypes.ErrNilContext
	}
	levels, err := plan.Levels()
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "executor.Execute",
		trace.WithAttributes(
			attribute.Int("plan.steps", len(plan.Steps)),
			attribute.Int("plan.levels", len(levels)),
		),
	)
	defer span.End()

	start := time.Now()
	// Enrichments accumulate per target step across levels. The map is
	// written only between levels, read only inside them.
	enrichmentsFor := make(map[string][]*datatypes.ContextEnrichment)

	for li, level := range levels {
		if ctx.Err() != nil {
			e.cancelRemaining(plan, ctx.Err())
			break
		}

		g := new(errgroup.Group)
		for _, step := range level {
			step := step
			g.Go(func() error {
				if blockedBy := e.unmetDependency(plan, step); blockedBy != "" {
					e.blockStep(step, blockedBy)
					return nil
				}
				e.executeStep(ctx, step, available, enrichmentsFor[step.ID], meta)
				return nil
			})
		}
		// Goroutines report through step state, never through errors.
		_ = g.Wait()

		e.synthesizeLevel(ctx, level, levels[li+1:], enrichmentsFor)
	}

	result := e.buildResult(plan, start)
	if result.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, strings.Join(result.Errors, "; "))
	}
	e.publish(datatypes.EventWorkflowComplete, "plan finished", map[string]any{
		"steps_executed": result.StepsExecuted,
		"total_steps":    result.TotalSteps,
		"success":        result.Success,
	})
	return result, nil
}

// unmetDependency returns the ID of a non-completed dependency, or "".
func (e *Executor) unmetDependency(plan *datatypes.ExecutionPlan, step *datatypes.ExecutionStep) string {
	for _, dep := range step.Dependencies {
		if d := plan.Step(dep); d == nil || d.Status != datatypes.StepCompleted {
			return dep
		}
	}
	return ""
}

func (e *Executor) blockStep(step *datatypes.ExecutionStep, blockedBy string) {
	if err := step.Transition(datatypes.StepBlocked); err != nil {
		e.logger.Error("blocking step", slog.String("step", step.ID), slog.Any("error", err))
		return
	}
	step.Error = fmt.Sprintf("blocked: dependency %s did not complete", blockedBy)
	stepsTotal.WithLabelValues(string(datatypes.StepBlocked)).Inc()
	e.logger.Info("step blocked",
		slog.String("step", step.ID),
		slog.String("dependency", blockedBy))
	e.publish(datatypes.EventError, step.Error, map[string]any{"step": step.ID})
}

// executeStep drives one step through the state machine, including retries
// and the alternate-tool rejection path.
func (e *Executor) executeStep(ctx context.Context, step *datatypes.ExecutionStep, available *tools.Set, enrichments []*datatypes.ContextEnrichment, meta Meta) {
	ctx, span := tracer.Start(ctx, "executor.Step",
		trace.WithAttributes(
			attribute.String("step.id", step.ID),
			attribute.String("step.tool", step.ToolName),
			attribute.String("step.action", string(step.Action)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		step.ExecutionTime = time.Since(start)
		stepLatency.Observe(step.ExecutionTime.Seconds())
	}()

	if err := step.Transition(datatypes.StepInProgress); err != nil {
		e.logger.Error("starting step", slog.String("step", step.ID), slog.Any("error", err))
		return
	}

	// Validation runs on the raw query; enrichment text would skew domain
	// detection.
	verdict := e.validator.Validate(ctx, step.Query, step.ToolName, nil)
	if !verdict.Valid {
		e.failStep(step, fmt.Errorf("%w: %s", datatypes.ErrValidationRejected, verdict.Reason))
		e.record(ctx, step, verdict.Confidence, datatypes.OutcomeFailure, false, meta, start)
		span.SetStatus(codes.Error, verdict.Reason)
		return
	}

	if len(enrichments) > 0 && step.ContextRequirements.Any() {
		step.Query = e.synthesizer.EnrichQuery(step.Query, step.ContextRequirements, enrichments)
	}

	tool, ok := available.Get(step.ToolName)
	if !ok {
		e.failStep(step, fmt.Errorf("%w: %s", datatypes.ErrToolUnavailable, step.ToolName))
		e.record(ctx, step, verdict.Confidence, datatypes.OutcomeFailure, false, meta, start)
		span.SetStatus(codes.Error, "tool unavailable")
		return
	}

	// Let the tool's own parser refine the action when it is confident.
	parserUsed := e.refineAction(ctx, step, tool)

	e.publish(datatypes.EventActionExecuting,
		fmt.Sprintf("executing %s via %s", step.Action, step.ToolName),
		map[string]any{"step": step.ID, "action": string(step.Action), "tool": step.ToolName})

	originalTool := step.ToolName
	corrected := false
	var correctionReason string
	for {
		e.publish(datatypes.EventToolCallStart,
			fmt.Sprintf("running %s.%s", step.ToolName, step.Action),
			map[string]any{"step": step.ID, "tool": step.ToolName})

		result, err := e.runOnce(ctx, tool, step)
		if err == nil {
			step.Result = result
			if terr := step.Transition(datatypes.StepCompleted); terr != nil {
				e.logger.Error("completing step", slog.String("step", step.ID), slog.Any("error", terr))
			}
			stepsTotal.WithLabelValues(string(datatypes.StepCompleted)).Inc()
			outcome := datatypes.OutcomeSuccess
			if corrected {
				outcome = datatypes.OutcomeCorrection
			}
			routingID := e.record(ctx, step, verdict.Confidence, outcome, parserUsed, meta, start)
			if corrected && routingID != 0 {
				e.recordCorrection(ctx, routingID, originalTool, step.ToolName, correctionReason, verdict.Confidence)
			}
			e.publish(datatypes.EventToolComplete,
				fmt.Sprintf("%s completed", step.ID),
				map[string]any{"step": step.ID, "tool": step.ToolName})
			e.publish(datatypes.EventActionComplete,
				fmt.Sprintf("%s finished %s", step.ID, step.Action),
				map[string]any{"step": step.ID, "action": string(step.Action), "tool": step.ToolName})
			span.SetStatus(codes.Ok, "")
			return
		}

		var rejection *datatypes.ToolRejectionError
		switch {
		case errors.As(err, &rejection) && step.RetryCount < maxRetries:
			alt, altTool, ok := e.alternateTool(step, rejection.Message, available)
			if !ok {
				break
			}
			e.logger.Info("tool rejected query, retrying with alternate",
				slog.String("step", step.ID),
				slog.String("from", step.ToolName),
				slog.String("to", alt))
			if rerr := e.retryTransition(step); rerr != nil {
				break
			}
			stepRetries.WithLabelValues("rejection").Inc()
			if merr := e.recorder.RecordMisrouting(ctx, step.Query, step.ToolName, alt, verdict.Confidence); merr != nil {
				e.logger.Warn("recording misrouting", slog.Any("error", merr))
			}
			step.ToolName = alt
			if d, known := e.catalog.DomainForTool(alt); known {
				step.Domain = d
			}
			tool = altTool
			corrected = true
			correctionReason = rejection.Message
			continue

		case step.Action.Retryable() && step.RetryCount < maxRetries && ctx.Err() == nil:
			e.logger.Warn("step failed, retrying",
				slog.String("step", step.ID),
				slog.Int("attempt", step.RetryCount+1),
				slog.Any("error", err))
			if rerr := e.retryTransition(step); rerr != nil {
				break
			}
			stepRetries.WithLabelValues("transient").Inc()
			continue
		}

		e.failStep(step, err)
		e.record(ctx, step, verdict.Confidence, datatypes.OutcomeFailure, parserUsed, meta, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
}

// runOnce invokes the tool with the per-attempt timeout.
func (e *Executor) runOnce(ctx context.Context, tool tools.Tool, step *datatypes.ExecutionStep) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	return tool.Run(runCtx, step.Action, step.Query, nil)
}

// retryTransition walks retrying -> in_progress and bumps the count.
func (e *Executor) retryTransition(step *datatypes.ExecutionStep) error {
	if err := step.Transition(datatypes.StepRetrying); err != nil {
		return err
	}
	step.RetryCount++
	return step.Transition(datatypes.StepInProgress)
}

// refineAction overrides the planned action with the tool parser's when the
// parser is confident and not rejecting. Returns whether the parser was
// consulted successfully.
func (e *Executor) refineAction(ctx context.Context, step *datatypes.ExecutionStep, tool tools.Tool) bool {
	parser := tools.ParserFor(tool)
	if parser == nil {
		return false
	}
	res, err := parser.ParseQuery(ctx, step.Query)
	if err != nil || res == nil || res.Rejected() {
		return false
	}
	if res.Confidence >= parserRefineThreshold && res.Action.Valid() && res.Action != step.Action {
		e.logger.Debug("parser refined step action",
			slog.String("step", step.ID),
			slog.String("from", string(step.Action)),
			slog.String("to", string(res.Action)))
		step.Action = res.Action
	}
	return true
}

// alternateTool picks a replacement tool after a rejection: the first
// concrete domain mentioned in the rejection message or the step query that
// differs from the step's own domain and has an available canonical tool.
func (e *Executor) alternateTool(step *datatypes.ExecutionStep, rejectionMsg string, available *tools.Set) (string, tools.Tool, bool) {
	for _, source := range []string{rejectionMsg, step.Query} {
		for _, word := range strings.Fields(strings.ToLower(source)) {
			d := datatypes.NormalizeDomain(strings.Trim(word, ".,;:!?\"'"))
			if !d.Concrete() || d == step.Domain {
				continue
			}
			name, ok := e.catalog.CanonicalAvailableTool(d, available)
			if !ok || name == step.ToolName {
				continue
			}
			if t, found := available.Get(name); found {
				return name, t, true
			}
		}
	}
	return "", nil, false
}

func (e *Executor) failStep(step *datatypes.ExecutionStep, err error) {
	step.Error = err.Error()
	if terr := step.Transition(datatypes.StepFailed); terr != nil {
		e.logger.Error("failing step", slog.String("step", step.ID), slog.Any("error", terr))
		return
	}
	stepsTotal.WithLabelValues(string(datatypes.StepFailed)).Inc()
	e.logger.Warn("step failed",
		slog.String("step", step.ID),
		slog.String("tool", step.ToolName),
		slog.String("error", step.Error))
	e.publish(datatypes.EventError, step.Error, map[string]any{"step": step.ID})
}

// synthesizeLevel turns this level's completed results into enrichments for
// later steps that declared context requirements.
func (e *Executor) synthesizeLevel(ctx context.Context, level []*datatypes.ExecutionStep, laterLevels [][]*datatypes.ExecutionStep, enrichmentsFor map[string][]*datatypes.ContextEnrichment) {
	if e.synthesizer == nil {
		return
	}
	for _, src := range level {
		if src.Status != datatypes.StepCompleted || src.Result == "" {
			continue
		}
		for _, later := range laterLevels {
			for _, dst := range later {
				if !dst.ContextRequirements.Any() {
					continue
				}
				if enr := e.synthesizer.Synthesize(ctx, src.Domain, dst.Domain, src.Result); enr != nil {
					enrichmentsFor[dst.ID] = append(enrichmentsFor[dst.ID], enr)
				}
			}
		}
	}
}

// cancelRemaining fails every non-terminal step after context cancellation.
func (e *Executor) cancelRemaining(plan *datatypes.ExecutionPlan, cause error) {
	for _, step := range plan.Steps {
		if step.Status.Terminal() {
			continue
		}
		if step.Status == datatypes.StepPending {
			if err := step.Transition(datatypes.StepInProgress); err != nil {
				continue
			}
		}
		e.failStep(step, fmt.Errorf("canceled: %w", cause))
	}
}

// record writes the per-step analytics row and returns its ID (zero when the
// write failed). Failures are logged, never propagated.
func (e *Executor) record(ctx context.Context, step *datatypes.ExecutionStep, confidence float64, outcome datatypes.RoutingOutcome, parserUsed bool, meta Meta, start time.Time) int64 {
	rec := &datatypes.RoutingRecord{
		Timestamp:       time.Now().UTC(),
		Query:           step.Query,
		DetectedDomain:  step.Domain,
		RoutedTool:      step.ToolName,
		Confidence:      confidence,
		ParserUsed:      parserUsed,
		ValidatorUsed:   true,
		CrossDomain:     meta.CrossDomain,
		Outcome:         outcome,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		ErrorMessage:    step.Error,
		UserID:          meta.UserID,
		SessionID:       meta.SessionID,
	}
	id, err := e.recorder.RecordRouting(ctx, rec)
	if err != nil {
		e.logger.Warn("recording routing decision", slog.Any("error", err))
		return 0
	}
	return id
}

// recordCorrection links a corrected routing row to its correction record.
func (e *Executor) recordCorrection(ctx context.Context, routingID int64, originalTool, correctedTool, reason string, confidence float64) {
	if err := e.recorder.RecordCorrection(ctx, &datatypes.CorrectionRecord{
		RoutingDecisionID:   routingID,
		Timestamp:           time.Now().UTC(),
		OriginalTool:        originalTool,
		CorrectedTool:       correctedTool,
		Reason:              reason,
		ValidatorConfidence: confidence,
	}); err != nil {
		e.logger.Warn("recording correction", slog.Any("error", err))
	}
}

// buildResult aggregates step outcomes into the caller-facing result.
func (e *Executor) buildResult(plan *datatypes.ExecutionPlan, start time.Time) *datatypes.OrchestrationResult {
	res := &datatypes.OrchestrationResult{
		TotalSteps:    len(plan.Steps),
		ExecutionTime: time.Since(start).Seconds(),
	}

	var parts []string
	var failed []string
	for _, step := range plan.Steps {
		switch step.Status {
		case datatypes.StepCompleted:
			res.StepsExecuted++
			if step.Result != "" {
				parts = append(parts, step.Result)
			}
		case datatypes.StepFailed, datatypes.StepBlocked:
			failed = append(failed, fmt.Sprintf("%s: %s", step.ID, step.Error))
		}
	}
	res.Errors = failed
	res.Success = res.StepsExecuted > 0

	var b strings.Builder
	b.WriteString(strings.Join(parts, "\n\n"))
	if len(failed) > 0 && res.StepsExecuted > 0 {
		b.WriteString("\n\nNote: some steps could not be completed:\n")
		for _, f := range failed {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	} else if res.StepsExecuted == 0 && len(failed) > 0 {
		b.WriteString("The request could not be completed: " + failed[0])
	}
	res.FinalResult = b.String()
	return res
}

func (e *Executor) publish(typ datatypes.EventType, msg string, data map[string]any) {
	if e.bus != nil {
		e.bus.Publish(typ, msg, data)
	}
}
