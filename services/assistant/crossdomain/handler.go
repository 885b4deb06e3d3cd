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
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/analytics"
	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/executor"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// Detection confidences and the engagement threshold.
const (
	// explicitConfidence is assigned when an explicit fan-out pattern fires.
	explicitConfidence = 0.90

	// bucketConfidence is assigned when only keyword-bucket evidence (two or
	// more domain vocabularies) supports cross-domain handling.
	bucketConfidence = 0.60

	// DefaultEngageThreshold is the minimum confidence at which the
	// orchestrator hands the query to the fan-out path, used when the config
	// does not set engage_threshold. Bucket-only evidence stays below it:
	// mentioning two vocabularies is not a fan-out request.
	DefaultEngageThreshold = 0.70
)

// bucketRegex finds domain vocabulary for bucket counting. The bare word
// "event" is deliberately absent; see the routing patterns.
var bucketRegex = regexp.MustCompile(`\b(email|emails|inbox|message|messages|task|tasks|todo|todos|meeting|meetings|appointment|appointments|calendar|events|notion|notes)\b`)

// Analysis is the outcome of cross-domain detection for one query.
type Analysis struct {
	IsCrossDomain bool
	Confidence    float64
	Domains       []datatypes.Domain
	Mode          Mode

	// Threshold is the engagement threshold in force when Analyze ran.
	Threshold float64
}

// Engaged reports whether the analysis clears the fan-out threshold.
func (a Analysis) Engaged() bool {
	t := a.Threshold
	if t == 0 {
		t = DefaultEngageThreshold
	}
	return a.IsCrossDomain && a.Confidence >= t
}

// Handler detects and executes cross-domain fan-outs.
type Handler struct {
	cfg      *Config
	catalog  *catalog.Catalog
	executor *executor.Executor
	recorder analytics.Recorder
	logger   *slog.Logger
}

// NewHandler builds a handler. recorder may be analytics.Nop{}.
func NewHandler(cfg *Config, cat *catalog.Catalog, exec *executor.Executor, rec analytics.Recorder, logger *slog.Logger) *Handler {
	if rec == nil {
		rec = analytics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, catalog: cat, executor: exec, recorder: rec, logger: logger}
}

// Analyze classifies a query.
//
// Explicit fan-out patterns score 0.90. Single-domain shortcuts then catch
// queries that merely mention another domain's nouns while plainly operating
// in one domain. Remaining bucket evidence alone scores 0.60, below the
// engagement threshold.
func (h *Handler) Analyze(query string) Analysis {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Analysis{Threshold: h.cfg.EngageThreshold}
	}

	// Explicit fan-out requests outrank the single-domain shortcuts: a
	// query can both start like a plain email read and go on to ask for
	// task creation from the results.
	for _, ep := range h.cfg.Explicit {
		if ep.Regex.MatchString(q) {
			return Analysis{
				IsCrossDomain: true,
				Confidence:    explicitConfidence,
				Domains:       ep.Domains,
				Mode:          ep.Mode,
				Threshold:     h.cfg.EngageThreshold,
			}
		}
	}

	for _, sc := range h.cfg.Shortcuts {
		if sc.Regex.MatchString(q) {
			return Analysis{Domains: []datatypes.Domain{sc.Domain}, Threshold: h.cfg.EngageThreshold}
		}
	}

	buckets := h.domainBuckets(q)
	if len(buckets) >= 2 {
		return Analysis{
			IsCrossDomain: true,
			Confidence:    bucketConfidence,
			Domains:       buckets,
			Mode:          ModeParallel,
			Threshold:     h.cfg.EngageThreshold,
		}
	}
	return Analysis{Domains: buckets, Threshold: h.cfg.EngageThreshold}
}

// domainBuckets returns the concrete domains whose vocabulary appears in q,
// in canonical domain order.
func (h *Handler) domainBuckets(q string) []datatypes.Domain {
	present := make(map[datatypes.Domain]bool)
	for _, m := range bucketRegex.FindAllString(q, -1) {
		if d := datatypes.NormalizeDomain(m); d.Concrete() {
			present[d] = true
		}
	}
	var out []datatypes.Domain
	for _, d := range datatypes.ConcreteDomains {
		if present[d] {
			out = append(out, d)
		}
	}
	return out
}

// Handle fans the query out across the analysis's domain chain and executes
// the resulting plan. Partial failures surface in the result, never as an
// error.
func (h *Handler) Handle(ctx context.Context, query string, an Analysis, available *tools.Set, meta executor.Meta) (*datatypes.OrchestrationResult, error) {
	if !an.Engaged() {
		return nil, fmt.Errorf("%w: query is not a cross-domain fan-out", datatypes.ErrInvalidInput)
	}

	plan, err := h.buildPlan(query, an, available)
	if err != nil {
		return nil, err
	}

	h.logger.Info("cross-domain fan-out",
		slog.String("mode", string(an.Mode)),
		slog.Int("sub_queries", len(plan.Steps)))

	meta.CrossDomain = true
	start := time.Now()
	result, err := h.executor.Execute(ctx, plan, available, meta)
	if err != nil {
		return nil, err
	}

	outcome := datatypes.OutcomeMixed
	if !result.Success {
		outcome = datatypes.OutcomeFailure
	}
	if _, rerr := h.recorder.RecordRouting(ctx, &datatypes.RoutingRecord{
		Timestamp:       time.Now().UTC(),
		Query:           query,
		DetectedDomain:  datatypes.DomainMixed,
		RoutedTool:      "cross_domain",
		Confidence:      an.Confidence,
		CrossDomain:     true,
		Outcome:         outcome,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		UserID:          meta.UserID,
		SessionID:       meta.SessionID,
	}); rerr != nil {
		h.logger.Warn("recording cross-domain decision", slog.Any("error", rerr))
	}
	return result, nil
}

// buildPlan turns the domain chain into an execution plan: one step per
// domain, templated sub-queries, and dependency edges per the mode.
func (h *Handler) buildPlan(query string, an Analysis, available *tools.Set) (*datatypes.ExecutionPlan, error) {
	plan := &datatypes.ExecutionPlan{}
	var prevID string

	for i, domain := range an.Domains {
		toolName, ok := h.catalog.CanonicalAvailableTool(domain, available)
		if !ok {
			// A missing tool shrinks the fan-out instead of aborting it.
			h.logger.Warn("no available tool for fan-out domain, skipping",
				slog.String("domain", string(domain)))
			continue
		}

		isSource := i == 0 || an.Mode == ModeParallel
		step := datatypes.NewExecutionStep(
			fmt.Sprintf("step_%d", len(plan.Steps)+1),
			toolName,
			h.actionFor(domain, isSource),
			h.subQuery(domain, query, isSource),
		)
		step.Domain = domain

		if an.Mode == ModeDependent && prevID != "" {
			step.SetDependencies([]string{prevID})
			step.ContextRequirements = requirementsFor(an.Domains[i-1], domain)
		}
		plan.Steps = append(plan.Steps, step)
		prevID = step.ID
	}

	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("%w: no tools available for any fan-out domain", datatypes.ErrToolUnavailable)
	}
	return plan, nil
}

// subQuery applies the domain's template to the original query.
func (h *Handler) subQuery(domain datatypes.Domain, query string, isSource bool) string {
	t, ok := h.cfg.Templates[domain]
	if !ok {
		return query
	}
	tmpl := t.Target
	if isSource {
		tmpl = t.Source
	}
	if tmpl == "" {
		return query
	}
	return fmt.Sprintf(tmpl, query)
}

// actionFor picks the verb for a fan-out step: sources read, targets write.
func (h *Handler) actionFor(domain datatypes.Domain, isSource bool) datatypes.Action {
	if isSource {
		if domain == datatypes.DomainEmail || domain == datatypes.DomainNotion {
			return datatypes.ActionSearch
		}
		return datatypes.ActionList
	}
	switch domain {
	case datatypes.DomainEmail:
		return datatypes.ActionSend
	case datatypes.DomainNotion:
		return datatypes.ActionCreatePage
	default:
		return datatypes.ActionCreate
	}
}

// requirementsFor derives the dependent step's context needs from the edge's
// domain pair.
func requirementsFor(source, target datatypes.Domain) datatypes.ContextRequirements {
	req := datatypes.ContextRequirements{NeedsPreviousResults: true}
	if target == datatypes.DomainTask {
		req.NeedsSourceData = true
	}
	if target == datatypes.DomainCalendar && source == datatypes.DomainEmail {
		req.NeedsParticipantData = true
	}
	return req
}
