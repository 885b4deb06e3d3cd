// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decompose splits a user query into step descriptors.
//
// Atomic queries produce one descriptor. Compound queries are split on a
// closed separator set; when that fails to split and an LLM client is
// configured, LLM decomposition runs as a fallback. LLM failures never fail
// the request — the single-step descriptor stands.
package decompose

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
	"github.com/AleutianAI/AleutianAssist/services/llm"
)

// decompositionTimeout bounds the LLM decomposition call.
const decompositionTimeout = 10 * time.Second

// separators is the closed set of compound-query separators, tried in
// order. ". " splits clauses only when both sides look like clauses (see
// splitFragments).
var separators = []string{"; ", ", then ", " and then ", " after that ", ". "}

// StepDescriptor is the decomposer's output unit: everything the planner
// needs to turn a fragment into an ExecutionStep.
type StepDescriptor struct {
	ID                  string                        `json:"id"`
	Intent              string                        `json:"intent"`
	Action              datatypes.Action              `json:"action"`
	Query               string                        `json:"query"`
	Dependencies        []string                      `json:"dependencies,omitempty"`
	ContextRequirements datatypes.ContextRequirements `json:"context_requirements"`
	Entities            Entities                      `json:"entities"`
}

// Decomposer splits queries into step descriptors.
type Decomposer struct {
	detector *routing.Detector
	client   llm.LLMClient // optional
	logger   *slog.Logger
}

// NewDecomposer builds a decomposer. client may be nil (pattern-only mode).
func NewDecomposer(detector *routing.Detector, client llm.LLMClient, logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{detector: detector, client: client, logger: logger}
}

// Decompose splits query into descriptors. Decomposing an already-atomic
// query always produces exactly one step.
func (d *Decomposer) Decompose(ctx context.Context, query string, memoryRecommendations []string) ([]StepDescriptor, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, datatypes.ErrEmptyQuery
	}

	entities := ExtractEntities(trimmed)

	if !d.shouldOrchestrate(trimmed) {
		return []StepDescriptor{d.describeFragment(ctx, "step_1", trimmed, nil, entities)}, nil
	}

	fragments := splitFragments(trimmed)
	if len(fragments) > 1 {
		descriptors := make([]StepDescriptor, 0, len(fragments))
		var priorIDs []string
		for i, frag := range fragments {
			id := fmt.Sprintf("step_%d", i+1)
			// Conservative ordering: each step depends on all prior steps.
			deps := make([]string, len(priorIDs))
			copy(deps, priorIDs)
			descriptors = append(descriptors, d.describeFragment(ctx, id, frag, deps, entities))
			priorIDs = append(priorIDs, id)
		}
		return descriptors, nil
	}

	single := d.describeFragment(ctx, "step_1", trimmed, nil, entities)
	if d.client == nil {
		return []StepDescriptor{single}, nil
	}

	// Separator split failed on a query that still looks compound: let the
	// LLM try. Parse failures keep the single step.
	descriptors, err := d.decomposeViaLLM(ctx, trimmed, entities)
	if err != nil {
		d.logger.Warn("LLM decomposition failed, keeping single step", slog.Any("error", err))
		return []StepDescriptor{single}, nil
	}
	return descriptors, nil
}

// shouldOrchestrate is the complexity gate: true when the query likely
// needs more than one step.
func (d *Decomposer) shouldOrchestrate(query string) bool {
	q := strings.ToLower(query)
	for _, sep := range separators {
		if sep == ". " {
			continue
		}
		if strings.Contains(q, sep) {
			return true
		}
	}
	if clauseSplitRegex.MatchString(q) {
		return true
	}
	// Two or more distinct domain vocabularies in one query.
	return len(ExtractEntities(q).Domains) >= 2
}

// clauseSplitRegex finds ". " followed by an imperative-looking clause.
var clauseSplitRegex = regexp.MustCompile(`\. (then |also |next |(create|add|send|schedule|find|show|list|check|update|delete|mark)\b)`)

// splitFragments splits on the separator set. The ". " separator only
// applies where clauseSplitRegex matches, so prose sentences survive.
func splitFragments(query string) []string {
	fragments := []string{query}
	for _, sep := range separators {
		var next []string
		for _, frag := range fragments {
			if sep == ". " {
				next = append(next, splitClauses(frag)...)
				continue
			}
			for _, piece := range strings.Split(frag, sep) {
				piece = strings.TrimSpace(piece)
				if piece != "" {
					next = append(next, piece)
				}
			}
		}
		fragments = next
	}
	return fragments
}

func splitClauses(frag string) []string {
	lower := strings.ToLower(frag)
	loc := clauseSplitRegex.FindStringIndex(lower)
	if loc == nil {
		return []string{strings.TrimSpace(frag)}
	}
	head := strings.TrimSpace(frag[:loc[0]])
	tail := strings.TrimSpace(frag[loc[0]+2:]) // skip ". "
	out := make([]string, 0, 2)
	if head != "" {
		out = append(out, head)
	}
	out = append(out, splitClauses(tail)...)
	return out
}

// describeFragment builds one descriptor for a fragment.
func (d *Decomposer) describeFragment(ctx context.Context, id, fragment string, deps []string, entities Entities) StepDescriptor {
	domain, _, _ := d.detector.Detect(ctx, fragment)
	intent := string(domain)

	desc := StepDescriptor{
		ID:           id,
		Intent:       intent,
		Action:       actionForFragment(fragment),
		Query:        fragment,
		Dependencies: deps,
		Entities:     entities,
	}
	desc.ContextRequirements = requirementsForFragment(fragment, domain)
	return desc
}

// actionForFragment looks up the action verb; the default is list.
func actionForFragment(fragment string) datatypes.Action {
	q := strings.ToLower(fragment)
	switch {
	case strings.Contains(q, "free time"):
		return datatypes.ActionFindFreeTime
	case strings.Contains(q, "conflict"):
		return datatypes.ActionCheckConflicts
	case regexp.MustCompile(`\b(create|add|make|schedule)\b`).MatchString(q):
		return datatypes.ActionCreate
	case regexp.MustCompile(`\bsend\b`).MatchString(q):
		return datatypes.ActionSend
	case regexp.MustCompile(`\b(search|find|look for)\b`).MatchString(q):
		return datatypes.ActionSearch
	case regexp.MustCompile(`\b(update|change|reschedule|rename)\b`).MatchString(q):
		return datatypes.ActionUpdate
	case regexp.MustCompile(`\b(delete|remove|cancel)\b`).MatchString(q):
		return datatypes.ActionDelete
	case regexp.MustCompile(`\b(complete|finish|mark .* done)\b`).MatchString(q):
		return datatypes.ActionComplete
	case regexp.MustCompile(`\b(analyze|summarize|review)\b`).MatchString(q):
		return datatypes.ActionAnalyze
	default:
		return datatypes.ActionList
	}
}

// requirementsForFragment derives context-requirement flags from keyword
// presence, per the routing contract: back-references need previous
// results; task fragments that mention meetings or emails need source
// data; calendar fragments that mention email need participant data.
func requirementsForFragment(fragment string, domain datatypes.Domain) datatypes.ContextRequirements {
	q := strings.ToLower(fragment)
	var req datatypes.ContextRequirements
	for _, ref := range []string{"them", "those", "above", "mentioned"} {
		if regexp.MustCompile(`\b` + ref + `\b`).MatchString(q) {
			req.NeedsPreviousResults = true
			break
		}
	}
	if domain == datatypes.DomainTask && regexp.MustCompile(`\b(meeting|email)\b`).MatchString(q) {
		req.NeedsSourceData = true
	}
	if domain == datatypes.DomainCalendar && regexp.MustCompile(`\bemail\b`).MatchString(q) {
		req.NeedsParticipantData = true
	}
	return req
}
