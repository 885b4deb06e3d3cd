// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/llm"
)

// synthesisTimeout bounds one LLM fact-extraction call.
const synthesisTimeout = 10 * time.Second

// enrichmentRule maps a (source domain, target domain) pair to the
// enrichment type produced and the fact fields that feed it.
type enrichmentRule struct {
	enrichmentType string
	build          func(Facts) map[string]string
}

// enrichmentRules is the static cross-domain enrichment table. Absent pairs
// fall back to a generic previous-results enrichment.
var enrichmentRules = map[[2]datatypes.Domain]enrichmentRule{
	{datatypes.DomainEmail, datatypes.DomainTask}: {
		enrichmentType: "email_to_task",
		build: func(f Facts) map[string]string {
			out := map[string]string{}
			if len(f.Subjects) > 0 {
				out["subjects"] = strings.Join(f.Subjects, "; ")
			}
			if len(f.Participants) > 0 {
				out["participants"] = strings.Join(f.Participants, ", ")
			}
			return out
		},
	},
	{datatypes.DomainEmail, datatypes.DomainCalendar}: {
		enrichmentType: "email_to_calendar",
		build: func(f Facts) map[string]string {
			out := map[string]string{}
			if len(f.Participants) > 0 {
				out["participants"] = strings.Join(f.Participants, ", ")
			}
			if len(f.Dates) > 0 {
				out["dates"] = strings.Join(f.Dates, ", ")
			}
			return out
		},
	},
	{datatypes.DomainCalendar, datatypes.DomainTask}: {
		enrichmentType: "calendar_to_task",
		build: func(f Facts) map[string]string {
			out := map[string]string{}
			if len(f.Dates) > 0 {
				out["dates"] = strings.Join(f.Dates, ", ")
			}
			if f.Summary != "" {
				out["events"] = f.Summary
			}
			return out
		},
	},
	{datatypes.DomainCalendar, datatypes.DomainEmail}: {
		enrichmentType: "calendar_to_email",
		build: func(f Facts) map[string]string {
			out := map[string]string{}
			if len(f.Participants) > 0 {
				out["participants"] = strings.Join(f.Participants, ", ")
			}
			if f.Summary != "" {
				out["events"] = f.Summary
			}
			return out
		},
	},
	{datatypes.DomainTask, datatypes.DomainCalendar}: {
		enrichmentType: "task_to_calendar",
		build: func(f Facts) map[string]string {
			out := map[string]string{}
			if len(f.Dates) > 0 {
				out["deadlines"] = strings.Join(f.Dates, ", ")
			}
			if f.Summary != "" {
				out["tasks"] = f.Summary
			}
			return out
		},
	},
}

// Synthesizer turns completed step results into context enrichments and
// injects them into downstream queries.
type Synthesizer struct {
	client llm.LLMClient // optional
	logger *slog.Logger
}

// NewSynthesizer builds a synthesizer. client may be nil (regex-only mode).
func NewSynthesizer(client llm.LLMClient, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{client: client, logger: logger}
}

// Extract produces Facts for one step result, via LLM when configured and
// falling back to regex extraction on any failure.
func (s *Synthesizer) Extract(ctx context.Context, result string) Facts {
	if strings.TrimSpace(result) == "" {
		return Facts{}
	}
	if s.client != nil {
		if facts, err := s.extractViaLLM(ctx, result); err == nil {
			return facts
		} else {
			s.logger.Debug("LLM fact extraction failed, using regex path", slog.Any("error", err))
		}
	}
	return ExtractFacts(result)
}

// Synthesize builds the enrichment flowing from a completed source step to a
// pending target step. Returns nil when the source produced no usable facts.
func (s *Synthesizer) Synthesize(ctx context.Context, sourceDomain, targetDomain datatypes.Domain, sourceResult string) *datatypes.ContextEnrichment {
	facts := s.Extract(ctx, sourceResult)
	if facts.Empty() && facts.Summary == "" {
		return nil
	}

	rule, ok := enrichmentRules[[2]datatypes.Domain{sourceDomain, targetDomain}]
	if !ok {
		if facts.Summary == "" {
			return nil
		}
		return &datatypes.ContextEnrichment{
			SourceDomain:    sourceDomain,
			TargetDomain:    targetDomain,
			EnrichmentType:  "previous_results",
			EnrichedContext: map[string]string{"summary": facts.Summary},
			Confidence:      0.5,
		}
	}

	enriched := rule.build(facts)
	if len(enriched) == 0 {
		return nil
	}
	return &datatypes.ContextEnrichment{
		SourceDomain:    sourceDomain,
		TargetDomain:    targetDomain,
		EnrichmentType:  rule.enrichmentType,
		EnrichedContext: enriched,
		Confidence:      0.8,
	}
}

// EnrichQuery appends the context a step asked for to its query. Each
// injected block is truncated independently; a step with no requirement
// flags gets its query back untouched.
func (s *Synthesizer) EnrichQuery(query string, req datatypes.ContextRequirements, enrichments []*datatypes.ContextEnrichment) string {
	if !req.Any() || len(enrichments) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString(query)

	if req.NeedsPreviousResults {
		var parts []string
		for _, e := range enrichments {
			if e == nil {
				continue
			}
			if summary, ok := e.EnrichedContext["summary"]; ok {
				parts = append(parts, summary)
			} else if events, ok := e.EnrichedContext["events"]; ok {
				parts = append(parts, events)
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, " [Context: %s]", Truncate(strings.Join(parts, "; ")))
		}
	}
	if req.NeedsSourceData {
		var parts []string
		for _, e := range enrichments {
			if e == nil {
				continue
			}
			for _, key := range []string{"subjects", "events", "tasks", "deadlines"} {
				if v, ok := e.EnrichedContext[key]; ok {
					parts = append(parts, v)
				}
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, " [Source: %s]", Truncate(strings.Join(parts, "; ")))
		}
	}
	if req.NeedsParticipantData {
		var parts []string
		for _, e := range enrichments {
			if e == nil {
				continue
			}
			if v, ok := e.EnrichedContext["participants"]; ok {
				parts = append(parts, v)
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, " [Participants: %s]", Truncate(strings.Join(parts, ", ")))
		}
	}
	return b.String()
}

const factPrompt = `Extract structured facts from the following tool output.
Respond with a JSON object: {"participants": [emails], "dates": [strings],
"subjects": [strings], "counts": {"noun": n}}. Use empty arrays when nothing
matches.

Output: %s`

func (s *Synthesizer) extractViaLLM(ctx context.Context, result string) (Facts, error) {
	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()

	temp := float32(0.0)
	raw, err := s.client.Generate(ctx, fmt.Sprintf(factPrompt, Truncate(result)), llm.GenerationParams{
		Temperature: &temp,
		JSONMode:    true,
	})
	if err != nil {
		return Facts{}, err
	}
	var facts Facts
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &facts); err != nil {
		return Facts{}, fmt.Errorf("fact extraction response: %w", err)
	}
	facts.Summary = Truncate(result)
	return facts, nil
}
