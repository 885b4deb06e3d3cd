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
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

const (
	// parserAuthoritativeThreshold: a pre-supplied parser result at or above
	// this confidence routes directly to its tool.
	parserAuthoritativeThreshold = 0.80

	// parserProbeThreshold: the best live-probe parser confidence must reach
	// this to win the probe path.
	parserProbeThreshold = 0.70
)

// SelectionInput bundles the selector's inputs for one step.
type SelectionInput struct {
	StepQuery string
	Intent    string

	// MemoryRecommendations are tool names a memory layer suggested,
	// best first. May be nil.
	MemoryRecommendations []string

	// ParserResults are pre-computed parser outputs keyed by tool name
	// (from an earlier pipeline stage). May be nil.
	ParserResults map[string]*tools.ParseResult

	Available *tools.Set
}

// Selector maps a step to a concrete tool via a cascade of strategies,
// stopping at the first success.
type Selector struct {
	catalog *catalog.Catalog
	// intentToolMap is the static intent -> tool name table (cascade
	// path 4). Keys are lowercased intents.
	intentToolMap map[string]string
	logger        *slog.Logger
}

// NewSelector builds a selector. intentToolMap may be nil to use defaults.
func NewSelector(cat *catalog.Catalog, intentToolMap map[string]string, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	if intentToolMap == nil {
		intentToolMap = map[string]string{
			"email":    "email",
			"mail":     "email",
			"task":     "tasks",
			"tasks":    "tasks",
			"todo":     "tasks",
			"calendar": "calendar",
			"meeting":  "calendar",
			"schedule": "calendar",
			"notion":   "notion",
			"note":     "notion",
			"notes":    "notion",
		}
	}
	normalized := make(map[string]string, len(intentToolMap))
	for k, v := range intentToolMap {
		normalized[strings.ToLower(k)] = catalog.NormalizeToolName(v)
	}
	return &Selector{catalog: cat, intentToolMap: normalized, logger: logger}
}

// Select runs the cascade:
//
//  1. Pre-supplied parser result with confidence >= 0.80 (parser-authoritative).
//  2. Live parser probe over available tools; rejects are removed from
//     candidacy; highest confidence wins if >= 0.70.
//  3. Memory recommendation whose name or registered domain matches the intent.
//  4. Static intent -> tool map.
//  5. Catalog canonical tool for the intent's domain.
//  6. Case-insensitive tool name match on the intent.
//  7. First available tool.
func (s *Selector) Select(ctx context.Context, in SelectionInput) (string, error) {
	if in.Available == nil || in.Available.Len() == 0 {
		return "", fmt.Errorf("%w: no tools available", datatypes.ErrToolUnavailable)
	}

	if name, ok := s.fromParserResults(in); ok {
		selectionTotal.WithLabelValues("parser_authoritative", name).Inc()
		return name, nil
	}
	if name, ok := s.fromParserProbe(ctx, in); ok {
		selectionTotal.WithLabelValues("parser_probe", name).Inc()
		return name, nil
	}
	if name, ok := s.fromMemory(in); ok {
		selectionTotal.WithLabelValues("memory", name).Inc()
		return name, nil
	}
	if name, ok := s.fromIntentMap(in); ok {
		selectionTotal.WithLabelValues("intent_map", name).Inc()
		return name, nil
	}
	if name, ok := s.catalog.CanonicalAvailableTool(datatypes.NormalizeDomain(in.Intent), in.Available); ok {
		selectionTotal.WithLabelValues("catalog", name).Inc()
		return name, nil
	}
	if t, ok := in.Available.Get(in.Intent); ok {
		selectionTotal.WithLabelValues("name_match", t.Name()).Inc()
		return catalog.NormalizeToolName(t.Name()), nil
	}

	first := in.Available.First()
	name := catalog.NormalizeToolName(first.Name())
	s.logger.Debug("tool selection fell through to first available tool",
		slog.String("intent", in.Intent), slog.String("tool", name))
	selectionTotal.WithLabelValues("fallback_first", name).Inc()
	return name, nil
}

// fromParserResults implements cascade path 1.
func (s *Selector) fromParserResults(in SelectionInput) (string, bool) {
	bestName := ""
	bestConf := 0.0
	for toolName, res := range in.ParserResults {
		if res == nil || res.Rejected() {
			continue
		}
		name := catalog.NormalizeToolName(toolName)
		if !in.Available.Has(name) {
			continue
		}
		if res.Confidence >= parserAuthoritativeThreshold && res.Confidence > bestConf {
			bestName, bestConf = name, res.Confidence
		}
	}
	return bestName, bestName != ""
}

// fromParserProbe implements cascade path 2: run each available tool's
// parser against the step query. Tools whose parser rejects are removed
// from candidacy.
func (s *Selector) fromParserProbe(ctx context.Context, in SelectionInput) (string, bool) {
	bestName := ""
	bestConf := 0.0
	for _, name := range in.Available.Names() {
		t, _ := in.Available.Get(name)
		parser := tools.ParserFor(t)
		if parser == nil {
			continue
		}
		res, err := parser.ParseQuery(ctx, in.StepQuery)
		if err != nil {
			s.logger.Debug("parser probe failed",
				slog.String("tool", name), slog.Any("error", err))
			continue
		}
		if res == nil || res.Rejected() {
			continue
		}
		if res.Confidence > bestConf {
			bestName, bestConf = name, res.Confidence
		}
	}
	if bestConf >= parserProbeThreshold {
		return bestName, true
	}
	return "", false
}

// fromMemory implements cascade path 3: first recommendation whose name or
// registered domain matches the intent.
func (s *Selector) fromMemory(in SelectionInput) (string, bool) {
	intent := strings.ToLower(strings.TrimSpace(in.Intent))
	intentDomain := datatypes.NormalizeDomain(intent)
	for _, rec := range in.MemoryRecommendations {
		name := catalog.NormalizeToolName(rec)
		if !in.Available.Has(name) {
			continue
		}
		if name == intent || strings.Contains(name, intent) {
			return name, true
		}
		if d, ok := s.catalog.DomainForTool(name); ok && intentDomain.Concrete() && d == intentDomain {
			return name, true
		}
	}
	return "", false
}

// fromIntentMap implements cascade path 4.
func (s *Selector) fromIntentMap(in SelectionInput) (string, bool) {
	name, ok := s.intentToolMap[strings.ToLower(strings.TrimSpace(in.Intent))]
	if !ok || !in.Available.Has(name) {
		return "", false
	}
	return name, true
}
