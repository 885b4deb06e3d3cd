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
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Scoring weights. A match contributes its weight once per matching pattern;
// the accumulated score is capped at 1.0.
const (
	strongWeight   = 0.40
	keywordWeight  = 0.20
	questionWeight = 0.15
	actionWeight   = 0.15

	// mixedThreshold is the per-domain score above which a domain counts
	// toward mixed detection.
	mixedThreshold = 0.30

	// mixedConfidence is the fixed confidence reported for mixed queries.
	mixedConfidence = 0.60
)

// Evidence carries the scoring detail behind a detection.
type Evidence struct {
	// Scores holds the capped score per domain (only non-zero entries).
	Scores map[datatypes.Domain]float64 `json:"scores,omitempty"`

	// Domains lists the domains above the mixed threshold, highest first.
	// For mixed detections this is the involved-domain set.
	Domains []datatypes.Domain `json:"domains,omitempty"`

	// Matches lists which pattern strings fired, per domain.
	Matches map[datatypes.Domain][]string `json:"matches,omitempty"`

	// AnalyzerUsed is true when an external analyzer supplied the result.
	AnalyzerUsed bool `json:"analyzer_used,omitempty"`
}

// AnalyzerResult is the shape an external analyzer returns.
type AnalyzerResult struct {
	Domains []AnalyzerDomain
}

// AnalyzerDomain is one analyzer-scored domain.
type AnalyzerDomain struct {
	Domain     datatypes.Domain
	Confidence float64
}

// Analyzer is an optional external query analyzer the detector may defer
// to. Failures fall back silently to the pattern path.
type Analyzer interface {
	Analyze(ctx context.Context, query string) (*AnalyzerResult, error)
}

// Detector classifies queries into domains by weighted pattern matching.
//
// Detection is a pure function of (query, config): given a fixed
// PatternConfig and no analyzer, identical queries always produce identical
// results. The process-wide catalog is deliberately not consulted here.
type Detector struct {
	cfg      *PatternConfig
	analyzer Analyzer
	logger   *slog.Logger
}

// NewDetector builds a detector over cfg. analyzer may be nil.
func NewDetector(cfg *PatternConfig, analyzer Analyzer, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, analyzer: analyzer, logger: logger}
}

// Detect classifies a query.
//
// Empty queries return (general, 0.0, empty evidence). If two or more
// domains score above the mixed threshold the result is (mixed, 0.60) with
// the involved domains in evidence. If nothing scores, (general, 0.0).
func (d *Detector) Detect(ctx context.Context, query string) (datatypes.Domain, float64, Evidence) {
	start := time.Now()
	defer func() { detectionLatency.Observe(time.Since(start).Seconds()) }()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		detectionTotal.WithLabelValues(string(datatypes.DomainGeneral)).Inc()
		return datatypes.DomainGeneral, 0.0, Evidence{}
	}

	if d.analyzer != nil {
		if domain, conf, ev, ok := d.detectViaAnalyzer(ctx, q); ok {
			detectionTotal.WithLabelValues(string(domain)).Inc()
			return domain, conf, ev
		}
	}

	ev := Evidence{
		Scores:  make(map[datatypes.Domain]float64),
		Matches: make(map[datatypes.Domain][]string),
	}
	for _, dp := range d.cfg.Domains {
		score := d.scoreDomain(q, dp, &ev)
		if score > 0 {
			ev.Scores[dp.Domain] = score
		}
	}

	// Rank non-zero domains; ties break on canonical domain order via the
	// config ordering, which sort.SliceStable preserves.
	type scored struct {
		domain datatypes.Domain
		score  float64
	}
	ranked := make([]scored, 0, len(ev.Scores))
	for _, dp := range d.cfg.Domains {
		if s, ok := ev.Scores[dp.Domain]; ok {
			ranked = append(ranked, scored{dp.Domain, s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) == 0 {
		detectionTotal.WithLabelValues(string(datatypes.DomainGeneral)).Inc()
		return datatypes.DomainGeneral, 0.0, ev
	}

	var above []datatypes.Domain
	for _, r := range ranked {
		if r.score > mixedThreshold {
			above = append(above, r.domain)
		}
	}
	ev.Domains = above

	if len(above) >= 2 {
		detectionTotal.WithLabelValues(string(datatypes.DomainMixed)).Inc()
		return datatypes.DomainMixed, mixedConfidence, ev
	}

	winner := ranked[0]
	detectionTotal.WithLabelValues(string(winner.domain)).Inc()
	return winner.domain, winner.score, ev
}

// scoreDomain accumulates the weighted score for one domain and records the
// matched patterns in ev.
func (d *Detector) scoreDomain(q string, dp DomainPatterns, ev *Evidence) float64 {
	score := 0.0
	record := func(pattern string) {
		ev.Matches[dp.Domain] = append(ev.Matches[dp.Domain], pattern)
	}

	for _, re := range dp.Strong {
		if re.MatchString(q) {
			score += strongWeight
			record(re.String())
		}
	}
	for i, re := range dp.Keywords {
		if re.MatchString(q) {
			score += keywordWeight
			record(dp.KeywordStrings[i])
		}
	}
	for _, phrase := range dp.QuestionPhrases {
		if strings.Contains(q, phrase) {
			score += questionWeight
			record(phrase)
		}
	}
	for _, phrase := range dp.ActionPhrases {
		if strings.Contains(q, phrase) {
			score += actionWeight
			record(phrase)
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// detectViaAnalyzer asks the external analyzer; ok=false means fall back to
// patterns.
func (d *Detector) detectViaAnalyzer(ctx context.Context, q string) (datatypes.Domain, float64, Evidence, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := d.analyzer.Analyze(ctx, q)
	if err != nil || res == nil || len(res.Domains) == 0 {
		if err != nil {
			d.logger.Debug("analyzer failed, falling back to patterns", slog.Any("error", err))
		}
		return "", 0, Evidence{}, false
	}

	best := res.Domains[0]
	domains := make([]datatypes.Domain, 0, len(res.Domains))
	scores := make(map[datatypes.Domain]float64, len(res.Domains))
	for _, ad := range res.Domains {
		if !ad.Domain.Valid() {
			continue
		}
		domains = append(domains, ad.Domain)
		scores[ad.Domain] = ad.Confidence
		if ad.Confidence > best.Confidence {
			best = ad
		}
	}
	if len(domains) == 0 {
		return "", 0, Evidence{}, false
	}
	ev := Evidence{Scores: scores, Domains: domains, AnalyzerUsed: true}
	return best.Domain, clamp01(best.Confidence), ev, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
