// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synthesis extracts structured facts from step results and turns
// them into context enrichments for downstream steps.
//
// Extraction prefers an LLM when one is configured; the regex path is the
// always-available fallback and the two produce the same Facts shape.
package synthesis

import (
	"regexp"
	"strings"
)

// contextTruncationLimit caps any single context string injected into a
// query. Tool results can be pages long; queries must stay query-sized.
const contextTruncationLimit = 200

// maxSubjects caps how many subject lines a single result contributes.
// A 200-message inbox listing should not flood downstream context.
const maxSubjects = 5

// Facts is the structured digest of one step result.
type Facts struct {
	// Participants are email addresses found in the result.
	Participants []string `json:"participants,omitempty"`

	// Dates are ISO dates and relative date words found in the result.
	Dates []string `json:"dates,omitempty"`

	// Subjects are "Subject:" line payloads.
	Subjects []string `json:"subjects,omitempty"`

	// Counts are item-count mentions like "3 emails", keyed by item noun.
	Counts map[string]int `json:"counts,omitempty"`

	// Summary is the truncated raw result, for free-form context injection.
	Summary string `json:"summary,omitempty"`
}

// Empty reports whether no fact of any kind was extracted.
func (f Facts) Empty() bool {
	return len(f.Participants) == 0 && len(f.Dates) == 0 &&
		len(f.Subjects) == 0 && len(f.Counts) == 0
}

var (
	emailAddrRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	dateRegex = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|today|tomorrow|yesterday|next week|this week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	countRegex = regexp.MustCompile(`\b(\d+)\s+(emails?|messages?|events?|meetings?|tasks?|items?|notes?)\b`)

	subjectRegex = regexp.MustCompile(`(?mi)^\s*subject:\s*(.+)$`)
)

// ExtractFacts runs the regex extraction path over a raw step result.
func ExtractFacts(result string) Facts {
	facts := Facts{Summary: Truncate(result)}
	lower := strings.ToLower(result)

	facts.Participants = dedupe(emailAddrRegex.FindAllString(result, -1))
	facts.Dates = dedupe(dateRegex.FindAllString(lower, -1))

	for _, m := range subjectRegex.FindAllStringSubmatch(result, -1) {
		facts.Subjects = append(facts.Subjects, strings.TrimSpace(m[1]))
	}
	facts.Subjects = dedupe(facts.Subjects)
	if len(facts.Subjects) > maxSubjects {
		facts.Subjects = facts.Subjects[:maxSubjects]
	}

	for _, m := range countRegex.FindAllStringSubmatch(lower, -1) {
		n := 0
		for _, ch := range m[1] {
			n = n*10 + int(ch-'0')
		}
		noun := strings.TrimSuffix(m[2], "s")
		if facts.Counts == nil {
			facts.Counts = make(map[string]int)
		}
		// Last mention wins; result text typically states the total once.
		facts.Counts[noun] = n
	}
	return facts
}

// Truncate caps s at the context truncation limit, on a rune boundary.
func Truncate(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= contextTruncationLimit {
		return s
	}
	return string(runes[:contextTruncationLimit])
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
