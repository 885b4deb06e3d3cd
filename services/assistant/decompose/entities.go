// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decompose

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Entities are the named entities extracted from the whole query and
// attached to every step descriptor for downstream use.
type Entities struct {
	TimeReferences []string `json:"time_references,omitempty"`
	Priorities     []string `json:"priorities,omitempty"`
	Actions        []string `json:"actions,omitempty"`
	Domains        []string `json:"domains,omitempty"`
}

var (
	timeRefRegex = regexp.MustCompile(`\b(today|tomorrow|yesterday|tonight|this (morning|afternoon|evening|week|month)|next (week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday)|\d{4}-\d{2}-\d{2})\b`)

	priorityRegex = regexp.MustCompile(`\b(urgent|asap|important|high priority|low priority|critical)\b`)

	actionVerbRegex = regexp.MustCompile(`\b(create|add|make|schedule|send|search|find|list|show|update|change|delete|remove|complete|finish|mark|analyze|summarize|book|reschedule)\b`)

	domainKeywordRegex = regexp.MustCompile(`\b(email|emails|inbox|task|tasks|todo|meeting|meetings|calendar|notion|note|notes|page)\b`)
)

// ExtractEntities pulls time references, priorities, action verbs, and
// domain keywords out of the lowercased query. Duplicates are removed,
// first occurrence order preserved.
func ExtractEntities(query string) Entities {
	q := strings.ToLower(query)
	return Entities{
		TimeReferences: uniqueMatches(timeRefRegex, q),
		Priorities:     uniqueMatches(priorityRegex, q),
		Actions:        uniqueMatches(actionVerbRegex, q),
		Domains:        uniqueDomains(q),
	}
}

func uniqueMatches(re *regexp.Regexp, q string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range re.FindAllString(q, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func uniqueDomains(q string) []string {
	seen := make(map[datatypes.Domain]bool)
	var out []string
	for _, m := range domainKeywordRegex.FindAllString(q, -1) {
		d := datatypes.NormalizeDomain(m)
		if d.Concrete() && !seen[d] {
			seen[d] = true
			out = append(out, string(d))
		}
	}
	return out
}
