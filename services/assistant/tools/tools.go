// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the contracts a data-source tool must implement to
// be callable by the executor, plus the Set type the routing layer works
// against. Tool implementations themselves (email, calendar, tasks, notion
// connectors) live outside the core.
package tools

import (
	"context"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Tool is a callable data-source verb dispatcher.
//
// Run returns a human-readable summary. Tools that mutate state must either
// be idempotent or accept retries; the core retries only read-only actions
// by default. Tools should observe ctx cancellation and return promptly.
//
// A tool signals "not my domain" by returning *datatypes.ToolRejectionError;
// the executor uses the rejection message to retry against an alternate
// domain's canonical tool.
type Tool interface {
	// Name is the registered tool name (stored lowercased in the catalog).
	Name() string

	// Run dispatches an action with the (possibly enriched) query string.
	Run(ctx context.Context, action datatypes.Action, query string, args map[string]any) (string, error)
}

// ParserProvider is implemented by tools that expose a query parser.
type ParserProvider interface {
	Parser() QueryParser
}

// QueryParser parses a raw query into tool parameters.
//
// A result with Action == datatypes.ActionReject means the parser believes
// the query belongs to another tool. That is informative, not an error:
// selectors drop the tool from candidacy.
type QueryParser interface {
	ParseQuery(ctx context.Context, query string) (*ParseResult, error)
}

// ParseResult is the parser output shape shared with the selector and
// executor.
type ParseResult struct {
	Action     datatypes.Action `json:"action"`
	Confidence float64          `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// Rejected reports whether the parser declined the query.
func (r *ParseResult) Rejected() bool {
	return r != nil && r.Action == datatypes.ActionReject
}

// ParserFor returns the tool's parser, or nil when the tool has none.
func ParserFor(t Tool) QueryParser {
	if p, ok := t.(ParserProvider); ok {
		return p.Parser()
	}
	return nil
}

// Set is the available-tool collection handed into each request. Lookup is
// case-insensitive; names are stored lowercased.
//
// Set is built once per request and read-only afterwards, so it needs no
// locking.
type Set struct {
	byName map[string]Tool
	names  []string
}

// NewSet builds a Set from tools. Later duplicates (case-insensitive)
// replace earlier ones.
func NewSet(ts ...Tool) *Set {
	s := &Set{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := strings.ToLower(strings.TrimSpace(t.Name()))
		if name == "" {
			continue
		}
		if _, exists := s.byName[name]; !exists {
			s.names = append(s.names, name)
		}
		s.byName[name] = t
	}
	return s
}

// Get returns the tool with the given name (case-insensitive).
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Has reports whether a tool with the given name is available.
func (s *Set) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names returns the registered names in insertion order.
func (s *Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of tools in the set.
func (s *Set) Len() int { return len(s.byName) }

// First returns the first tool by insertion order, or nil for an empty set.
// The selector uses it as the last-resort fallback.
func (s *Set) First() Tool {
	if len(s.names) == 0 {
		return nil
	}
	return s.byName[s.names[0]]
}
