// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog holds the process-wide tool-to-domain registry.
//
// The catalog has init-then-frozen semantics in practice: tools register at
// bootstrap, reads dominate afterwards. Reads take an RWMutex read lock
// (uncontended after bootstrap); writers synchronize on the write lock.
//
// The process-wide instance is created lazily via Global(). Components that
// must stay deterministic and unit-testable (detector, validator) receive a
// *Catalog explicitly rather than reaching for the singleton.
package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Catalog maps tool names to domains and each domain to its canonical tool.
// Tool names are stored lowercased.
type Catalog struct {
	mu           sync.RWMutex
	toolToDomain map[string]datatypes.Domain
	// canonical holds the first tool registered for each domain; it is the
	// tool auto-correction and sub-query mapping route to.
	canonical map[datatypes.Domain]string
	logger    *slog.Logger
}

var (
	globalOnce sync.Once
	global     *Catalog
)

// Global returns the process-wide catalog, creating it on first use with
// the default registrations.
func Global() *Catalog {
	globalOnce.Do(func() {
		global = NewWithDefaults(slog.Default())
	})
	return global
}

// New returns an empty catalog. Tests use this to avoid the singleton.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		toolToDomain: make(map[string]datatypes.Domain),
		canonical:    make(map[datatypes.Domain]string),
		logger:       logger,
	}
}

// NewWithDefaults returns a catalog preloaded with the well-known tool
// names. The first registration per domain becomes canonical, so the plain
// names win over provider-specific aliases.
func NewWithDefaults(logger *slog.Logger) *Catalog {
	c := New(logger)
	c.RegisterBatch(map[string]datatypes.Domain{
		"email":    datatypes.DomainEmail,
		"tasks":    datatypes.DomainTask,
		"calendar": datatypes.DomainCalendar,
		"notion":   datatypes.DomainNotion,
	})
	c.RegisterBatch(map[string]datatypes.Domain{
		"gmail":   datatypes.DomainEmail,
		"outlook": datatypes.DomainEmail,
		"todoist": datatypes.DomainTask,
		"todo":    datatypes.DomainTask,
		"gcal":    datatypes.DomainCalendar,
	})
	return c
}

// NormalizeToolName lowercases and trims a tool name. Idempotent.
func NormalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeDomainString folds a free-form domain string into the closed
// domain set (unknown strings map to general).
func (c *Catalog) NormalizeDomainString(s string) datatypes.Domain {
	return datatypes.NormalizeDomain(s)
}

// Register maps a tool name to a domain. Registering a tool under
// DomainGeneral or DomainMixed is rejected: those are routing outcomes.
func (c *Catalog) Register(tool string, domain datatypes.Domain) error {
	name := NormalizeToolName(tool)
	if name == "" {
		return fmt.Errorf("%w: empty tool name", datatypes.ErrInvalidInput)
	}
	if !domain.Concrete() {
		return fmt.Errorf("%w: cannot register tool %q under %s", datatypes.ErrInvalidInput, name, domain)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolToDomain[name] = domain
	if _, ok := c.canonical[domain]; !ok {
		c.canonical[domain] = name
	}
	return nil
}

// RegisterBatch registers several tools; invalid entries are logged and
// skipped rather than failing the batch.
func (c *Catalog) RegisterBatch(entries map[string]datatypes.Domain) {
	// Deterministic order so "first registration wins" is stable.
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.Register(name, entries[name]); err != nil {
			c.logger.Warn("catalog registration skipped",
				slog.String("tool", name), slog.Any("error", err))
		}
	}
}

// Unregister removes a tool. If it was the canonical tool for its domain,
// another registered tool of that domain (if any) is promoted.
func (c *Catalog) Unregister(tool string) {
	name := NormalizeToolName(tool)
	c.mu.Lock()
	defer c.mu.Unlock()
	domain, ok := c.toolToDomain[name]
	if !ok {
		return
	}
	delete(c.toolToDomain, name)
	if c.canonical[domain] != name {
		return
	}
	delete(c.canonical, domain)
	replacements := make([]string, 0, 2)
	for t, d := range c.toolToDomain {
		if d == domain {
			replacements = append(replacements, t)
		}
	}
	if len(replacements) > 0 {
		sort.Strings(replacements)
		c.canonical[domain] = replacements[0]
	}
}

// DomainForTool returns the domain registered for a tool, or
// (general, false) for unknown tools.
func (c *Catalog) DomainForTool(tool string) (datatypes.Domain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.toolToDomain[NormalizeToolName(tool)]; ok {
		return d, true
	}
	return datatypes.DomainGeneral, false
}

// ToolsForDomain returns the sorted tool names registered under a domain.
func (c *Catalog) ToolsForDomain(domain datatypes.Domain) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for t, d := range c.toolToDomain {
		if d == domain {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// CanonicalToolForDomain returns the canonical tool name for a domain.
func (c *Catalog) CanonicalToolForDomain(domain datatypes.Domain) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.canonical[domain]
	return t, ok
}

// CanonicalAvailableTool returns the tool routing should use for a domain,
// restricted to the available set: the canonical tool when it is available,
// otherwise any available tool registered under the domain. Routing logic
// never hard-codes tool names; this is the only way it maps a domain to a
// tool.
func (c *Catalog) CanonicalAvailableTool(domain datatypes.Domain, available interface{ Has(string) bool }) (string, bool) {
	if name, ok := c.CanonicalToolForDomain(domain); ok && available.Has(name) {
		return name, true
	}
	for _, name := range c.ToolsForDomain(domain) {
		if available.Has(name) {
			return name, true
		}
	}
	return "", false
}

// BuildFromAvailableTools maps each provided tool name to its registered
// domain. Unknown tools map to general with a warning.
func (c *Catalog) BuildFromAvailableTools(available []string) map[string]datatypes.Domain {
	out := make(map[string]datatypes.Domain, len(available))
	for _, raw := range available {
		name := NormalizeToolName(raw)
		domain, known := c.DomainForTool(name)
		if !known {
			c.logger.Warn("tool has no registered domain, treating as general",
				slog.String("tool", name))
		}
		out[name] = domain
	}
	return out
}

// MismatchMessage renders the reason used when a query's detected domain
// disagrees with the target tool's domain.
func (c *Catalog) MismatchMessage(detected, target datatypes.Domain) string {
	return fmt.Sprintf("query appears to be about %s but is routed to a %s tool", detected, target)
}
