// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model of the assistant core:
// domains, actions, execution steps and plans, validation verdicts, routing
// records, orchestration results, and workflow events.
//
// Types here are plain data. Behavior lives in the component packages
// (catalog, routing, planner, executor, ...); keeping the model dependency-free
// lets every component import it without cycles.
package datatypes

import "strings"

// Domain is the canonical routing partition for queries and tools.
//
// The set is closed. DomainMixed is reserved for queries whose detected
// evidence straddles two or more concrete domains above the mixed threshold;
// DomainGeneral means no domain was confidently detected.
type Domain string

const (
	DomainEmail    Domain = "email"
	DomainTask     Domain = "task"
	DomainCalendar Domain = "calendar"
	DomainNotion   Domain = "notion"
	DomainGeneral  Domain = "general"
	DomainMixed    Domain = "mixed"
)

// ConcreteDomains lists the domains a tool can belong to, in canonical order.
// DomainGeneral and DomainMixed are routing outcomes, not tool domains.
var ConcreteDomains = []Domain{DomainEmail, DomainTask, DomainCalendar, DomainNotion}

// Valid reports whether d is a member of the closed domain set.
func (d Domain) Valid() bool {
	switch d {
	case DomainEmail, DomainTask, DomainCalendar, DomainNotion, DomainGeneral, DomainMixed:
		return true
	}
	return false
}

// Concrete reports whether d is a tool-assignable domain.
func (d Domain) Concrete() bool {
	switch d {
	case DomainEmail, DomainTask, DomainCalendar, DomainNotion:
		return true
	}
	return false
}

func (d Domain) String() string { return string(d) }

// NormalizeDomain maps a free-form domain string to a Domain.
//
// Common aliases are folded in ("todo" -> task, "mail" -> email,
// "schedule"/"meeting" -> calendar). Unrecognized strings normalize to
// DomainGeneral, never to an error: callers treat unknown domains as
// weak evidence, not as failures.
func NormalizeDomain(s string) Domain {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email", "mail", "gmail", "inbox":
		return DomainEmail
	case "task", "tasks", "todo", "todos":
		return DomainTask
	case "calendar", "schedule", "meeting", "meetings":
		return DomainCalendar
	case "notion", "notes", "note", "page", "pages":
		return DomainNotion
	case "mixed":
		return DomainMixed
	default:
		return DomainGeneral
	}
}
