// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

func TestRegisterAndLookup(t *testing.T) {
	c := New(nil)
	if err := c.Register("Gmail", datatypes.DomainEmail); err != nil {
		t.Fatalf("Register: %v", err)
	}

	d, ok := c.DomainForTool("gmail")
	if !ok || d != datatypes.DomainEmail {
		t.Errorf("DomainForTool(gmail) = %s, %v", d, ok)
	}
	// Lookup is case-insensitive because names are stored lowercased.
	if d, _ := c.DomainForTool("GMAIL"); d != datatypes.DomainEmail {
		t.Errorf("case-insensitive lookup failed: %s", d)
	}

	if _, ok := c.DomainForTool("unknown"); ok {
		t.Error("unknown tool should not resolve")
	}
}

func TestRegisterRejectsNonConcreteDomains(t *testing.T) {
	c := New(nil)
	if err := c.Register("x", datatypes.DomainGeneral); err == nil {
		t.Error("general must be rejected")
	}
	if err := c.Register("x", datatypes.DomainMixed); err == nil {
		t.Error("mixed must be rejected")
	}
	if err := c.Register("", datatypes.DomainEmail); err == nil {
		t.Error("empty name must be rejected")
	}
}

func TestCanonicalTool_FirstRegistrationWins(t *testing.T) {
	c := New(nil)
	if err := c.Register("tasks", datatypes.DomainTask); err != nil {
		t.Fatal(err)
	}
	if err := c.Register("todoist", datatypes.DomainTask); err != nil {
		t.Fatal(err)
	}

	name, ok := c.CanonicalToolForDomain(datatypes.DomainTask)
	if !ok || name != "tasks" {
		t.Errorf("canonical = %q, want tasks", name)
	}
}

func TestUnregister_PromotesReplacement(t *testing.T) {
	c := New(nil)
	_ = c.Register("tasks", datatypes.DomainTask)
	_ = c.Register("todoist", datatypes.DomainTask)

	c.Unregister("tasks")
	name, ok := c.CanonicalToolForDomain(datatypes.DomainTask)
	if !ok || name != "todoist" {
		t.Errorf("canonical after unregister = %q, want todoist", name)
	}

	c.Unregister("todoist")
	if _, ok := c.CanonicalToolForDomain(datatypes.DomainTask); ok {
		t.Error("domain should have no canonical tool left")
	}
}

func TestNormalizeToolName_Idempotent(t *testing.T) {
	for _, in := range []string{"  Email ", "TASKS", "gcal", ""} {
		once := NormalizeToolName(in)
		if NormalizeToolName(once) != once {
			t.Errorf("normalization not idempotent for %q", in)
		}
	}
}

func TestBuildFromAvailableTools(t *testing.T) {
	c := NewWithDefaults(nil)
	m := c.BuildFromAvailableTools([]string{"Email", "tasks", "mystery_tool"})

	if m["email"] != datatypes.DomainEmail || m["tasks"] != datatypes.DomainTask {
		t.Errorf("known tools misresolved: %v", m)
	}
	if m["mystery_tool"] != datatypes.DomainGeneral {
		t.Errorf("unknown tool = %s, want general", m["mystery_tool"])
	}
}

func TestGlobalSingleton(t *testing.T) {
	var a, b *Catalog
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a = Global() }()
	go func() { defer wg.Done(); b = Global() }()
	wg.Wait()
	if a == nil || a != b {
		t.Error("Global must return one instance")
	}
}

// fakeAvail adapts a string set to the available-tools shape.
type fakeAvail map[string]bool

func (f fakeAvail) Has(name string) bool { return f[name] }

func TestCanonicalAvailableTool(t *testing.T) {
	c := NewWithDefaults(nil)

	// Canonical tool available: use it.
	if name, ok := c.CanonicalAvailableTool(datatypes.DomainTask, fakeAvail{"tasks": true}); !ok || name != "tasks" {
		t.Errorf("got %q, %v", name, ok)
	}
	// Canonical missing, alias available: fall back to the alias.
	if name, ok := c.CanonicalAvailableTool(datatypes.DomainTask, fakeAvail{"todoist": true}); !ok || name != "todoist" {
		t.Errorf("got %q, %v", name, ok)
	}
	// Nothing available for the domain.
	if _, ok := c.CanonicalAvailableTool(datatypes.DomainTask, fakeAvail{}); ok {
		t.Error("expected no tool")
	}
}
