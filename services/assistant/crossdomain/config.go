// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crossdomain detects queries that span multiple domains and fans
// them out into per-domain sub-queries executed as one dependent or
// parallel plan.
package crossdomain

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// MaxConfigSize caps the pattern YAML size (1MB).
const MaxConfigSize = 1024 * 1024

//go:embed patterns.yaml
var defaultConfigYAML []byte

// Mode says how a fan-out's sub-queries relate.
type Mode string

const (
	// ModeDependent chains sub-queries: each depends on the previous one's
	// results.
	ModeDependent Mode = "dependent"

	// ModeParallel runs sub-queries independently and merges results.
	ModeParallel Mode = "parallel"
)

type configYAML struct {
	EngageThreshold  float64 `yaml:"engage_threshold"`
	ExplicitPatterns []struct {
		Pattern string   `yaml:"pattern"`
		Domains []string `yaml:"domains"`
		Mode    string   `yaml:"mode"`
	} `yaml:"explicit_patterns"`
	SingleDomainShortcuts []struct {
		Pattern string `yaml:"pattern"`
		Domain  string `yaml:"domain"`
	} `yaml:"single_domain_shortcuts"`
	SubQueryTemplates map[string]struct {
		Source string `yaml:"source"`
		Target string `yaml:"target"`
	} `yaml:"sub_query_templates"`
}

// ExplicitPattern is one compiled fan-out trigger.
type ExplicitPattern struct {
	Regex   *regexp.Regexp
	Domains []datatypes.Domain
	Mode    Mode
}

// Shortcut is a compiled single-domain short-circuit.
type Shortcut struct {
	Regex  *regexp.Regexp
	Domain datatypes.Domain
}

// Templates holds the sub-query templates for one domain. Source phrases a
// read; Target phrases the downstream write or follow-up.
type Templates struct {
	Source string
	Target string
}

// Config is the compiled, immutable cross-domain configuration.
type Config struct {
	// EngageThreshold is the minimum detection confidence for the fan-out
	// path to take the query.
	EngageThreshold float64

	Explicit  []ExplicitPattern
	Shortcuts []Shortcut
	Templates map[datatypes.Domain]Templates
}

var (
	defaultConfigOnce sync.Once
	defaultConfig     *Config
	defaultConfigErr  error
)

// DefaultConfig returns the embedded configuration, compiled once.
func DefaultConfig() (*Config, error) {
	defaultConfigOnce.Do(func() {
		defaultConfig, defaultConfigErr = LoadConfig(defaultConfigYAML)
	})
	return defaultConfig, defaultConfigErr
}

// LoadConfig parses and compiles a cross-domain YAML document.
func LoadConfig(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty cross-domain config", datatypes.ErrInvalidInput)
	}
	if len(data) > MaxConfigSize {
		return nil, fmt.Errorf("%w: cross-domain config exceeds %d bytes", datatypes.ErrInvalidInput, MaxConfigSize)
	}

	var file configYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cross-domain yaml: %w", err)
	}

	cfg := &Config{
		EngageThreshold: file.EngageThreshold,
		Templates:       make(map[datatypes.Domain]Templates),
	}
	if cfg.EngageThreshold == 0 {
		cfg.EngageThreshold = DefaultEngageThreshold
	}
	if cfg.EngageThreshold < 0 || cfg.EngageThreshold > 1 {
		return nil, fmt.Errorf("%w: engage_threshold %v outside [0, 1]", datatypes.ErrInvalidInput, file.EngageThreshold)
	}
	for _, p := range file.ExplicitPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile explicit pattern %q: %w", p.Pattern, err)
		}
		ep := ExplicitPattern{Regex: re, Mode: Mode(p.Mode)}
		if ep.Mode != ModeDependent && ep.Mode != ModeParallel {
			return nil, fmt.Errorf("%w: unknown fan-out mode %q", datatypes.ErrInvalidInput, p.Mode)
		}
		for _, d := range p.Domains {
			domain := datatypes.NormalizeDomain(d)
			if !domain.Concrete() {
				return nil, fmt.Errorf("%w: non-concrete fan-out domain %q", datatypes.ErrInvalidInput, d)
			}
			ep.Domains = append(ep.Domains, domain)
		}
		if len(ep.Domains) < 2 {
			return nil, fmt.Errorf("%w: explicit pattern %q needs at least two domains", datatypes.ErrInvalidInput, p.Pattern)
		}
		cfg.Explicit = append(cfg.Explicit, ep)
	}

	for _, s := range file.SingleDomainShortcuts {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile shortcut pattern %q: %w", s.Pattern, err)
		}
		domain := datatypes.NormalizeDomain(s.Domain)
		if !domain.Concrete() {
			return nil, fmt.Errorf("%w: non-concrete shortcut domain %q", datatypes.ErrInvalidInput, s.Domain)
		}
		cfg.Shortcuts = append(cfg.Shortcuts, Shortcut{Regex: re, Domain: domain})
	}

	for name, t := range file.SubQueryTemplates {
		domain := datatypes.NormalizeDomain(name)
		if !domain.Concrete() {
			return nil, fmt.Errorf("%w: templates for non-concrete domain %q", datatypes.ErrInvalidInput, name)
		}
		cfg.Templates[domain] = Templates{Source: t.Source, Target: t.Target}
	}
	return cfg, nil
}
