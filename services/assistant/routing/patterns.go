// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing implements domain detection, routing validation, and tool
// selection for the assistant core.
//
// The detector scores a query against per-domain pattern sets (strong
// indicator regexes, keywords, question phrases, action phrases) and returns
// the winning domain with a confidence and the supporting evidence. The
// validator judges (query, target tool) pairs; the selector maps a step to a
// concrete tool through a cascade of strategies.
package routing

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// MaxPatternFileSize caps the pattern YAML size (1MB).
const MaxPatternFileSize = 1024 * 1024

//go:embed patterns.yaml
var defaultPatternsYAML []byte

// patternFileYAML is the root structure for YAML deserialization.
type patternFileYAML struct {
	Domains []domainPatternsYAML `yaml:"domains"`
}

type domainPatternsYAML struct {
	Domain           string   `yaml:"domain"`
	StrongIndicators []string `yaml:"strong_indicators"`
	Keywords         []string `yaml:"keywords"`
	QuestionPhrases  []string `yaml:"question_phrases"`
	ActionPhrases    []string `yaml:"action_phrases"`
}

// DomainPatterns holds the compiled pattern set for one domain.
type DomainPatterns struct {
	Domain          datatypes.Domain
	Strong          []*regexp.Regexp
	Keywords        []*regexp.Regexp
	KeywordStrings  []string
	QuestionPhrases []string
	ActionPhrases   []string
}

// PatternConfig is the compiled, immutable detector configuration.
type PatternConfig struct {
	Domains []DomainPatterns
}

var (
	defaultPatternsOnce sync.Once
	defaultPatterns     *PatternConfig
	defaultPatternsErr  error
)

// DefaultPatterns returns the embedded pattern config, compiled once.
// The embedded YAML is validated at build time by tests, so an error here
// indicates a broken build.
func DefaultPatterns() (*PatternConfig, error) {
	defaultPatternsOnce.Do(func() {
		defaultPatterns, defaultPatternsErr = LoadPatterns(defaultPatternsYAML)
	})
	return defaultPatterns, defaultPatternsErr
}

// LoadPatterns parses and compiles a pattern YAML document.
func LoadPatterns(data []byte) (*PatternConfig, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty pattern data", datatypes.ErrInvalidInput)
	}
	if len(data) > MaxPatternFileSize {
		return nil, fmt.Errorf("%w: pattern file exceeds %d bytes", datatypes.ErrInvalidInput, MaxPatternFileSize)
	}

	var file patternFileYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern yaml: %w", err)
	}

	cfg := &PatternConfig{}
	for _, d := range file.Domains {
		domain := datatypes.NormalizeDomain(d.Domain)
		if !domain.Concrete() {
			return nil, fmt.Errorf("%w: pattern set for non-concrete domain %q", datatypes.ErrInvalidInput, d.Domain)
		}
		dp := DomainPatterns{
			Domain:          domain,
			KeywordStrings:  lowerAll(d.Keywords),
			QuestionPhrases: lowerAll(d.QuestionPhrases),
			ActionPhrases:   lowerAll(d.ActionPhrases),
		}
		for _, raw := range d.StrongIndicators {
			re, err := regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("compile strong indicator %q for %s: %w", raw, domain, err)
			}
			dp.Strong = append(dp.Strong, re)
		}
		for _, kw := range dp.KeywordStrings {
			re, err := regexp.Compile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("compile keyword %q for %s: %w", kw, domain, err)
			}
			dp.Keywords = append(dp.Keywords, re)
		}
		cfg.Domains = append(cfg.Domains, dp)
	}
	if len(cfg.Domains) == 0 {
		return nil, fmt.Errorf("%w: no domain pattern sets", datatypes.ErrInvalidInput)
	}
	return cfg, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
