// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// ValidationVerdict is the outcome of validating a (query, target tool) pair.
// Confidence is always clamped to [0, 1].
type ValidationVerdict struct {
	Valid          bool     `json:"valid"`
	Confidence     float64  `json:"confidence"`
	Reason         string   `json:"reason"`
	DetectedDomain Domain   `json:"detected_domain"`
	TargetDomain   Domain   `json:"target_domain"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

// PlanVerdict aggregates per-step verdicts for a whole plan. Confidence is
// the minimum over step confidences. Warnings and errors never block
// execution by themselves; invalid individual steps are filtered earlier.
type PlanVerdict struct {
	OverallValid bool                `json:"overall_valid"`
	Confidence   float64             `json:"confidence"`
	StepVerdicts []ValidationVerdict `json:"step_verdicts"`
	Errors       []string            `json:"errors,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
}
