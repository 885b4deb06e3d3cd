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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianAssist/services/assistant/catalog"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Validation confidences and thresholds.
const (
	// matchBonus is added to detection confidence when detected and target
	// domains agree.
	matchBonus = 0.15

	// parserBlendDetection and parserBlendParser weight the blend when a
	// parser confidence accompanies a domain match.
	parserBlendDetection = 0.7
	parserBlendParser    = 0.3

	// strictMismatchThreshold is the detection confidence above which a
	// strict-mode mismatch is rejected.
	strictMismatchThreshold = 0.60

	mixedTargetInSetConfidence = 0.70
	mixedStrictRejectConf      = 0.40
	generalAdmitConfidence     = 0.50
	mismatchRejectConfidence   = 0.20
	mismatchWarnConfidence     = 0.40
)

// Validator judges whether a query belongs with a target tool.
//
// Strict mode rejects confident mismatches; lenient mode admits them with a
// warning verdict. The catalog is passed in explicitly so validation stays
// deterministic and unit-testable.
type Validator struct {
	detector *Detector
	catalog  *catalog.Catalog
	strict   bool
	logger   *slog.Logger
}

// NewValidator builds a validator. strict selects strict mode.
func NewValidator(detector *Detector, cat *catalog.Catalog, strict bool, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{detector: detector, catalog: cat, strict: strict, logger: logger}
}

// Strict reports whether the validator is in strict mode.
func (v *Validator) Strict() bool { return v.strict }

// Validate returns a verdict for routing query to targetTool.
// parserConfidence, when non-nil, is blended into domain-match confidence.
func (v *Validator) Validate(ctx context.Context, query, targetTool string, parserConfidence *float64) datatypes.ValidationVerdict {
	detected, detectionConf, evidence := v.detector.Detect(ctx, query)

	targetDomain, known := v.catalog.DomainForTool(targetTool)
	if !known {
		targetDomain = datatypes.DomainGeneral
	}

	verdict := v.judge(query, detected, detectionConf, evidence, targetDomain, parserConfidence)
	verdict.Confidence = clamp01(verdict.Confidence)

	result := "valid"
	if !verdict.Valid {
		result = "invalid"
	}
	validationVerdicts.WithLabelValues(result).Inc()
	return verdict
}

func (v *Validator) judge(
	query string,
	detected datatypes.Domain,
	detectionConf float64,
	evidence Evidence,
	targetDomain datatypes.Domain,
	parserConfidence *float64,
) datatypes.ValidationVerdict {
	verdict := datatypes.ValidationVerdict{
		DetectedDomain: detected,
		TargetDomain:   targetDomain,
	}

	switch {
	case detected == datatypes.DomainMixed:
		for _, d := range evidence.Domains {
			if d == targetDomain {
				verdict.Valid = true
				verdict.Confidence = mixedTargetInSetConfidence
				verdict.Reason = "mixed-domain query but target is in the detected set"
				return verdict
			}
		}
		if v.strict {
			verdict.Valid = false
			verdict.Confidence = mixedStrictRejectConf
			verdict.Reason = "mixed-domain query and target is outside the detected set"
			for _, d := range evidence.Domains {
				verdict.Suggestions = append(verdict.Suggestions, string(d))
			}
			return verdict
		}
		verdict.Valid = true
		verdict.Confidence = mixedStrictRejectConf
		verdict.Reason = "mixed-domain query routed outside the detected set (lenient mode)"
		return verdict

	case detected == targetDomain:
		verdict.Valid = true
		conf := detectionConf + matchBonus
		if parserConfidence != nil {
			conf = parserBlendDetection*detectionConf + parserBlendParser*clamp01(*parserConfidence)
		}
		if conf > 1.0 {
			conf = 1.0
		}
		verdict.Confidence = conf
		verdict.Reason = "detected domain matches target tool"
		return verdict

	case detected == datatypes.DomainGeneral:
		// Weak evidence: admit rather than block vague queries.
		verdict.Valid = true
		verdict.Confidence = generalAdmitConfidence
		verdict.Reason = "no domain confidently detected"
		verdict.Suggestions = []string{"query is vague; consider adding domain-specific wording"}
		return verdict

	default: // mismatch
		if v.strict && detectionConf > strictMismatchThreshold {
			verdict.Valid = false
			verdict.Confidence = mismatchRejectConfidence
			verdict.Reason = v.catalog.MismatchMessage(detected, targetDomain)
			if canonical, ok := v.catalog.CanonicalToolForDomain(detected); ok {
				verdict.Suggestions = []string{fmt.Sprintf("route to %s", canonical)}
			}
			return verdict
		}
		verdict.Valid = true
		verdict.Confidence = mismatchWarnConfidence
		verdict.Reason = fmt.Sprintf("possible mismatch: %s", v.catalog.MismatchMessage(detected, targetDomain))
		return verdict
	}
}

// ValidatePlan validates every step of a plan against the original query's
// sub-queries. Overall confidence is the minimum over step confidences.
// Invalid steps contribute errors; verdicts never gate execution here —
// the planner has already filtered individually invalid steps.
func (v *Validator) ValidatePlan(ctx context.Context, steps []*datatypes.ExecutionStep) datatypes.PlanVerdict {
	plan := datatypes.PlanVerdict{OverallValid: true, Confidence: 1.0}
	if len(steps) == 0 {
		plan.OverallValid = false
		plan.Confidence = 0
		plan.Errors = append(plan.Errors, "plan has no steps")
		return plan
	}

	for _, step := range steps {
		sv := v.Validate(ctx, step.Query, step.ToolName, nil)
		plan.StepVerdicts = append(plan.StepVerdicts, sv)
		if sv.Confidence < plan.Confidence {
			plan.Confidence = sv.Confidence
		}
		if !sv.Valid {
			plan.OverallValid = false
			plan.Errors = append(plan.Errors, fmt.Sprintf("step %s: %s", step.ID, sv.Reason))
		} else if sv.Confidence < generalAdmitConfidence {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("step %s: low routing confidence (%.2f)", step.ID, sv.Confidence))
		}
	}
	return plan
}
