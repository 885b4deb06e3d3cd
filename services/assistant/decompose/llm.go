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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/llm"
)

const decompositionPrompt = `Decompose the following request into ordered steps.
Respond with a JSON object of the form {"steps": [...]} where each step has:
  "intent": one of email, task, calendar, notion, general
  "action": one of create, list, search, send, update, delete, complete, analyze, find_free_time, check_conflicts
  "query": the fragment of the request this step handles
  "depends_on": array of zero-based indices of earlier steps this step needs

Request: %s`

// llmStep is the wire shape of one step in the LLM response.
type llmStep struct {
	Intent    string `json:"intent"`
	Action    string `json:"action"`
	Query     string `json:"query"`
	DependsOn []int  `json:"depends_on"`
}

type llmDecomposition struct {
	Steps []llmStep `json:"steps"`
}

// decomposeViaLLM asks the configured LLM to split the query. Any shape
// problem in the response returns ErrDecompositionParse so the caller can
// fall back to the single-step path.
func (d *Decomposer) decomposeViaLLM(ctx context.Context, query string, entities Entities) ([]StepDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, decompositionTimeout)
	defer cancel()

	temp := float32(0.0)
	raw, err := d.client.Generate(ctx, fmt.Sprintf(decompositionPrompt, query), llm.GenerationParams{
		Temperature: &temp,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("decomposition generation: %w", err)
	}

	var parsed llmDecomposition
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrDecompositionParse, err)
	}
	if len(parsed.Steps) == 0 {
		return nil, fmt.Errorf("%w: empty steps array", datatypes.ErrDecompositionParse)
	}

	descriptors := make([]StepDescriptor, 0, len(parsed.Steps))
	for i, step := range parsed.Steps {
		if strings.TrimSpace(step.Query) == "" {
			return nil, fmt.Errorf("%w: step %d has empty query", datatypes.ErrDecompositionParse, i)
		}
		id := fmt.Sprintf("step_%d", i+1)
		deps := make([]string, 0, len(step.DependsOn))
		for _, ref := range step.DependsOn {
			if ref < 0 || ref >= i {
				return nil, fmt.Errorf("%w: step %d references invalid step index %d", datatypes.ErrDecompositionParse, i, ref)
			}
			deps = append(deps, fmt.Sprintf("step_%d", ref+1))
		}

		domain := datatypes.NormalizeDomain(step.Intent)
		action := datatypes.Action(strings.ToLower(strings.TrimSpace(step.Action)))
		if !action.Valid() {
			action = actionForFragment(step.Query)
		}

		descriptors = append(descriptors, StepDescriptor{
			ID:                  id,
			Intent:              string(domain),
			Action:              action,
			Query:               strings.TrimSpace(step.Query),
			Dependencies:        deps,
			ContextRequirements: requirementsForFragment(step.Query, domain),
			Entities:            entities,
		})
	}
	return descriptors, nil
}
