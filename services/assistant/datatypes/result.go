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

// OrchestrationResult is the caller-facing outcome of one query.
//
// Success is true iff at least one step completed successfully, or the query
// was a no-op requiring no steps. Partial failures keep Success true; their
// errors are listed in Errors and acknowledged in FinalResult prose.
type OrchestrationResult struct {
	Success       bool           `json:"success"`
	FinalResult   string         `json:"final_result"`
	StepsExecuted int            `json:"steps_executed"`
	TotalSteps    int            `json:"total_steps"`
	ExecutionTime float64        `json:"execution_time"` // seconds
	Errors        []string       `json:"errors,omitempty"`
	ContextUsed   map[string]any `json:"context_used,omitempty"`
}
