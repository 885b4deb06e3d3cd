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

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds the core distinguishes. Components
// wrap these with fmt.Errorf("...: %w", err); callers branch with errors.Is.
var (
	// ErrInvalidInput marks nil or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilContext marks a nil context passed to a blocking operation.
	ErrNilContext = errors.New("nil context")

	// ErrEmptyQuery marks an empty or whitespace-only query.
	ErrEmptyQuery = errors.New("empty query")

	// ErrValidationRejected marks a strict-mode routing validation failure.
	ErrValidationRejected = errors.New("routing validation rejected")

	// ErrToolUnavailable marks a step whose tool is not in the available set.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrToolRejected marks a structured "not my domain" rejection from a tool.
	ErrToolRejected = errors.New("tool rejected query")

	// ErrRateLimited marks admission refusal by the rate limiter.
	ErrRateLimited = errors.New("rate limited")

	// ErrDecompositionParse marks malformed JSON from LLM decomposition.
	// Callers fall back to a single-step plan.
	ErrDecompositionParse = errors.New("decomposition parse error")

	// ErrStoreUnavailable marks an unreachable analytics or rate-limit store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCycle marks an execution plan whose dependency graph is not a DAG.
	ErrCycle = errors.New("dependency cycle")

	// ErrInvalidTransition marks a step status transition outside the
	// state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ToolRejectionError carries a tool's structured rejection so the executor
// can inspect the message for alternate-domain hints.
type ToolRejectionError struct {
	Tool    string
	Message string
}

func (e *ToolRejectionError) Error() string {
	return fmt.Sprintf("tool %s rejected query: %s", e.Tool, e.Message)
}

func (e *ToolRejectionError) Unwrap() error { return ErrToolRejected }
