// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the LLM client abstraction used by the assistant
// core. The core treats LLMs as accelerators, never dependencies: every
// caller has a pattern-based fallback for when no client is configured or a
// call fails.
package llm

import "context"

// GenerationParams tunes a single generation call. Nil pointers mean
// "use the provider default".
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
	TopP        *float32
	Stop        []string

	// JSONMode asks the provider to constrain output to a JSON object.
	// Providers without native support ignore it; callers must validate
	// the response shape regardless.
	JSONMode bool
}

// LLMClient generates text from a prompt.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
