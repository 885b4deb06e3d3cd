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

import "time"

// RoutingOutcome labels every routing decision row. The enum values are part
// of the persisted interface and must not change: offline reporting tools
// key on them.
type RoutingOutcome string

const (
	OutcomeSuccess    RoutingOutcome = "success"
	OutcomeFailure    RoutingOutcome = "failure"
	OutcomeCorrection RoutingOutcome = "correction"
	OutcomeUncertain  RoutingOutcome = "uncertain"
	OutcomeMixed      RoutingOutcome = "mixed"
)

// RoutingRecord is one immutable, append-only routing decision row.
type RoutingRecord struct {
	ID              int64             `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	Query           string            `json:"query"`
	QueryLength     int               `json:"query_length"`
	DetectedDomain  Domain            `json:"detected_domain"`
	RoutedTool      string            `json:"routed_tool"`
	Confidence      float64           `json:"confidence"`
	ParserUsed      bool              `json:"parser_used"`
	ValidatorUsed   bool              `json:"validator_used"`
	CrossDomain     bool              `json:"cross_domain"`
	Outcome         RoutingOutcome    `json:"outcome"`
	ExecutionTimeMS int64             `json:"execution_time_ms"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	UserID          string            `json:"user_id,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
}

// CorrectionRecord links an auto-correction to its routing decision.
type CorrectionRecord struct {
	ID                  int64     `json:"id"`
	RoutingDecisionID   int64     `json:"routing_decision_id"`
	Timestamp           time.Time `json:"timestamp"`
	OriginalTool        string    `json:"original_tool"`
	CorrectedTool       string    `json:"corrected_tool"`
	Reason              string    `json:"reason"`
	ValidatorConfidence float64   `json:"validator_confidence"`
}

// MisroutingPattern is an incrementally aggregated row keyed by the hash of
// (query pattern, wrong tool, correct tool).
type MisroutingPattern struct {
	PatternHash   string    `json:"pattern_hash"`
	QueryPattern  string    `json:"query_pattern"`
	WrongTool     string    `json:"wrong_tool"`
	CorrectTool   string    `json:"correct_tool"`
	Occurrences   int       `json:"occurrences"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	AvgConfidence float64   `json:"avg_confidence"`
	Resolved      bool      `json:"resolved"`
}

// ContextEnrichment is one cross-domain enrichment produced between steps.
type ContextEnrichment struct {
	SourceDomain    Domain            `json:"source_domain"`
	TargetDomain    Domain            `json:"target_domain"`
	EnrichmentType  string            `json:"enrichment_type"`
	EnrichedContext map[string]string `json:"enriched_context"`
	Confidence      float64           `json:"confidence"`
}
