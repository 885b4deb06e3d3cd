// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics persists routing decisions, corrections, and aggregated
// misrouting patterns, and computes accuracy reporting over them.
//
// Writes are fire-and-forget from the executor's perspective: analytics
// failures are logged, never propagated into query execution.
package analytics

import (
	"context"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Recorder is the write-side interface the executor and orchestrator use.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordRouting appends one routing decision and returns its row ID.
	RecordRouting(ctx context.Context, rec *datatypes.RoutingRecord) (int64, error)

	// RecordCorrection appends one auto-correction row.
	RecordCorrection(ctx context.Context, rec *datatypes.CorrectionRecord) error

	// RecordMisrouting upserts the aggregate row for (pattern, wrong, correct).
	RecordMisrouting(ctx context.Context, queryPattern, wrongTool, correctTool string, confidence float64) error
}

// MetricsFilter narrows aggregate queries to one detected domain and/or one
// routed tool. The zero value means unfiltered.
type MetricsFilter struct {
	Domain string
	Tool   string
}

// Metrics is the aggregate view over a time window.
type Metrics struct {
	Since             time.Time                 `json:"since"`
	TotalDecisions    int64                     `json:"total_decisions"`
	OutcomeCounts     map[string]int64          `json:"outcome_counts"`
	SuccessRate       float64                   `json:"success_rate"`
	CorrectionCount   int64                     `json:"correction_count"`
	AvgConfidence     float64                   `json:"avg_confidence"`
	AvgExecutionMS    float64                   `json:"avg_execution_ms"`
	DomainAccuracy    map[string]float64        `json:"domain_accuracy"`
	ToolUsage         map[string]int64          `json:"tool_usage"`
	ConfidenceBuckets map[string]int64          `json:"confidence_buckets"`
	TopMisroutings    []datatypes.MisroutingPattern `json:"top_misroutings,omitempty"`
}

// Nop is a Recorder that drops everything. Used when analytics is disabled.
type Nop struct{}

func (Nop) RecordRouting(context.Context, *datatypes.RoutingRecord) (int64, error) { return 0, nil }
func (Nop) RecordCorrection(context.Context, *datatypes.CorrectionRecord) error    { return nil }
func (Nop) RecordMisrouting(context.Context, string, string, string, float64) error {
	return nil
}
