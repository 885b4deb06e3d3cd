// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "analytics.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(outcome datatypes.RoutingOutcome, domain datatypes.Domain, tool string, conf float64) *datatypes.RoutingRecord {
	return &datatypes.RoutingRecord{
		Query:          "q",
		DetectedDomain: domain,
		RoutedTool:     tool,
		Confidence:     conf,
		Outcome:        outcome,
	}
}

func TestRecordRouting_AssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9)
	id, err := s.RecordRouting(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Positive(t, id)

	id2, err := s.RecordRouting(ctx, record(datatypes.OutcomeFailure, datatypes.DomainTask, "tasks", 0.4))
	require.NoError(t, err)
	assert.Greater(t, id2, id)
}

func TestRecordDomainValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordDomainValidation(ctx, "what tasks do I have", datatypes.DomainTask, "tasks", true, 0.8)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.RecordDomainValidation(ctx, "send it to bob", datatypes.DomainEmail, "tasks", false, 0.3)
	require.NoError(t, err)

	m, err := s.GetMetrics(ctx, time.Now().Add(-time.Minute), MetricsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.OutcomeCounts["success"])
	assert.EqualValues(t, 1, m.OutcomeCounts["uncertain"])
}

func TestGetMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		_, err := s.RecordRouting(ctx, record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9))
		require.NoError(t, err)
	}
	_, err := s.RecordRouting(ctx, record(datatypes.OutcomeFailure, datatypes.DomainTask, "tasks", 0.3))
	require.NoError(t, err)

	m, err := s.GetMetrics(ctx, since, MetricsFilter{})
	require.NoError(t, err)

	assert.EqualValues(t, 4, m.TotalDecisions)
	assert.InDelta(t, 0.75, m.SuccessRate, 1e-9)
	assert.EqualValues(t, 3, m.OutcomeCounts["success"])
	assert.EqualValues(t, 1, m.OutcomeCounts["failure"])
	assert.InDelta(t, 0.75, m.AvgConfidence, 1e-9)
	assert.InDelta(t, 1.0, m.DomainAccuracy["email"], 1e-9)
	assert.InDelta(t, 0.0, m.DomainAccuracy["task"], 1e-9)
	assert.EqualValues(t, 3, m.ToolUsage["email"])
	assert.EqualValues(t, 3, m.ConfidenceBuckets["0.8-1.0"])
	assert.EqualValues(t, 1, m.ConfidenceBuckets["0.2-0.4"])
}

func TestGetMetrics_WindowExcludesOldRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	_, err := s.RecordRouting(ctx, old)
	require.NoError(t, err)

	_, err = s.RecordRouting(ctx, record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9))
	require.NoError(t, err)

	m, err := s.GetMetrics(ctx, time.Now().Add(-time.Hour), MetricsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.TotalDecisions)
}

func TestGetMetrics_FilteredByDomain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Hour)

	for i := 0; i < 2; i++ {
		_, err := s.RecordRouting(ctx, record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9))
		require.NoError(t, err)
	}
	_, err := s.RecordRouting(ctx, record(datatypes.OutcomeFailure, datatypes.DomainEmail, "email", 0.4))
	require.NoError(t, err)
	_, err = s.RecordRouting(ctx, record(datatypes.OutcomeSuccess, datatypes.DomainTask, "tasks", 0.8))
	require.NoError(t, err)

	m, err := s.GetMetrics(ctx, since, MetricsFilter{Domain: "email"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, m.TotalDecisions)
	assert.InDelta(t, 2.0/3.0, m.SuccessRate, 1e-9)
	assert.NotContains(t, m.DomainAccuracy, "task")
	assert.NotContains(t, m.ToolUsage, "tasks")
}

func TestGetMetrics_FilteredByTool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Hour)

	id, err := s.RecordRouting(ctx, record(datatypes.OutcomeCorrection, datatypes.DomainTask, "tasks", 0.75))
	require.NoError(t, err)
	require.NoError(t, s.RecordCorrection(ctx, &datatypes.CorrectionRecord{
		RoutingDecisionID:   id,
		OriginalTool:        "email",
		CorrectedTool:       "tasks",
		Reason:              "detected domain mismatch",
		ValidatorConfidence: 0.75,
	}))
	_, err = s.RecordRouting(ctx, record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9))
	require.NoError(t, err)

	m, err := s.GetMetrics(ctx, since, MetricsFilter{Tool: "tasks"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.TotalDecisions)
	assert.EqualValues(t, 1, m.OutcomeCounts["correction"])
	assert.EqualValues(t, 1, m.CorrectionCount)

	m, err = s.GetMetrics(ctx, since, MetricsFilter{Tool: "email"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.TotalDecisions)
	assert.Zero(t, m.CorrectionCount)
}

func TestRecordCorrection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordRouting(ctx, record(datatypes.OutcomeCorrection, datatypes.DomainTask, "tasks", 0.75))
	require.NoError(t, err)

	require.NoError(t, s.RecordCorrection(ctx, &datatypes.CorrectionRecord{
		RoutingDecisionID:   id,
		OriginalTool:        "email",
		CorrectedTool:       "tasks",
		Reason:              "detected domain mismatch",
		ValidatorConfidence: 0.2,
	}))

	m, err := s.GetMetrics(ctx, time.Now().Add(-time.Hour), MetricsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.CorrectionCount)
}

func TestRecordMisrouting_Aggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordMisrouting(ctx, "create a task *", "email", "tasks", 0.2))
	}
	require.NoError(t, s.RecordMisrouting(ctx, "schedule *", "tasks", "calendar", 0.3))

	patterns, err := s.GetMisroutingPatterns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	top := patterns[0]
	assert.Equal(t, "create a task *", top.QueryPattern)
	assert.Equal(t, 3, top.Occurrences)
	assert.InDelta(t, 0.2, top.AvgConfidence, 1e-9)
	assert.False(t, top.Resolved)
	assert.False(t, top.FirstSeen.After(top.LastSeen))
}

func TestResolveMisrouting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordMisrouting(ctx, "pattern", "a", "b", 0.5))
	patterns, err := s.GetMisroutingPatterns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	require.NoError(t, s.ResolveMisrouting(ctx, patterns[0].PatternHash))
	patterns, err = s.GetMisroutingPatterns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestGenerateReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordRouting(ctx, record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9))
	require.NoError(t, err)
	require.NoError(t, s.RecordMisrouting(ctx, "create a task *", "email", "tasks", 0.2))

	report, err := s.GenerateReport(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, strings.Contains(report, "Total decisions:  1"), report)
	assert.True(t, strings.Contains(report, "email"), report)
	assert.True(t, strings.Contains(report, "create a task *"), report)
}

func TestExportMetrics_ValidJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.RecordRouting(ctx, record(datatypes.OutcomeSuccess, datatypes.DomainEmail, "email", 0.9))
	require.NoError(t, err)

	out, err := s.ExportMetrics(ctx, time.Now().Add(-time.Hour), MetricsFilter{})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), `"total_decisions": 1`), string(out))
}

func TestMisroutingHash_Stable(t *testing.T) {
	a := MisroutingHash("p", "w", "c")
	b := MisroutingHash("p", "w", "c")
	c := MisroutingHash("p", "w", "d")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
