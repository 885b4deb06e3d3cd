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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExportMetrics serializes the aggregate metrics since the given time as
// indented JSON, suitable for dashboards or offline analysis.
func (s *SQLiteStore) ExportMetrics(ctx context.Context, since time.Time, filter MetricsFilter) ([]byte, error) {
	m, err := s.GetMetrics(ctx, since, filter)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(m, "", "  ")
}

// GenerateReport renders a plain-text routing accuracy report since the
// given time. Map sections are sorted for stable output.
func (s *SQLiteStore) GenerateReport(ctx context.Context, since time.Time) (string, error) {
	m, err := s.GetMetrics(ctx, since, MetricsFilter{})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Routing Analytics Report (since %s)\n", since.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total decisions:  %d\n", m.TotalDecisions)
	fmt.Fprintf(&b, "Success rate:     %.1f%%\n", m.SuccessRate*100)
	fmt.Fprintf(&b, "Avg confidence:   %.2f\n", m.AvgConfidence)
	fmt.Fprintf(&b, "Avg execution:    %.0f ms\n", m.AvgExecutionMS)
	fmt.Fprintf(&b, "Corrections:      %d\n", m.CorrectionCount)

	if len(m.DomainAccuracy) > 0 {
		b.WriteString("\nAccuracy by domain:\n")
		for _, k := range sortedKeysF(m.DomainAccuracy) {
			fmt.Fprintf(&b, "  %-10s %.1f%%\n", k, m.DomainAccuracy[k]*100)
		}
	}
	if len(m.ToolUsage) > 0 {
		b.WriteString("\nTool usage:\n")
		for _, k := range sortedKeysI(m.ToolUsage) {
			fmt.Fprintf(&b, "  %-10s %d\n", k, m.ToolUsage[k])
		}
	}
	if len(m.ConfidenceBuckets) > 0 {
		b.WriteString("\nConfidence distribution:\n")
		for _, k := range sortedKeysI(m.ConfidenceBuckets) {
			fmt.Fprintf(&b, "  %s  %d\n", k, m.ConfidenceBuckets[k])
		}
	}
	if len(m.TopMisroutings) > 0 {
		b.WriteString("\nTop misrouting patterns:\n")
		for _, p := range m.TopMisroutings {
			fmt.Fprintf(&b, "  %q: %s -> %s (%d occurrences, avg conf %.2f)\n",
				p.QueryPattern, p.WrongTool, p.CorrectTool, p.Occurrences, p.AvgConfidence)
		}
	}
	return b.String(), nil
}

func sortedKeysF(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysI(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
