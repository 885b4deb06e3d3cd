// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/services/assistant/analytics"
)

func openAnalyticsStore() *analytics.SQLiteStore {
	if config.Analytics.Path == "" {
		log.Fatal("analytics.path is not configured; nothing to report on")
	}
	store, err := analytics.NewSQLiteStore(config.Analytics.Path, nil)
	if err != nil {
		log.Fatalf("Failed to open the analytics store: %v", err)
	}
	return store
}

func runReport(cmd *cobra.Command, args []string) {
	store := openAnalyticsStore()
	defer store.Close()

	since := time.Now().AddDate(0, 0, -reportDays)
	report, err := store.GenerateReport(context.Background(), since)
	if err != nil {
		log.Fatalf("Failed to generate the report: %v", err)
	}
	fmt.Print(report)
}

func runExport(cmd *cobra.Command, args []string) {
	store := openAnalyticsStore()
	defer store.Close()

	since := time.Now().AddDate(0, 0, -reportDays)
	payload, err := store.ExportMetrics(context.Background(), since, analytics.MetricsFilter{})
	if err != nil {
		log.Fatalf("Failed to export metrics: %v", err)
	}
	if err := os.WriteFile(exportPath, payload, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", exportPath, err)
	}
	fmt.Printf("Wrote metrics for the last %d days to %s\n", reportDays, exportPath)
}
