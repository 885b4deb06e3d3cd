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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath    string
	portOverride  int
	strictRouting bool
	reportDays    int
	exportPath    string

	rootCmd = &cobra.Command{
		Use:   "assistant",
		Short: "The AleutianAssist query orchestration service",
		Long: `Assistant decomposes natural-language queries into execution
				plans, routes each step to the right productivity tool, and
				synthesizes context between dependent steps.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket event stream",
		Run:   runServe, // Defined in cmd_serve.go
	}

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Print a routing-accuracy report from the analytics store",
		Run:   runReport, // Defined in cmd_report.go
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write aggregate routing metrics to a JSON file",
		Run:   runExport, // Defined in cmd_report.go
	}
)
