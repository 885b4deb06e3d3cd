// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aleutian.executor")

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "executor",
		Name:      "steps_total",
		Help:      "Executed steps by terminal status",
	}, []string{"status"})

	stepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "executor",
		Name:      "step_latency_seconds",
		Help:      "Per-step execution latency including retries",
		Buckets:   prometheus.DefBuckets,
	})

	stepRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "executor",
		Name:      "step_retries_total",
		Help:      "Step retries by kind (transient or rejection)",
	}, []string{"kind"})
)
