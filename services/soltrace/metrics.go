// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package soltrace

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for analysis runs.
var (
	analyzerTracer = otel.Tracer("soltrace")
	analyzerMeter  = otel.Meter("soltrace")
)

// Metrics for analysis runs.
var (
	analyzeLatency metric.Float64Histogram
	analyzeTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = analyzerMeter.Float64Histogram(
			"analyze_duration_seconds",
			metric.WithDescription("Duration of end-to-end analysis runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = analyzerMeter.Int64Counter(
			"analyze_total",
			metric.WithDescription("Total analysis runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAnalyzeMetrics records metrics for one run.
func recordAnalyzeMetrics(ctx context.Context, duration time.Duration, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}

	outcome := "error"
	if ok {
		outcome = "ok"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	analyzeLatency.Record(ctx, duration.Seconds(), attrs)
	analyzeTotal.Add(ctx, 1, attrs)
}
