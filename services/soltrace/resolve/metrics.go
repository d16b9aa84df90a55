// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for resolution operations.
var (
	tracer = otel.Tracer("soltrace.resolve")
	meter  = otel.Meter("soltrace.resolve")
)

// Metrics for import resolution.
var (
	resolveLatency metric.Float64Histogram
	resolveTotal   metric.Int64Counter
	fetchAttempts  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		resolveLatency, err = meter.Float64Histogram(
			"resolve_duration_seconds",
			metric.WithDescription("Duration of import resolution operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolveTotal, err = meter.Int64Counter(
			"resolve_total",
			metric.WithDescription("Total import resolution operations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchAttempts, err = meter.Int64Histogram(
			"resolve_fetch_attempts",
			metric.WithDescription("Candidate fetch attempts per resolution"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordResolveMetrics records metrics for one resolution.
func recordResolveMetrics(ctx context.Context, duration time.Duration, outcome Outcome, attempts int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome.String()))
	resolveLatency.Record(ctx, duration.Seconds(), attrs)
	resolveTotal.Add(ctx, 1, attrs)
	if attempts > 0 {
		fetchAttempts.Record(ctx, int64(attempts), attrs)
	}
}

// startResolveSpan creates a span for one resolution.
func startResolveSpan(ctx context.Context, importPath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(
			attribute.String("resolve.import", importPath),
		),
	)
}
