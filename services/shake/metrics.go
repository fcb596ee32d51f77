// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shake

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for engine operations.
var (
	tracer = otel.Tracer("aleutian.shake")
	meter  = otel.Meter("aleutian.shake")
)

// Metrics for shake runs.
var (
	runLatency     metric.Float64Histogram
	runTotal       metric.Int64Counter
	symbolsReached metric.Int64Histogram
	symbolsRemoved metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"shake_run_duration_seconds",
			metric.WithDescription("Duration of shake runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"shake_run_total",
			metric.WithDescription("Total number of shake runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		symbolsReached, err = meter.Int64Histogram(
			"shake_symbols_reached",
			metric.WithDescription("Number of distinct symbols marked reachable per run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		symbolsRemoved, err = meter.Int64Counter(
			"shake_symbols_removed_total",
			metric.WithDescription("Total number of symbols removed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRunMetrics records metrics for a completed run.
func recordRunMetrics(ctx context.Context, duration time.Duration, reached int, removed map[string]int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	runLatency.Record(ctx, duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)

	if !success {
		return
	}
	symbolsReached.Record(ctx, int64(reached))
	for kind, n := range removed {
		symbolsRemoved.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// startSpan creates a span for an engine phase.
func startSpan(ctx context.Context, phase, assembly string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine."+phase,
		trace.WithAttributes(
			attribute.String("shake.assembly", assembly),
		),
	)
}
