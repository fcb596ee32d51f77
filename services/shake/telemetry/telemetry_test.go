// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("SHAKE_ENV", "")

	cfg := DefaultConfig()
	assert.Equal(t, "shake", cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, "development", cfg.Environment)
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("SHAKE_ENV", "production")

	cfg := DefaultConfig()
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.Equal(t, "production", cfg.Environment)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := Init(nil, Config{TraceExporter: "none", MetricExporter: "none"})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "none"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Stdout(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "shake-test", TraceExporter: "stdout", MetricExporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Prometheus(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "prometheus"})
	require.NoError(t, err)
	defer shutdown(context.Background())
	assert.NotNil(t, MetricsHandler())
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin", MetricExporter: "none"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "graphite"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	assert.Same(t, logger, LoggerWithTrace(context.Background(), logger))
	assert.Empty(t, TraceID(context.Background()))

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	LoggerWithTrace(ctx, logger).Info("hello")
	assert.Contains(t, buf.String(), `"trace_id":"`+TraceID(ctx)+`"`)
	assert.NotEmpty(t, TraceID(ctx))
}

func TestInit_EmptyExportersInstallNothing(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
