// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry providers used by shake.
//
// The engine, journal and HTTP layer only talk to the otel globals. Init
// swaps those globals for real providers when an exporter is selected;
// without Init every span and instrument is a no-op.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names accepted by Config.
const (
	ExporterNone       = "none"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext indicates Init was called with a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter indicates an exporter name Init does not know.
	ErrUnknownExporter = errors.New("unknown exporter")
)

// Config selects exporters and the resource attributes attached to them.
type Config struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	Environment    string `json:"environment"`

	// TraceExporter is otlp, stdout or none. Empty means none.
	TraceExporter string `json:"trace_exporter"`

	// MetricExporter is prometheus, stdout or none. Empty means none.
	MetricExporter string `json:"metric_exporter"`

	// OTLPEndpoint is the gRPC collector address used by the otlp
	// trace exporter.
	OTLPEndpoint string `json:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure"`
}

// DefaultConfig returns the serve defaults: no traces, Prometheus metrics.
// SHAKE_ENV, OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER and
// OTEL_EXPORTER_OTLP_ENDPOINT override the matching fields.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "shake",
		ServiceVersion: "dev",
		Environment:    envOr("SHAKE_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", ExporterNone),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", ExporterPrometheus),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// shutdowns collects provider shutdown hooks in install order.
type shutdowns []func(context.Context) error

func (s shutdowns) run(ctx context.Context) error {
	var errs []error
	for _, fn := range s {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// Init installs the global TracerProvider and MeterProvider named by cfg.
//
// Inputs:
//
//	ctx - Used to dial the OTLP collector. Must not be nil.
//	cfg - Exporter selection.
//
// Outputs:
//
//	shutdown - Flushes and stops the installed providers. Never nil on
//	           success.
//	error - ErrNilContext, ErrUnknownExporter, or an exporter error.
//
// Thread Safety: Call once, before serving.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var hooks shutdowns
	res := newResource(cfg)

	if enabled(cfg.TraceExporter) {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		hooks = append(hooks, tp.Shutdown)
	}

	if enabled(cfg.MetricExporter) {
		mp, err := newMeterProvider(cfg, res)
		if err != nil {
			_ = hooks.run(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		hooks = append(hooks, mp.Shutdown)
	}

	return hooks.run, nil
}

func enabled(exporter string) bool {
	return exporter != "" && exporter != ExporterNone
}

func newResource(cfg Config) *resource.Resource {
	return resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch cfg.TraceExporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		// stdout carries run output, so spans go to stderr.
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	default:
		return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("%s exporter: %w", cfg.TraceExporter, err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

var (
	metricsMu      sync.RWMutex
	metricsHandler http.Handler
)

// MetricsHandler returns the Prometheus scrape handler, or nil unless Init
// installed the prometheus exporter.
func MetricsHandler() http.Handler {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsHandler
}

func newMeterProvider(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	var reader metric.Reader
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		exp, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		reader = exp
		metricsMu.Lock()
		metricsHandler = promhttp.Handler()
		metricsMu.Unlock()
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint(), stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		reader = metric.NewPeriodicReader(exp)
	default:
		return nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, cfg.MetricExporter)
	}
	return metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader)), nil
}

// TraceID returns the hex trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// LoggerWithTrace tags logger with the trace_id and span_id of ctx so run
// logs can be joined with their spans. Without a span, logger is returned
// as is.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
