// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads shake run configuration.
//
// The embedded default_config.yaml is always parsed first; an external file,
// when present, is overlaid on it so omitted keys keep their defaults.
package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/policy"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxYAMLFileSize is the maximum allowed config file size (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// EnvConfigPath names the environment variable holding the config path.
	EnvConfigPath = "SHAKE_CONFIG"
)

// searchPaths are tried in order when no path is given.
var searchPaths = []string{
	"./config/shake.yaml",
	"./shake.yaml",
}

// =============================================================================
// Embedded Default
// =============================================================================

//go:embed default_config.yaml
var defaultConfigYAML []byte

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	configLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shake_config_loads_total",
		Help: "Total config loads by source",
	}, []string{"source"})

	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shake_config_load_errors_total",
		Help: "Total config load errors",
	})

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shake_config_load_duration_seconds",
		Help:    "Duration of config loading",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})
)

var configTracer = otel.Tracer("aleutian.shake.config")

// configValidate is the validator instance for Config.
var configValidate = validator.New()

// =============================================================================
// Types
// =============================================================================

// Config holds the settings of a shake run and of the serve command.
type Config struct {
	// Except lists names to keep even when unreachable. Each value may hold
	// several whitespace separated entries.
	Except []string `yaml:"except" json:"except"`

	// Markers are attribute names that mark a symbol as implicitly used.
	Markers []string `yaml:"markers" json:"markers" validate:"dive,required"`

	// SyntheticNames are names reached by the runtime without a reference.
	SyntheticNames []string `yaml:"synthetic_names" json:"synthetic_names" validate:"dive,required"`

	// ProcessedSuffix marks names injected by earlier build steps.
	ProcessedSuffix string `yaml:"processed_suffix" json:"processed_suffix"`

	// OverloadMatching is "coarse" or "strict".
	OverloadMatching string `yaml:"overload_matching" json:"overload_matching" validate:"oneof=coarse strict"`

	// DropStaleImports enables the debug import cleanup after a sweep.
	DropStaleImports bool `yaml:"drop_stale_imports" json:"drop_stale_imports"`

	// Journal configures the run journal.
	Journal JournalConfig `yaml:"journal" json:"journal"`

	// Server configures the serve command.
	Server ServerConfig `yaml:"server" json:"server"`
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	// Path is the badger directory. Empty disables the journal unless
	// InMemory is set.
	Path string `yaml:"path" json:"path"`

	// InMemory keeps the journal in memory only.
	InMemory bool `yaml:"in_memory" json:"in_memory"`

	// MaxRuns bounds the number of stored runs. Zero keeps every run.
	MaxRuns int `yaml:"max_runs" json:"max_runs" validate:"min=0"`
}

// Enabled reports whether a journal should be opened.
func (j JournalConfig) Enabled() bool {
	return j.InMemory || j.Path != ""
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int     `yaml:"port" json:"port" validate:"min=1,max=65535"`
	RateLimit    float64 `yaml:"rate_limit" json:"rate_limit" validate:"gt=0"`
	Burst        int     `yaml:"burst" json:"burst" validate:"min=1"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" json:"max_body_bytes" validate:"min=1024"`
}

// Matching returns the parsed overload matching mode.
func (c *Config) Matching() canon.OverloadMatching {
	m, _ := canon.ParseOverloadMatching(c.OverloadMatching)
	return m
}

// PolicyOptions returns the policy options described by c.
//
// Description:
//
//	Exception entries are parsed here; malformed entries go to sink and
//	never match.
//
// Inputs:
//
//	sink - Receives one error per malformed exception entry. May be nil.
//
// Outputs:
//
//	[]policy.Option - Options for policy.New.
func (c *Config) PolicyOptions(sink func(error)) []policy.Option {
	return []policy.Option{
		policy.WithMarkers(c.Markers...),
		policy.WithSyntheticNames(c.SyntheticNames...),
		policy.WithProcessedSuffix(c.ProcessedSuffix),
		policy.WithExceptions(policy.ParseExceptions(c.Except, sink)),
	}
}

// Validate checks c against its validation tags.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded default configuration.
//
// Outputs:
//
//	*Config - A fresh copy. Callers may mutate it.
func Default() *Config {
	cfg, err := parse(context.Background(), defaultConfigYAML, &Config{})
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// Load loads configuration.
//
// Description:
//
//	The path is taken from the argument, then from SHAKE_CONFIG, then from
//	the first existing search path. With no path the embedded default is
//	returned. An explicit path that cannot be read is an error; a path
//	found by searching that cannot be read falls back to the default with
//	a warning.
//
// Inputs:
//
//	ctx - Context for tracing.
//	path - Optional config file path.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil on read, parse or validation failure.
func Load(ctx context.Context, path string) (*Config, error) {
	ctx, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	startTime := time.Now()
	defer func() {
		configLoadDuration.Observe(time.Since(startTime).Seconds())
	}()

	explicit := path != ""
	if !explicit {
		path = externalPath()
	}

	cfg := Default()
	source := "embedded"
	if path != "" {
		data, err := loadExternalYAML(ctx, path)
		switch {
		case err == nil:
			cfg, err = parse(ctx, data, cfg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "parse failed")
				configLoadErrors.Inc()
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
			source = "external"
			slog.Info("Loaded shake config from file",
				slog.String("path", path))
		case explicit:
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
			configLoadErrors.Inc()
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		default:
			slog.Warn("Shake config file not available, using embedded default",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	span.SetAttributes(
		attribute.String("source", source),
		attribute.Int("except_count", len(cfg.Except)),
	)
	configLoads.WithLabelValues(source).Inc()
	return cfg, nil
}

// Parse overlays YAML data on the embedded default and validates the result.
func Parse(ctx context.Context, data []byte) (*Config, error) {
	return parse(ctx, data, Default())
}

// externalPath returns the path of an external config file, or "".
func externalPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	for _, loc := range searchPaths {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}
	return ""
}

// loadExternalYAML reads a config file after checking its size.
func loadExternalYAML(ctx context.Context, path string) ([]byte, error) {
	_, span := configTracer.Start(ctx, "config.LoadExternal",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, info.Size(), MaxYAMLFileSize)
	}
	span.SetAttributes(attribute.Int64("file_size", info.Size()))

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// parse decodes data over base and validates it. Unknown keys are errors.
func parse(ctx context.Context, data []byte, base *Config) (*Config, error) {
	_, span := configTracer.Start(ctx, "config.Parse")
	defer span.End()

	cfg := *base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
