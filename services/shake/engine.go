// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shake removes unreachable types and members from a symbol graph.
//
// An Engine owns one graph for one run. BuildRoots classifies the graph's
// symbols, Walk computes everything reachable from the roots and Sweep
// deletes the rest in place. Run performs all three.
package shake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/config"
	"github.com/AleutianAI/shake/services/shake/graph"
	"github.com/AleutianAI/shake/services/shake/policy"
	"github.com/AleutianAI/shake/services/shake/sweep"
	"github.com/AleutianAI/shake/services/shake/walk"
)

// =============================================================================
// OPTIONS
// =============================================================================

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Except holds raw exception values. Each may contain several
	// whitespace separated entries.
	Except []string

	// Policy holds additional policy options, applied after the defaults.
	Policy []policy.Option

	// Matching selects overload matching for reference resolution.
	Matching canon.OverloadMatching

	// DropStaleImports enables the debug import cleanup. Default true.
	DropStaleImports bool

	// Logger receives run logs. Default slog.Default().
	Logger *slog.Logger

	// ErrorSink receives configuration errors. May be nil.
	ErrorSink func(error)
}

// EngineOption is a functional option for NewEngine.
type EngineOption func(*EngineOptions)

// WithExceptions adds exception values.
func WithExceptions(values ...string) EngineOption {
	return func(o *EngineOptions) { o.Except = append(o.Except, values...) }
}

// WithMarkers replaces the implicit-use marker attributes.
func WithMarkers(markers ...string) EngineOption {
	return func(o *EngineOptions) { o.Policy = append(o.Policy, policy.WithMarkers(markers...)) }
}

// WithSyntheticNames replaces the synthetic root names.
func WithSyntheticNames(names ...string) EngineOption {
	return func(o *EngineOptions) { o.Policy = append(o.Policy, policy.WithSyntheticNames(names...)) }
}

// WithProcessedSuffix replaces the processed-name suffix.
func WithProcessedSuffix(suffix string) EngineOption {
	return func(o *EngineOptions) { o.Policy = append(o.Policy, policy.WithProcessedSuffix(suffix)) }
}

// WithOverloadMatching selects coarse or strict overload matching.
func WithOverloadMatching(m canon.OverloadMatching) EngineOption {
	return func(o *EngineOptions) { o.Matching = m }
}

// WithStaleImports enables or disables the debug import cleanup.
func WithStaleImports(enabled bool) EngineOption {
	return func(o *EngineOptions) { o.DropStaleImports = enabled }
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *EngineOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithErrorSink sets the configuration error sink.
func WithErrorSink(sink func(error)) EngineOption {
	return func(o *EngineOptions) { o.ErrorSink = sink }
}

// WithConfig applies every setting of cfg. Options given after it win.
func WithConfig(cfg *config.Config) EngineOption {
	return func(o *EngineOptions) {
		if cfg == nil {
			return
		}
		o.Except = append(o.Except, cfg.Except...)
		o.Policy = append(o.Policy,
			policy.WithMarkers(cfg.Markers...),
			policy.WithSyntheticNames(cfg.SyntheticNames...),
			policy.WithProcessedSuffix(cfg.ProcessedSuffix),
		)
		o.Matching = cfg.Matching()
		o.DropStaleImports = cfg.DropStaleImports
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Report summarizes one Run.
type Report struct {
	// Assembly is the name of the processed assembly.
	Assembly string `json:"assembly"`

	// Roots is the number of seeded roots.
	Roots int `json:"roots"`

	// Reached is the number of distinct definitions marked reachable.
	Reached int `json:"reached"`

	// Removals lists every removal in sweep order.
	Removals []sweep.Removal `json:"removals"`

	// Result holds the sweep counts.
	Result sweep.Result `json:"result"`

	// Stats holds the walk counts.
	Stats walk.Stats `json:"stats"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration_ns"`

	// ConfigErrors lists malformed configuration entries that were ignored.
	ConfigErrors []string `json:"config_errors,omitempty"`
}

// Engine runs one tree-shaking pass over one graph.
//
// Description:
//
//	The engine links the graph, compiles the exception list and indexes
//	the graph for resolution when created. Walk may be called several
//	times; each call adds to the same reachable set. Sweep mutates the
//	graph.
//
// Thread Safety: NOT safe for concurrent use. Use one Engine per graph.
type Engine struct {
	asm      *graph.Assembly
	name     string
	opts     EngineOptions
	logger   *slog.Logger
	policy   *policy.Policy
	resolver *canon.Resolver
	walker   *walk.Walker

	configErrors []string
	ran          bool
}

// NewEngine creates an engine for asm.
//
// Description:
//
//	asm is linked in place. Each valid exception entry is logged as
//	configured to keep. Each malformed entry is logged, passed to the
//	error sink, recorded in the run report and otherwise ignored.
//
// Inputs:
//
//	asm - The graph. Must not be nil.
//	opts - Functional options.
//
// Outputs:
//
//	*Engine - The engine.
//	error - ErrNilGraph when asm is nil.
func NewEngine(asm *graph.Assembly, opts ...EngineOption) (*Engine, error) {
	if asm == nil {
		return nil, ErrNilGraph
	}

	o := EngineOptions{
		DropStaleImports: true,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	graph.Link(asm)

	e := &Engine{
		asm:    asm,
		name:   asm.Name,
		opts:   o,
		logger: o.Logger.With(slog.String("assembly", asm.Name)),
	}

	exceptions := policy.ParseExceptions(o.Except, e.configError)
	for _, entry := range exceptions.Entries() {
		e.logger.Info("Configured to keep", slog.String("entry", entry))
	}

	policyOpts := append([]policy.Option{}, o.Policy...)
	policyOpts = append(policyOpts, policy.WithExceptions(exceptions))
	e.policy = policy.New(asm, policyOpts...)
	e.resolver = canon.NewResolver(asm, o.Matching)
	e.walker = walk.New(e.policy, e.resolver)
	return e, nil
}

func (e *Engine) configError(err error) {
	e.configErrors = append(e.configErrors, err.Error())
	e.logger.Warn("Ignoring malformed exception", slog.String("error", err.Error()))
	if e.opts.ErrorSink != nil {
		e.opts.ErrorSink(err)
	}
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *graph.Assembly { return e.asm }

// Policy returns the engine's policy.
func (e *Engine) Policy() *policy.Policy { return e.policy }

// ConfigErrors returns the malformed configuration entries seen so far.
func (e *Engine) ConfigErrors() []string { return e.configErrors }

// BuildRoots returns the graph's roots.
//
// Outputs:
//
//	[]graph.Symbol - The assembly, then every type or member that
//	                 classifies as Root or is protected, in graph order.
func (e *Engine) BuildRoots(ctx context.Context) []graph.Symbol {
	_, span := startSpan(ctx, "BuildRoots", e.name)
	defer span.End()

	roots := e.policy.BuildRoots()
	span.SetAttributes(attribute.Int("shake.roots", len(roots)))
	e.logger.Debug("Seeded roots", slog.Int("roots", len(roots)))
	return roots
}

// Walk marks everything reachable from roots.
//
// Outputs:
//
//	*canon.Set - The engine's reachable set. Later calls add to it.
func (e *Engine) Walk(ctx context.Context, roots []graph.Symbol) *canon.Set {
	_, span := startSpan(ctx, "Walk", e.name)
	defer span.End()

	set := e.walker.Walk(roots...)
	stats := e.walker.Stats()
	span.SetAttributes(
		attribute.Int("shake.reached", set.Len()),
		attribute.Int("shake.unresolved", stats.Unresolved),
	)
	e.logger.Debug("Walk complete",
		slog.Int("reached", set.Len()),
		slog.Int("expanded", stats.Expanded),
		slog.Int("unresolved", stats.Unresolved),
		slog.Int("weak_imports", stats.WeakImports))
	return set
}

// Sweep removes every type and member neither in reachable nor protected.
//
// Inputs:
//
//	ctx - Context for tracing.
//	reachable - Output of Walk.
//	onRemoved - Called once per removal before it happens. May be nil.
//
// Outputs:
//
//	sweep.Result - Removal counts.
func (e *Engine) Sweep(ctx context.Context, reachable *canon.Set, onRemoved func(sweep.Removal)) sweep.Result {
	_, span := startSpan(ctx, "Sweep", e.name)
	defer span.End()

	res := sweep.Sweep(e.asm, reachable, e.policy, func(r sweep.Removal) {
		e.logger.Info("Removing unused symbol",
			slog.String("kind", r.Kind.String()),
			slog.String("name", r.Name))
		if onRemoved != nil {
			onRemoved(r)
		}
	}, sweep.WithStaleImports(e.opts.DropStaleImports), sweep.WithMatching(e.opts.Matching))

	span.SetAttributes(
		attribute.Int("shake.removed", res.Total),
		attribute.Int("shake.stale_imports", res.StaleImports),
	)
	return res
}

// Run builds roots, walks and sweeps.
//
// Description:
//
//	The graph is left untouched when ctx is done before the sweep starts.
//	Once the sweep starts it runs to completion.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	onRemoved - Called once per removal. May be nil.
//
// Outputs:
//
//	*Report - The run summary.
//	error - ErrEngineUsed on a second call, or the context error.
func (e *Engine) Run(ctx context.Context, onRemoved func(sweep.Removal)) (*Report, error) {
	if e.ran {
		return nil, ErrEngineUsed
	}
	e.ran = true

	ctx, span := startSpan(ctx, "Run", e.name)
	defer span.End()
	start := time.Now()

	fail := func(err error) (*Report, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run aborted")
		recordRunMetrics(ctx, time.Since(start), 0, nil, false)
		return nil, fmt.Errorf("shaking %s: %w", e.name, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	roots := e.BuildRoots(ctx)
	set := e.Walk(ctx, roots)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	report := &Report{
		Assembly:     e.name,
		Roots:        len(roots),
		Reached:      set.Len(),
		ConfigErrors: e.configErrors,
	}
	report.Result = e.Sweep(ctx, set, func(r sweep.Removal) {
		report.Removals = append(report.Removals, r)
		if onRemoved != nil {
			onRemoved(r)
		}
	})
	report.Stats = e.walker.Stats()
	report.Duration = time.Since(start)

	recordRunMetrics(ctx, report.Duration, report.Reached, removedByKind(report.Result), true)

	e.logger.Info("Shake complete",
		slog.Int("roots", report.Roots),
		slog.Int("reached", report.Reached),
		slog.Int("removed", report.Result.Total),
		slog.Int("stale_imports", report.Result.StaleImports),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// removedByKind keys sweep counts by kind name.
func removedByKind(res sweep.Result) map[string]int {
	if len(res.Removed) == 0 {
		return nil
	}
	out := make(map[string]int, len(res.Removed))
	for kind, n := range res.Removed {
		out[kind.String()] = n
	}
	return out
}
