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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/config"
	"github.com/AleutianAI/shake/services/shake/graphdoc"
	"github.com/AleutianAI/shake/services/shake/journal"
	"github.com/AleutianAI/shake/services/shake/telemetry"
)

// Service runs shake requests for the HTTP API.
//
// Description:
//
//	Each request decodes its own graph and runs its own Engine, so
//	requests never share mutable state. The configuration can be swapped
//	at runtime; a request uses the configuration current when it starts.
//	When a journal is attached every run, failed or not, is recorded.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	cfg     atomic.Pointer[config.Config]
	journal *journal.Journal
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption is a functional option for NewService.
type ServiceOption func(*Service)

// WithJournal attaches a run journal. The service does not close it.
func WithJournal(j *journal.Journal) ServiceOption {
	return func(s *Service) { s.journal = j }
}

// WithServiceLogger sets the service logger. Default slog.Default().
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a service using cfg. A nil cfg uses config.Default().
func NewService(cfg *config.Config, opts ...ServiceOption) *Service {
	s := &Service{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.SetConfig(cfg)
	return s
}

// Config returns the current configuration. Callers must not modify it.
func (s *Service) Config() *config.Config {
	return s.cfg.Load()
}

// SetConfig replaces the configuration for requests that start afterwards.
// A nil cfg restores config.Default().
func (s *Service) SetConfig(cfg *config.Config) {
	if cfg == nil {
		cfg = config.Default()
	}
	s.cfg.Store(cfg)
	s.logger.Info("Service configuration applied",
		slog.String("overload_matching", cfg.OverloadMatching),
		slog.Int("except", len(cfg.Except)),
		slog.Int("markers", len(cfg.Markers)))
}

// HasJournal reports whether runs are recorded.
func (s *Service) HasJournal() bool {
	return s.journal != nil
}

// Shake decodes the request graph, runs an engine over it and records the
// outcome.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	req - The request. Graph must hold a graph document.
//
// Outputs:
//
//	*RunResponse - The run ID, report and, if requested, the shaken graph.
//	error - ErrInvalidRequest wrapping a graphdoc error, or a run error.
func (s *Service) Shake(ctx context.Context, req RunRequest) (*RunResponse, error) {
	cfg := s.Config()
	runID := uuid.NewString()
	started := s.now()
	logger := telemetry.LoggerWithTrace(ctx, s.logger).With(slog.String("run_id", runID))

	data, err := documentBytes(req.Graph)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	asm, err := graphdoc.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	opts := []EngineOption{WithConfig(cfg), WithLogger(logger), WithExceptions(req.Except...)}
	if req.OverloadMatching != "" {
		m, err := canon.ParseOverloadMatching(req.OverloadMatching)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		opts = append(opts, WithOverloadMatching(m))
	}
	if req.DropStaleImports != nil {
		opts = append(opts, WithStaleImports(*req.DropStaleImports))
	}

	engine, err := NewEngine(asm, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	report, runErr := engine.Run(ctx, nil)
	s.record(ctx, logger, runID, req.Source, asm.Name, started, report, runErr)
	if runErr != nil {
		return nil, runErr
	}

	resp := &RunResponse{RunID: runID, Report: report}
	if req.ReturnGraph {
		resp.Graph = graphdoc.ToDocument(asm)
	}
	return resp, nil
}

// record writes the run to the journal. Journal failures are logged, never
// returned: a run that succeeded stays successful.
func (s *Service) record(ctx context.Context, logger *slog.Logger, id, source, assembly string, started time.Time, report *Report, runErr error) {
	if s.journal == nil {
		return
	}
	rec := journal.RunRecord{
		ID:        id,
		Assembly:  assembly,
		Source:    source,
		StartedAt: started,
		Duration:  int64(s.now().Sub(started)),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if report != nil {
		rec.Roots = report.Roots
		rec.Reached = report.Reached
		rec.Total = report.Result.Total
		rec.StaleImports = report.Result.StaleImports
		rec.Removed = removedByKind(report.Result)
		rec.Removals = report.Removals
		rec.ConfigErrors = report.ConfigErrors
	}

	// The request context may already be cancelled; the record is still
	// written.
	ctx = context.WithoutCancel(ctx)
	if err := s.journal.Record(ctx, rec); err != nil {
		logger.Warn("Failed to record run", slog.String("error", err.Error()))
		return
	}
	if keep := s.Config().Journal.MaxRuns; keep > 0 {
		if _, err := s.journal.Prune(ctx, keep); err != nil {
			logger.Warn("Failed to prune run journal", slog.String("error", err.Error()))
		}
	}
}

// Runs lists recorded runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]journal.RunRecord, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.List(ctx, limit)
}

// RunRecord loads one recorded run.
func (s *Service) RunRecord(ctx context.Context, id string) (*journal.RunRecord, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	rec, err := s.journal.Get(ctx, id)
	if errors.Is(err, journal.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec, err
}

// documentBytes returns the graph document of a request. A JSON string
// holds a document in its YAML form; anything else is the JSON form.
func documentBytes(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return nil, err
	}
	return []byte(text), nil
}
