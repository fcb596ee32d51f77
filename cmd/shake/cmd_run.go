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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/shake/pkg/ux"
	"github.com/AleutianAI/shake/services/shake"
	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/config"
	"github.com/AleutianAI/shake/services/shake/graphdoc"
)

// errOutputCollision indicates two outputs, or an output and an input,
// share a path.
var errOutputCollision = errors.New("output path collision")

var (
	runOutDir        string
	runExcept        []string
	runMatching      string
	runNoStaleImport bool
	runJobs          int
	runJSON          bool
	runOutputMode    string
	runListRemovals  bool
)

func registerRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&runOutDir, "out", "o", "", "directory for shaken graphs (default: report only)")
	f.StringArrayVarP(&runExcept, "except", "e", nil, "names to keep even when unreachable (repeatable)")
	f.StringVar(&runMatching, "matching", "", "overload matching: coarse or strict (default from config)")
	f.BoolVar(&runNoStaleImport, "keep-stale-imports", false, "keep debug imports of removed types")
	f.IntVarP(&runJobs, "jobs", "j", runtime.GOMAXPROCS(0), "graphs processed in parallel")
	f.BoolVar(&runJSON, "json", false, "print reports as JSON")
	f.StringVar(&runOutputMode, "output", "auto", "report style: auto, styled or plain")
	f.BoolVarP(&runListRemovals, "list", "l", false, "list every removed symbol")
}

// runSettings holds the per-invocation options of the run command.
type runSettings struct {
	OutDir string
	Jobs   int
	Engine []shake.EngineOption
}

// fileResult is the outcome for one input graph.
type fileResult struct {
	File   string        `json:"file"`
	Output string        `json:"output,omitempty"`
	Report *shake.Report `json:"report"`
}

func runShake(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}

	settings := runSettings{OutDir: runOutDir, Jobs: runJobs}
	settings.Engine, err = engineOptions(cmd, cfg)
	if err != nil {
		return err
	}

	results, err := shakeFiles(ctx, args, settings, logger.Slog())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		return writeJSON(out, results)
	}
	mode, ok := ux.ParseMode(runOutputMode)
	if !ok {
		mode = ux.DetectMode(os.Stdout)
	}
	printResults(ux.NewPrinter(out, mode), results, runListRemovals)
	return nil
}

// engineOptions builds engine options from the config and the flags that
// were set explicitly.
func engineOptions(cmd *cobra.Command, cfg *config.Config) ([]shake.EngineOption, error) {
	opts := []shake.EngineOption{
		shake.WithConfig(cfg),
		shake.WithExceptions(runExcept...),
	}
	if cmd.Flags().Changed("matching") {
		m, err := canon.ParseOverloadMatching(runMatching)
		if err != nil {
			return nil, err
		}
		opts = append(opts, shake.WithOverloadMatching(m))
	}
	if runNoStaleImport {
		opts = append(opts, shake.WithStaleImports(false))
	}
	return opts, nil
}

// shakeFiles runs one engine per file, up to s.Jobs at a time.
//
// Description:
//
//	Each file is decoded, shaken and, when s.OutDir is set, written to
//	s.OutDir under its base name in the same encoding. Output paths are
//	checked for collisions before any work starts. The first failure
//	cancels the remaining files.
//
// Inputs:
//
//	ctx - Cancels pending files.
//	files - Graph document paths.
//	s - Output directory, parallelism and engine options.
//	log - Logger for per-file progress.
//
// Outputs:
//
//	[]fileResult - One result per file, in input order.
//	error - The first decode, engine or write failure.
func shakeFiles(ctx context.Context, files []string, s runSettings, log *slog.Logger) ([]fileResult, error) {
	outputs, err := outputPaths(files, s.OutDir)
	if err != nil {
		return nil, err
	}
	if s.OutDir != "" {
		if err := os.MkdirAll(s.OutDir, 0750); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if s.Jobs > 0 {
		g.SetLimit(s.Jobs)
	}
	for i, file := range files {
		g.Go(func() error {
			res, err := shakeFile(gctx, file, outputs[i], s.Engine, log)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func shakeFile(ctx context.Context, file, output string, opts []shake.EngineOption, log *slog.Logger) (fileResult, error) {
	if err := ctx.Err(); err != nil {
		return fileResult{}, err
	}
	asm, err := graphdoc.ReadFile(file)
	if err != nil {
		return fileResult{}, err
	}

	log = log.With(slog.String("file", file))
	engineOpts := make([]shake.EngineOption, 0, len(opts)+1)
	engineOpts = append(engineOpts, opts...)
	engineOpts = append(engineOpts, shake.WithLogger(log))
	engine, err := shake.NewEngine(asm, engineOpts...)
	if err != nil {
		return fileResult{}, err
	}
	report, err := engine.Run(ctx, nil)
	if err != nil {
		return fileResult{}, err
	}

	if output != "" {
		if err := graphdoc.WriteFile(output, engine.Graph()); err != nil {
			return fileResult{}, err
		}
		log.Info("Wrote shaken graph", slog.String("output", output))
	}
	return fileResult{File: file, Output: output, Report: report}, nil
}

// outputPaths maps each input to its output path, or "" without outDir.
func outputPaths(files []string, outDir string) ([]string, error) {
	out := make([]string, len(files))
	if outDir == "" {
		return out, nil
	}

	inputs := make(map[string]bool, len(files))
	for _, f := range files {
		if abs, err := filepath.Abs(f); err == nil {
			inputs[abs] = true
		}
	}
	seen := make(map[string]string, len(files))
	for i, f := range files {
		p := filepath.Join(outDir, filepath.Base(f))
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		if prev, ok := seen[abs]; ok {
			return nil, fmt.Errorf("%w: %s and %s both write %s", errOutputCollision, prev, f, p)
		}
		if inputs[abs] {
			return nil, fmt.Errorf("%w: %s would overwrite an input", errOutputCollision, p)
		}
		seen[abs] = f
		out[i] = p
	}
	return out, nil
}

func writeJSON(w io.Writer, results []fileResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// printResults renders one summary table per file.
func printResults(p *ux.Printer, results []fileResult, list bool) {
	p.Title("Shake")
	for _, res := range results {
		r := res.Report
		rows := []ux.Row{
			{Label: "File", Value: res.File},
			{Label: "Roots", Value: strconv.Itoa(r.Roots)},
			{Label: "Reached", Value: strconv.Itoa(r.Reached)},
			{Label: "Kept", Value: strconv.Itoa(r.Result.Kept)},
			{Label: "Removed", Value: strconv.Itoa(r.Result.Total)},
			{Label: "Stale imports", Value: strconv.Itoa(r.Result.StaleImports)},
			{Label: "Duration", Value: r.Duration.Round(time.Microsecond).String()},
		}
		if res.Output != "" {
			rows = append(rows, ux.Row{Label: "Output", Value: res.Output})
		}
		p.Table(r.Assembly, rows)

		for _, msg := range r.ConfigErrors {
			p.Warning(msg)
		}
		if list {
			for _, rm := range r.Removals {
				p.Item(rm.Kind.String() + " " + rm.Name)
			}
		}
	}
	p.Success(fmt.Sprintf("%d graph(s) shaken", len(results)))
}
