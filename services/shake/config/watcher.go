// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk.
//
// Thread Safety: Run must be called from one goroutine. Close is safe to call
// concurrently with Run.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
}

// NewWatcher creates a watcher for path.
//
// Description:
//
//	The parent directory is watched so editors that replace the file by
//	renaming are still observed. onChange receives every configuration
//	that loads and validates; failed reloads are logged and skipped.
//
// Inputs:
//
//	path - The config file.
//	onChange - Called with each reloaded configuration. Must not be nil.
//
// Outputs:
//
//	*Watcher - The watcher. Call Run to start it.
//	error - Non-nil if the directory cannot be watched.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(absPath), err)
	}
	return &Watcher{path: absPath, watcher: fw, onChange: onChange}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error",
				slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	cfg, err := Load(ctx, w.path)
	if err != nil {
		slog.Warn("Config reload failed, keeping previous config",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("Config reloaded",
		slog.String("path", w.path),
		slog.Int("except_count", len(cfg.Except)))
	w.onChange(cfg)
}
