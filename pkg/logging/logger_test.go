// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" INFO ", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"Warning", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := ParseLevel("loud")
	assert.ErrorIs(t, err, ErrUnknownLevel)
	assert.Equal(t, LevelInfo, got)
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(42).toSlogLevel())
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Writer: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("visible", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "k=v")
	assert.Contains(t, out, "service="+DefaultService)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, JSON: true, Service: "svc", Writer: &buf})
	defer logger.Close()

	logger.Warn("careful", "n", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "careful", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, float64(3), rec["n"])
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Writer: &buf})
	defer logger.Close()

	logger.Error("dropped")
	assert.Empty(t, buf.String())
	assert.NotNil(t, logger.Slog())
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: dir, Writer: &buf})

	logger.Info("to both")
	path := logger.FilePath()
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), DefaultService+"_"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to both"`)
	assert.Contains(t, buf.String(), "to both")
}

func TestNew_WithLogDir_QuietFileOnly(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelDebug, LogDir: dir, Quiet: true})
	logger.Debug("file only")
	path := logger.FilePath()
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file only")
}

func TestNew_WithLogDir_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Quiet: true})
	defer logger.Close()
	assert.Empty(t, logger.FilePath())
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Writer: &buf})
	defer logger.Close()

	child := logger.With("run_id", "r1")
	child.Info("scoped")
	logger.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "run_id=r1")
	assert.NotContains(t, lines[1], "run_id")
}

func TestLogger_Close_Twice(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
	assert.Empty(t, logger.FilePath())
}

func TestLogger_ConcurrentUse(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.With("worker", n).Info("tick", "j", j)
			}
		}(i)
	}
	wg.Wait()
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()
	assert.Equal(t, LevelInfo, logger.config.Level)
	assert.Equal(t, DefaultService, logger.config.Service)
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	ctx := context.Background()

	assert.True(t, h.Enabled(ctx, slog.LevelDebug))
	logger := slog.New(h).WithGroup("g").With("a", 1)
	logger.Info("info")
	logger.Warn("warn")

	assert.Contains(t, debugBuf.String(), "info")
	assert.Contains(t, debugBuf.String(), "warn")
	assert.Contains(t, debugBuf.String(), "g.a=1")
	assert.NotContains(t, warnBuf.String(), "info")
	assert.Contains(t, warnBuf.String(), "warn")
}

func TestMultiHandler_NoneEnabled(t *testing.T) {
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, home, expandPath("~"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "~other/x", expandPath("~other/x"))
	assert.Equal(t, "", expandPath(""))
}
