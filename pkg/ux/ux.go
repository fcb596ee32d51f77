// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders command output for terminals and scripts.
//
// A Printer writes either styled text (colors, icons, boxes) or plain
// line-oriented text suitable for parsing. DetectMode picks styled output
// only when the destination is a terminal and NO_COLOR is unset.
package ux

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Mode selects how a Printer renders.
type Mode int

const (
	// ModeStyled enables colors, icons and boxes.
	ModeStyled Mode = iota

	// ModePlain outputs plain text suitable for scripting.
	ModePlain
)

// String returns "styled" or "plain".
func (m Mode) String() string {
	if m == ModePlain {
		return "plain"
	}
	return "styled"
}

// ParseMode converts a flag value to a Mode. "auto" and "" report ok=false
// so callers fall back to DetectMode.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "styled", "color", "full":
		return ModeStyled, true
	case "plain", "machine", "quiet":
		return ModePlain, true
	default:
		return ModePlain, false
	}
}

// DetectMode returns ModeStyled when f is a terminal and NO_COLOR is unset.
func DetectMode(f *os.File) Mode {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	fd := f.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeStyled
	}
	return ModePlain
}

// =============================================================================
// Palette
// =============================================================================

var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)
