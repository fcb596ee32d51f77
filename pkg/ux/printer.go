// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// styles holds the lipgloss styles bound to one Printer's renderer.
type styles struct {
	title   lipgloss.Style
	bold    lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	box     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(ColorTealBright),
		bold:    r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(ColorSlate),
		success: r.NewStyle().Foreground(ColorSuccess),
		warning: r.NewStyle().Foreground(ColorWarning),
		err:     r.NewStyle().Foreground(ColorError),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
	}
}

// Row is one label/value pair of a Table.
type Row struct {
	Label string
	Value string
}

// Printer writes command output in one Mode.
//
// Thread Safety: Safe for concurrent use; each call writes whole lines
// under a mutex.
type Printer struct {
	w      io.Writer
	mode   Mode
	styles styles
	mu     sync.Mutex
}

// NewPrinter creates a Printer writing to w. The color profile is detected
// from w, so styled output to a non-terminal keeps layout but drops color.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{
		w:      w,
		mode:   mode,
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}

// Title prints a heading. Plain mode prints nothing.
func (p *Printer) Title(text string) {
	if p.mode == ModePlain {
		return
	}
	p.println(p.styles.title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.mode == ModePlain {
		p.println("OK: " + text)
		return
	}
	p.println(p.styles.success.Render(string(IconSuccess)) + " " + p.styles.success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.mode == ModePlain {
		p.println("WARN: " + text)
		return
	}
	p.println(p.styles.warning.Render(string(IconWarning)) + " " + p.styles.warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if p.mode == ModePlain {
		p.println("ERROR: " + text)
		return
	}
	p.println(p.styles.err.Render(string(IconError)) + " " + p.styles.err.Render(text))
}

// Item prints one list entry.
func (p *Printer) Item(text string) {
	if p.mode == ModePlain {
		p.println(text)
		return
	}
	p.println("  " + p.styles.muted.Render(string(IconBullet)) + " " + text)
}

// Table prints rows with aligned labels, framed by a box titled title in
// styled mode. Plain mode prints "title.label=value" lines with spaces in
// labels replaced by underscores.
func (p *Printer) Table(title string, rows []Row) {
	if p.mode == ModePlain {
		var sb strings.Builder
		for i, r := range rows {
			if i > 0 {
				sb.WriteByte('\n')
			}
			key := strings.ReplaceAll(strings.ToLower(r.Label), " ", "_")
			if title != "" {
				key = title + "." + key
			}
			sb.WriteString(key + "=" + r.Value)
		}
		if len(rows) > 0 {
			p.println(sb.String())
		}
		return
	}

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Label))
	}
	lines := make([]string, 0, len(rows)+1)
	if title != "" {
		lines = append(lines, p.styles.title.Render(title))
	}
	for _, r := range rows {
		label := r.Label + strings.Repeat(" ", width-lipgloss.Width(r.Label))
		lines = append(lines, p.styles.muted.Render(label)+"  "+p.styles.bold.Render(r.Value))
	}
	p.println(p.styles.box.Render(strings.Join(lines, "\n")))
}
