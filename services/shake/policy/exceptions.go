// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// =============================================================================
// EXCEPTIONS
// =============================================================================

// patternKind identifies how an exception entry matches.
type patternKind int

const (
	patternExact patternKind = iota
	patternGlob
	patternRegexp
)

type pattern struct {
	raw  string
	kind patternKind
	re   *regexp.Regexp
}

func (p pattern) match(name string) bool {
	switch p.kind {
	case patternGlob:
		ok, _ := path.Match(p.raw, name)
		return ok
	case patternRegexp:
		return p.re.MatchString(name)
	default:
		return p.raw == name
	}
}

// Exceptions is the compiled, ordered list of names the user asked to keep.
//
// Description:
//
//	Each entry is one of:
//
//	  - a plain string, matched exactly
//	  - a glob pattern containing *, ? or [...], matched with path.Match
//	  - a regular expression written "re:EXPR" or "/EXPR/"
//
//	Entries that fail to compile are reported to the error sink given to
//	ParseExceptions and dropped, so they never match.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Exceptions struct {
	patterns []pattern
}

// ParseExceptions compiles exception entries.
//
// Description:
//
//	Every value is split on whitespace, so a single configuration value may
//	carry several entries. Entries are trimmed and empty entries are
//	skipped. Order is preserved.
//
// Inputs:
//
//	values - Raw configuration values.
//	sink - Receives one error wrapping ErrInvalidPattern per malformed
//	       entry. May be nil.
//
// Outputs:
//
//	*Exceptions - The compiled list. Never nil.
func ParseExceptions(values []string, sink func(error)) *Exceptions {
	e := &Exceptions{}
	for _, value := range values {
		for _, entry := range strings.Fields(value) {
			p, err := compilePattern(entry)
			if err != nil {
				if sink != nil {
					sink(err)
				}
				continue
			}
			e.patterns = append(e.patterns, p)
		}
	}
	return e
}

func compilePattern(entry string) (pattern, error) {
	var expr string
	switch {
	case strings.HasPrefix(entry, "re:"):
		expr = strings.TrimPrefix(entry, "re:")
	case len(entry) > 2 && strings.HasPrefix(entry, "/") && strings.HasSuffix(entry, "/"):
		expr = entry[1 : len(entry)-1]
	case strings.ContainsAny(entry, "*?["):
		if _, err := path.Match(entry, ""); err != nil {
			return pattern{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, entry, err)
		}
		return pattern{raw: entry, kind: patternGlob}, nil
	default:
		return pattern{raw: entry, kind: patternExact}, nil
	}

	if expr == "" {
		return pattern{}, fmt.Errorf("%w: %q: empty expression", ErrInvalidPattern, entry)
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return pattern{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, entry, err)
	}
	return pattern{raw: entry, kind: patternRegexp, re: re}, nil
}

// Match reports whether any non-empty candidate name matches any entry.
func (e *Exceptions) Match(names ...string) bool {
	if e == nil {
		return false
	}
	for _, p := range e.patterns {
		for _, name := range names {
			if name != "" && p.match(name) {
				return true
			}
		}
	}
	return false
}

// Entries returns the valid entries in configuration order.
func (e *Exceptions) Entries() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.patterns))
	for i, p := range e.patterns {
		out[i] = p.raw
	}
	return out
}

// Len returns the number of valid entries.
func (e *Exceptions) Len() int {
	if e == nil {
		return 0
	}
	return len(e.patterns)
}
