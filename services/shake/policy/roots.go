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

import "github.com/AleutianAI/shake/services/shake/graph"

// BuildRoots returns the initial root set of the bound assembly.
//
// Description:
//
//	The assembly itself is always first. Every type and member is then
//	visited in declaration order (type, fields, methods, properties,
//	events, nested types) and appended when it classifies as Root or is
//	protected. Anchored symbols are not seeded: the walker reaches them
//	through their declaring type. Non-root types are still searched, so a
//	marked member of a private type is found.
//
// Outputs:
//
//	[]graph.Symbol - Roots in deterministic order. Empty for a nil
//	                 assembly.
func (p *Policy) BuildRoots() []graph.Symbol {
	if p.asm == nil {
		return nil
	}
	roots := []graph.Symbol{p.asm}
	for _, mod := range p.asm.Modules {
		if mod == nil {
			continue
		}
		for _, t := range mod.Types {
			roots = p.appendTypeRoots(roots, t)
		}
	}
	return roots
}

func (p *Policy) appendTypeRoots(roots []graph.Symbol, t *graph.Type) []graph.Symbol {
	if t == nil {
		return roots
	}
	roots = p.appendIfRoot(roots, t)
	for _, f := range t.Fields {
		if f != nil {
			roots = p.appendIfRoot(roots, f)
		}
	}
	for _, m := range t.Methods {
		if m != nil {
			roots = p.appendIfRoot(roots, m)
		}
	}
	for _, pr := range t.Properties {
		if pr != nil {
			roots = p.appendIfRoot(roots, pr)
		}
	}
	for _, e := range t.Events {
		if e != nil {
			roots = p.appendIfRoot(roots, e)
		}
	}
	for _, nt := range t.NestedTypes {
		roots = p.appendTypeRoots(roots, nt)
	}
	return roots
}

func (p *Policy) appendIfRoot(roots []graph.Symbol, s graph.Symbol) []graph.Symbol {
	if p.Classify(s) == Root || p.IsProtected(s) {
		return append(roots, s)
	}
	return roots
}
