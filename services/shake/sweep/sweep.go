// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sweep removes unreached symbols from a graph.
package sweep

import (
	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/graph"
)

// Protector reports symbols the user asked to keep.
type Protector interface {
	IsProtected(s graph.Symbol) bool
}

// Removal describes one removed symbol.
type Removal struct {
	// Kind is the symbol kind.
	Kind graph.Kind `json:"kind"`

	// Name is the fully qualified display name.
	Name string `json:"name"`

	// Key is the structural key.
	Key string `json:"key"`

	// Parent is the display name of the container it was removed from.
	Parent string `json:"parent,omitempty"`
}

// Result summarizes a sweep.
type Result struct {
	// Removed counts removals per kind. Cascaded children are not counted.
	Removed map[graph.Kind]int `json:"removed"`

	// Total is the number of removals reported.
	Total int `json:"total"`

	// Kept is the number of members examined and kept.
	Kept int `json:"kept"`

	// StaleImports is the number of debug import targets dropped because
	// the type they imported was removed.
	StaleImports int `json:"stale_imports"`
}

// Options configures a sweep.
type Options struct {
	// DropStaleImports enables the import cleanup pass. Default true.
	DropStaleImports bool

	// Matching is used by the resolver of the import cleanup pass.
	Matching canon.OverloadMatching
}

// Option is a functional option for Sweep.
type Option func(*Options)

// WithStaleImports enables or disables the import cleanup pass.
func WithStaleImports(enabled bool) Option {
	return func(o *Options) { o.DropStaleImports = enabled }
}

// WithMatching sets the overload matching of the import cleanup resolver.
func WithMatching(m canon.OverloadMatching) Option {
	return func(o *Options) { o.Matching = m }
}

// Sweep removes every type and member of asm that is neither reachable nor
// protected.
//
// Description:
//
//	Each module's top-level types are examined, then recursively the
//	events, fields, methods, properties and nested types of every kept
//	type. A member is kept when reachable.Contains or
//	protector.IsProtected reports true. Otherwise onRemoved is called and
//	the member is removed from its owning slice; its children go with it
//	and are neither examined nor reported. nil entries are dropped without
//	a report.
//
//	Afterwards, debug import targets whose type resolved to a definition
//	of asm that is no longer attached are dropped from their scopes.
//	Targets naming external or unknown types are left alone.
//
// Inputs:
//
//	asm - The graph to mutate. nil is a no-op.
//	reachable - The walker's output. nil means nothing is reachable.
//	protector - Protection predicate. May be nil.
//	onRemoved - Called once per removal, before the removal. May be nil.
//	opts - Functional options.
//
// Outputs:
//
//	Result - Counts for the pass.
//
// Thread Safety: Mutates asm; the caller must hold it exclusively.
func Sweep(asm *graph.Assembly, reachable *canon.Set, protector Protector, onRemoved func(Removal), opts ...Option) Result {
	o := Options{DropStaleImports: true}
	for _, opt := range opts {
		opt(&o)
	}

	res := Result{Removed: make(map[graph.Kind]int)}
	if asm == nil {
		return res
	}

	// The resolver indexes the graph before anything is removed, so
	// references to removed types still resolve and can be detected.
	var resolver *canon.Resolver
	if o.DropStaleImports {
		resolver = canon.NewResolver(asm, o.Matching)
	}

	s := &sweeper{reachable: reachable, protector: protector, onRemoved: onRemoved, res: &res}
	for _, mod := range asm.Modules {
		if mod == nil {
			continue
		}
		mod.Types = sweepSlice(s, mod.Types, graph.FullName(mod))
		for _, t := range mod.Types {
			s.sweepType(t)
		}
	}

	if resolver != nil {
		res.StaleImports = dropStaleImports(asm, resolver)
	}
	return res
}

type sweeper struct {
	reachable *canon.Set
	protector Protector
	onRemoved func(Removal)
	res       *Result
}

func (s *sweeper) keep(sym graph.Symbol) bool {
	if s.reachable != nil && s.reachable.Contains(sym) {
		return true
	}
	return s.protector != nil && s.protector.IsProtected(sym)
}

func (s *sweeper) remove(sym graph.Symbol, parent string) {
	s.res.Removed[sym.Kind()]++
	s.res.Total++
	if s.onRemoved == nil {
		return
	}
	var key string
	if s.reachable != nil {
		key = s.reachable.Key(sym)
	} else {
		key = canon.Key(sym)
	}
	s.onRemoved(Removal{
		Kind:   sym.Kind(),
		Name:   graph.FullName(sym),
		Key:    key,
		Parent: parent,
	})
}

func (s *sweeper) sweepType(t *graph.Type) {
	parent := graph.FullName(t)
	t.Events = sweepSlice(s, t.Events, parent)
	t.Fields = sweepSlice(s, t.Fields, parent)
	t.Methods = sweepSlice(s, t.Methods, parent)
	t.Properties = sweepSlice(s, t.Properties, parent)
	t.NestedTypes = sweepSlice(s, t.NestedTypes, parent)
	for _, nt := range t.NestedTypes {
		s.sweepType(nt)
	}
}

// sweepSlice filters list in place, preserving order.
func sweepSlice[T interface {
	comparable
	graph.Symbol
}](s *sweeper, list []T, parent string) []T {
	var zero T
	out := list[:0]
	for _, m := range list {
		if m == zero {
			continue
		}
		if s.keep(m) {
			s.res.Kept++
			out = append(out, m)
			continue
		}
		s.remove(m, parent)
	}
	clear(list[len(out):])
	return out
}

// dropStaleImports removes import targets whose type resolves to a removed
// definition. It returns the number dropped.
func dropStaleImports(asm *graph.Assembly, r *canon.Resolver) int {
	dropped := 0
	for _, mod := range asm.Modules {
		if mod == nil {
			continue
		}
		for _, is := range mod.Imports {
			if is == nil {
				continue
			}
			kept := is.Targets[:0]
			for _, it := range is.Targets {
				if it == nil {
					continue
				}
				if stale(r, it) {
					dropped++
					continue
				}
				kept = append(kept, it)
			}
			clear(is.Targets[len(kept):])
			is.Targets = kept
		}
	}
	return dropped
}

func stale(r *canon.Resolver, it *graph.ImportTarget) bool {
	if graph.IsNil(it.Type) {
		return false
	}
	t := r.ResolveType(it.Type)
	return t != nil && !graph.Attached(t)
}
