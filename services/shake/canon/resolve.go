// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package canon

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/shake/services/shake/graph"
)

// =============================================================================
// OVERLOAD MATCHING
// =============================================================================

// OverloadMatching controls how method references select candidates.
type OverloadMatching int

const (
	// OverloadCoarse matches name, parameter count and generic arity.
	// Overloads differing only in parameter types are all selected.
	OverloadCoarse OverloadMatching = iota

	// OverloadStrict additionally compares canonical parameter type names
	// and falls back to coarse matching when nothing matches exactly.
	OverloadStrict
)

// String returns the string representation of the OverloadMatching.
func (m OverloadMatching) String() string {
	if m == OverloadStrict {
		return "strict"
	}
	return "coarse"
}

// ParseOverloadMatching converts "coarse" or "strict" to an
// OverloadMatching. Empty selects coarse.
func ParseOverloadMatching(s string) (OverloadMatching, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "coarse":
		return OverloadCoarse, nil
	case "strict":
		return OverloadStrict, nil
	default:
		return OverloadCoarse, fmt.Errorf("%w: %q", ErrUnknownMatching, s)
	}
}

// =============================================================================
// RESOLVER
// =============================================================================

// maxChain bounds walks along declaring, base and element chains so a
// malformed cyclic graph cannot loop forever.
const maxChain = 256

type typeIndexKey struct {
	namespace string
	name      string
	arity     int
}

type nestedIndexKey struct {
	outer *graph.Type
	name  string
	arity int
}

// Resolver maps references to the definitions of one assembly.
//
// Description:
//
//	Type references resolve through their declaring chain to a nested type,
//	or to a top-level type of any module of the assembly matched by
//	(namespace, name, arity). Type specs resolve to their element; the
//	arguments are not part of the result. References scoped to another
//	assembly, and anything that does not match, resolve to nothing.
//
//	The type indexes, top-level and nested, are built once at
//	construction. Resolution keeps working after a sweep removes types:
//	callers check graph.Attached on the result to detect removed
//	definitions.
//
// Thread Safety: NOT safe for concurrent use.
type Resolver struct {
	asm      *graph.Assembly
	matching OverloadMatching
	topLevel map[typeIndexKey][]*graph.Type
	nested   map[nestedIndexKey]*graph.Type

	methods map[graph.Symbol][]*graph.Method
}

// NewResolver indexes asm for resolution.
//
// Inputs:
//
//	asm - The linked assembly. nil yields a resolver that resolves only
//	      definitions to themselves.
//	matching - Overload matching mode.
//
// Outputs:
//
//	*Resolver - Never nil.
func NewResolver(asm *graph.Assembly, matching OverloadMatching) *Resolver {
	r := &Resolver{
		asm:      asm,
		matching: matching,
		topLevel: make(map[typeIndexKey][]*graph.Type),
		nested:   make(map[nestedIndexKey]*graph.Type),
		methods:  make(map[graph.Symbol][]*graph.Method),
	}
	if asm == nil {
		return r
	}
	for _, mod := range asm.Modules {
		if mod == nil {
			continue
		}
		for _, t := range mod.Types {
			if t == nil {
				continue
			}
			k := typeIndexKey{t.Namespace, t.Name, t.Arity()}
			r.topLevel[k] = append(r.topLevel[k], t)
			r.indexNested(t, 0)
		}
	}
	return r
}

func (r *Resolver) indexNested(outer *graph.Type, depth int) {
	if depth > maxChain {
		return
	}
	for _, nt := range outer.NestedTypes {
		if nt == nil {
			continue
		}
		k := nestedIndexKey{outer, nt.Name, nt.Arity()}
		if _, ok := r.nested[k]; !ok {
			r.nested[k] = nt
		}
		r.indexNested(nt, depth+1)
	}
}

// Matching returns the overload matching mode.
func (r *Resolver) Matching() OverloadMatching { return r.matching }

// IsLocal reports whether ref names a type of the resolver's assembly, as
// opposed to an external assembly. Generic parameters are not local.
func (r *Resolver) IsLocal(ref graph.TypeRef) bool {
	for i := 0; i < maxChain && !graph.IsNil(ref); i++ {
		switch v := ref.(type) {
		case *graph.Type:
			return true
		case *graph.TypeReference:
			for v.DeclaringType != nil && i < maxChain {
				v = v.DeclaringType
				i++
			}
			return v.Scope == "" || (r.asm != nil && v.Scope == r.asm.Name)
		case *graph.TypeSpec:
			ref = v.Element
		default:
			return false
		}
	}
	return false
}

// ResolveType returns the type definition ref denotes, or nil.
func (r *Resolver) ResolveType(ref graph.TypeRef) *graph.Type {
	for i := 0; i < maxChain && !graph.IsNil(ref); i++ {
		switch v := ref.(type) {
		case *graph.Type:
			return v
		case *graph.TypeSpec:
			ref = v.Element
		case *graph.TypeReference:
			return r.resolveReference(v, 0)
		default:
			return nil
		}
	}
	return nil
}

func (r *Resolver) resolveReference(ref *graph.TypeReference, depth int) *graph.Type {
	if depth > maxChain {
		return nil
	}
	if ref.DeclaringType != nil {
		outer := r.resolveReference(ref.DeclaringType, depth+1)
		if outer == nil {
			return nil
		}
		return r.nested[nestedIndexKey{outer, ref.Name, ref.GenericArity}]
	}
	if r.asm == nil || (ref.Scope != "" && ref.Scope != r.asm.Name) {
		return nil
	}
	candidates := r.topLevel[typeIndexKey{ref.Namespace, ref.Name, ref.GenericArity}]
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// Exists reports whether ref resolves to a definition still attached to
// the graph.
func (r *Resolver) Exists(ref graph.TypeRef) bool {
	t := r.ResolveType(ref)
	return t != nil && graph.Attached(t)
}

// ResolveMethods returns every method definition ref may denote.
//
// Description:
//
//	Generic method instances reduce to their element. A method reference
//	is looked up on its resolved declaring type, then along the base type
//	chain; the first type with a match supplies the candidates. Results
//	are memoized per reference object.
func (r *Resolver) ResolveMethods(ref graph.MethodRef) []*graph.Method {
	for i := 0; i < maxChain && !graph.IsNil(ref); i++ {
		switch v := ref.(type) {
		case *graph.Method:
			return []*graph.Method{v}
		case *graph.GenericMethodInstance:
			ref = v.Element
		case *graph.MethodReference:
			if cached, ok := r.methods[v]; ok {
				return cached
			}
			found := r.lookupMethods(v)
			r.methods[v] = found
			return found
		default:
			return nil
		}
	}
	return nil
}

func (r *Resolver) lookupMethods(ref *graph.MethodReference) []*graph.Method {
	seen := make(map[*graph.Type]struct{})
	for t := r.ResolveType(ref.DeclaringType); t != nil; t = r.ResolveType(t.BaseType) {
		if _, ok := seen[t]; ok || len(seen) >= maxChain {
			return nil
		}
		seen[t] = struct{}{}

		var coarse []*graph.Method
		for _, m := range t.Methods {
			if m != nil && m.Name == ref.Name &&
				len(m.Parameters) == len(ref.Parameters) &&
				m.Arity() == ref.GenericArity {
				coarse = append(coarse, m)
			}
		}
		if len(coarse) == 0 {
			continue
		}
		if r.matching == OverloadStrict && len(coarse) > 1 {
			if strict := strictMatches(coarse, ref); len(strict) > 0 {
				return strict
			}
		}
		return coarse
	}
	return nil
}

func strictMatches(candidates []*graph.Method, ref *graph.MethodReference) []*graph.Method {
	want := graph.ParameterList(ref.Parameters)
	var out []*graph.Method
	for _, m := range candidates {
		if graph.ParameterList(graph.ParameterTypes(m.Parameters)) == want {
			out = append(out, m)
		}
	}
	return out
}

// ResolveField returns the field definition ref denotes, or nil. Field
// references are looked up along the base type chain.
func (r *Resolver) ResolveField(ref graph.FieldRef) *graph.Field {
	switch v := ref.(type) {
	case *graph.Field:
		if v == nil {
			return nil
		}
		return v
	case *graph.FieldReference:
		if v == nil {
			return nil
		}
		return r.FindField(r.ResolveType(v.DeclaringType), v.Name)
	default:
		return nil
	}
}

// FindField looks up a field by name on t and its base types.
func (r *Resolver) FindField(t *graph.Type, name string) *graph.Field {
	seen := make(map[*graph.Type]struct{})
	for ; t != nil; t = r.ResolveType(t.BaseType) {
		if _, ok := seen[t]; ok || len(seen) >= maxChain {
			return nil
		}
		seen[t] = struct{}{}
		for _, f := range t.Fields {
			if f != nil && f.Name == name {
				return f
			}
		}
	}
	return nil
}

// FindProperty looks up a property by name on t and its base types.
func (r *Resolver) FindProperty(t *graph.Type, name string) *graph.Property {
	seen := make(map[*graph.Type]struct{})
	for ; t != nil; t = r.ResolveType(t.BaseType) {
		if _, ok := seen[t]; ok || len(seen) >= maxChain {
			return nil
		}
		seen[t] = struct{}{}
		for _, p := range t.Properties {
			if p != nil && p.Name == name {
				return p
			}
		}
	}
	return nil
}

// ResolveAll returns every definition ref may denote. Definitions resolve
// to themselves; references that miss resolve to nothing.
func (r *Resolver) ResolveAll(ref graph.Symbol) []graph.Symbol {
	switch v := ref.(type) {
	case graph.TypeRef:
		if t := r.ResolveType(v); t != nil {
			return []graph.Symbol{t}
		}
		if gp, ok := v.(*graph.GenericParameter); ok && gp != nil {
			return []graph.Symbol{gp}
		}
	case graph.MethodRef:
		methods := r.ResolveMethods(v)
		out := make([]graph.Symbol, 0, len(methods))
		for _, m := range methods {
			out = append(out, m)
		}
		return out
	case graph.FieldRef:
		if f := r.ResolveField(v); f != nil {
			return []graph.Symbol{f}
		}
	}
	return nil
}

// Resolve returns the first definition ref denotes, or nil.
func (r *Resolver) Resolve(ref graph.Symbol) graph.Symbol {
	if all := r.ResolveAll(ref); len(all) > 0 {
		return all[0]
	}
	return nil
}
