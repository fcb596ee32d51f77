// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

// Link fills every back-reference of asm from its containment structure.
//
// Description:
//
//	Hosts build graphs top-down (containers holding children) and call Link
//	once before handing the graph to the engine. Link sets declaring types,
//	modules, owners, body back-pointers, positional indexes and accessor
//	semantics owners. Import scopes reachable from method debug scopes but
//	missing from their module's Imports list are appended to it so every
//	import scope has a stable index.
//
// Inputs:
//
//	asm - The assembly to link. nil is a no-op.
//
// Thread Safety:
//
//	Not safe for concurrent use with any other access to asm.
//
// Link is idempotent. nil entries in child slices are skipped.
func Link(asm *Assembly) {
	if asm == nil {
		return
	}
	linkAttributes(asm, asm.Attributes, asm.Security)
	for _, mod := range asm.Modules {
		if mod == nil {
			continue
		}
		mod.Assembly = asm
		linkAttributes(mod, mod.Attributes)
		for _, t := range mod.Types {
			linkType(mod, nil, t)
		}
		for _, t := range mod.Types {
			linkImportsOf(mod, t)
		}
		for i, is := range mod.Imports {
			linkImportScope(mod, is, i)
		}
	}
}

func linkType(mod *Module, outer *Type, t *Type) {
	if t == nil {
		return
	}
	t.Module = mod
	t.DeclaringType = outer
	linkAttributes(t, t.Attributes, t.Security)
	for i, ii := range t.Interfaces {
		if ii == nil {
			continue
		}
		ii.Owner = t
		ii.Index = i
		linkAttributes(ii, ii.Attributes)
	}
	linkGenericParameters(t, t.GenericParameters)
	for _, f := range t.Fields {
		if f == nil {
			continue
		}
		f.DeclaringType = t
		linkAttributes(f, f.Attributes)
	}
	for _, m := range t.Methods {
		if m == nil {
			continue
		}
		linkMethod(t, m)
	}
	for _, p := range t.Properties {
		if p == nil {
			continue
		}
		p.DeclaringType = t
		linkAttributes(p, p.Attributes)
		linkParameters(p, p.Parameters)
		for _, acc := range p.Accessors() {
			acc.SemanticsOwner = p
			if acc.DeclaringType == nil {
				linkMethod(t, acc)
			}
		}
	}
	for _, e := range t.Events {
		if e == nil {
			continue
		}
		e.DeclaringType = t
		linkAttributes(e, e.Attributes)
		for _, acc := range e.Accessors() {
			acc.SemanticsOwner = e
			if acc.DeclaringType == nil {
				linkMethod(t, acc)
			}
		}
	}
	for _, nt := range t.NestedTypes {
		linkType(mod, t, nt)
	}
}

func linkMethod(t *Type, m *Method) {
	m.DeclaringType = t
	linkAttributes(m, m.Attributes, m.Security, m.ReturnAttributes)
	linkParameters(m, m.Parameters)
	linkGenericParameters(m, m.GenericParameters)
	if b := m.Body; b != nil {
		b.Method = m
		for i, v := range b.Variables {
			if v == nil {
				continue
			}
			v.Body = b
			v.Index = i
		}
		for i, ins := range b.Instructions {
			if ins == nil {
				continue
			}
			ins.Body = b
			ins.Index = i
		}
		for i, h := range b.Handlers {
			if h == nil {
				continue
			}
			h.Body = b
			h.Index = i
		}
	}
	if m.Debug != nil && m.Debug.Scope != nil {
		next := 0
		linkScope(m, m.Debug.Scope, &next)
	}
}

func linkScope(m *Method, sc *Scope, next *int) {
	sc.Method = m
	sc.Index = *next
	*next++
	for i, c := range sc.Constants {
		if c == nil {
			continue
		}
		c.Scope = sc
		c.Index = i
	}
	for _, child := range sc.Scopes {
		if child != nil {
			linkScope(m, child, next)
		}
	}
}

func linkParameters(owner Symbol, params []*Parameter) {
	for i, p := range params {
		if p == nil {
			continue
		}
		p.Owner = owner
		p.Index = i
		linkAttributes(p, p.Attributes)
	}
}

func linkGenericParameters(owner Symbol, gps []*GenericParameter) {
	for i, gp := range gps {
		if gp == nil {
			continue
		}
		gp.Owner = owner
		gp.Position = i
		linkAttributes(gp, gp.Attributes)
		for j, c := range gp.Constraints {
			if c == nil {
				continue
			}
			c.Owner = gp
			c.Index = j
			linkAttributes(c, c.Attributes)
		}
	}
}

// linkAttributes numbers the attributes of owner across all of its lists so
// (owner, index) is unique.
func linkAttributes(owner Symbol, lists ...[]*Attribute) {
	idx := 0
	for _, list := range lists {
		for _, a := range list {
			if a == nil {
				continue
			}
			a.Owner = owner
			a.Index = idx
			idx++
		}
	}
}

// linkImportsOf registers import scopes referenced from method debug scopes
// of t (and its nested types) with mod.
func linkImportsOf(mod *Module, t *Type) {
	if t == nil {
		return
	}
	for _, m := range t.Methods {
		if m != nil && m.Debug != nil && m.Debug.Scope != nil {
			registerScopeImports(mod, m.Debug.Scope)
		}
	}
	for _, nt := range t.NestedTypes {
		linkImportsOf(mod, nt)
	}
}

func registerScopeImports(mod *Module, sc *Scope) {
	for is := sc.Import; is != nil && !contains(mod.Imports, is); is = is.Parent {
		mod.Imports = append(mod.Imports, is)
	}
	for _, child := range sc.Scopes {
		if child != nil {
			registerScopeImports(mod, child)
		}
	}
}

func linkImportScope(mod *Module, is *ImportScope, idx int) {
	if is == nil {
		return
	}
	is.Module = mod
	is.Index = idx
	for i, it := range is.Targets {
		if it == nil {
			continue
		}
		it.Scope = is
		it.Index = i
	}
}
