// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/graph"
)

type protectNames map[string]bool

func (p protectNames) IsProtected(s graph.Symbol) bool { return p[graph.FullName(s)] }

type fixture struct {
	asm      *graph.Assembly
	mod      *graph.Module
	kept     *graph.Type
	dead     *graph.Type
	deadKid  *graph.Type
	used     *graph.Method
	unused   *graph.Method
	field    *graph.Field
	prop     *graph.Property
	evt      *graph.Event
	nested   *graph.Type
	imports  *graph.ImportScope
	external *graph.ImportTarget
	toDead   *graph.ImportTarget
	toKept   *graph.ImportTarget
	unknown  *graph.ImportTarget
}

func newFixture() *fixture {
	f := &fixture{}
	f.used = &graph.Method{Name: "Used"}
	f.unused = &graph.Method{Name: "Unused"}
	f.field = &graph.Field{Name: "field"}
	f.prop = &graph.Property{Name: "Prop"}
	f.evt = &graph.Event{Name: "Changed"}
	f.nested = &graph.Type{Name: "Inner", Methods: []*graph.Method{{Name: "Deep"}}}
	f.kept = &graph.Type{
		Namespace: "App", Name: "Kept",
		Methods:     []*graph.Method{f.used, nil, f.unused},
		Fields:      []*graph.Field{f.field},
		Properties:  []*graph.Property{f.prop},
		Events:      []*graph.Event{f.evt},
		NestedTypes: []*graph.Type{f.nested},
	}
	f.deadKid = &graph.Type{Name: "Kid"}
	f.dead = &graph.Type{
		Namespace: "App", Name: "Dead",
		Methods:     []*graph.Method{{Name: "Gone"}},
		NestedTypes: []*graph.Type{f.deadKid},
	}
	f.external = &graph.ImportTarget{ImportKind: graph.ImportType, Type: &graph.TypeReference{Scope: "System.Runtime", Namespace: "System", Name: "Math"}}
	f.toDead = &graph.ImportTarget{ImportKind: graph.ImportType, Type: &graph.TypeReference{Namespace: "App", Name: "Dead"}}
	f.toKept = &graph.ImportTarget{ImportKind: graph.ImportType, Type: &graph.TypeReference{Namespace: "App", Name: "Kept"}}
	f.unknown = &graph.ImportTarget{ImportKind: graph.ImportType, Type: &graph.TypeReference{Namespace: "App", Name: "NeverModeled"}}
	ns := &graph.ImportTarget{ImportKind: graph.ImportNamespace, Namespace: "App"}
	f.imports = &graph.ImportScope{Targets: []*graph.ImportTarget{f.external, f.toDead, f.toKept, f.unknown, ns}}
	f.mod = &graph.Module{Name: "App.dll", Types: []*graph.Type{f.kept, nil, f.dead}, Imports: []*graph.ImportScope{f.imports}}
	f.asm = &graph.Assembly{Name: "App", Modules: []*graph.Module{f.mod}}
	graph.Link(f.asm)
	return f
}

func reachableSet(syms ...graph.Symbol) *canon.Set {
	set := canon.NewSet()
	for _, s := range syms {
		set.Add(s)
	}
	return set
}

func TestSweep_RemovesUnreachedAndCascades(t *testing.T) {
	f := newFixture()
	set := reachableSet(f.kept, f.used, f.field)

	var removed []Removal
	res := Sweep(f.asm, set, nil, func(r Removal) { removed = append(removed, r) })

	assert.Equal(t, []*graph.Type{f.kept}, f.mod.Types)
	assert.Equal(t, []*graph.Method{f.used}, f.kept.Methods)
	assert.Equal(t, []*graph.Field{f.field}, f.kept.Fields)
	assert.Empty(t, f.kept.Properties)
	assert.Empty(t, f.kept.Events)
	assert.Empty(t, f.kept.NestedTypes)

	names := make([]string, len(removed))
	for i, r := range removed {
		names[i] = r.Name
	}
	// Order: module types, then the kept type's events, fields, methods,
	// properties and nested types. Children of removed types are not
	// reported.
	assert.Equal(t, []string{
		"App.Dead",
		"App.Kept::Changed",
		"App.Kept::Unused()",
		"App.Kept::Prop",
		"App.Kept/Inner",
	}, names)
	assert.NotContains(t, names, "App.Dead/Kid")
	assert.NotContains(t, names, "App.Kept/Inner::Deep()")

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 2, res.Removed[graph.KindType])
	assert.Equal(t, 1, res.Removed[graph.KindMethod])
	assert.Equal(t, 3, res.Kept)

	require.NotEmpty(t, removed)
	assert.Equal(t, graph.KindType, removed[0].Kind)
	assert.Equal(t, "T:App|App.Dead", removed[0].Key)
	assert.Equal(t, "App.dll", removed[0].Parent)
	assert.Equal(t, "App.Kept", removed[2].Parent)
}

func TestSweep_ProtectionPrecedence(t *testing.T) {
	f := newFixture()
	set := reachableSet(f.kept)

	var removed []string
	Sweep(f.asm, set, protectNames{"App.Dead": true, "App.Kept::Unused()": true}, func(r Removal) {
		removed = append(removed, r.Name)
	})

	assert.Contains(t, f.mod.Types, f.dead)
	assert.Contains(t, f.kept.Methods, f.unused)
	assert.NotContains(t, removed, "App.Dead")
	assert.NotContains(t, removed, "App.Kept::Unused()")

	// A kept protected type still loses unreached members.
	assert.Empty(t, f.dead.Methods)
	assert.Empty(t, f.dead.NestedTypes)
}

func TestSweep_NoMemberOutlivesItsType(t *testing.T) {
	f := newFixture()
	// Members are marked but their type is not: the type still goes.
	set := reachableSet(f.dead.Methods[0], f.deadKid, f.kept)
	Sweep(f.asm, set, nil, nil)

	assert.NotContains(t, f.mod.Types, f.dead)
	for _, typ := range f.mod.Types {
		assert.NotSame(t, f.dead, typ)
	}
}

func TestSweep_StaleImports(t *testing.T) {
	f := newFixture()
	res := Sweep(f.asm, reachableSet(f.kept), nil, nil)

	assert.Equal(t, 1, res.StaleImports)
	assert.NotContains(t, f.imports.Targets, f.toDead)
	assert.Contains(t, f.imports.Targets, f.external)
	assert.Contains(t, f.imports.Targets, f.toKept)
	assert.Contains(t, f.imports.Targets, f.unknown)
	assert.Len(t, f.imports.Targets, 4)
}

func TestSweep_StaleImportsNested(t *testing.T) {
	f := newFixture()
	toInner := &graph.ImportTarget{ImportKind: graph.ImportType, Type: &graph.TypeReference{
		Name:          "Inner",
		DeclaringType: &graph.TypeReference{Namespace: "App", Name: "Kept"},
	}}
	f.imports.Targets = append(f.imports.Targets, toInner)

	res := Sweep(f.asm, reachableSet(f.kept), nil, nil)

	assert.Empty(t, f.kept.NestedTypes)
	assert.Equal(t, 2, res.StaleImports)
	assert.NotContains(t, f.imports.Targets, toInner)
	assert.NotContains(t, f.imports.Targets, f.toDead)
	assert.Len(t, f.imports.Targets, 4)
}

func TestSweep_StaleImportsDisabled(t *testing.T) {
	f := newFixture()
	res := Sweep(f.asm, reachableSet(f.kept), nil, nil, WithStaleImports(false))

	assert.Zero(t, res.StaleImports)
	assert.Len(t, f.imports.Targets, 5)
}

func TestSweep_NilInputs(t *testing.T) {
	assert.NotPanics(t, func() {
		res := Sweep(nil, nil, nil, nil)
		assert.Zero(t, res.Total)
	})

	f := newFixture()
	res := Sweep(f.asm, nil, nil, nil)
	assert.Empty(t, f.mod.Types)
	assert.Equal(t, 2, res.Total)
}

func TestSweep_Idempotent(t *testing.T) {
	f := newFixture()
	set := reachableSet(f.kept, f.used)
	Sweep(f.asm, set, nil, nil)

	calls := 0
	res := Sweep(f.asm, set, nil, func(Removal) { calls++ })
	assert.Zero(t, calls)
	assert.Zero(t, res.Total)
}
