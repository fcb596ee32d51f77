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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shake/services/shake/graph"
)

func marker(name string) *graph.Attribute {
	return &graph.Attribute{Type: &graph.TypeReference{Namespace: "JetBrains.Annotations", Name: name}}
}

type fixture struct {
	asm        *graph.Assembly
	public     *graph.Type
	hidden     *graph.Type
	nested     *graph.Type
	marked     *graph.Type
	program    *graph.Type
	main       *graph.Method
	run        *graph.Method
	helper     *graph.Method
	virt       *graph.Method
	cctor      *graph.Method
	ctor       *graph.Method
	hiddenPub  *graph.Method
	prop       *graph.Property
	getter     *graph.Method
	privProp   *graph.Property
	virtProp   *graph.Property
	virtGetter *graph.Method
	markedFn   *graph.Method
	fody       *graph.Type
}

func newFixture() *fixture {
	f := &fixture{}
	f.run = &graph.Method{Name: "Run", Visibility: graph.VisibilityPublic}
	f.helper = &graph.Method{Name: "Helper"}
	f.virt = &graph.Method{Name: "OnEvent", Visibility: graph.VisibilityFamily, Flags: graph.MethodVirtual}
	f.cctor = &graph.Method{Name: graph.StaticConstructorName, Flags: graph.MethodStatic}
	f.ctor = &graph.Method{Name: graph.ConstructorName, Visibility: graph.VisibilityPublic}
	f.getter = &graph.Method{Name: "get_Size", Visibility: graph.VisibilityPublic}
	f.prop = &graph.Property{Name: "Size", Getter: f.getter}
	privGetter := &graph.Method{Name: "get_Secret"}
	f.privProp = &graph.Property{Name: "Secret", Getter: privGetter}
	f.virtGetter = &graph.Method{Name: "get_Kind", Flags: graph.MethodVirtual}
	f.virtProp = &graph.Property{Name: "Kind", Getter: f.virtGetter}

	f.public = &graph.Type{
		Namespace: "App", Name: "Api", Visibility: graph.VisibilityPublic,
		Methods:    []*graph.Method{f.run, f.helper, f.virt, f.cctor, f.ctor, f.getter, privGetter, f.virtGetter},
		Properties: []*graph.Property{f.prop, f.privProp, f.virtProp},
	}

	f.hiddenPub = &graph.Method{Name: "Exposed", Visibility: graph.VisibilityPublic}
	f.nested = &graph.Type{Name: "Shown", Visibility: graph.VisibilityPublic}
	f.hidden = &graph.Type{
		Namespace: "App", Name: "Internal", Visibility: graph.VisibilityAssembly,
		Methods: []*graph.Method{
			f.hiddenPub,
			{Name: graph.ConstructorName},
			{Name: graph.ConstructorName, Parameters: []*graph.Parameter{{Name: "x"}}},
		},
		NestedTypes: []*graph.Type{f.nested},
	}

	f.markedFn = &graph.Method{Name: "Callback", Attributes: []*graph.Attribute{marker("UsedImplicitlyAttribute")}}
	f.marked = &graph.Type{Namespace: "App", Name: "Reflected", Methods: []*graph.Method{f.markedFn}}

	f.main = &graph.Method{Name: "Main", Flags: graph.MethodStatic}
	f.program = &graph.Type{Name: "Program", Methods: []*graph.Method{f.main}}
	f.fody = &graph.Type{Name: "ProcessedByFody"}

	mod := &graph.Module{Name: "App.dll", Types: []*graph.Type{f.public, f.hidden, f.marked, f.program, f.fody}}
	f.asm = &graph.Assembly{Name: "App", Modules: []*graph.Module{mod}}
	graph.Link(f.asm)
	return f
}

func TestClassify(t *testing.T) {
	f := newFixture()
	p := New(f.asm)

	tests := []struct {
		name  string
		sym   graph.Symbol
		class Class
		rule  string
	}{
		{"public type", f.public, Root, RulePublicSurface},
		{"public method of public type", f.run, Root, RulePublicSurface},
		{"private method", f.helper, NotRoot, ""},
		{"protected virtual", f.virt, Anchored, RuleVirtualDispatch},
		{"static constructor", f.cctor, Anchored, RuleStaticConstructor},
		{"public constructor", f.ctor, Root, RulePublicSurface},
		{"non-public type", f.hidden, NotRoot, ""},
		{"public member of internal type", f.hiddenPub, Anchored, RuleNestedPublic},
		{"public type nested in internal type", f.nested, Anchored, RuleNestedPublic},
		{"accessor", f.getter, NotRoot, RuleAccessorDeferral},
		{"property with public getter", f.prop, Root, RulePublicSurface},
		{"property with private getter", f.privProp, NotRoot, ""},
		{"property with virtual getter", f.virtProp, Anchored, RuleAccessorAnchored},
		{"marked method", f.markedFn, Root, RuleImplicitUse},
		{"program type", f.program, Root, RuleSyntheticName},
		{"program main", f.main, Root, RuleSyntheticName},
		{"processed suffix", f.fody, Root, RuleSyntheticName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, rule := p.Explain(tt.sym)
			assert.Equal(t, tt.class, class)
			assert.Equal(t, tt.rule, rule)
			assert.Equal(t, tt.class, p.Classify(tt.sym))
			assert.Equal(t, tt.class != NotRoot, p.IsRoot(tt.sym))
		})
	}
}

func TestClassify_SoleConstructor(t *testing.T) {
	ctor := &graph.Method{Name: graph.ConstructorName}
	typ := &graph.Type{Name: "Only", Methods: []*graph.Method{ctor}}
	asm := &graph.Assembly{Name: "A", Modules: []*graph.Module{{Types: []*graph.Type{typ}}}}
	graph.Link(asm)

	class, rule := New(asm).Explain(ctor)
	assert.Equal(t, Anchored, class)
	assert.Equal(t, RuleSoleConstructor, rule)

	// With two constructors neither is anchored.
	f := newFixture()
	p := New(f.asm)
	assert.Equal(t, NotRoot, p.Classify(f.hidden.Methods[1]))
	assert.Equal(t, NotRoot, p.Classify(f.hidden.Methods[2]))
}

func TestClassify_EntryPoint(t *testing.T) {
	f := newFixture()
	start := &graph.Method{Name: "Start", Flags: graph.MethodStatic}
	f.hidden.Methods = append(f.hidden.Methods, start)
	f.asm.EntryPoint = start
	graph.Link(f.asm)

	class, rule := New(f.asm).Explain(start)
	assert.Equal(t, Root, class)
	assert.Equal(t, RuleEntryPoint, rule)
}

func TestClassify_MarkerOnDeclaringType(t *testing.T) {
	inner := &graph.Field{Name: "state"}
	typ := &graph.Type{
		Name:       "<>c",
		Attributes: []*graph.Attribute{{Type: &graph.TypeReference{Namespace: "System.Runtime.CompilerServices", Name: "CompilerGeneratedAttribute"}}},
		Fields:     []*graph.Field{inner},
	}
	asm := &graph.Assembly{Name: "A", Modules: []*graph.Module{{Types: []*graph.Type{typ}}}}
	graph.Link(asm)

	p := New(asm)
	assert.Equal(t, Root, p.Classify(inner))

	// Markers are configurable.
	p = New(asm, WithMarkers("Custom.KeepAttribute"))
	assert.Equal(t, NotRoot, p.Classify(inner))
}

func TestClassify_MarkerViaConstructor(t *testing.T) {
	attrType := &graph.TypeReference{Namespace: "JetBrains.Annotations", Name: "MeansImplicitUseAttribute"}
	fn := &graph.Method{Name: "Hook", Attributes: []*graph.Attribute{{
		Constructor: &graph.MethodReference{DeclaringType: attrType, Name: graph.ConstructorName},
	}}}
	typ := &graph.Type{Name: "Hooks", Methods: []*graph.Method{fn}}
	asm := &graph.Assembly{Name: "A", Modules: []*graph.Module{{Types: []*graph.Type{typ}}}}
	graph.Link(asm)

	assert.Equal(t, Root, New(asm).Classify(fn))
}

func TestClassify_NonMembers(t *testing.T) {
	f := newFixture()
	p := New(f.asm)
	assert.Equal(t, NotRoot, p.Classify(f.asm))
	assert.Equal(t, NotRoot, p.Classify(nil))
	assert.Equal(t, NotRoot, p.Classify((*graph.Method)(nil)))
	assert.Equal(t, NotRoot, p.Classify(&graph.TypeReference{Name: "X"}))
}

func TestIsProtected(t *testing.T) {
	f := newFixture()
	var errs []error
	ex := ParseExceptions([]string{"App.Internal", "Secret  re:Hel+per", "[bad"}, func(err error) { errs = append(errs, err) })
	p := New(f.asm, WithExceptions(ex))

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrInvalidPattern)

	assert.True(t, p.IsProtected(f.hidden), "full name")
	assert.True(t, p.IsProtected(f.nested), "declaring type protected")
	assert.True(t, p.IsProtected(f.hiddenPub), "member of protected type")
	assert.True(t, p.IsProtected(f.privProp), "simple name")
	assert.True(t, p.IsProtected(f.helper), "regexp")
	assert.False(t, p.IsProtected(f.run))
	assert.False(t, p.IsProtected(f.public))
	assert.False(t, p.IsProtected(f.asm))

	assert.False(t, New(f.asm).IsProtected(f.hidden))
}

func TestIsProtected_Namespace(t *testing.T) {
	f := newFixture()
	p := New(f.asm, WithExceptions(ParseExceptions([]string{"App"}, nil)))
	assert.True(t, p.IsProtected(f.hidden))
	assert.True(t, p.IsProtected(f.helper))
	assert.False(t, p.IsProtected(f.program))
}

func TestBuildRoots(t *testing.T) {
	f := newFixture()
	p := New(f.asm, WithExceptions(ParseExceptions([]string{"App.Internal"}, nil)))
	roots := p.BuildRoots()

	require.NotEmpty(t, roots)
	assert.Same(t, f.asm, roots[0])
	assert.Contains(t, roots, graph.Symbol(f.public))
	assert.Contains(t, roots, graph.Symbol(f.run))
	assert.Contains(t, roots, graph.Symbol(f.prop))
	assert.Contains(t, roots, graph.Symbol(f.markedFn), "marked member of a private type")
	assert.Contains(t, roots, graph.Symbol(f.program))
	assert.Contains(t, roots, graph.Symbol(f.main))
	assert.Contains(t, roots, graph.Symbol(f.hidden), "protected")

	assert.NotContains(t, roots, graph.Symbol(f.virt), "anchored symbols are not seeded")
	assert.NotContains(t, roots, graph.Symbol(f.helper))
	assert.NotContains(t, roots, graph.Symbol(f.getter))
	assert.NotContains(t, roots, graph.Symbol(f.marked))
}

func TestBuildRoots_NilAssembly(t *testing.T) {
	assert.Empty(t, New(nil).BuildRoots())
}

func TestRuleOrderIsConfigurable(t *testing.T) {
	f := newFixture()
	rules := []Rule{{Name: "everything", Class: Root, Match: func(*Policy, graph.Symbol) bool { return true }}}
	p := New(f.asm, WithRules(rules))
	assert.Equal(t, Root, p.Classify(f.helper))
}
