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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shake/services/shake/graph"
)

var (
	int32Ref  = &graph.TypeReference{Scope: "System.Runtime", Namespace: "System", Name: "Int32"}
	stringRef = &graph.TypeReference{Scope: "System.Runtime", Namespace: "System", Name: "String"}
)

type sample struct {
	asm       *graph.Assembly
	base      *graph.Type
	derived   *graph.Type
	box       *graph.Type
	inner     *graph.Type
	writeInt  *graph.Method
	writeStr  *graph.Method
	writeTwo  *graph.Method
	baseOnly  *graph.Method
	count     *graph.Field
	boxValue  *graph.Property
	otherType *graph.Type
}

func newSample() *sample {
	s := &sample{}
	s.writeInt = &graph.Method{Name: "Write", Parameters: []*graph.Parameter{{ParameterType: int32Ref}}}
	s.writeStr = &graph.Method{Name: "Write", Parameters: []*graph.Parameter{{ParameterType: stringRef}}}
	s.writeTwo = &graph.Method{Name: "Write", Parameters: []*graph.Parameter{{ParameterType: int32Ref}, {ParameterType: int32Ref}}}
	s.baseOnly = &graph.Method{Name: "Reset"}
	s.count = &graph.Field{Name: "count", FieldType: int32Ref}
	s.base = &graph.Type{
		Namespace: "App", Name: "Base",
		Methods: []*graph.Method{s.baseOnly},
		Fields:  []*graph.Field{s.count},
	}
	s.derived = &graph.Type{
		Namespace: "App", Name: "Derived",
		BaseType: &graph.TypeReference{Namespace: "App", Name: "Base"},
		Methods:  []*graph.Method{s.writeInt, s.writeStr, s.writeTwo},
	}
	s.inner = &graph.Type{Name: "Node"}
	s.boxValue = &graph.Property{Name: "Value"}
	s.box = &graph.Type{
		Namespace:         "App", Name: "Box",
		GenericParameters: []*graph.GenericParameter{{Name: "T"}},
		NestedTypes:       []*graph.Type{s.inner},
		Properties:        []*graph.Property{s.boxValue},
	}
	s.otherType = &graph.Type{Namespace: "Lib", Name: "Helper"}
	s.asm = &graph.Assembly{Name: "App", Modules: []*graph.Module{
		{Name: "App.dll", Types: []*graph.Type{s.base, s.derived, s.box}},
		{Name: "App.Extra.dll", Types: []*graph.Type{s.otherType}},
	}}
	graph.Link(s.asm)
	return s
}

func TestKey_Definitions(t *testing.T) {
	s := newSample()

	assert.Equal(t, "asm:App", Key(s.asm))
	assert.Equal(t, "mod:App/App.dll", Key(s.asm.Modules[0]))
	assert.Equal(t, "T:App|App.Box`1", Key(s.box))
	assert.Equal(t, "T:App|App.Box`1/Node", Key(s.inner))
	assert.Equal(t, "M:T:App|App.Derived::Write(System.Int32)", Key(s.writeInt))
	assert.Equal(t, "M:T:App|App.Derived::Write(System.String)", Key(s.writeStr))
	assert.Equal(t, "F:T:App|App.Base::count", Key(s.count))
	assert.Equal(t, "P:T:App|App.Box`1::Value", Key(s.boxValue))
	assert.Equal(t, "GP:T:App|App.Box`1!0", Key(s.box.GenericParameters[0]))
	assert.Equal(t, "PA:M:T:App|App.Derived::Write(System.Int32)#0", Key(s.writeInt.Parameters[0]))
	assert.Equal(t, "", Key(nil))
}

func TestKey_OverloadsStayDistinct(t *testing.T) {
	s := newSample()
	keys := map[string]bool{
		Key(s.writeInt): true,
		Key(s.writeStr): true,
		Key(s.writeTwo): true,
	}
	assert.Len(t, keys, 3)
}

func TestKey_DistinctDefinitionsNeverShare(t *testing.T) {
	convType := &graph.TypeReference{Namespace: "App", Name: "Conv"}
	toInt := &graph.Method{Name: "op_Implicit", ReturnType: int32Ref, Parameters: []*graph.Parameter{{ParameterType: convType}}}
	toStr := &graph.Method{Name: "op_Implicit", ReturnType: stringRef, Parameters: []*graph.Parameter{{ParameterType: convType}}}
	body := &graph.Body{Instructions: []*graph.Instruction{
		{OpCode: "nop"},
		{OpCode: "ldtoken"},
		{OpCode: "ret"},
	}}
	run := &graph.Method{Name: "Run", Body: body}
	conv := &graph.Type{Namespace: "App", Name: "Conv", Methods: []*graph.Method{toInt, toStr, run}}
	first := &graph.Type{Namespace: "App", Name: "Twin"}
	second := &graph.Type{Namespace: "App", Name: "Twin"}
	asm := &graph.Assembly{Name: "App", Modules: []*graph.Module{
		{Name: "App.dll", Types: []*graph.Type{conv, first}},
		{Name: "App.Extra.dll", Types: []*graph.Type{second}},
	}}
	graph.Link(asm)

	tests := []struct {
		name string
		a, b graph.Symbol
	}{
		{"return type overloads", toInt, toStr},
		{"zero offset instructions", body.Instructions[0], body.Instructions[1]},
		{"zero offset instructions apart", body.Instructions[0], body.Instructions[2]},
		{"same name in two modules", first, second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Key(tt.a), Key(tt.b))

			set := NewSet()
			assert.True(t, set.Add(tt.a))
			assert.True(t, set.Add(tt.b))
		})
	}

	assert.Equal(t, "M:T:App|App.Conv::op_Implicit(App.Conv)->System.Int32", Key(toInt))
	assert.Equal(t, "I:M:T:App|App.Conv::Run()#2", Key(body.Instructions[2]))
	assert.Equal(t, "T:App|App.Twin", Key(first))
	assert.Equal(t, "T:App/App.Extra.dll|App.Twin", Key(second))
}

func TestKey_GenericMethodArity(t *testing.T) {
	typ := &graph.Type{Name: "C", Methods: []*graph.Method{
		{Name: "M"},
		{Name: "M", GenericParameters: []*graph.GenericParameter{{Name: "T"}}},
	}}
	asm := &graph.Assembly{Name: "A", Modules: []*graph.Module{{Name: "m", Types: []*graph.Type{typ}}}}
	graph.Link(asm)

	assert.Equal(t, "M:T:A|C::M()", Key(typ.Methods[0]))
	assert.Equal(t, "M:T:A|C::M`1()", Key(typ.Methods[1]))
}

func TestKey_UnlinkedFallsBackToPointer(t *testing.T) {
	a := &graph.Method{Name: "M"}
	b := &graph.Method{Name: "M"}
	assert.NotEqual(t, Key(a), Key(b))
	assert.Equal(t, Key(a), Key(a))
}

func TestSet(t *testing.T) {
	s := newSample()
	set := NewSet()

	assert.True(t, set.Add(s.box))
	assert.False(t, set.Add(s.box))
	assert.True(t, set.Add(s.writeInt))
	assert.False(t, set.Add(nil))
	assert.False(t, set.Add((*graph.Type)(nil)))

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(s.box))
	assert.False(t, set.Contains(s.writeStr))
	assert.True(t, set.ContainsKey("T:App|App.Box`1"))

	rep, ok := set.Get("T:App|App.Box`1")
	require.True(t, ok)
	assert.Same(t, s.box, rep)

	assert.Equal(t, []graph.Symbol{s.box, s.writeInt}, set.Symbols())
	assert.Equal(t, 1, set.CountKind(graph.KindType))
	assert.Equal(t, map[graph.Kind]int{graph.KindType: 1, graph.KindMethod: 1}, set.CountByKind())
	assert.Equal(t, []string{"M:T:App|App.Derived::Write(System.Int32)", "T:App|App.Box`1"}, set.Keys())
}

func TestSet_StructuralDedupe(t *testing.T) {
	// Two distinct objects for the same definition collapse to one node.
	build := func() *graph.Type {
		typ := &graph.Type{Namespace: "N", Name: "Twin"}
		asm := &graph.Assembly{Name: "A", Modules: []*graph.Module{{Name: "m", Types: []*graph.Type{typ}}}}
		graph.Link(asm)
		return typ
	}
	set := NewSet()
	assert.True(t, set.Add(build()))
	assert.False(t, set.Add(build()))
	assert.Equal(t, 1, set.Len())
}

func TestResolveType(t *testing.T) {
	s := newSample()
	r := NewResolver(s.asm, OverloadCoarse)

	tests := []struct {
		name string
		ref  graph.TypeRef
		want *graph.Type
	}{
		{"definition", s.base, s.base},
		{"local reference", &graph.TypeReference{Namespace: "App", Name: "Base"}, s.base},
		{"scoped to own assembly", &graph.TypeReference{Scope: "App", Namespace: "App", Name: "Base"}, s.base},
		{"other module", &graph.TypeReference{Namespace: "Lib", Name: "Helper"}, s.otherType},
		{"arity must match", &graph.TypeReference{Namespace: "App", Name: "Box"}, nil},
		{"generic", &graph.TypeReference{Namespace: "App", Name: "Box", GenericArity: 1}, s.box},
		{"nested", &graph.TypeReference{Name: "Node", DeclaringType: &graph.TypeReference{Namespace: "App", Name: "Box", GenericArity: 1}}, s.inner},
		{"nested miss", &graph.TypeReference{Name: "Nope", DeclaringType: &graph.TypeReference{Namespace: "App", Name: "Box", GenericArity: 1}}, nil},
		{"external", int32Ref, nil},
		{"instance reduces to element", graph.NewGenericInstance(&graph.TypeReference{Namespace: "App", Name: "Box", GenericArity: 1}, int32Ref), s.box},
		{"array of instance", graph.NewArray(graph.NewGenericInstance(s.box, s.base)), s.box},
		{"generic parameter", s.box.GenericParameters[0], nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ResolveType(tt.ref)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Same(t, tt.want, got)
		})
	}
}

func TestIsLocal(t *testing.T) {
	s := newSample()
	r := NewResolver(s.asm, OverloadCoarse)

	assert.True(t, r.IsLocal(s.base))
	assert.True(t, r.IsLocal(&graph.TypeReference{Name: "Missing"}))
	assert.True(t, r.IsLocal(&graph.TypeReference{Name: "X", DeclaringType: &graph.TypeReference{Scope: "App", Name: "Y"}}))
	assert.False(t, r.IsLocal(int32Ref))
	assert.False(t, r.IsLocal(graph.NewArray(int32Ref)))
	assert.False(t, r.IsLocal(s.box.GenericParameters[0]))
}

func TestResolveMethods(t *testing.T) {
	s := newSample()
	derivedRef := &graph.TypeReference{Namespace: "App", Name: "Derived"}

	coarse := NewResolver(s.asm, OverloadCoarse)
	strict := NewResolver(s.asm, OverloadStrict)

	oneInt := &graph.MethodReference{DeclaringType: derivedRef, Name: "Write", Parameters: []graph.TypeRef{int32Ref}}
	assert.ElementsMatch(t, []*graph.Method{s.writeInt, s.writeStr}, coarse.ResolveMethods(oneInt))
	assert.Equal(t, []*graph.Method{s.writeInt}, strict.ResolveMethods(oneInt))

	// Strict falls back to coarse when no signature matches exactly.
	oneBool := &graph.MethodReference{DeclaringType: derivedRef, Name: "Write", Parameters: []graph.TypeRef{
		&graph.TypeReference{Namespace: "System", Name: "Boolean"},
	}}
	assert.Len(t, strict.ResolveMethods(oneBool), 2)

	two := &graph.MethodReference{DeclaringType: derivedRef, Name: "Write", Parameters: []graph.TypeRef{int32Ref, int32Ref}}
	assert.Equal(t, []*graph.Method{s.writeTwo}, coarse.ResolveMethods(two))

	inherited := &graph.MethodReference{DeclaringType: derivedRef, Name: "Reset"}
	assert.Equal(t, []*graph.Method{s.baseOnly}, coarse.ResolveMethods(inherited))

	generic := &graph.GenericMethodInstance{Element: inherited, Arguments: []graph.TypeRef{int32Ref}}
	assert.Equal(t, []*graph.Method{s.baseOnly}, coarse.ResolveMethods(generic))

	external := &graph.MethodReference{DeclaringType: int32Ref, Name: "Parse", Parameters: []graph.TypeRef{stringRef}}
	assert.Empty(t, coarse.ResolveMethods(external))

	assert.Equal(t, []*graph.Method{s.writeInt}, coarse.ResolveMethods(s.writeInt))
}

func TestResolveMethods_CyclicBaseTerminates(t *testing.T) {
	a := &graph.Type{Name: "A", BaseType: &graph.TypeReference{Name: "B"}}
	b := &graph.Type{Name: "B", BaseType: &graph.TypeReference{Name: "A"}}
	asm := &graph.Assembly{Name: "X", Modules: []*graph.Module{{Types: []*graph.Type{a, b}}}}
	graph.Link(asm)
	r := NewResolver(asm, OverloadCoarse)

	assert.Empty(t, r.ResolveMethods(&graph.MethodReference{DeclaringType: a, Name: "Missing"}))
	assert.Nil(t, r.FindField(a, "missing"))
	assert.Nil(t, r.FindProperty(a, "Missing"))
}

func TestResolveField(t *testing.T) {
	s := newSample()
	r := NewResolver(s.asm, OverloadCoarse)

	ref := &graph.FieldReference{DeclaringType: &graph.TypeReference{Namespace: "App", Name: "Derived"}, Name: "count"}
	assert.Same(t, s.count, r.ResolveField(ref))
	assert.Same(t, s.count, r.ResolveField(s.count))
	assert.Nil(t, r.ResolveField(&graph.FieldReference{DeclaringType: int32Ref, Name: "MaxValue"}))
	assert.Same(t, s.boxValue, r.FindProperty(s.box, "Value"))
}

func TestResolveAllAndExists(t *testing.T) {
	s := newSample()
	r := NewResolver(s.asm, OverloadCoarse)
	baseRef := &graph.TypeReference{Namespace: "App", Name: "Base"}

	assert.Equal(t, []graph.Symbol{s.base}, r.ResolveAll(baseRef))
	assert.Same(t, s.base, r.Resolve(baseRef))
	assert.Nil(t, r.Resolve(int32Ref))
	assert.Nil(t, r.Resolve(&graph.Constant{Value: 1}))

	assert.True(t, r.Exists(baseRef))
	s.asm.Modules[0].Types = s.asm.Modules[0].Types[1:]
	assert.False(t, r.Exists(baseRef), "removed type still resolves but is detached")
	assert.Same(t, s.base, r.ResolveType(baseRef))
}

func TestResolveType_NestedAfterRemoval(t *testing.T) {
	s := newSample()
	r := NewResolver(s.asm, OverloadCoarse)
	nodeRef := &graph.TypeReference{Name: "Node", DeclaringType: &graph.TypeReference{Namespace: "App", Name: "Box", GenericArity: 1}}

	assert.True(t, r.Exists(nodeRef))
	s.box.NestedTypes = nil
	assert.Same(t, s.inner, r.ResolveType(nodeRef))
	assert.False(t, r.Exists(nodeRef))
}

func TestParseOverloadMatching(t *testing.T) {
	m, err := ParseOverloadMatching("STRICT")
	require.NoError(t, err)
	assert.Equal(t, OverloadStrict, m)

	m, err = ParseOverloadMatching("")
	require.NoError(t, err)
	assert.Equal(t, OverloadCoarse, m)

	_, err = ParseOverloadMatching("fuzzy")
	assert.ErrorIs(t, err, ErrUnknownMatching)
	assert.Equal(t, "strict", OverloadStrict.String())
}
