// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/graph"
	"github.com/AleutianAI/shake/services/shake/policy"
)

func ref(ns, name string) *graph.TypeReference {
	return &graph.TypeReference{Namespace: ns, Name: name}
}

func newWalker(asm *graph.Assembly) (*Walker, *policy.Policy) {
	graph.Link(asm)
	p := policy.New(asm)
	return New(p, canon.NewResolver(asm, canon.OverloadCoarse)), p
}

func single(types ...*graph.Type) *graph.Assembly {
	return &graph.Assembly{Name: "App", Modules: []*graph.Module{{Name: "App.dll", Types: types}}}
}

func TestWalk_PublicMethodReachesPrivateType(t *testing.T) {
	b := &graph.Type{Namespace: "App", Name: "B"}
	c := &graph.Type{Namespace: "App", Name: "C"}
	m := &graph.Method{
		Name: "M", Visibility: graph.VisibilityPublic,
		Body: &graph.Body{Instructions: []*graph.Instruction{
			{Offset: 0, OpCode: "newobj", Operand: &graph.MethodReference{DeclaringType: ref("App", "B"), Name: graph.ConstructorName}},
			{Offset: 5, OpCode: "ldtoken", Operand: ref("App", "B")},
			{Offset: 10, OpCode: "ret"},
		}},
	}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{m}}
	asm := single(a, b, c)
	w, p := newWalker(asm)

	set := w.Walk(p.BuildRoots()...)

	assert.True(t, set.Contains(a))
	assert.True(t, set.Contains(m))
	assert.True(t, set.Contains(b))
	assert.False(t, set.Contains(c))
	assert.True(t, set.Contains(m.Body.Instructions[2]))
	assert.Equal(t, 3, set.CountKind(graph.KindInstruction))
}

func TestWalk_ReferenceObjectsAreNotNodes(t *testing.T) {
	b := &graph.Type{Namespace: "App", Name: "B"}
	f := &graph.Field{Name: "F", Visibility: graph.VisibilityPublic, FieldType: ref("App", "B")}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Fields: []*graph.Field{f}}
	w, p := newWalker(single(a, b))

	set := w.Walk(p.BuildRoots()...)
	for _, s := range set.Symbols() {
		assert.False(t, s.Kind().IsReference(), "reference %s stored in set", s.Kind())
	}
	assert.True(t, set.Contains(b))
	assert.Equal(t, 1, w.Stats().Resolved)
}

func TestWalk_Idempotent(t *testing.T) {
	b := &graph.Type{Namespace: "App", Name: "B"}
	m := &graph.Method{Name: "M", Visibility: graph.VisibilityPublic, ReturnType: ref("App", "B")}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{m}}
	w, p := newWalker(single(a, b))
	roots := p.BuildRoots()

	first := w.Walk(roots...).Keys()
	second := w.Walk(roots...).Keys()
	assert.Equal(t, first, second)

	// A fresh walker produces the same set.
	w2 := New(p, canon.NewResolver(a.Module.Assembly, canon.OverloadCoarse))
	assert.Equal(t, first, w2.Walk(roots...).Keys())
}

func TestWalk_Monotone(t *testing.T) {
	b := &graph.Type{Namespace: "App", Name: "B"}
	hidden := &graph.Method{Name: "Hidden", ReturnType: ref("App", "B")}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{hidden}}
	w, p := newWalker(single(a, b))

	before := w.Walk(p.BuildRoots()...).Keys()
	assert.False(t, w.Set().Contains(b))

	after := w.Walk(hidden).Keys()
	assert.Subset(t, after, before)
	assert.True(t, w.Set().Contains(hidden))
	assert.True(t, w.Set().Contains(b))
}

func TestWalk_SelfInstantiatedGenericTerminates(t *testing.T) {
	// class Node<T> { Node<Node<T>> next; Node<Leaf> leaf; }
	tp := &graph.GenericParameter{Name: "T"}
	nodeRef := &graph.TypeReference{Namespace: "App", Name: "Node", GenericArity: 1}
	next := &graph.Field{Name: "next", Visibility: graph.VisibilityPublic}
	next.FieldType = graph.NewGenericInstance(nodeRef, graph.NewGenericInstance(nodeRef, tp))
	leaf := &graph.Field{Name: "leaf", Visibility: graph.VisibilityPublic, FieldType: graph.NewGenericInstance(nodeRef, ref("App", "Leaf"))}
	node := &graph.Type{
		Namespace: "App", Name: "Node", Visibility: graph.VisibilityPublic,
		GenericParameters: []*graph.GenericParameter{tp},
		Fields:            []*graph.Field{next, leaf},
		BaseType:          graph.NewGenericInstance(nodeRef, tp),
	}
	leafType := &graph.Type{Namespace: "App", Name: "Leaf"}
	w, p := newWalker(single(node, leafType))

	set := w.Walk(p.BuildRoots()...)

	assert.Equal(t, 2, set.CountKind(graph.KindType), "one node for the generic element and one per concrete argument")
	assert.True(t, set.Contains(node))
	assert.True(t, set.Contains(leafType))
	assert.Equal(t, 1, set.CountKind(graph.KindGenericParameter))
}

func TestWalk_DistinctObjectsOneNode(t *testing.T) {
	b := &graph.Type{Namespace: "App", Name: "B"}
	m1 := &graph.Method{Name: "One", Visibility: graph.VisibilityPublic, ReturnType: ref("App", "B")}
	m2 := &graph.Method{Name: "Two", Visibility: graph.VisibilityPublic, ReturnType: ref("App", "B")}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{m1, m2}}
	w, p := newWalker(single(a, b))

	set := w.Walk(p.BuildRoots()...)
	assert.Equal(t, 2, set.CountKind(graph.KindType))
	assert.Equal(t, 2, w.Stats().Expanded)
}

func TestWalk_InstructionsWithoutOffsets(t *testing.T) {
	b := &graph.Type{Namespace: "App", Name: "B"}
	m := &graph.Method{
		Name: "M", Visibility: graph.VisibilityPublic,
		Body: &graph.Body{Instructions: []*graph.Instruction{
			{OpCode: "nop"},
			{OpCode: "ldtoken", Operand: ref("App", "B")},
			{OpCode: "ret"},
		}},
	}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{m}}
	w, p := newWalker(single(a, b))

	set := w.Walk(p.BuildRoots()...)

	assert.True(t, set.Contains(b))
	assert.Equal(t, 3, set.CountKind(graph.KindInstruction))
	for i, ins := range m.Body.Instructions {
		assert.Equal(t, i, ins.Index)
	}
}

func TestWalk_MutualRecursion(t *testing.T) {
	ping := &graph.Method{Name: "Ping", Visibility: graph.VisibilityPublic}
	pong := &graph.Method{Name: "Pong"}
	ping.Body = &graph.Body{Instructions: []*graph.Instruction{{OpCode: "call", Operand: pong}}}
	pong.Body = &graph.Body{Instructions: []*graph.Instruction{{OpCode: "call", Operand: ping}}}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{ping, pong}}
	w, p := newWalker(single(a))

	set := w.Walk(p.BuildRoots()...)
	assert.True(t, set.Contains(pong))
}

func TestWalk_OverloadsAllCandidatesKept(t *testing.T) {
	i32 := &graph.TypeReference{Scope: "System.Runtime", Namespace: "System", Name: "Int32"}
	str := &graph.TypeReference{Scope: "System.Runtime", Namespace: "System", Name: "String"}
	f1 := &graph.Method{Name: "F", Parameters: []*graph.Parameter{{ParameterType: i32}}}
	f2 := &graph.Method{Name: "F", Parameters: []*graph.Parameter{{ParameterType: str}}}
	f0 := &graph.Method{Name: "F"}
	caller := &graph.Method{Name: "Run", Visibility: graph.VisibilityPublic, Body: &graph.Body{Instructions: []*graph.Instruction{
		{OpCode: "call", Operand: &graph.MethodReference{DeclaringType: ref("App", "Util"), Name: "F", Parameters: []graph.TypeRef{i32}}},
	}}}
	util := &graph.Type{Namespace: "App", Name: "Util", Methods: []*graph.Method{f1, f2, f0}}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{caller}}
	asm := single(a, util)
	graph.Link(asm)
	p := policy.New(asm)

	coarse := New(p, canon.NewResolver(asm, canon.OverloadCoarse)).Walk(p.BuildRoots()...)
	assert.True(t, coarse.Contains(f1))
	assert.True(t, coarse.Contains(f2))
	assert.False(t, coarse.Contains(f0), "different parameter count")

	strict := New(p, canon.NewResolver(asm, canon.OverloadStrict)).Walk(p.BuildRoots()...)
	assert.True(t, strict.Contains(f1))
	assert.False(t, strict.Contains(f2))
}

func TestWalk_AttributesAndNamedArguments(t *testing.T) {
	level := &graph.Field{Name: "Level"}
	nameProp := &graph.Property{Name: "Name"}
	unused := &graph.Field{Name: "Unused"}
	attrType := &graph.Type{
		Namespace: "App", Name: "TagAttribute",
		Fields:     []*graph.Field{level, unused},
		Properties: []*graph.Property{nameProp},
	}
	payload := &graph.Type{Namespace: "App", Name: "Payload"}
	boxed := &graph.Type{Namespace: "App", Name: "Boxed"}
	element := &graph.Type{Namespace: "App", Name: "Element"}
	ctor := &graph.Method{Name: graph.ConstructorName, Visibility: graph.VisibilityPublic}
	ctor2 := &graph.Method{Name: graph.ConstructorName, Parameters: []*graph.Parameter{{Name: "x"}}}
	attrType.Methods = []*graph.Method{ctor, ctor2}

	attr := &graph.Attribute{
		Constructor: &graph.MethodReference{DeclaringType: ref("App", "TagAttribute"), Name: graph.ConstructorName},
		Arguments: []*graph.AttributeArgument{
			{Type: ref("System", "Type"), Value: ref("App", "Payload")},
			{Type: ref("System", "Object"), Boxed: &graph.AttributeArgument{Value: ref("App", "Boxed")}},
			{Elements: []*graph.AttributeArgument{{Value: ref("App", "Element")}}},
		},
		Fields:     []*graph.NamedArgument{{Name: "Level", Argument: &graph.AttributeArgument{Value: &graph.Constant{Value: 3}}}},
		Properties: []*graph.NamedArgument{{Name: "Name", Argument: &graph.AttributeArgument{Value: &graph.Constant{Value: "x"}}}},
	}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Attributes: []*graph.Attribute{attr}}
	w, p := newWalker(single(a, attrType, payload, boxed, element))

	set := w.Walk(p.BuildRoots()...)

	assert.True(t, set.Contains(attr))
	assert.True(t, set.Contains(attrType), "attribute class reached through the constructor")
	assert.True(t, set.Contains(ctor))
	assert.True(t, set.Contains(payload), "typeof argument")
	assert.True(t, set.Contains(boxed), "boxed argument")
	assert.True(t, set.Contains(element), "array element")
	assert.True(t, set.Contains(level), "named field")
	assert.True(t, set.Contains(nameProp), "named property")
	assert.False(t, set.Contains(unused))
}

func TestWalk_TypeMembersFilteredByClass(t *testing.T) {
	virt := &graph.Method{Name: "Apply", Flags: graph.MethodVirtual}
	cctor := &graph.Method{Name: graph.StaticConstructorName, Flags: graph.MethodStatic}
	private := &graph.Method{Name: "Private"}
	hidden := &graph.Type{Namespace: "App", Name: "Hidden", Methods: []*graph.Method{virt, cctor, private}}
	use := &graph.Method{Name: "Use", Visibility: graph.VisibilityPublic, ReturnType: ref("App", "Hidden")}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{use}}
	w, p := newWalker(single(a, hidden))

	set := w.Walk(p.BuildRoots()...)
	assert.True(t, set.Contains(hidden))
	assert.True(t, set.Contains(virt), "anchored virtual rides with its type")
	assert.True(t, set.Contains(cctor), "anchored static constructor rides with its type")
	assert.False(t, set.Contains(private))
}

func TestWalk_MemberPullsDeclaringChain(t *testing.T) {
	inner := &graph.Method{Name: "Callback", Attributes: []*graph.Attribute{{
		Type: &graph.TypeReference{Namespace: "JetBrains.Annotations", Name: "UsedImplicitlyAttribute"},
	}}}
	nested := &graph.Type{Name: "Nested", Methods: []*graph.Method{inner}}
	outer := &graph.Type{Namespace: "App", Name: "Outer", NestedTypes: []*graph.Type{nested}}
	w, p := newWalker(single(outer))

	set := w.Walk(p.BuildRoots()...)
	assert.True(t, set.Contains(inner))
	assert.True(t, set.Contains(nested))
	assert.True(t, set.Contains(outer))
}

func TestWalk_BodyAndDebugInfo(t *testing.T) {
	exType := &graph.Type{Namespace: "App", Name: "Oops"}
	local := &graph.Type{Namespace: "App", Name: "Local"}
	constType := &graph.Type{Namespace: "App", Name: "ConstType"}
	kickoff := &graph.Method{Name: "Kickoff"}
	imported := &graph.Type{Namespace: "App", Name: "Imported"}

	start := &graph.Instruction{Offset: 0, OpCode: "nop"}
	end := &graph.Instruction{Offset: 1, OpCode: "ret"}
	imports := &graph.ImportScope{Targets: []*graph.ImportTarget{{ImportKind: graph.ImportType, Type: ref("App", "Imported")}}}
	m := &graph.Method{
		Name: "Run", Visibility: graph.VisibilityPublic,
		Body: &graph.Body{
			Variables:    []*graph.Variable{{Name: "l", VariableType: ref("App", "Local")}},
			Instructions: []*graph.Instruction{start, end},
			Handlers:     []*graph.ExceptionHandler{{HandlerKind: graph.HandlerCatch, CatchType: ref("App", "Oops"), TryStart: start, TryEnd: end}},
		},
		Debug: &graph.MethodDebugInfo{
			KickoffMethod: &graph.MethodReference{DeclaringType: ref("App", "A"), Name: "Kickoff"},
			Scope: &graph.Scope{
				Import:    imports,
				Constants: []*graph.DebugConstant{{Name: "k", ConstantType: ref("App", "ConstType")}},
			},
		},
	}
	a := &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{m, kickoff}}
	w, p := newWalker(single(a, exType, local, constType, imported))

	set := w.Walk(p.BuildRoots()...)
	assert.True(t, set.Contains(exType))
	assert.True(t, set.Contains(local))
	assert.True(t, set.Contains(constType))
	assert.True(t, set.Contains(kickoff))
	assert.True(t, set.Contains(imports.Targets[0]))
	assert.False(t, set.Contains(imported), "import targets are weak edges")

	require.Len(t, w.WeakImports(), 1)
	assert.Equal(t, 1, w.Stats().WeakImports)
}

func TestWalk_OverrideEdges(t *testing.T) {
	baseRun := &graph.Method{Name: "Run", Flags: graph.MethodVirtual}
	base := &graph.Type{Namespace: "App", Name: "Base", Methods: []*graph.Method{baseRun}}
	derivedRun := &graph.Method{Name: "Run", Flags: graph.MethodVirtual,
		Overrides: []graph.MethodRef{&graph.MethodReference{DeclaringType: ref("App", "Base"), Name: "Run"}}}
	derived := &graph.Type{Namespace: "App", Name: "Derived", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{derivedRun}}
	w, p := newWalker(single(base, derived))

	set := w.Walk(p.BuildRoots()...)
	assert.True(t, set.Contains(derivedRun))
	assert.True(t, set.Contains(baseRun))
	assert.True(t, set.Contains(base))
}

func TestWalk_NilAndTypedNilRoots(t *testing.T) {
	w, _ := newWalker(single())
	assert.NotPanics(t, func() {
		w.Walk(nil, (*graph.Type)(nil), &graph.Constant{Value: 1})
	})
	assert.Zero(t, w.Set().Len())
}
