// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shake

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shake/services/shake/config"
	"github.com/AleutianAI/shake/services/shake/graph"
	"github.com/AleutianAI/shake/services/shake/policy"
	"github.com/AleutianAI/shake/services/shake/sweep"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ref(ns, name string) *graph.TypeReference {
	return &graph.TypeReference{Namespace: ns, Name: name}
}

// basicGraph builds public A with public M referencing private B, plus an
// unreferenced private C.
func basicGraph() (asm *graph.Assembly, a, b, c *graph.Type) {
	m := &graph.Method{
		Name: "M", Visibility: graph.VisibilityPublic,
		Body: &graph.Body{Instructions: []*graph.Instruction{
			{Offset: 0, OpCode: "ldtoken", Operand: ref("App", "B")},
			{Offset: 5, OpCode: "ret"},
		}},
	}
	a = &graph.Type{Namespace: "App", Name: "A", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{m}}
	b = &graph.Type{Namespace: "App", Name: "B"}
	c = &graph.Type{Namespace: "App", Name: "C"}
	asm = &graph.Assembly{Name: "App", Modules: []*graph.Module{{Name: "App.dll", Types: []*graph.Type{a, b, c}}}}
	return asm, a, b, c
}

func names(removals []sweep.Removal) []string {
	out := make([]string, len(removals))
	for i, r := range removals {
		out[i] = r.Name
	}
	return out
}

func TestNewEngine_NilGraph(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrNilGraph)
}

func TestEngine_PublicMethodKeepsReferencedType(t *testing.T) {
	asm, a, b, c := basicGraph()
	e, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)

	var removed []sweep.Removal
	report, err := e.Run(context.Background(), func(r sweep.Removal) { removed = append(removed, r) })
	require.NoError(t, err)

	types := asm.Modules[0].Types
	assert.Contains(t, types, a)
	assert.Contains(t, types, b)
	assert.NotContains(t, types, c)

	require.Len(t, removed, 1)
	assert.Equal(t, "App.C", removed[0].Name)
	assert.Equal(t, graph.KindType, removed[0].Kind)
	assert.Equal(t, removed, report.Removals)
	assert.Equal(t, 1, report.Result.Total)
	assert.Equal(t, "App", report.Assembly)
	assert.Positive(t, report.Roots)
	assert.Positive(t, report.Reached)
}

func TestEngine_ReturnTypeOverloadsWalkedSeparately(t *testing.T) {
	i32 := &graph.TypeReference{Scope: "System.Runtime", Namespace: "System", Name: "Int32"}
	str := &graph.TypeReference{Scope: "System.Runtime", Namespace: "System", Name: "String"}
	conversion := func(ret graph.TypeRef, target string) *graph.Method {
		return &graph.Method{
			Name: "op_Implicit", Visibility: graph.VisibilityPublic, ReturnType: ret,
			Parameters: []*graph.Parameter{{ParameterType: ref("App", "Conv")}},
			Body: &graph.Body{Instructions: []*graph.Instruction{
				{Offset: 0, OpCode: "ldtoken", Operand: ref("App", target)},
				{Offset: 5, OpCode: "ret"},
			}},
		}
	}
	toInt := conversion(i32, "X1")
	toStr := conversion(str, "X2")
	conv := &graph.Type{Namespace: "App", Name: "Conv", Visibility: graph.VisibilityPublic, Methods: []*graph.Method{toInt, toStr}}
	x1 := &graph.Type{Namespace: "App", Name: "X1"}
	x2 := &graph.Type{Namespace: "App", Name: "X2"}
	asm := &graph.Assembly{Name: "App", Modules: []*graph.Module{{Name: "App.dll", Types: []*graph.Type{conv, x1, x2}}}}

	e, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)
	report, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []*graph.Method{toInt, toStr}, conv.Methods)
	assert.Equal(t, []*graph.Type{conv, x1, x2}, asm.Modules[0].Types)
	assert.Empty(t, report.Removals)
}

func TestEngine_ExceptionKeepsUnreachedType(t *testing.T) {
	asm, _, _, c := basicGraph()
	e, err := NewEngine(asm, WithLogger(quietLogger()), WithExceptions("App.C"))
	require.NoError(t, err)

	var removed []sweep.Removal
	_, err = e.Run(context.Background(), func(r sweep.Removal) { removed = append(removed, r) })
	require.NoError(t, err)

	assert.Contains(t, asm.Modules[0].Types, c)
	assert.Empty(t, removed)
}

func TestEngine_MarkedNestedTypeRetained(t *testing.T) {
	handle := &graph.Method{
		Name:       "Handle",
		Attributes: []*graph.Attribute{{Type: ref("JetBrains.Annotations", "UsedImplicitlyAttribute")}},
	}
	hidden := &graph.Type{Name: "Hidden", Methods: []*graph.Method{handle}}
	outer := &graph.Type{Namespace: "App", Name: "Outer", NestedTypes: []*graph.Type{hidden}}
	asm := &graph.Assembly{Name: "App", Modules: []*graph.Module{{Name: "App.dll", Types: []*graph.Type{outer}}}}

	e, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)
	report, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, report.Result.Total)
	assert.Equal(t, []*graph.Type{outer}, asm.Modules[0].Types)
	assert.Equal(t, []*graph.Type{hidden}, outer.NestedTypes)
	assert.Equal(t, []*graph.Method{handle}, hidden.Methods)
}

func TestEngine_OverrideOfReachableVirtualRetained(t *testing.T) {
	run := &graph.Method{Name: "Run", Visibility: graph.VisibilityPublic, Flags: graph.MethodVirtual | graph.MethodNewSlot}
	create := &graph.Method{
		Name: "Create", Visibility: graph.VisibilityPublic, Flags: graph.MethodStatic,
		Body: &graph.Body{Instructions: []*graph.Instruction{
			{Offset: 0, OpCode: "newobj", Operand: &graph.MethodReference{DeclaringType: ref("App", "Impl"), Name: graph.ConstructorName}},
			{Offset: 5, OpCode: "ret"},
		}},
	}
	base := &graph.Type{
		Namespace: "App", Name: "Base", Visibility: graph.VisibilityPublic,
		Flags:   graph.TypeAbstract,
		Methods: []*graph.Method{run, create},
	}

	ctor := &graph.Method{Name: graph.ConstructorName, Visibility: graph.VisibilityAssembly}
	override := &graph.Method{
		Name: "Override", Visibility: graph.VisibilityPrivate,
		Flags:     graph.MethodVirtual | graph.MethodFinal,
		Overrides: []graph.MethodRef{&graph.MethodReference{DeclaringType: ref("App", "Base"), Name: "Run"}},
	}
	helper := &graph.Method{Name: "Helper", Visibility: graph.VisibilityPrivate}
	impl := &graph.Type{
		Namespace: "App", Name: "Impl", Visibility: graph.VisibilityAssembly,
		BaseType: ref("App", "Base"),
		Methods:  []*graph.Method{ctor, override, helper},
	}
	asm := &graph.Assembly{Name: "App", Modules: []*graph.Module{{Name: "App.dll", Types: []*graph.Type{base, impl}}}}

	e, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)
	report, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Contains(t, asm.Modules[0].Types, impl)
	assert.Equal(t, []*graph.Method{ctor, override}, impl.Methods)
	assert.Equal(t, []string{"App.Impl::Helper()"}, names(report.Removals))
}

func TestEngine_MalformedExceptionIgnored(t *testing.T) {
	asm, _, _, c := basicGraph()

	var sunk []error
	e, err := NewEngine(asm,
		WithLogger(quietLogger()),
		WithExceptions("re:[ App.C"),
		WithErrorSink(func(err error) { sunk = append(sunk, err) }),
	)
	require.NoError(t, err)

	report, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, sunk, 1)
	assert.ErrorIs(t, sunk[0], policy.ErrInvalidPattern)
	assert.Len(t, report.ConfigErrors, 1)
	assert.Contains(t, asm.Modules[0].Types, c)
}

func TestEngine_RunTwice(t *testing.T) {
	asm, _, _, _ := basicGraph()
	e, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = e.Run(context.Background(), nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEngineUsed)
}

func TestEngine_CancelledBeforeSweep(t *testing.T) {
	asm, _, _, c := basicGraph()
	e, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, asm.Modules[0].Types, c)
}

func TestEngine_SecondPassRemovesNothing(t *testing.T) {
	asm, _, _, _ := basicGraph()
	first, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = first.Run(context.Background(), nil)
	require.NoError(t, err)

	second, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)
	report, err := second.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Result.Total)
	assert.Empty(t, report.Removals)
}

func TestEngine_StepwiseMatchesRun(t *testing.T) {
	asm, _, b, c := basicGraph()
	e, err := NewEngine(asm, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx := context.Background()
	roots := e.BuildRoots(ctx)
	require.NotEmpty(t, roots)
	assert.Same(t, asm, roots[0])

	set := e.Walk(ctx, roots)
	assert.True(t, set.Contains(b))
	assert.False(t, set.Contains(c))

	res := e.Sweep(ctx, set, nil)
	assert.Equal(t, 1, res.Total)
	assert.NotContains(t, asm.Modules[0].Types, c)
}

func TestEngine_WithConfig(t *testing.T) {
	asm, _, _, c := basicGraph()
	cfg := config.Default()
	cfg.Except = []string{"App.C"}

	e, err := NewEngine(asm, WithLogger(quietLogger()), WithConfig(cfg))
	require.NoError(t, err)
	_, err = e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, asm.Modules[0].Types, c)
}

func TestEngine_CustomMarkers(t *testing.T) {
	keep := &graph.Type{
		Namespace:  "App", Name: "Plugin",
		Attributes: []*graph.Attribute{{Type: ref("App", "PluginAttribute")}},
	}
	asm := &graph.Assembly{Name: "App", Modules: []*graph.Module{{Name: "App.dll", Types: []*graph.Type{keep}}}}

	e, err := NewEngine(asm, WithLogger(quietLogger()), WithMarkers("App.PluginAttribute"))
	require.NoError(t, err)
	report, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Result.Total)
}
