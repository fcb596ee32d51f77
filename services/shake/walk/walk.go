// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package walk implements the mark phase: the transitive closure of every
// symbol reachable from a root set.
package walk

import (
	"github.com/AleutianAI/shake/services/shake/canon"
	"github.com/AleutianAI/shake/services/shake/graph"
	"github.com/AleutianAI/shake/services/shake/policy"
)

// Classifier decides which members of a visited type are walked with it.
type Classifier interface {
	Classify(s graph.Symbol) policy.Class
}

// Stats summarizes the work done by a Walker.
type Stats struct {
	// Visited is the number of distinct definitions marked.
	Visited int `json:"visited"`

	// Expanded is the number of reference objects expanded.
	Expanded int `json:"expanded"`

	// Resolved counts references that resolved to at least one definition.
	Resolved int `json:"resolved"`

	// Unresolved counts references that resolved to nothing.
	Unresolved int `json:"unresolved"`

	// WeakImports counts import targets recorded without marking.
	WeakImports int `json:"weak_imports"`
}

// Walker computes the reachable set of one graph.
//
// Description:
//
//	Walking is an iterative depth-first search over an explicit stack.
//	Definitions are test-and-set in a canon.Set by structural key and are
//	expanded only on first insertion. Reference objects (type specs,
//	member references, call sites) are not graph nodes: each object is
//	expanded once into its parts and the definitions it resolves to.
//
//	Every definition pushes, in order: its custom attributes, its parent,
//	then its kind-specific edges. Members of a visited type are pushed only
//	when the classifier reports Root or Anchored.
//
//	Debug import targets are weak: the target itself is marked, the type
//	it imports is not.
//
// Thread Safety: NOT safe for concurrent use. One Walker per run.
type Walker struct {
	classifier Classifier
	resolver   *canon.Resolver
	set        *canon.Set

	expanded map[graph.Symbol]struct{}
	weak     []*graph.ImportTarget
	stack    []graph.Symbol
	scratch  []graph.Symbol
	stats    Stats
}

// New creates a Walker that accumulates into a fresh set.
//
// Inputs:
//
//	classifier - Decides which members ride along with their type.
//	resolver - Maps references to definitions.
//
// Outputs:
//
//	*Walker - Ready to use.
func New(classifier Classifier, resolver *canon.Resolver) *Walker {
	return &Walker{
		classifier: classifier,
		resolver:   resolver,
		set:        canon.NewSet(),
		expanded:   make(map[graph.Symbol]struct{}),
	}
}

// Set returns the reachable set accumulated so far.
func (w *Walker) Set() *canon.Set { return w.set }

// Stats returns counters for the work done so far.
func (w *Walker) Stats() Stats {
	s := w.stats
	s.Visited = w.set.Len()
	s.WeakImports = len(w.weak)
	return s
}

// WeakImports returns the import targets recorded during the walk.
func (w *Walker) WeakImports() []*graph.ImportTarget {
	out := make([]*graph.ImportTarget, len(w.weak))
	copy(out, w.weak)
	return out
}

// Walk marks everything reachable from roots and returns the accumulated
// set. Calling Walk again with the same roots changes nothing; calling it
// with more roots only adds.
func (w *Walker) Walk(roots ...graph.Symbol) *canon.Set {
	for i := len(roots) - 1; i >= 0; i-- {
		w.push(roots[i])
	}
	for len(w.stack) > 0 {
		s := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		w.visit(s)
	}
	return w.set
}

func (w *Walker) push(s graph.Symbol) {
	if !graph.IsNil(s) {
		w.stack = append(w.stack, s)
	}
}

// visit is the single dispatch point for every symbol kind.
func (w *Walker) visit(s graph.Symbol) {
	w.scratch = w.scratch[:0]
	if s.Kind().IsReference() {
		if _, ok := w.expanded[s]; ok {
			return
		}
		w.expanded[s] = struct{}{}
		w.stats.Expanded++
		w.referenceEdges(s)
	} else {
		if !w.set.Add(s) {
			return
		}
		for _, a := range graph.Attributes(s) {
			w.edge(a)
		}
		w.edge(graph.Parent(s))
		w.definitionEdges(s)
	}
	for i := len(w.scratch) - 1; i >= 0; i-- {
		w.push(w.scratch[i])
	}
}

// edge queues s to be visited after the current symbol's earlier edges.
func (w *Walker) edge(s graph.Symbol) {
	if !graph.IsNil(s) {
		w.scratch = append(w.scratch, s)
	}
}

func (w *Walker) attributes(list []*graph.Attribute) {
	for _, a := range list {
		w.edge(a)
	}
}

func (w *Walker) types(list []graph.TypeRef) {
	for _, t := range list {
		w.edge(t)
	}
}

func (w *Walker) member(s graph.Symbol) {
	if !graph.IsNil(s) && w.classifier.Classify(s) != policy.NotRoot {
		w.edge(s)
	}
}

// =============================================================================
// DEFINITIONS
// =============================================================================

func (w *Walker) definitionEdges(s graph.Symbol) {
	switch v := s.(type) {
	case *graph.Assembly:
		w.attributes(v.Security)
		for _, m := range v.Modules {
			w.edge(m)
		}
		w.edge(v.EntryPoint)
	case *graph.Module:
		for _, t := range v.Types {
			w.member(t)
		}
		w.edge(v.EntryPoint)
		for _, is := range v.Imports {
			w.edge(is)
		}
	case *graph.Type:
		w.typeEdges(v)
	case *graph.InterfaceImpl:
		w.edge(v.Interface)
	case *graph.Field:
		w.edge(v.FieldType)
		w.edge(v.Constant)
	case *graph.Method:
		w.methodEdges(v)
	case *graph.Property:
		w.edge(v.PropertyType)
		for _, m := range v.Accessors() {
			w.edge(m)
		}
		for _, p := range v.Parameters {
			w.edge(p)
		}
		w.edge(v.Constant)
	case *graph.Event:
		w.edge(v.EventType)
		for _, m := range v.Accessors() {
			w.edge(m)
		}
	case *graph.Parameter:
		w.edge(v.ParameterType)
		w.edge(v.Constant)
	case *graph.GenericParameter:
		for _, c := range v.Constraints {
			w.edge(c)
		}
	case *graph.GenericConstraint:
		w.edge(v.ConstraintType)
	case *graph.Attribute:
		w.attributeEdges(v)
	case *graph.Variable:
		w.edge(v.VariableType)
	case *graph.Instruction:
		w.edge(v.Operand)
		for _, target := range v.Targets {
			w.edge(target)
		}
	case *graph.ExceptionHandler:
		w.edge(v.CatchType)
		w.edge(v.TryStart)
		w.edge(v.TryEnd)
		w.edge(v.HandlerStart)
		w.edge(v.HandlerEnd)
		w.edge(v.FilterStart)
	case *graph.Scope:
		w.edge(v.Import)
		for _, c := range v.Constants {
			w.edge(c)
		}
		for _, child := range v.Scopes {
			w.edge(child)
		}
	case *graph.DebugConstant:
		w.edge(v.ConstantType)
		w.edge(v.Value)
	case *graph.ImportScope:
		w.edge(v.Parent)
		for _, it := range v.Targets {
			w.edge(it)
		}
	case *graph.ImportTarget:
		w.weak = append(w.weak, v)
	}
}

func (w *Walker) typeEdges(t *graph.Type) {
	w.edge(t.BaseType)
	for _, ii := range t.Interfaces {
		w.edge(ii)
	}
	for _, gp := range t.GenericParameters {
		w.edge(gp)
	}
	w.attributes(t.Security)
	for _, f := range t.Fields {
		w.member(f)
	}
	for _, e := range t.Events {
		w.member(e)
	}
	for _, m := range t.Methods {
		w.member(m)
	}
	for _, p := range t.Properties {
		w.member(p)
	}
	for _, nt := range t.NestedTypes {
		w.member(nt)
	}
}

func (w *Walker) methodEdges(m *graph.Method) {
	w.edge(m.ReturnType)
	w.attributes(m.ReturnAttributes)
	for _, p := range m.Parameters {
		w.edge(p)
	}
	for _, gp := range m.GenericParameters {
		w.edge(gp)
	}
	for _, o := range m.Overrides {
		w.edge(o)
	}
	w.attributes(m.Security)
	if b := m.Body; b != nil {
		for _, h := range b.Handlers {
			w.edge(h)
		}
		for _, v := range b.Variables {
			w.edge(v)
		}
		for _, ins := range b.Instructions {
			w.edge(ins)
		}
	}
	if d := m.Debug; d != nil {
		w.edge(d.Scope)
		w.edge(d.KickoffMethod)
	}
}

// attributeEdges pushes the attribute class, its constructor, every value
// in the argument trees, and the fields and properties assigned by name.
func (w *Walker) attributeEdges(a *graph.Attribute) {
	attrType := graph.AttributeType(a)
	w.edge(attrType)
	w.edge(a.Constructor)

	seen := make(map[*graph.AttributeArgument]struct{})
	for _, arg := range a.Arguments {
		w.argument(arg, seen)
	}

	target := w.resolver.ResolveType(attrType)
	for _, na := range a.Fields {
		if na == nil {
			continue
		}
		w.argument(na.Argument, seen)
		if f := w.resolver.FindField(target, na.Name); f != nil {
			w.edge(f)
		}
	}
	for _, na := range a.Properties {
		if na == nil {
			continue
		}
		w.argument(na.Argument, seen)
		if p := w.resolver.FindProperty(target, na.Name); p != nil {
			w.edge(p)
		}
	}
}

// argument pushes the types and values of an attribute argument tree.
func (w *Walker) argument(arg *graph.AttributeArgument, seen map[*graph.AttributeArgument]struct{}) {
	if arg == nil {
		return
	}
	if _, ok := seen[arg]; ok {
		return
	}
	seen[arg] = struct{}{}
	w.edge(arg.Type)
	w.edge(arg.Value)
	w.argument(arg.Boxed, seen)
	for _, el := range arg.Elements {
		w.argument(el, seen)
	}
}

// =============================================================================
// REFERENCES
// =============================================================================

// referenceEdges pushes the parts of a reference object, then every
// definition it resolves to. A generic instance contributes its open
// element and its arguments separately; the instance itself is never a
// node.
func (w *Walker) referenceEdges(s graph.Symbol) {
	switch v := s.(type) {
	case *graph.TypeReference:
		if v.DeclaringType != nil {
			w.edge(v.DeclaringType)
		}
		w.resolved(w.resolver.ResolveAll(v))
	case *graph.TypeSpec:
		w.edge(v.Element)
		w.types(v.Arguments)
	case *graph.MethodReference:
		w.edge(v.DeclaringType)
		w.edge(v.ReturnType)
		w.types(v.Parameters)
		w.resolved(w.resolver.ResolveAll(v))
	case *graph.GenericMethodInstance:
		w.edge(v.Element)
		w.types(v.Arguments)
	case *graph.FieldReference:
		w.edge(v.DeclaringType)
		w.edge(v.FieldType)
		w.resolved(w.resolver.ResolveAll(v))
	case *graph.CallSite:
		w.edge(v.ReturnType)
		w.types(v.Parameters)
	}
}

func (w *Walker) resolved(defs []graph.Symbol) {
	if len(defs) == 0 {
		w.stats.Unresolved++
		return
	}
	w.stats.Resolved++
	for _, d := range defs {
		w.edge(d)
	}
}
