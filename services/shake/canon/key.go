// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package canon provides structural identity for graph symbols and
// resolution of references to the definitions they denote.
//
// Two symbols are the same node when their keys are equal. Keys are built
// from the declaring chain, kind, name, generic arity and parameter
// signature, never from pointer identity, so distinct reference objects for
// the same definition collapse to one node while overloads stay apart.
package canon

import (
	"fmt"
	"strconv"

	"github.com/AleutianAI/shake/services/shake/graph"
)

// Key returns the structural key of s.
//
// Description:
//
//	Definition keys (prefix, then the owner key, then a local name):
//
//	  asm:App                              assembly
//	  mod:App/App.dll                      module
//	  T:App|Ns.Outer`1/Inner               type of the manifest module
//	  T:App/Extra.dll|Ns.Helper            type of another module
//	  M:<type>::Name`1(!0,System.String)->System.Void   method
//	  F:<type>::name  P:<type>::Item(...)  E:<type>::Changed
//	  GP:<owner>!0   GC:<gp>#0   II:<type>#0   PA:<owner>#0
//	  A:<owner>#0    V:<method>#0   I:<method>#3    H:<method>#0
//	  S:<method>#0   DC:<scope>#0   IS:<module>#0   IT:<import>#0
//
//	References get an R: key from their kind and canonical name. A
//	definition whose back-references are missing (not linked) falls back
//	to a pointer key, which is unique but not structural.
//
// Inputs:
//
//	s - Any symbol. nil yields "".
//
// Outputs:
//
//	string - The key.
func Key(s graph.Symbol) string {
	return keyer{}.key(s)
}

// keyer memoizes owner keys when non-nil.
type keyer struct {
	memo map[graph.Symbol]string
}

func (k keyer) key(s graph.Symbol) string {
	if graph.IsNil(s) {
		return ""
	}
	if k.memo != nil {
		if v, ok := k.memo[s]; ok {
			return v
		}
	}
	v := k.compute(s)
	if k.memo != nil {
		k.memo[s] = v
	}
	return v
}

func (k keyer) compute(s graph.Symbol) string {
	switch v := s.(type) {
	case *graph.Assembly:
		return "asm:" + v.Name
	case *graph.Module:
		if v.Assembly == nil {
			return pointerKey(s)
		}
		return "mod:" + v.Assembly.Name + "/" + v.Name
	case *graph.Type:
		if v.Module == nil || v.Module.Assembly == nil {
			return pointerKey(s)
		}
		return "T:" + typeScope(v.Module) + "|" + graph.TypeName(v)
	case *graph.Method:
		if v.DeclaringType == nil {
			return pointerKey(s)
		}
		name := v.Name
		if v.Arity() > 0 {
			name += "`" + strconv.Itoa(v.Arity())
		}
		key := "M:" + k.key(v.DeclaringType) + "::" + name +
			graph.ParameterList(graph.ParameterTypes(v.Parameters))
		if !graph.IsNil(v.ReturnType) {
			key += "->" + graph.TypeName(v.ReturnType)
		}
		return key
	case *graph.Field:
		return k.member("F:", v.DeclaringType, v.Name, s)
	case *graph.Property:
		key := k.member("P:", v.DeclaringType, v.Name, s)
		if len(v.Parameters) > 0 && v.DeclaringType != nil {
			key += graph.ParameterList(graph.ParameterTypes(v.Parameters))
		}
		return key
	case *graph.Event:
		return k.member("E:", v.DeclaringType, v.Name, s)
	case *graph.GenericParameter:
		return k.child("GP:", v.Owner, "!", v.Position, s)
	case *graph.GenericConstraint:
		return k.child("GC:", v.Owner, "#", v.Index, s)
	case *graph.InterfaceImpl:
		return k.child("II:", v.Owner, "#", v.Index, s)
	case *graph.Parameter:
		return k.child("PA:", v.Owner, "#", v.Index, s)
	case *graph.Attribute:
		return k.child("A:", v.Owner, "#", v.Index, s)
	case *graph.Variable:
		return k.child("V:", bodyOwner(v.Body), "#", v.Index, s)
	case *graph.Instruction:
		return k.child("I:", bodyOwner(v.Body), "#", v.Index, s)
	case *graph.ExceptionHandler:
		return k.child("H:", bodyOwner(v.Body), "#", v.Index, s)
	case *graph.Scope:
		return k.child("S:", v.Method, "#", v.Index, s)
	case *graph.DebugConstant:
		return k.child("DC:", v.Scope, "#", v.Index, s)
	case *graph.ImportScope:
		return k.child("IS:", v.Module, "#", v.Index, s)
	case *graph.ImportTarget:
		return k.child("IT:", v.Scope, "#", v.Index, s)
	case *graph.Constant:
		return pointerKey(s)
	default:
		return "R:" + s.Kind().String() + ":" + graph.FullName(s)
	}
}

func (k keyer) member(prefix string, t *graph.Type, name string, s graph.Symbol) string {
	if t == nil {
		return pointerKey(s)
	}
	return prefix + k.key(t) + "::" + name
}

func (k keyer) child(prefix string, owner graph.Symbol, sep string, idx int, s graph.Symbol) string {
	if graph.IsNil(owner) {
		return pointerKey(s)
	}
	return prefix + k.key(owner) + sep + strconv.Itoa(idx)
}

// typeScope is the assembly name for types of the manifest module and
// assembly/module for the others, so same-named types of two modules
// stay apart.
func typeScope(mod *graph.Module) string {
	asm := mod.Assembly
	if len(asm.Modules) > 0 && asm.Modules[0] == mod {
		return asm.Name
	}
	return asm.Name + "/" + mod.Name
}

func bodyOwner(b *graph.Body) graph.Symbol {
	if b == nil || b.Method == nil {
		return nil
	}
	return b.Method
}

func pointerKey(s graph.Symbol) string {
	return fmt.Sprintf("%s@%p", s.Kind(), s)
}
