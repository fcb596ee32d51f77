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

import (
	"fmt"
	"strings"
)

// =============================================================================
// Nil and containment helpers
// =============================================================================

// IsNil reports whether s is nil or a typed nil pointer.
//
// Description:
//
//	Struct fields of interface type (TypeRef, MethodRef, Symbol) may hold a
//	typed nil pointer when a host assigns a nil *Type or *Method to them.
//	Such a value compares non-nil but must be treated as absent.
//
//	Symbol is a closed set of pointer types, so the check is a type switch.
func IsNil(s Symbol) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *Assembly:
		return v == nil
	case *Module:
		return v == nil
	case *Type:
		return v == nil
	case *InterfaceImpl:
		return v == nil
	case *Field:
		return v == nil
	case *Method:
		return v == nil
	case *Property:
		return v == nil
	case *Event:
		return v == nil
	case *Parameter:
		return v == nil
	case *GenericParameter:
		return v == nil
	case *GenericConstraint:
		return v == nil
	case *Attribute:
		return v == nil
	case *Variable:
		return v == nil
	case *Instruction:
		return v == nil
	case *ExceptionHandler:
		return v == nil
	case *Scope:
		return v == nil
	case *DebugConstant:
		return v == nil
	case *ImportScope:
		return v == nil
	case *ImportTarget:
		return v == nil
	case *TypeReference:
		return v == nil
	case *TypeSpec:
		return v == nil
	case *GenericParameterReference:
		return v == nil
	case *MethodReference:
		return v == nil
	case *GenericMethodInstance:
		return v == nil
	case *FieldReference:
		return v == nil
	case *CallSite:
		return v == nil
	case *Constant:
		return v == nil
	default:
		return false
	}
}

// Parent returns the declaring or enclosing symbol of s, or nil for the
// assembly and for references.
func Parent(s Symbol) Symbol {
	switch v := s.(type) {
	case *Module:
		return nonNil(v.Assembly)
	case *Type:
		if v.DeclaringType != nil {
			return v.DeclaringType
		}
		return nonNil(v.Module)
	case *InterfaceImpl:
		return nonNil(v.Owner)
	case *Field:
		return nonNil(v.DeclaringType)
	case *Method:
		return nonNil(v.DeclaringType)
	case *Property:
		return nonNil(v.DeclaringType)
	case *Event:
		return nonNil(v.DeclaringType)
	case *Parameter:
		return nonNil(v.Owner)
	case *GenericParameter:
		return nonNil(v.Owner)
	case *GenericConstraint:
		return nonNil(v.Owner)
	case *Attribute:
		return nonNil(v.Owner)
	case *Variable:
		return bodyMethod(v.Body)
	case *Instruction:
		return bodyMethod(v.Body)
	case *ExceptionHandler:
		return bodyMethod(v.Body)
	case *Scope:
		return nonNil(v.Method)
	case *DebugConstant:
		return nonNil(v.Scope)
	case *ImportScope:
		return nonNil(v.Module)
	case *ImportTarget:
		return nonNil(v.Scope)
	default:
		return nil
	}
}

// nonNil converts a typed nil pointer to an untyped nil Symbol.
func nonNil(s Symbol) Symbol {
	if IsNil(s) {
		return nil
	}
	return s
}

func bodyMethod(b *Body) Symbol {
	if b == nil || b.Method == nil {
		return nil
	}
	return b.Method
}

// Attributes returns the custom attributes applied directly to s. Security
// and return-value attributes are not included.
func Attributes(s Symbol) []*Attribute {
	switch v := s.(type) {
	case *Assembly:
		return v.Attributes
	case *Module:
		return v.Attributes
	case *Type:
		return v.Attributes
	case *InterfaceImpl:
		return v.Attributes
	case *Field:
		return v.Attributes
	case *Method:
		return v.Attributes
	case *Property:
		return v.Attributes
	case *Event:
		return v.Attributes
	case *Parameter:
		return v.Attributes
	case *GenericParameter:
		return v.Attributes
	case *GenericConstraint:
		return v.Attributes
	default:
		return nil
	}
}

// DeclaringType returns the type that declares s, or nil.
func DeclaringType(s Symbol) *Type {
	for p := Parent(s); p != nil; p = Parent(p) {
		if t, ok := p.(*Type); ok {
			return t
		}
	}
	return nil
}

// Attached reports whether the definition s is still contained in its
// graph: every container on its declaring chain still lists it.
//
// Description:
//
//	Used after a sweep to detect references to removed definitions. Symbols
//	without a containment slot (parameters, attributes, body parts) are
//	attached when their parent is.
func Attached(s Symbol) bool {
	for !IsNil(s) {
		switch v := s.(type) {
		case *Assembly:
			return true
		case *Module:
			return v.Assembly != nil && contains(v.Assembly.Modules, v)
		case *Type:
			if v.DeclaringType != nil {
				if !contains(v.DeclaringType.NestedTypes, v) {
					return false
				}
			} else if v.Module == nil || !contains(v.Module.Types, v) {
				return false
			}
		case *Field:
			if v.DeclaringType == nil || !contains(v.DeclaringType.Fields, v) {
				return false
			}
		case *Method:
			if v.DeclaringType == nil || !contains(v.DeclaringType.Methods, v) {
				return false
			}
		case *Property:
			if v.DeclaringType == nil || !contains(v.DeclaringType.Properties, v) {
				return false
			}
		case *Event:
			if v.DeclaringType == nil || !contains(v.DeclaringType.Events, v) {
				return false
			}
		}
		s = Parent(s)
	}
	return false
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// =============================================================================
// Names
// =============================================================================

// TypeName returns the canonical name of a type-valued symbol.
//
// Description:
//
//	Definitions and name-based references to the same type produce the same
//	string, so the result can be compared across the two. Format:
//
//	  Ns.Outer/Inner`1     definition or TypeReference
//	  !0 / !!0             type / method generic parameter
//	  Elem<A,B>            generic instance
//	  Elem[] Elem[,] Elem& Elem*
//
//	The assembly scope is not part of the name.
func TypeName(t TypeRef) string {
	var sb strings.Builder
	writeTypeName(&sb, t, 0)
	return sb.String()
}

// maxNameDepth bounds name construction over malformed, self-containing
// TypeSpecs. Well-formed specs are finite trees.
const maxNameDepth = 64

func writeTypeName(sb *strings.Builder, t TypeRef, depth int) {
	if IsNil(t) {
		sb.WriteString("?")
		return
	}
	if depth > maxNameDepth {
		sb.WriteString("...")
		return
	}
	switch v := t.(type) {
	case *Type:
		if v.DeclaringType != nil {
			writeTypeName(sb, v.DeclaringType, depth+1)
			sb.WriteByte('/')
		} else if v.Namespace != "" {
			sb.WriteString(v.Namespace)
			sb.WriteByte('.')
		}
		sb.WriteString(v.Name)
		writeArity(sb, v.Arity())
	case *TypeReference:
		if v.DeclaringType != nil {
			writeTypeName(sb, v.DeclaringType, depth+1)
			sb.WriteByte('/')
		} else if v.Namespace != "" {
			sb.WriteString(v.Namespace)
			sb.WriteByte('.')
		}
		sb.WriteString(v.Name)
		writeArity(sb, v.GenericArity)
	case *GenericParameter:
		if v.MethodLevel() {
			sb.WriteString("!!")
		} else {
			sb.WriteString("!")
		}
		fmt.Fprintf(sb, "%d", v.Position)
	case *GenericParameterReference:
		if v.MethodLevel {
			sb.WriteString("!!")
		} else {
			sb.WriteString("!")
		}
		fmt.Fprintf(sb, "%d", v.Position)
	case *TypeSpec:
		writeTypeName(sb, v.Element, depth+1)
		switch v.Shape {
		case ShapeGenericInstance:
			sb.WriteByte('<')
			for i, a := range v.Arguments {
				if i > 0 {
					sb.WriteByte(',')
				}
				writeTypeName(sb, a, depth+1)
			}
			sb.WriteByte('>')
		case ShapeArray:
			sb.WriteByte('[')
			if v.Rank > 1 {
				sb.WriteString(strings.Repeat(",", v.Rank-1))
			}
			sb.WriteByte(']')
		case ShapeByRef:
			sb.WriteByte('&')
		case ShapePointer:
			sb.WriteByte('*')
		}
	}
}

func writeArity(sb *strings.Builder, arity int) {
	if arity > 0 {
		fmt.Fprintf(sb, "`%d", arity)
	}
}

// ParameterList returns the canonical parameter signature "(A,B)".
func ParameterList(params []TypeRef) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = TypeName(p)
	}
	return "(" + strings.Join(names, ",") + ")"
}

// ParameterTypes returns the types of params in order.
func ParameterTypes(params []*Parameter) []TypeRef {
	out := make([]TypeRef, len(params))
	for i, p := range params {
		if p != nil {
			out[i] = p.ParameterType
		}
	}
	return out
}

// FullName returns the display name of s used in removal reports and
// exception matching.
//
// Types use their canonical name (Ns.Outer/Inner`1). Members are written
// as Type::Name, with the parameter list for methods and indexers. Other
// symbols are named after their owner.
func FullName(s Symbol) string {
	if IsNil(s) {
		return ""
	}
	switch v := s.(type) {
	case *Assembly:
		return v.Name
	case *Module:
		return v.Name
	case *Type:
		return TypeName(v)
	case *Field:
		return memberName(v.DeclaringType, v.Name)
	case *Method:
		return memberName(v.DeclaringType, v.Name) + ParameterList(ParameterTypes(v.Parameters))
	case *Property:
		name := memberName(v.DeclaringType, v.Name)
		if len(v.Parameters) > 0 {
			name += ParameterList(ParameterTypes(v.Parameters))
		}
		return name
	case *Event:
		return memberName(v.DeclaringType, v.Name)
	case *Parameter:
		return FullName(nonNil(v.Owner)) + "$" + v.Name
	case *GenericParameter:
		return FullName(nonNil(v.Owner)) + "$" + v.Name
	case *TypeReference, *TypeSpec, *GenericParameterReference:
		return TypeName(v.(TypeRef))
	case *MethodReference:
		return TypeName(v.DeclaringType) + "::" + v.Name + ParameterList(v.Parameters)
	case *FieldReference:
		return TypeName(v.DeclaringType) + "::" + v.Name
	default:
		if p := Parent(s); p != nil {
			return FullName(p) + "$" + s.Kind().String()
		}
		return s.Kind().String()
	}
}

func memberName(t *Type, name string) string {
	if t == nil {
		return name
	}
	return TypeName(t) + "::" + name
}

// SimpleName returns the unqualified name of s (no namespace, declaring
// type or arity suffix).
func SimpleName(s Symbol) string {
	switch v := s.(type) {
	case *Assembly:
		return v.Name
	case *Module:
		return v.Name
	case *Type:
		return v.Name
	case *Field:
		return v.Name
	case *Method:
		return v.Name
	case *Property:
		return v.Name
	case *Event:
		return v.Name
	case *Parameter:
		return v.Name
	case *GenericParameter:
		return v.Name
	case *Variable:
		return v.Name
	case *DebugConstant:
		return v.Name
	case *TypeReference:
		return v.Name
	case *MethodReference:
		return v.Name
	case *FieldReference:
		return v.Name
	default:
		return ""
	}
}

// QualifiedName returns the dotted source-style name of s, for example
// "Ns.Outer.Inner" or "Ns.Outer.Inner.Method".
func QualifiedName(s Symbol) string {
	switch v := s.(type) {
	case *Type:
		if v.DeclaringType != nil {
			return QualifiedName(v.DeclaringType) + "." + v.Name
		}
		if v.Namespace == "" {
			return v.Name
		}
		return v.Namespace + "." + v.Name
	case *Field, *Method, *Property, *Event:
		t := DeclaringType(s)
		if t == nil {
			return SimpleName(s)
		}
		return QualifiedName(t) + "." + SimpleName(s)
	default:
		return SimpleName(s)
	}
}

// Namespace returns the namespace of s. Nested types and members report
// the namespace of their outermost declaring type.
func Namespace(s Symbol) string {
	t, ok := s.(*Type)
	if !ok {
		t = DeclaringType(s)
	}
	if t == nil {
		return ""
	}
	for t.DeclaringType != nil {
		t = t.DeclaringType
	}
	return t.Namespace
}

// AttributeType returns the attribute class of a, falling back to the
// declaring type of its constructor.
func AttributeType(a *Attribute) TypeRef {
	if a == nil {
		return nil
	}
	if !IsNil(a.Type) {
		return a.Type
	}
	return MethodDeclaringType(a.Constructor)
}

// MethodDeclaringType returns the declaring type of a method-valued symbol,
// looking through generic method instances.
func MethodDeclaringType(m MethodRef) TypeRef {
	for depth := 0; depth < maxNameDepth && !IsNil(m); depth++ {
		switch v := m.(type) {
		case *Method:
			if v.DeclaringType == nil {
				return nil
			}
			return v.DeclaringType
		case *MethodReference:
			if IsNil(v.DeclaringType) {
				return nil
			}
			return v.DeclaringType
		case *GenericMethodInstance:
			m = v.Element
		default:
			return nil
		}
	}
	return nil
}
