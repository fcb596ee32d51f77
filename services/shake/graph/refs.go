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

// TypeReference is a name-based reference to a type definition, possibly in
// another assembly.
type TypeReference struct {
	// Scope is the assembly the type lives in. Empty means the assembly
	// holding the reference.
	Scope string

	Namespace    string
	Name         string
	GenericArity int

	// DeclaringType is set for references to nested types.
	DeclaringType *TypeReference
}

// TypeSpec is a constructed type: a generic instantiation, array, managed
// pointer or unmanaged pointer over an element type.
type TypeSpec struct {
	Shape   SpecShape
	Element TypeRef

	// Arguments holds the type arguments of a generic instance.
	Arguments []TypeRef

	// Rank is the array rank (1 for vectors).
	Rank int
}

// GenericParameterReference is a positional reference to a generic
// parameter (!0 or !!0) that is not bound to a definition.
type GenericParameterReference struct {
	Position    int
	MethodLevel bool
}

// MethodReference is a name-and-shape reference to a method.
type MethodReference struct {
	DeclaringType TypeRef
	Name          string
	GenericArity  int
	ReturnType    TypeRef
	Parameters    []TypeRef
}

// GenericMethodInstance is an instantiation of a generic method.
type GenericMethodInstance struct {
	Element   MethodRef
	Arguments []TypeRef
}

// FieldReference is a name-based reference to a field.
type FieldReference struct {
	DeclaringType TypeRef
	Name          string
	FieldType     TypeRef
}

// CallSite is a standalone method signature (the operand of calli).
type CallSite struct {
	ReturnType TypeRef
	Parameters []TypeRef
}

// Constant is a literal value (a string or number operand, a field default,
// an attribute value). It carries no edges.
type Constant struct {
	Value any
}

func (*TypeReference) Kind() Kind             { return KindTypeReference }
func (*TypeSpec) Kind() Kind                  { return KindTypeSpec }
func (*GenericParameterReference) Kind() Kind { return KindGenericParameterReference }
func (*MethodReference) Kind() Kind           { return KindMethodReference }
func (*GenericMethodInstance) Kind() Kind     { return KindGenericMethodInstance }
func (*FieldReference) Kind() Kind            { return KindFieldReference }
func (*CallSite) Kind() Kind                  { return KindCallSite }
func (*Constant) Kind() Kind                  { return KindConstant }

func (*TypeReference) symbol()             {}
func (*TypeSpec) symbol()                  {}
func (*GenericParameterReference) symbol() {}
func (*MethodReference) symbol()           {}
func (*GenericMethodInstance) symbol()     {}
func (*FieldReference) symbol()            {}
func (*CallSite) symbol()                  {}
func (*Constant) symbol()                  {}

func (*TypeReference) typeRef()             {}
func (*TypeSpec) typeRef()                  {}
func (*GenericParameterReference) typeRef() {}

func (*MethodReference) methodRef()       {}
func (*GenericMethodInstance) methodRef() {}

func (*FieldReference) fieldRef() {}

// NewGenericInstance builds the instantiation element<args...>.
func NewGenericInstance(element TypeRef, args ...TypeRef) *TypeSpec {
	return &TypeSpec{Shape: ShapeGenericInstance, Element: element, Arguments: args}
}

// NewArray builds a single-dimensional array of element.
func NewArray(element TypeRef) *TypeSpec {
	return &TypeSpec{Shape: ShapeArray, Element: element, Rank: 1}
}

// NewByRef builds a managed pointer to element.
func NewByRef(element TypeRef) *TypeSpec {
	return &TypeSpec{Shape: ShapeByRef, Element: element}
}

// NewPointer builds an unmanaged pointer to element.
func NewPointer(element TypeRef) *TypeSpec {
	return &TypeSpec{Shape: ShapePointer, Element: element}
}
