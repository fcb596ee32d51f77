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

// Symbol is any node of the graph.
//
// The interface is sealed: only types in this package implement it, so a
// type switch over the variants declared here is exhaustive.
type Symbol interface {
	// Kind returns the variant tag.
	Kind() Kind

	symbol()
}

// TypeRef is a symbol usable wherever a type is expected: a definition, a
// generic parameter, a name-based reference, or a constructed type.
type TypeRef interface {
	Symbol
	typeRef()
}

// MethodRef is a symbol usable wherever a method is expected.
type MethodRef interface {
	Symbol
	methodRef()
}

// FieldRef is a symbol usable wherever a field is expected.
type FieldRef interface {
	Symbol
	fieldRef()
}

// =============================================================================
// Containers
// =============================================================================

// Assembly is the root of a graph.
type Assembly struct {
	// Name is the simple assembly name. References whose scope equals Name
	// (or is empty) are resolved against this assembly.
	Name string

	Attributes []*Attribute

	// Security holds declarative security attributes.
	Security []*Attribute

	Modules []*Module

	// EntryPoint is the program entry method, or nil for libraries.
	EntryPoint *Method
}

// Module is a compilation unit of an assembly.
type Module struct {
	Name     string
	Assembly *Assembly

	Attributes []*Attribute

	// Types holds the top-level type definitions.
	Types []*Type

	// ModuleRefs names native modules referenced by P/Invoke declarations.
	ModuleRefs []string

	EntryPoint *Method

	// Imports holds the debug import scopes of the module. Method scopes
	// point into this list.
	Imports []*ImportScope
}

// Type is a type definition.
//
// Name excludes the generic arity suffix; arity is len(GenericParameters).
// Nested types have an empty Namespace.
type Type struct {
	Namespace  string
	Name       string
	Visibility Visibility
	Flags      TypeFlags

	Module        *Module
	DeclaringType *Type

	BaseType          TypeRef
	Interfaces        []*InterfaceImpl
	GenericParameters []*GenericParameter

	Attributes []*Attribute
	Security   []*Attribute

	Fields      []*Field
	Methods     []*Method
	Properties  []*Property
	Events      []*Event
	NestedTypes []*Type
}

// Arity returns the number of generic parameters of t.
func (t *Type) Arity() int { return len(t.GenericParameters) }

// Constructors returns the instance constructors of t.
func (t *Type) Constructors() []*Method {
	var out []*Method
	for _, m := range t.Methods {
		if m != nil && m.IsConstructor() && !m.Flags.Has(MethodStatic) {
			out = append(out, m)
		}
	}
	return out
}

// InterfaceImpl records that a type implements an interface.
type InterfaceImpl struct {
	Interface  TypeRef
	Attributes []*Attribute

	Owner *Type
	Index int
}

// =============================================================================
// Members
// =============================================================================

// Field is a field definition.
type Field struct {
	Name       string
	Visibility Visibility
	Flags      FieldFlags

	DeclaringType *Type
	FieldType     TypeRef
	Constant      *Constant

	Attributes []*Attribute
}

// Method is a method definition.
type Method struct {
	Name       string
	Visibility Visibility
	Flags      MethodFlags

	DeclaringType *Type

	ReturnType       TypeRef
	ReturnAttributes []*Attribute

	Parameters        []*Parameter
	GenericParameters []*GenericParameter

	// Overrides lists the virtual or interface methods this method
	// overrides or implements, explicitly or implicitly.
	Overrides []MethodRef

	Attributes []*Attribute
	Security   []*Attribute

	Body  *Body
	Debug *MethodDebugInfo

	// SemanticsOwner is the property or event this method is an accessor
	// of, or nil. Filled by Link.
	SemanticsOwner Symbol
}

// Names of the constructor methods.
const (
	ConstructorName       = ".ctor"
	StaticConstructorName = ".cctor"
)

// IsConstructor reports whether m is an instance or static constructor.
func (m *Method) IsConstructor() bool {
	return m.Name == ConstructorName || m.Name == StaticConstructorName
}

// IsStaticConstructor reports whether m is a type initializer.
func (m *Method) IsStaticConstructor() bool {
	return m.Name == StaticConstructorName || (m.IsConstructor() && m.Flags.Has(MethodStatic))
}

// Arity returns the number of generic parameters of m.
func (m *Method) Arity() int { return len(m.GenericParameters) }

// IsAccessor reports whether m is a property or event accessor.
func (m *Method) IsAccessor() bool { return m.SemanticsOwner != nil }

// Property is a property definition.
type Property struct {
	Name string

	DeclaringType *Type
	PropertyType  TypeRef

	Getter *Method
	Setter *Method
	Others []*Method

	// Parameters holds indexer parameters.
	Parameters []*Parameter
	Constant   *Constant

	Attributes []*Attribute
}

// Accessors returns the non-nil accessor methods of p.
func (p *Property) Accessors() []*Method {
	return nonNilMethods(append([]*Method{p.Getter, p.Setter}, p.Others...))
}

// Event is an event definition.
type Event struct {
	Name string

	DeclaringType *Type
	EventType     TypeRef

	Add    *Method
	Remove *Method
	Invoke *Method
	Others []*Method

	Attributes []*Attribute
}

// Accessors returns the non-nil accessor methods of e.
func (e *Event) Accessors() []*Method {
	return nonNilMethods(append([]*Method{e.Add, e.Remove, e.Invoke}, e.Others...))
}

func nonNilMethods(in []*Method) []*Method {
	out := in[:0]
	for _, m := range in {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Parameter is a method or indexer parameter.
type Parameter struct {
	Name          string
	Index         int
	ParameterType TypeRef
	Constant      *Constant
	Attributes    []*Attribute

	// Owner is the *Method or *Property declaring the parameter.
	Owner Symbol
}

// GenericParameter is a generic parameter of a type or method. It is also a
// TypeRef: signatures refer to it directly.
type GenericParameter struct {
	Name     string
	Position int

	Constraints []*GenericConstraint
	Attributes  []*Attribute

	// Owner is the *Type or *Method declaring the parameter.
	Owner Symbol
}

// MethodLevel reports whether p belongs to a method rather than a type.
func (p *GenericParameter) MethodLevel() bool {
	_, ok := p.Owner.(*Method)
	return ok
}

// GenericConstraint is one constraint on a generic parameter.
type GenericConstraint struct {
	ConstraintType TypeRef
	Attributes     []*Attribute

	Owner *GenericParameter
	Index int
}

// =============================================================================
// Attributes
// =============================================================================

// Attribute is a custom attribute instance applied to a symbol.
type Attribute struct {
	// Type is the attribute class. When nil it is taken from the declaring
	// type of Constructor.
	Type        TypeRef
	Constructor MethodRef

	Arguments  []*AttributeArgument
	Fields     []*NamedArgument
	Properties []*NamedArgument

	// Owner is the symbol the attribute is applied to; Index is unique per
	// owner across all of its attribute lists. Both are filled by Link.
	Owner Symbol
	Index int
}

// AttributeArgument is a positional or named attribute value. It is a value
// tree, not a graph node: it never appears in a visited set.
type AttributeArgument struct {
	Type TypeRef

	// Value is a TypeRef for System.Type arguments or a *Constant.
	Value Symbol

	// Boxed holds the inner argument of an object-typed value.
	Boxed *AttributeArgument

	// Elements holds the items of an array value.
	Elements []*AttributeArgument
}

// NamedArgument assigns an attribute field or property by name.
type NamedArgument struct {
	Name     string
	Argument *AttributeArgument
}

// =============================================================================
// Method bodies
// =============================================================================

// Body is the IL body of a method. It is part of its method, not a node.
type Body struct {
	Method *Method

	Variables    []*Variable
	Instructions []*Instruction
	Handlers     []*ExceptionHandler
}

// Variable is a local variable of a method body.
type Variable struct {
	Name         string
	Index        int
	VariableType TypeRef

	Body *Body
}

// Instruction is one IL instruction.
type Instruction struct {
	Offset int
	OpCode string

	// Operand is any symbol: a type, method or field reference, a local or
	// argument, a branch target, a call site, or a *Constant.
	Operand Symbol

	// Targets holds the jump table of a switch instruction.
	Targets []*Instruction

	// Body and Index identify the instruction; Index is its position in
	// Body.Instructions. Offset is not required to be unique.
	Body  *Body
	Index int
}

// ExceptionHandler is one exception handling clause.
type ExceptionHandler struct {
	HandlerKind HandlerKind
	CatchType   TypeRef

	TryStart     *Instruction
	TryEnd       *Instruction
	HandlerStart *Instruction
	HandlerEnd   *Instruction
	FilterStart  *Instruction

	Body  *Body
	Index int
}

// =============================================================================
// Debug information
// =============================================================================

// MethodDebugInfo is the debug record of a method. It is part of its
// method, not a node.
type MethodDebugInfo struct {
	Scope *Scope

	// KickoffMethod is the user method a compiler-generated state machine
	// method was split from.
	KickoffMethod MethodRef
}

// Scope is a lexical debug scope.
type Scope struct {
	Start int
	End   int

	Import    *ImportScope
	Scopes    []*Scope
	Constants []*DebugConstant

	// Method and Index identify the scope; Index is its pre-order position
	// within the method. Both are filled by Link.
	Method *Method
	Index  int
}

// DebugConstant is a local constant recorded only in debug information.
type DebugConstant struct {
	Name         string
	ConstantType TypeRef
	Value        *Constant

	Scope *Scope
	Index int
}

// ImportScope is a set of debug imports ("using" directives).
type ImportScope struct {
	Parent  *ImportScope
	Targets []*ImportTarget

	Module *Module
	Index  int
}

// ImportTarget is a single debug import.
//
// Type is a weak edge: importing a type does not keep it alive. Targets
// whose type is removed are dropped after the sweep.
type ImportTarget struct {
	ImportKind  ImportKind
	Namespace   string
	Alias       string
	AssemblyRef string
	Type        TypeRef

	Scope *ImportScope
	Index int
}

// =============================================================================
// Kind and sealing
// =============================================================================

func (*Assembly) Kind() Kind          { return KindAssembly }
func (*Module) Kind() Kind            { return KindModule }
func (*Type) Kind() Kind              { return KindType }
func (*InterfaceImpl) Kind() Kind     { return KindInterfaceImpl }
func (*Field) Kind() Kind             { return KindField }
func (*Method) Kind() Kind            { return KindMethod }
func (*Property) Kind() Kind          { return KindProperty }
func (*Event) Kind() Kind             { return KindEvent }
func (*Parameter) Kind() Kind         { return KindParameter }
func (*GenericParameter) Kind() Kind  { return KindGenericParameter }
func (*GenericConstraint) Kind() Kind { return KindGenericConstraint }
func (*Attribute) Kind() Kind         { return KindAttribute }
func (*Variable) Kind() Kind          { return KindVariable }
func (*Instruction) Kind() Kind       { return KindInstruction }
func (*ExceptionHandler) Kind() Kind  { return KindExceptionHandler }
func (*Scope) Kind() Kind             { return KindScope }
func (*DebugConstant) Kind() Kind     { return KindDebugConstant }
func (*ImportScope) Kind() Kind       { return KindImportScope }
func (*ImportTarget) Kind() Kind      { return KindImportTarget }

func (*Assembly) symbol()          {}
func (*Module) symbol()            {}
func (*Type) symbol()              {}
func (*InterfaceImpl) symbol()     {}
func (*Field) symbol()             {}
func (*Method) symbol()            {}
func (*Property) symbol()          {}
func (*Event) symbol()             {}
func (*Parameter) symbol()         {}
func (*GenericParameter) symbol()  {}
func (*GenericConstraint) symbol() {}
func (*Attribute) symbol()         {}
func (*Variable) symbol()          {}
func (*Instruction) symbol()       {}
func (*ExceptionHandler) symbol()  {}
func (*Scope) symbol()             {}
func (*DebugConstant) symbol()     {}
func (*ImportScope) symbol()       {}
func (*ImportTarget) symbol()      {}

func (*Type) typeRef()             {}
func (*GenericParameter) typeRef() {}
func (*Method) methodRef()         {}
func (*Field) fieldRef()           {}
