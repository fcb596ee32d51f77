// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphdoc reads and writes symbol graphs as YAML or JSON documents.
//
// References inside a document are strings in a compact notation, for
// example "[System.Runtime]System.Collections.Generic.List`1<!0>" for a type
// or "App.Api::Run(System.String)" for a method. See ParseTypeRef and
// ParseMethodRef.
package graphdoc

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// Document is the text form of one assembly.
type Document struct {
	// Format is the document format version, for example "v1.0.0".
	Format string `yaml:"format" json:"format" validate:"required"`

	Assembly AssemblyDoc `yaml:"assembly" json:"assembly"`
}

// AssemblyDoc describes an assembly.
type AssemblyDoc struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	EntryPoint string         `yaml:"entry_point,omitempty" json:"entry_point,omitempty"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
	Security   []AttributeDoc `yaml:"security,omitempty" json:"security,omitempty" validate:"dive"`
	Modules    []ModuleDoc    `yaml:"modules" json:"modules" validate:"dive"`
}

// ModuleDoc describes a module.
type ModuleDoc struct {
	Name       string           `yaml:"name" json:"name" validate:"required"`
	EntryPoint string           `yaml:"entry_point,omitempty" json:"entry_point,omitempty"`
	ModuleRefs []string         `yaml:"module_refs,omitempty" json:"module_refs,omitempty"`
	Attributes []AttributeDoc   `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
	Imports    []ImportScopeDoc `yaml:"imports,omitempty" json:"imports,omitempty" validate:"dive"`
	Types      []TypeDoc        `yaml:"types,omitempty" json:"types,omitempty" validate:"dive"`
}

// TypeDoc describes a type definition.
type TypeDoc struct {
	Namespace         string                `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Name              string                `yaml:"name" json:"name" validate:"required"`
	Visibility        string                `yaml:"visibility,omitempty" json:"visibility,omitempty" validate:"omitempty,visibility"`
	Flags             []string              `yaml:"flags,omitempty" json:"flags,omitempty"`
	BaseType          string                `yaml:"base,omitempty" json:"base,omitempty"`
	Interfaces        []InterfaceDoc        `yaml:"interfaces,omitempty" json:"interfaces,omitempty" validate:"dive"`
	GenericParameters []GenericParameterDoc `yaml:"generic_parameters,omitempty" json:"generic_parameters,omitempty" validate:"dive"`
	Attributes        []AttributeDoc        `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
	Security          []AttributeDoc        `yaml:"security,omitempty" json:"security,omitempty" validate:"dive"`
	Fields            []FieldDoc            `yaml:"fields,omitempty" json:"fields,omitempty" validate:"dive"`
	Methods           []MethodDoc           `yaml:"methods,omitempty" json:"methods,omitempty" validate:"dive"`
	Properties        []PropertyDoc         `yaml:"properties,omitempty" json:"properties,omitempty" validate:"dive"`
	Events            []EventDoc            `yaml:"events,omitempty" json:"events,omitempty" validate:"dive"`
	NestedTypes       []TypeDoc             `yaml:"nested,omitempty" json:"nested,omitempty" validate:"dive"`
}

// InterfaceDoc describes an implemented interface.
type InterfaceDoc struct {
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

// GenericParameterDoc describes a generic parameter. Its position is its
// index in the owning list.
type GenericParameterDoc struct {
	Name        string          `yaml:"name" json:"name" validate:"required"`
	Constraints []ConstraintDoc `yaml:"constraints,omitempty" json:"constraints,omitempty" validate:"dive"`
	Attributes  []AttributeDoc  `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

// ConstraintDoc describes a generic constraint.
type ConstraintDoc struct {
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

// FieldDoc describes a field.
type FieldDoc struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Visibility string         `yaml:"visibility,omitempty" json:"visibility,omitempty" validate:"omitempty,visibility"`
	Flags      []string       `yaml:"flags,omitempty" json:"flags,omitempty"`
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Constant   any            `yaml:"constant,omitempty" json:"constant,omitempty"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

// MethodDoc describes a method.
type MethodDoc struct {
	Name              string                `yaml:"name" json:"name" validate:"required"`
	Visibility        string                `yaml:"visibility,omitempty" json:"visibility,omitempty" validate:"omitempty,visibility"`
	Flags             []string              `yaml:"flags,omitempty" json:"flags,omitempty"`
	Returns           string                `yaml:"returns,omitempty" json:"returns,omitempty"`
	ReturnAttributes  []AttributeDoc        `yaml:"return_attributes,omitempty" json:"return_attributes,omitempty" validate:"dive"`
	Parameters        []ParameterDoc        `yaml:"parameters,omitempty" json:"parameters,omitempty" validate:"dive"`
	GenericParameters []GenericParameterDoc `yaml:"generic_parameters,omitempty" json:"generic_parameters,omitempty" validate:"dive"`
	Overrides         []string              `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	Attributes        []AttributeDoc        `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
	Security          []AttributeDoc        `yaml:"security,omitempty" json:"security,omitempty" validate:"dive"`
	Body              *BodyDoc              `yaml:"body,omitempty" json:"body,omitempty"`
	Debug             *DebugDoc             `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// ParameterDoc describes a parameter.
type ParameterDoc struct {
	Name       string         `yaml:"name,omitempty" json:"name,omitempty"`
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Constant   any            `yaml:"constant,omitempty" json:"constant,omitempty"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

// PropertyDoc describes a property. Accessors name methods of the same
// type, either by name or by name and parameter list.
type PropertyDoc struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Getter     string         `yaml:"get,omitempty" json:"get,omitempty"`
	Setter     string         `yaml:"set,omitempty" json:"set,omitempty"`
	Others     []string       `yaml:"others,omitempty" json:"others,omitempty"`
	Parameters []ParameterDoc `yaml:"parameters,omitempty" json:"parameters,omitempty" validate:"dive"`
	Constant   any            `yaml:"constant,omitempty" json:"constant,omitempty"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

// EventDoc describes an event.
type EventDoc struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Add        string         `yaml:"add,omitempty" json:"add,omitempty"`
	Remove     string         `yaml:"remove,omitempty" json:"remove,omitempty"`
	Invoke     string         `yaml:"invoke,omitempty" json:"invoke,omitempty"`
	Others     []string       `yaml:"others,omitempty" json:"others,omitempty"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

// AttributeDoc describes a custom attribute. At least one of Type and
// Constructor is required.
type AttributeDoc struct {
	Type        string        `yaml:"type,omitempty" json:"type,omitempty" validate:"required_without=Constructor"`
	Constructor string        `yaml:"ctor,omitempty" json:"ctor,omitempty"`
	Arguments   []ArgumentDoc `yaml:"args,omitempty" json:"args,omitempty" validate:"dive"`
	Fields      []NamedDoc    `yaml:"fields,omitempty" json:"fields,omitempty" validate:"dive"`
	Properties  []NamedDoc    `yaml:"properties,omitempty" json:"properties,omitempty" validate:"dive"`
}

// ArgumentDoc describes an attribute argument value. TypeValue holds the
// value of a System.Type argument.
type ArgumentDoc struct {
	Type      string        `yaml:"type,omitempty" json:"type,omitempty"`
	Value     any           `yaml:"value,omitempty" json:"value,omitempty"`
	TypeValue string        `yaml:"type_value,omitempty" json:"type_value,omitempty"`
	Boxed     *ArgumentDoc  `yaml:"boxed,omitempty" json:"boxed,omitempty"`
	Elements  []ArgumentDoc `yaml:"elements,omitempty" json:"elements,omitempty" validate:"dive"`
}

// NamedDoc describes a named attribute argument.
type NamedDoc struct {
	Name     string      `yaml:"name" json:"name" validate:"required"`
	Argument ArgumentDoc `yaml:"arg" json:"arg"`
}

// BodyDoc describes a method body.
type BodyDoc struct {
	Variables    []VariableDoc    `yaml:"variables,omitempty" json:"variables,omitempty" validate:"dive"`
	Instructions []InstructionDoc `yaml:"instructions,omitempty" json:"instructions,omitempty" validate:"dive"`
	Handlers     []HandlerDoc     `yaml:"handlers,omitempty" json:"handlers,omitempty" validate:"dive"`
}

// VariableDoc describes a local variable.
type VariableDoc struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Type string `yaml:"type" json:"type" validate:"required"`
}

// InstructionDoc describes one instruction. At most one operand field is
// set; which one depends on the opcode. Offset defaults to the index.
type InstructionDoc struct {
	Offset  *int   `yaml:"offset,omitempty" json:"offset,omitempty"`
	Op      string `yaml:"op" json:"op" validate:"required"`
	Type    string `yaml:"type,omitempty" json:"type,omitempty"`
	Method  string `yaml:"method,omitempty" json:"method,omitempty"`
	Field   string `yaml:"field,omitempty" json:"field,omitempty"`
	Sig     string `yaml:"sig,omitempty" json:"sig,omitempty"`
	Const   any    `yaml:"const,omitempty" json:"const,omitempty"`
	Var     *int   `yaml:"var,omitempty" json:"var,omitempty"`
	Arg     *int   `yaml:"arg,omitempty" json:"arg,omitempty"`
	Target  *int   `yaml:"target,omitempty" json:"target,omitempty"`
	Targets []int  `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// HandlerDoc describes an exception handler. Boundaries are instruction
// offsets; an absent boundary means the end of the body.
type HandlerDoc struct {
	Kind         string `yaml:"kind" json:"kind" validate:"required,oneof=catch filter finally fault"`
	CatchType    string `yaml:"catch_type,omitempty" json:"catch_type,omitempty"`
	TryStart     *int   `yaml:"try_start,omitempty" json:"try_start,omitempty"`
	TryEnd       *int   `yaml:"try_end,omitempty" json:"try_end,omitempty"`
	HandlerStart *int   `yaml:"handler_start,omitempty" json:"handler_start,omitempty"`
	HandlerEnd   *int   `yaml:"handler_end,omitempty" json:"handler_end,omitempty"`
	FilterStart  *int   `yaml:"filter_start,omitempty" json:"filter_start,omitempty"`
}

// DebugDoc describes method debug information.
type DebugDoc struct {
	Scope   *ScopeDoc `yaml:"scope,omitempty" json:"scope,omitempty"`
	Kickoff string    `yaml:"kickoff,omitempty" json:"kickoff,omitempty"`
}

// ScopeDoc describes a lexical debug scope. Import names a module import
// scope by ID.
type ScopeDoc struct {
	Start     int                `yaml:"start" json:"start"`
	End       int                `yaml:"end" json:"end"`
	Import    string             `yaml:"import,omitempty" json:"import,omitempty"`
	Scopes    []ScopeDoc         `yaml:"scopes,omitempty" json:"scopes,omitempty" validate:"dive"`
	Constants []DebugConstantDoc `yaml:"constants,omitempty" json:"constants,omitempty" validate:"dive"`
}

// DebugConstantDoc describes a debug-only constant.
type DebugConstantDoc struct {
	Name  string `yaml:"name" json:"name" validate:"required"`
	Type  string `yaml:"type,omitempty" json:"type,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// ImportScopeDoc describes a debug import scope.
type ImportScopeDoc struct {
	ID      string            `yaml:"id" json:"id" validate:"required"`
	Parent  string            `yaml:"parent,omitempty" json:"parent,omitempty"`
	Targets []ImportTargetDoc `yaml:"targets,omitempty" json:"targets,omitempty" validate:"dive"`
}

// ImportTargetDoc describes one debug import.
type ImportTargetDoc struct {
	Kind      string `yaml:"kind" json:"kind" validate:"required,oneof=namespace type namespace_alias type_alias assembly_alias"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Alias     string `yaml:"alias,omitempty" json:"alias,omitempty"`
	Assembly  string `yaml:"assembly,omitempty" json:"assembly,omitempty"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty"`
}
