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
	"sort"
	"strings"
)

// Kind identifies the variant of a Symbol.
type Kind int

const (
	// KindUnknown indicates an unrecognized symbol.
	KindUnknown Kind = iota

	KindAssembly
	KindModule
	KindType
	KindInterfaceImpl
	KindField
	KindMethod
	KindProperty
	KindEvent
	KindParameter
	KindGenericParameter
	KindGenericConstraint
	KindVariable
	KindAttribute
	KindInstruction
	KindExceptionHandler
	KindScope
	KindDebugConstant
	KindImportScope
	KindImportTarget

	// Reference kinds. These never own anything and are never removed.
	KindTypeReference
	KindTypeSpec
	KindGenericParameterReference
	KindMethodReference
	KindGenericMethodInstance
	KindFieldReference
	KindCallSite
	KindConstant

	// NumKinds is the total number of kinds (for array sizing).
	NumKinds
)

var kindNames = [NumKinds]string{
	KindUnknown:                   "unknown",
	KindAssembly:                  "assembly",
	KindModule:                    "module",
	KindType:                      "type",
	KindInterfaceImpl:             "interface_impl",
	KindField:                     "field",
	KindMethod:                    "method",
	KindProperty:                  "property",
	KindEvent:                     "event",
	KindParameter:                 "parameter",
	KindGenericParameter:          "generic_parameter",
	KindGenericConstraint:         "generic_constraint",
	KindVariable:                  "variable",
	KindAttribute:                 "attribute",
	KindInstruction:               "instruction",
	KindExceptionHandler:          "exception_handler",
	KindScope:                     "scope",
	KindDebugConstant:             "debug_constant",
	KindImportScope:               "import_scope",
	KindImportTarget:              "import_target",
	KindTypeReference:             "type_reference",
	KindTypeSpec:                  "type_spec",
	KindGenericParameterReference: "generic_parameter_reference",
	KindMethodReference:           "method_reference",
	KindGenericMethodInstance:     "generic_method_instance",
	KindFieldReference:            "field_reference",
	KindCallSite:                  "call_site",
	KindConstant:                  "constant",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode
// to KindUnknown.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}

// ParseKind converts a name produced by String back to a Kind.
func ParseKind(s string) Kind {
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return KindUnknown
}

// IsReference returns true for kinds that only point at other symbols.
func (k Kind) IsReference() bool {
	return k >= KindTypeReference && k < NumKinds
}

// IsMember returns true for kinds that live in a removable container slot
// (module top-level types, or a type's fields, methods, properties, events
// and nested types).
func (k Kind) IsMember() bool {
	switch k {
	case KindType, KindField, KindMethod, KindProperty, KindEvent:
		return true
	default:
		return false
	}
}

// =============================================================================
// Visibility
// =============================================================================

// Visibility is the accessibility of a type or member.
type Visibility int

const (
	// VisibilityPrivate is the default: visible inside the declaring type only.
	VisibilityPrivate Visibility = iota

	// VisibilityPublic is visible everywhere.
	VisibilityPublic

	// VisibilityAssembly is visible inside the declaring assembly ("internal").
	VisibilityAssembly

	// VisibilityFamily is visible to derived types ("protected").
	VisibilityFamily

	// VisibilityFamilyOrAssembly is "protected internal".
	VisibilityFamilyOrAssembly

	// VisibilityFamilyAndAssembly is "private protected".
	VisibilityFamilyAndAssembly
)

var visibilityNames = map[Visibility]string{
	VisibilityPrivate:           "private",
	VisibilityPublic:            "public",
	VisibilityAssembly:          "assembly",
	VisibilityFamily:            "family",
	VisibilityFamilyOrAssembly:  "family_or_assembly",
	VisibilityFamilyAndAssembly: "family_and_assembly",
}

// String returns the string representation of the Visibility.
func (v Visibility) String() string {
	if name, ok := visibilityNames[v]; ok {
		return name
	}
	return "private"
}

// ParseVisibility converts a name produced by String back to a Visibility.
// Common source-language spellings (internal, protected) are accepted too.
func ParseVisibility(s string) (Visibility, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "private":
		return VisibilityPrivate, true
	case "public":
		return VisibilityPublic, true
	case "assembly", "internal":
		return VisibilityAssembly, true
	case "family", "protected":
		return VisibilityFamily, true
	case "family_or_assembly", "protected_internal":
		return VisibilityFamilyOrAssembly, true
	case "family_and_assembly", "private_protected":
		return VisibilityFamilyAndAssembly, true
	default:
		return VisibilityPrivate, false
	}
}

// =============================================================================
// Flags
// =============================================================================

// TypeFlags describe the shape of a type definition.
type TypeFlags uint32

const (
	TypeInterface TypeFlags = 1 << iota
	TypeAbstract
	TypeSealed
	TypeValueType
	TypeEnum
	TypeSpecialName
)

// Has reports whether all bits in f are set.
func (t TypeFlags) Has(f TypeFlags) bool { return t&f == f }

// MethodFlags describe dispatch and layout properties of a method.
type MethodFlags uint32

const (
	MethodStatic MethodFlags = 1 << iota
	MethodVirtual
	MethodAbstract
	MethodNewSlot
	MethodFinal
	MethodSpecialName
	MethodRTSpecialName
	MethodHideBySig
)

// Has reports whether all bits in f are set.
func (m MethodFlags) Has(f MethodFlags) bool { return m&f == f }

// FieldFlags describe storage properties of a field.
type FieldFlags uint32

const (
	FieldStatic FieldFlags = 1 << iota
	FieldInitOnly
	FieldLiteral
	FieldSpecialName
)

// Has reports whether all bits in f are set.
func (f FieldFlags) Has(g FieldFlags) bool { return f&g == g }

// flagNames is shared by the flag parsers so text formats agree on spelling.
var (
	typeFlagNames = map[string]TypeFlags{
		"interface":    TypeInterface,
		"abstract":     TypeAbstract,
		"sealed":       TypeSealed,
		"value_type":   TypeValueType,
		"enum":         TypeEnum,
		"special_name": TypeSpecialName,
	}
	methodFlagNames = map[string]MethodFlags{
		"static":          MethodStatic,
		"virtual":         MethodVirtual,
		"abstract":        MethodAbstract,
		"newslot":         MethodNewSlot,
		"final":           MethodFinal,
		"special_name":    MethodSpecialName,
		"rt_special_name": MethodRTSpecialName,
		"hide_by_sig":     MethodHideBySig,
	}
	fieldFlagNames = map[string]FieldFlags{
		"static":       FieldStatic,
		"init_only":    FieldInitOnly,
		"literal":      FieldLiteral,
		"special_name": FieldSpecialName,
	}
)

// ParseTypeFlag looks up a single type flag by name.
func ParseTypeFlag(name string) (TypeFlags, bool) {
	f, ok := typeFlagNames[strings.ToLower(name)]
	return f, ok
}

// ParseMethodFlag looks up a single method flag by name.
func ParseMethodFlag(name string) (MethodFlags, bool) {
	f, ok := methodFlagNames[strings.ToLower(name)]
	return f, ok
}

// ParseFieldFlag looks up a single field flag by name.
func ParseFieldFlag(name string) (FieldFlags, bool) {
	f, ok := fieldFlagNames[strings.ToLower(name)]
	return f, ok
}

// Names returns the flag names set in t, sorted.
func (t TypeFlags) Names() []string {
	return flagList(typeFlagNames, func(f TypeFlags) bool { return t.Has(f) })
}

// Names returns the flag names set in m, sorted.
func (m MethodFlags) Names() []string {
	return flagList(methodFlagNames, func(f MethodFlags) bool { return m.Has(f) })
}

// Names returns the flag names set in f, sorted.
func (f FieldFlags) Names() []string {
	return flagList(fieldFlagNames, func(g FieldFlags) bool { return f.Has(g) })
}

func flagList[F ~uint32](names map[string]F, has func(F) bool) []string {
	var out []string
	for name, f := range names {
		if has(f) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Debug import kinds
// =============================================================================

// ImportKind classifies a debug import target.
type ImportKind int

const (
	ImportNamespace ImportKind = iota
	ImportType
	ImportNamespaceAlias
	ImportTypeAlias
	ImportAssemblyAlias
)

var importKindNames = map[ImportKind]string{
	ImportNamespace:      "namespace",
	ImportType:           "type",
	ImportNamespaceAlias: "namespace_alias",
	ImportTypeAlias:      "type_alias",
	ImportAssemblyAlias:  "assembly_alias",
}

// String returns the string representation of the ImportKind.
func (k ImportKind) String() string {
	if name, ok := importKindNames[k]; ok {
		return name
	}
	return "namespace"
}

// ParseImportKind converts a name produced by String back to an ImportKind.
func ParseImportKind(s string) (ImportKind, bool) {
	for k, name := range importKindNames {
		if name == s {
			return k, true
		}
	}
	return ImportNamespace, false
}

// HandlerKind classifies an exception handler clause.
type HandlerKind int

const (
	HandlerCatch HandlerKind = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

var handlerKindNames = map[HandlerKind]string{
	HandlerCatch:   "catch",
	HandlerFilter:  "filter",
	HandlerFinally: "finally",
	HandlerFault:   "fault",
}

// String returns the string representation of the HandlerKind.
func (k HandlerKind) String() string {
	if name, ok := handlerKindNames[k]; ok {
		return name
	}
	return "catch"
}

// ParseHandlerKind converts a name produced by String back to a HandlerKind.
func ParseHandlerKind(s string) (HandlerKind, bool) {
	for k, name := range handlerKindNames {
		if name == s {
			return k, true
		}
	}
	return HandlerCatch, false
}

// SpecShape is the constructor of a TypeSpec.
type SpecShape int

const (
	ShapeGenericInstance SpecShape = iota
	ShapeArray
	ShapeByRef
	ShapePointer
)
