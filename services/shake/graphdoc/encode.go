// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphdoc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/shake/services/shake/graph"
)

// Format is a document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// String returns the string representation of the Format.
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "yaml"
}

// ParseFormat converts "yaml", "yml" or "json" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatYAML, fmt.Errorf("%w: unknown encoding %q", ErrUnsupportedFormat, s)
	}
}

// FormatFor picks the encoding from a file extension.
func FormatFor(path string) Format {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return FormatYAML
	}
	return f
}

// =============================================================================
// ENCODING
// =============================================================================

// Encode writes asm as a document.
//
// Inputs:
//
//	w - Destination.
//	asm - A linked graph.
//	format - YAML or JSON.
//
// Outputs:
//
//	error - Non-nil on write failure.
func Encode(w io.Writer, asm *graph.Assembly, format Format) error {
	doc := ToDocument(asm)
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
		return nil
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return enc.Close()
}

// WriteFile encodes asm to path, picking the encoding from the extension.
func WriteFile(path string, asm *graph.Assembly) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Encode(f, asm, FormatFor(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ToDocument converts a linked graph to its document form.
func ToDocument(asm *graph.Assembly) *Document {
	doc := &Document{Format: CurrentFormat}
	if asm == nil {
		return doc
	}
	e := &encoder{}
	d := &doc.Assembly
	d.Name = asm.Name
	d.Attributes = e.attributes(asm.Attributes)
	d.Security = e.attributes(asm.Security)
	if asm.EntryPoint != nil {
		d.EntryPoint = graph.FullName(asm.EntryPoint)
	}
	d.Modules = []ModuleDoc{}
	for _, mod := range asm.Modules {
		if mod != nil {
			d.Modules = append(d.Modules, e.module(mod))
		}
	}
	return doc
}

type encoder struct {
	importIDs map[*graph.ImportScope]string
}

func (e *encoder) module(mod *graph.Module) ModuleDoc {
	d := ModuleDoc{
		Name:       mod.Name,
		ModuleRefs: mod.ModuleRefs,
		Attributes: e.attributes(mod.Attributes),
	}
	if mod.EntryPoint != nil {
		d.EntryPoint = graph.FullName(mod.EntryPoint)
	}

	e.importIDs = make(map[*graph.ImportScope]string, len(mod.Imports))
	for i, is := range mod.Imports {
		if is != nil {
			e.importIDs[is] = strconv.Itoa(i)
		}
	}
	for _, is := range mod.Imports {
		if is == nil {
			continue
		}
		id := ImportScopeDoc{ID: e.importIDs[is]}
		if is.Parent != nil {
			id.Parent = e.importIDs[is.Parent]
		}
		for _, it := range is.Targets {
			if it == nil {
				continue
			}
			id.Targets = append(id.Targets, ImportTargetDoc{
				Kind:      it.ImportKind.String(),
				Namespace: it.Namespace,
				Alias:     it.Alias,
				Assembly:  it.AssemblyRef,
				Type:      typeString(it.Type),
			})
		}
		d.Imports = append(d.Imports, id)
	}

	for _, t := range mod.Types {
		if t != nil {
			d.Types = append(d.Types, e.typeDef(t))
		}
	}
	return d
}

func (e *encoder) typeDef(t *graph.Type) TypeDoc {
	d := TypeDoc{
		Namespace:         t.Namespace,
		Name:              t.Name,
		Visibility:        visibility(t.Visibility),
		Flags:             t.Flags.Names(),
		BaseType:          typeString(t.BaseType),
		GenericParameters: e.genericParameters(t.GenericParameters),
		Attributes:        e.attributes(t.Attributes),
		Security:          e.attributes(t.Security),
	}
	for _, ii := range t.Interfaces {
		if ii != nil {
			d.Interfaces = append(d.Interfaces, InterfaceDoc{Type: typeString(ii.Interface), Attributes: e.attributes(ii.Attributes)})
		}
	}
	for _, f := range t.Fields {
		if f == nil {
			continue
		}
		d.Fields = append(d.Fields, FieldDoc{
			Name:       f.Name,
			Visibility: visibility(f.Visibility),
			Flags:      f.Flags.Names(),
			Type:       typeString(f.FieldType),
			Constant:   constValue(f.Constant),
			Attributes: e.attributes(f.Attributes),
		})
	}
	for _, m := range t.Methods {
		if m != nil {
			d.Methods = append(d.Methods, e.method(m))
		}
	}
	for _, p := range t.Properties {
		if p == nil {
			continue
		}
		d.Properties = append(d.Properties, PropertyDoc{
			Name:       p.Name,
			Type:       typeString(p.PropertyType),
			Getter:     accessorRef(t, p.Getter),
			Setter:     accessorRef(t, p.Setter),
			Others:     accessorRefs(t, p.Others),
			Parameters: e.parameters(p.Parameters),
			Constant:   constValue(p.Constant),
			Attributes: e.attributes(p.Attributes),
		})
	}
	for _, ev := range t.Events {
		if ev == nil {
			continue
		}
		d.Events = append(d.Events, EventDoc{
			Name:       ev.Name,
			Type:       typeString(ev.EventType),
			Add:        accessorRef(t, ev.Add),
			Remove:     accessorRef(t, ev.Remove),
			Invoke:     accessorRef(t, ev.Invoke),
			Others:     accessorRefs(t, ev.Others),
			Attributes: e.attributes(ev.Attributes),
		})
	}
	for _, nt := range t.NestedTypes {
		if nt != nil {
			d.NestedTypes = append(d.NestedTypes, e.typeDef(nt))
		}
	}
	return d
}

func (e *encoder) method(m *graph.Method) MethodDoc {
	d := MethodDoc{
		Name:              m.Name,
		Visibility:        visibility(m.Visibility),
		Flags:             m.Flags.Names(),
		Returns:           typeString(m.ReturnType),
		ReturnAttributes:  e.attributes(m.ReturnAttributes),
		Parameters:        e.parameters(m.Parameters),
		GenericParameters: e.genericParameters(m.GenericParameters),
		Attributes:        e.attributes(m.Attributes),
		Security:          e.attributes(m.Security),
	}
	for _, o := range m.Overrides {
		if !graph.IsNil(o) {
			d.Overrides = append(d.Overrides, FormatMethodRef(o))
		}
	}
	if m.Body != nil {
		d.Body = e.body(m.Body)
	}
	if m.Debug != nil {
		d.Debug = &DebugDoc{}
		if !graph.IsNil(m.Debug.KickoffMethod) {
			d.Debug.Kickoff = FormatMethodRef(m.Debug.KickoffMethod)
		}
		if m.Debug.Scope != nil {
			sd := e.scope(m.Debug.Scope)
			d.Debug.Scope = &sd
		}
	}
	return d
}

func (e *encoder) body(b *graph.Body) *BodyDoc {
	d := &BodyDoc{}
	for _, v := range b.Variables {
		if v != nil {
			d.Variables = append(d.Variables, VariableDoc{Name: v.Name, Type: typeString(v.VariableType)})
		}
	}
	for _, ins := range b.Instructions {
		if ins == nil {
			continue
		}
		off := ins.Offset
		id := InstructionDoc{Offset: &off, Op: ins.OpCode}
		setOperand(&id, ins)
		d.Instructions = append(d.Instructions, id)
	}
	for _, h := range b.Handlers {
		if h == nil {
			continue
		}
		d.Handlers = append(d.Handlers, HandlerDoc{
			Kind:         h.HandlerKind.String(),
			CatchType:    typeString(h.CatchType),
			TryStart:     offsetOf(h.TryStart),
			TryEnd:       offsetOf(h.TryEnd),
			HandlerStart: offsetOf(h.HandlerStart),
			HandlerEnd:   offsetOf(h.HandlerEnd),
			FilterStart:  offsetOf(h.FilterStart),
		})
	}
	return d
}

func setOperand(d *InstructionDoc, ins *graph.Instruction) {
	for _, t := range ins.Targets {
		if t != nil {
			d.Targets = append(d.Targets, t.Offset)
		}
	}
	switch v := ins.Operand.(type) {
	case graph.TypeRef:
		if !graph.IsNil(v) {
			d.Type = FormatTypeRef(v)
		}
	case graph.MethodRef:
		if !graph.IsNil(v) {
			d.Method = FormatMethodRef(v)
		}
	case graph.FieldRef:
		if !graph.IsNil(v) {
			d.Field = FormatFieldRef(v)
		}
	case *graph.CallSite:
		if v != nil {
			d.Sig = FormatCallSite(v)
		}
	case *graph.Constant:
		d.Const = constValue(v)
	case *graph.Variable:
		if v != nil {
			idx := v.Index
			d.Var = &idx
		}
	case *graph.Parameter:
		if v != nil {
			idx := v.Index
			d.Arg = &idx
		}
	case *graph.Instruction:
		d.Target = offsetOf(v)
	}
}

func (e *encoder) scope(sc *graph.Scope) ScopeDoc {
	d := ScopeDoc{Start: sc.Start, End: sc.End}
	if sc.Import != nil {
		d.Import = e.importIDs[sc.Import]
	}
	for _, c := range sc.Constants {
		if c != nil {
			d.Constants = append(d.Constants, DebugConstantDoc{Name: c.Name, Type: typeString(c.ConstantType), Value: constValue(c.Value)})
		}
	}
	for _, child := range sc.Scopes {
		if child != nil {
			d.Scopes = append(d.Scopes, e.scope(child))
		}
	}
	return d
}

func (e *encoder) parameters(params []*graph.Parameter) []ParameterDoc {
	var out []ParameterDoc
	for _, p := range params {
		if p == nil {
			continue
		}
		out = append(out, ParameterDoc{
			Name:       p.Name,
			Type:       typeString(p.ParameterType),
			Constant:   constValue(p.Constant),
			Attributes: e.attributes(p.Attributes),
		})
	}
	return out
}

func (e *encoder) genericParameters(gps []*graph.GenericParameter) []GenericParameterDoc {
	var out []GenericParameterDoc
	for _, gp := range gps {
		if gp == nil {
			continue
		}
		d := GenericParameterDoc{Name: gp.Name, Attributes: e.attributes(gp.Attributes)}
		for _, c := range gp.Constraints {
			if c != nil {
				d.Constraints = append(d.Constraints, ConstraintDoc{Type: typeString(c.ConstraintType), Attributes: e.attributes(c.Attributes)})
			}
		}
		out = append(out, d)
	}
	return out
}

func (e *encoder) attributes(list []*graph.Attribute) []AttributeDoc {
	var out []AttributeDoc
	for _, a := range list {
		if a == nil {
			continue
		}
		d := AttributeDoc{Type: typeString(a.Type)}
		if !graph.IsNil(a.Constructor) {
			d.Constructor = FormatMethodRef(a.Constructor)
		}
		for _, arg := range a.Arguments {
			if arg != nil {
				d.Arguments = append(d.Arguments, argumentDoc(arg))
			}
		}
		d.Fields = namedDocs(a.Fields)
		d.Properties = namedDocs(a.Properties)
		out = append(out, d)
	}
	return out
}

func namedDocs(list []*graph.NamedArgument) []NamedDoc {
	var out []NamedDoc
	for _, n := range list {
		if n != nil && n.Argument != nil {
			out = append(out, NamedDoc{Name: n.Name, Argument: argumentDoc(n.Argument)})
		}
	}
	return out
}

func argumentDoc(arg *graph.AttributeArgument) ArgumentDoc {
	d := ArgumentDoc{Type: typeString(arg.Type)}
	switch v := arg.Value.(type) {
	case graph.TypeRef:
		d.TypeValue = typeString(v)
	case *graph.Constant:
		d.Value = constValue(v)
	}
	if arg.Boxed != nil {
		boxed := argumentDoc(arg.Boxed)
		d.Boxed = &boxed
	}
	for _, el := range arg.Elements {
		if el != nil {
			d.Elements = append(d.Elements, argumentDoc(el))
		}
	}
	return d
}

// accessorRef names m within t, adding the parameter list only when the
// name alone is ambiguous.
func accessorRef(t *graph.Type, m *graph.Method) string {
	if m == nil {
		return ""
	}
	n := 0
	for _, other := range t.Methods {
		if other != nil && other.Name == m.Name {
			n++
		}
	}
	if n > 1 {
		return accessorName(m)
	}
	return m.Name
}

func accessorRefs(t *graph.Type, list []*graph.Method) []string {
	var out []string
	for _, m := range list {
		if m != nil {
			out = append(out, accessorRef(t, m))
		}
	}
	return out
}

func typeString(t graph.TypeRef) string {
	if graph.IsNil(t) {
		return ""
	}
	return FormatTypeRef(t)
}

func visibility(v graph.Visibility) string {
	if v == graph.VisibilityPrivate {
		return ""
	}
	return v.String()
}

func constValue(c *graph.Constant) any {
	if c == nil {
		return nil
	}
	return c.Value
}

func offsetOf(ins *graph.Instruction) *int {
	if ins == nil {
		return nil
	}
	off := ins.Offset
	return &off
}
