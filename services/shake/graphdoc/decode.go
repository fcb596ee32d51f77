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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/shake/services/shake/graph"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// CurrentFormat is the format version written by Encode.
	CurrentFormat = "v1.0.0"

	// MaxDocumentSize is the maximum accepted document size (64MB).
	MaxDocumentSize = 64 << 20
)

// docValidate is the validator instance for documents.
var docValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("visibility", func(fl validator.FieldLevel) bool {
		_, ok := graph.ParseVisibility(fl.Field().String())
		return ok
	})
	return v
}

// =============================================================================
// DECODING
// =============================================================================

// Decode reads a YAML or JSON document from r and builds a linked graph.
//
// Description:
//
//	Input starting with '{' is read as JSON, anything else as YAML. Unknown
//	keys are errors. The document is validated before the graph is built.
//
// Inputs:
//
//	r - The document source. At most MaxDocumentSize bytes are accepted.
//
// Outputs:
//
//	*graph.Assembly - The linked graph.
//	error - Wraps ErrDocumentTooLarge, ErrInvalidDocument,
//	        ErrUnsupportedFormat, ErrMalformedRef, ErrUnknownOpcode,
//	        ErrOperandMismatch or ErrUnresolvedToken.
func Decode(r io.Reader) (*graph.Assembly, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDocumentTooLarge, MaxDocumentSize)
	}
	doc, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// ReadFile decodes the document at path.
func ReadFile(path string) (*graph.Assembly, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	if info.Size() > MaxDocumentSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDocumentTooLarge, info.Size(), MaxDocumentSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	asm, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return asm, nil
}

// Unmarshal parses and validates a document without building a graph.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks struct constraints and the format version.
func (d *Document) Validate() error {
	if err := docValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !semver.IsValid(d.Format) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedFormat, d.Format)
	}
	if semver.Major(d.Format) != semver.Major(CurrentFormat) {
		return fmt.Errorf("%w: %s (supported %s)", ErrUnsupportedFormat, d.Format, semver.Major(CurrentFormat))
	}
	return nil
}

// Build converts a validated document to a linked graph.
func Build(doc *Document) (*graph.Assembly, error) {
	b := &builder{}
	asm, err := b.assembly(&doc.Assembly)
	if err != nil {
		return nil, err
	}
	return asm, nil
}

// =============================================================================
// BUILDER
// =============================================================================

type builder struct {
	imports map[string]*graph.ImportScope
}

// at builds an error path such as "assembly.modules[0]".
func at(parent, field string, i int) string {
	if field != "" {
		parent += "." + field
	}
	return parent + "[" + strconv.Itoa(i) + "]"
}

func (b *builder) assembly(d *AssemblyDoc) (*graph.Assembly, error) {
	asm := &graph.Assembly{Name: d.Name}
	var err error
	if asm.Attributes, err = b.attributes("assembly.attributes", d.Attributes); err != nil {
		return nil, err
	}
	if asm.Security, err = b.attributes("assembly.security", d.Security); err != nil {
		return nil, err
	}
	for i := range d.Modules {
		mod, err := b.module(at("assembly", "modules", i), &d.Modules[i])
		if err != nil {
			return nil, err
		}
		asm.Modules = append(asm.Modules, mod)
	}

	graph.Link(asm)

	methods := make(map[string]*graph.Method)
	for _, mod := range asm.Modules {
		for _, t := range mod.Types {
			indexMethods(methods, t)
		}
	}
	if asm.EntryPoint, err = lookupEntryPoint(methods, "assembly.entry_point", d.EntryPoint); err != nil {
		return nil, err
	}
	for i, mod := range asm.Modules {
		path := at("assembly", "modules", i) + ".entry_point"
		if mod.EntryPoint, err = lookupEntryPoint(methods, path, d.Modules[i].EntryPoint); err != nil {
			return nil, err
		}
	}
	return asm, nil
}

func indexMethods(index map[string]*graph.Method, t *graph.Type) {
	for _, m := range t.Methods {
		if _, ok := index[graph.FullName(m)]; !ok {
			index[graph.FullName(m)] = m
		}
	}
	for _, nt := range t.NestedTypes {
		indexMethods(index, nt)
	}
}

func lookupEntryPoint(index map[string]*graph.Method, path, name string) (*graph.Method, error) {
	if name == "" {
		return nil, nil
	}
	m, ok := index[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w: no method %q", path, ErrUnresolvedToken, name)
	}
	return m, nil
}

func (b *builder) module(path string, d *ModuleDoc) (*graph.Module, error) {
	mod := &graph.Module{Name: d.Name, ModuleRefs: d.ModuleRefs}
	var err error
	if mod.Attributes, err = b.attributes(path+".attributes", d.Attributes); err != nil {
		return nil, err
	}

	// Import scopes may name parents declared later, so all are created first.
	b.imports = make(map[string]*graph.ImportScope, len(d.Imports))
	for i := range d.Imports {
		id := d.Imports[i].ID
		if _, dup := b.imports[id]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate import scope id %q", at(path, "imports", i), ErrInvalidDocument, id)
		}
		is := &graph.ImportScope{}
		b.imports[id] = is
		mod.Imports = append(mod.Imports, is)
	}
	for i := range d.Imports {
		if err := b.importScope(at(path, "imports", i), &d.Imports[i]); err != nil {
			return nil, err
		}
	}

	for i := range d.Types {
		t, err := b.typeDef(at(path, "types", i), &d.Types[i])
		if err != nil {
			return nil, err
		}
		mod.Types = append(mod.Types, t)
	}
	return mod, nil
}

func (b *builder) importScope(path string, d *ImportScopeDoc) error {
	is := b.imports[d.ID]
	if d.Parent != "" {
		parent, ok := b.imports[d.Parent]
		if !ok {
			return fmt.Errorf("%s: %w: no import scope %q", path, ErrUnresolvedToken, d.Parent)
		}
		is.Parent = parent
	}
	for i, td := range d.Targets {
		kind, _ := graph.ParseImportKind(td.Kind)
		it := &graph.ImportTarget{
			ImportKind:  kind,
			Namespace:   td.Namespace,
			Alias:       td.Alias,
			AssemblyRef: td.Assembly,
		}
		var err error
		if it.Type, err = typeRef(at(path, "targets", i)+".type", td.Type); err != nil {
			return err
		}
		is.Targets = append(is.Targets, it)
	}
	return nil
}

func (b *builder) typeDef(path string, d *TypeDoc) (*graph.Type, error) {
	t := &graph.Type{Namespace: d.Namespace, Name: d.Name}
	t.Visibility, _ = graph.ParseVisibility(d.Visibility)
	for _, name := range d.Flags {
		f, ok := graph.ParseTypeFlag(name)
		if !ok {
			return nil, fmt.Errorf("%s.flags: %w: unknown type flag %q", path, ErrInvalidDocument, name)
		}
		t.Flags |= f
	}

	var err error
	if t.BaseType, err = typeRef(path+".base", d.BaseType); err != nil {
		return nil, err
	}
	for i, id := range d.Interfaces {
		ii := &graph.InterfaceImpl{}
		p := at(path, "interfaces", i)
		if ii.Interface, err = typeRef(p+".type", id.Type); err != nil {
			return nil, err
		}
		if ii.Attributes, err = b.attributes(p+".attributes", id.Attributes); err != nil {
			return nil, err
		}
		t.Interfaces = append(t.Interfaces, ii)
	}
	if t.GenericParameters, err = b.genericParameters(path+".generic_parameters", d.GenericParameters); err != nil {
		return nil, err
	}
	if t.Attributes, err = b.attributes(path+".attributes", d.Attributes); err != nil {
		return nil, err
	}
	if t.Security, err = b.attributes(path+".security", d.Security); err != nil {
		return nil, err
	}

	for i := range d.Fields {
		f, err := b.field(at(path, "fields", i), &d.Fields[i])
		if err != nil {
			return nil, err
		}
		t.Fields = append(t.Fields, f)
	}
	for i := range d.Methods {
		m, err := b.method(at(path, "methods", i), &d.Methods[i])
		if err != nil {
			return nil, err
		}
		t.Methods = append(t.Methods, m)
	}
	for i := range d.Properties {
		p, err := b.property(at(path, "properties", i), t, &d.Properties[i])
		if err != nil {
			return nil, err
		}
		t.Properties = append(t.Properties, p)
	}
	for i := range d.Events {
		e, err := b.event(at(path, "events", i), t, &d.Events[i])
		if err != nil {
			return nil, err
		}
		t.Events = append(t.Events, e)
	}
	for i := range d.NestedTypes {
		nt, err := b.typeDef(at(path, "nested", i), &d.NestedTypes[i])
		if err != nil {
			return nil, err
		}
		t.NestedTypes = append(t.NestedTypes, nt)
	}
	return t, nil
}

func (b *builder) genericParameters(path string, docs []GenericParameterDoc) ([]*graph.GenericParameter, error) {
	var out []*graph.GenericParameter
	for i, gd := range docs {
		p := at(path, "", i)
		gp := &graph.GenericParameter{Name: gd.Name, Position: i}
		var err error
		if gp.Attributes, err = b.attributes(p+".attributes", gd.Attributes); err != nil {
			return nil, err
		}
		for j, cd := range gd.Constraints {
			c := &graph.GenericConstraint{}
			cp := at(p, "constraints", j)
			if c.ConstraintType, err = typeRef(cp+".type", cd.Type); err != nil {
				return nil, err
			}
			if c.Attributes, err = b.attributes(cp+".attributes", cd.Attributes); err != nil {
				return nil, err
			}
			gp.Constraints = append(gp.Constraints, c)
		}
		out = append(out, gp)
	}
	return out, nil
}

func (b *builder) field(path string, d *FieldDoc) (*graph.Field, error) {
	f := &graph.Field{Name: d.Name, Constant: constant(d.Constant)}
	f.Visibility, _ = graph.ParseVisibility(d.Visibility)
	for _, name := range d.Flags {
		fl, ok := graph.ParseFieldFlag(name)
		if !ok {
			return nil, fmt.Errorf("%s.flags: %w: unknown field flag %q", path, ErrInvalidDocument, name)
		}
		f.Flags |= fl
	}
	var err error
	if f.FieldType, err = typeRef(path+".type", d.Type); err != nil {
		return nil, err
	}
	if f.Attributes, err = b.attributes(path+".attributes", d.Attributes); err != nil {
		return nil, err
	}
	return f, nil
}

func (b *builder) parameters(path string, docs []ParameterDoc) ([]*graph.Parameter, error) {
	var out []*graph.Parameter
	for i, pd := range docs {
		p := at(path, "", i)
		param := &graph.Parameter{Name: pd.Name, Index: i, Constant: constant(pd.Constant)}
		var err error
		if param.ParameterType, err = typeRef(p+".type", pd.Type); err != nil {
			return nil, err
		}
		if param.Attributes, err = b.attributes(p+".attributes", pd.Attributes); err != nil {
			return nil, err
		}
		out = append(out, param)
	}
	return out, nil
}

func (b *builder) method(path string, d *MethodDoc) (*graph.Method, error) {
	m := &graph.Method{Name: d.Name}
	m.Visibility, _ = graph.ParseVisibility(d.Visibility)
	for _, name := range d.Flags {
		f, ok := graph.ParseMethodFlag(name)
		if !ok {
			return nil, fmt.Errorf("%s.flags: %w: unknown method flag %q", path, ErrInvalidDocument, name)
		}
		m.Flags |= f
	}

	var err error
	if m.ReturnType, err = typeRef(path+".returns", d.Returns); err != nil {
		return nil, err
	}
	if m.ReturnAttributes, err = b.attributes(path+".return_attributes", d.ReturnAttributes); err != nil {
		return nil, err
	}
	if m.Parameters, err = b.parameters(path+".parameters", d.Parameters); err != nil {
		return nil, err
	}
	if m.GenericParameters, err = b.genericParameters(path+".generic_parameters", d.GenericParameters); err != nil {
		return nil, err
	}
	for i, s := range d.Overrides {
		ref, err := methodRef(at(path, "overrides", i), s)
		if err != nil {
			return nil, err
		}
		m.Overrides = append(m.Overrides, ref)
	}
	if m.Attributes, err = b.attributes(path+".attributes", d.Attributes); err != nil {
		return nil, err
	}
	if m.Security, err = b.attributes(path+".security", d.Security); err != nil {
		return nil, err
	}
	if d.Body != nil {
		if m.Body, err = b.body(path+".body", m, d.Body); err != nil {
			return nil, err
		}
	}
	if d.Debug != nil {
		if m.Debug, err = b.debug(path+".debug", d.Debug); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (b *builder) property(path string, t *graph.Type, d *PropertyDoc) (*graph.Property, error) {
	p := &graph.Property{Name: d.Name, Constant: constant(d.Constant)}
	var err error
	if p.PropertyType, err = typeRef(path+".type", d.Type); err != nil {
		return nil, err
	}
	if p.Parameters, err = b.parameters(path+".parameters", d.Parameters); err != nil {
		return nil, err
	}
	if p.Attributes, err = b.attributes(path+".attributes", d.Attributes); err != nil {
		return nil, err
	}
	if p.Getter, err = accessor(path+".get", t, d.Getter); err != nil {
		return nil, err
	}
	if p.Setter, err = accessor(path+".set", t, d.Setter); err != nil {
		return nil, err
	}
	if p.Others, err = accessors(path+".others", t, d.Others); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *builder) event(path string, t *graph.Type, d *EventDoc) (*graph.Event, error) {
	e := &graph.Event{Name: d.Name}
	var err error
	if e.EventType, err = typeRef(path+".type", d.Type); err != nil {
		return nil, err
	}
	if e.Attributes, err = b.attributes(path+".attributes", d.Attributes); err != nil {
		return nil, err
	}
	if e.Add, err = accessor(path+".add", t, d.Add); err != nil {
		return nil, err
	}
	if e.Remove, err = accessor(path+".remove", t, d.Remove); err != nil {
		return nil, err
	}
	if e.Invoke, err = accessor(path+".invoke", t, d.Invoke); err != nil {
		return nil, err
	}
	if e.Others, err = accessors(path+".others", t, d.Others); err != nil {
		return nil, err
	}
	return e, nil
}

// accessor finds the method of t named by s, either "name" or
// "name(ParamType,...)".
func accessor(path string, t *graph.Type, s string) (*graph.Method, error) {
	if s == "" {
		return nil, nil
	}
	for _, m := range t.Methods {
		if m.Name == s || accessorName(m) == s {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%s: %w: no method %q", path, ErrUnresolvedToken, s)
}

func accessors(path string, t *graph.Type, list []string) ([]*graph.Method, error) {
	var out []*graph.Method
	for i, s := range list {
		m, err := accessor(at(path, "", i), t, s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func accessorName(m *graph.Method) string {
	return m.Name + graph.ParameterList(graph.ParameterTypes(m.Parameters))
}

func (b *builder) attributes(path string, docs []AttributeDoc) ([]*graph.Attribute, error) {
	var out []*graph.Attribute
	for i := range docs {
		d := &docs[i]
		p := at(path, "", i)
		a := &graph.Attribute{}
		var err error
		if a.Type, err = typeRef(p+".type", d.Type); err != nil {
			return nil, err
		}
		if a.Constructor, err = methodRef(p+".ctor", d.Constructor); err != nil {
			return nil, err
		}
		for j := range d.Arguments {
			arg, err := argument(at(p, "args", j), &d.Arguments[j], 0)
			if err != nil {
				return nil, err
			}
			a.Arguments = append(a.Arguments, arg)
		}
		if a.Fields, err = namedArguments(p+".fields", d.Fields); err != nil {
			return nil, err
		}
		if a.Properties, err = namedArguments(p+".properties", d.Properties); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func namedArguments(path string, docs []NamedDoc) ([]*graph.NamedArgument, error) {
	var out []*graph.NamedArgument
	for i := range docs {
		arg, err := argument(at(path, "", i)+".arg", &docs[i].Argument, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, &graph.NamedArgument{Name: docs[i].Name, Argument: arg})
	}
	return out, nil
}

func argument(path string, d *ArgumentDoc, depth int) (*graph.AttributeArgument, error) {
	if depth > maxRefDepth {
		return nil, fmt.Errorf("%s: %w: argument nesting too deep", path, ErrInvalidDocument)
	}
	arg := &graph.AttributeArgument{}
	var err error
	if arg.Type, err = typeRef(path+".type", d.Type); err != nil {
		return nil, err
	}
	switch {
	case d.TypeValue != "":
		tv, err := typeRef(path+".type_value", d.TypeValue)
		if err != nil {
			return nil, err
		}
		arg.Value = tv
	case d.Value != nil:
		arg.Value = constant(d.Value)
	}
	if d.Boxed != nil {
		if arg.Boxed, err = argument(path+".boxed", d.Boxed, depth+1); err != nil {
			return nil, err
		}
	}
	for i := range d.Elements {
		el, err := argument(at(path, "elements", i), &d.Elements[i], depth+1)
		if err != nil {
			return nil, err
		}
		arg.Elements = append(arg.Elements, el)
	}
	return arg, nil
}

func (b *builder) debug(path string, d *DebugDoc) (*graph.MethodDebugInfo, error) {
	info := &graph.MethodDebugInfo{}
	var err error
	if info.KickoffMethod, err = methodRef(path+".kickoff", d.Kickoff); err != nil {
		return nil, err
	}
	if d.Scope != nil {
		if info.Scope, err = b.scope(path+".scope", d.Scope, 0); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (b *builder) scope(path string, d *ScopeDoc, depth int) (*graph.Scope, error) {
	if depth > maxRefDepth {
		return nil, fmt.Errorf("%s: %w: scope nesting too deep", path, ErrInvalidDocument)
	}
	sc := &graph.Scope{Start: d.Start, End: d.End}
	if d.Import != "" {
		is, ok := b.imports[d.Import]
		if !ok {
			return nil, fmt.Errorf("%s.import: %w: no import scope %q", path, ErrUnresolvedToken, d.Import)
		}
		sc.Import = is
	}
	for i, cd := range d.Constants {
		c := &graph.DebugConstant{Name: cd.Name, Value: constant(cd.Value)}
		var err error
		if c.ConstantType, err = typeRef(at(path, "constants", i)+".type", cd.Type); err != nil {
			return nil, err
		}
		sc.Constants = append(sc.Constants, c)
	}
	for i := range d.Scopes {
		child, err := b.scope(at(path, "scopes", i), &d.Scopes[i], depth+1)
		if err != nil {
			return nil, err
		}
		sc.Scopes = append(sc.Scopes, child)
	}
	return sc, nil
}

// =============================================================================
// Helpers
// =============================================================================

func typeRef(path, s string) (graph.TypeRef, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTypeRef(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func methodRef(path, s string) (graph.MethodRef, error) {
	if s == "" {
		return nil, nil
	}
	m, err := ParseMethodRef(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// constant wraps a document scalar. JSON numbers become int64 or float64.
func constant(v any) *graph.Constant {
	if v == nil {
		return nil
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			v = i
		} else if f, err := n.Float64(); err == nil {
			v = f
		} else {
			v = n.String()
		}
	}
	return &graph.Constant{Value: v}
}
