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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/shake/services/shake/graph"
)

// =============================================================================
// REFERENCE GRAMMAR
// =============================================================================
//
//	type    [Scope]Ns.Outer`1/Inner     external or local named type
//	        Name`1<Arg,Arg>             generic instance
//	        T[]  T[,]  T&  T*           array, multi-dimensional array, by-ref, pointer
//	        !0  !!0                     type and method generic parameter
//	method  Type::Name`1<Arg>(P,P):Ret  arity, instance arguments and return optional
//	field   Type::name:FieldType        field type optional
//	sig     Ret(P,P)                    call site signature
//
// Names that start with '<' (compiler generated) may contain any character
// up to the matching '>'.

// maxRefDepth bounds nesting in a single reference string.
const maxRefDepth = 64

// ParseTypeRef parses a type reference string.
func ParseTypeRef(s string) (graph.TypeRef, error) {
	p := &refParser{src: s}
	t, err := p.typeRef()
	if err != nil {
		return nil, err
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseMethodRef parses a method reference string.
func ParseMethodRef(s string) (graph.MethodRef, error) {
	p := &refParser{src: s}
	m, err := p.methodRef()
	if err != nil {
		return nil, err
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseFieldRef parses a field reference string.
func ParseFieldRef(s string) (*graph.FieldReference, error) {
	p := &refParser{src: s}
	owner, err := p.typeRef()
	if err != nil {
		return nil, err
	}
	if !p.consume("::") {
		return nil, p.errorf("expected '::'")
	}
	name := p.memberName(false)
	if name == "" {
		return nil, p.errorf("expected field name")
	}
	f := &graph.FieldReference{DeclaringType: owner, Name: name}
	if p.consume(":") {
		if f.FieldType, err = p.typeRef(); err != nil {
			return nil, err
		}
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return f, nil
}

// ParseCallSite parses a call site signature "Ret(P,P)".
func ParseCallSite(s string) (*graph.CallSite, error) {
	p := &refParser{src: s}
	ret, err := p.typeRef()
	if err != nil {
		return nil, err
	}
	params, err := p.parameterList()
	if err != nil {
		return nil, err
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return &graph.CallSite{ReturnType: ret, Parameters: params}, nil
}

type refParser struct {
	src   string
	pos   int
	depth int
}

func (p *refParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %q at %d: %s", ErrMalformedRef, p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *refParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *refParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *refParser) consume(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *refParser) end() error {
	p.skipSpace()
	if p.pos != len(p.src) {
		return p.errorf("unexpected %q", p.src[p.pos:])
	}
	return nil
}

func (p *refParser) typeRef() (graph.TypeRef, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxRefDepth {
		return nil, p.errorf("nesting too deep")
	}

	p.skipSpace()
	var t graph.TypeRef
	if p.peek() == '!' {
		gp, err := p.genericParameter()
		if err != nil {
			return nil, err
		}
		t = gp
	} else {
		named, err := p.named()
		if err != nil {
			return nil, err
		}
		t = named
	}

	if p.peek() == '<' {
		args, err := p.argumentList()
		if err != nil {
			return nil, err
		}
		t = graph.NewGenericInstance(t, args...)
	}

	for {
		switch p.peek() {
		case '[':
			p.pos++
			rank := 1
			for p.peek() == ',' {
				rank++
				p.pos++
			}
			if p.peek() != ']' {
				return nil, p.errorf("expected ']'")
			}
			p.pos++
			t = &graph.TypeSpec{Shape: graph.ShapeArray, Element: t, Rank: rank}
		case '&':
			p.pos++
			t = graph.NewByRef(t)
		case '*':
			p.pos++
			t = graph.NewPointer(t)
		default:
			return t, nil
		}
	}
}

func (p *refParser) genericParameter() (*graph.GenericParameterReference, error) {
	gp := &graph.GenericParameterReference{}
	p.pos++
	if p.peek() == '!' {
		gp.MethodLevel = true
		p.pos++
	}
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return nil, p.errorf("expected generic parameter position")
	}
	gp.Position = n
	return gp, nil
}

func (p *refParser) named() (*graph.TypeReference, error) {
	var scope string
	if p.peek() == '[' {
		end := strings.IndexByte(p.src[p.pos:], ']')
		if end < 0 {
			return nil, p.errorf("unterminated scope")
		}
		scope = p.src[p.pos+1 : p.pos+end]
		p.pos += end + 1
	}

	var ref *graph.TypeReference
	for {
		seg := p.segment()
		if seg == "" {
			return nil, p.errorf("expected type name")
		}
		name, arity := splitArity(seg)
		r := &graph.TypeReference{Scope: scope, Name: name, GenericArity: arity, DeclaringType: ref}
		if ref == nil {
			r.Namespace, r.Name = splitNamespace(name)
		}
		ref = r
		if p.peek() != '/' {
			return ref, nil
		}
		p.pos++
	}
}

// segment reads one type name segment including a trailing arity.
func (p *refParser) segment() string {
	start := p.pos
	atStart := true
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '<' && atStart {
			p.skipAngles()
			atStart = false
			continue
		}
		if strings.IndexByte("/<>,[]&*():! ", c) >= 0 {
			break
		}
		atStart = c == '.'
		p.pos++
	}
	return p.src[start:p.pos]
}

// memberName reads a method or field name. When generic is set, a '<'
// that opens an instance argument list ends the name.
func (p *refParser) memberName(generic bool) string {
	p.skipSpace()
	start := p.pos
	atStart := true
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '<' {
			if atStart || !generic || !p.opensArguments() {
				p.skipAngles()
				atStart = false
				continue
			}
			break
		}
		if strings.IndexByte("`(): ", c) >= 0 {
			break
		}
		atStart = c == '.'
		p.pos++
	}
	return p.src[start:p.pos]
}

// opensArguments reports whether the '<' at pos closes right before '('.
func (p *refParser) opensArguments() bool {
	save := p.pos
	p.skipAngles()
	next := p.peek()
	p.pos = save
	return next == '('
}

// skipAngles advances past a balanced '<...>' group.
func (p *refParser) skipAngles() {
	depth := 0
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '<':
			depth++
		case '>':
			depth--
		}
		p.pos++
		if depth == 0 {
			return
		}
	}
}

func (p *refParser) argumentList() ([]graph.TypeRef, error) {
	p.pos++ // '<'
	var args []graph.TypeRef
	for {
		t, err := p.typeRef()
		if err != nil {
			return nil, err
		}
		args = append(args, t)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '>':
			p.pos++
			return args, nil
		default:
			return nil, p.errorf("expected ',' or '>'")
		}
	}
}

func (p *refParser) parameterList() ([]graph.TypeRef, error) {
	if !p.consume("(") {
		return nil, p.errorf("expected '('")
	}
	if p.consume(")") {
		return nil, nil
	}
	var params []graph.TypeRef
	for {
		t, err := p.typeRef()
		if err != nil {
			return nil, err
		}
		params = append(params, t)
		if p.consume(",") {
			continue
		}
		if p.consume(")") {
			return params, nil
		}
		return nil, p.errorf("expected ',' or ')'")
	}
}

func (p *refParser) methodRef() (graph.MethodRef, error) {
	owner, err := p.typeRef()
	if err != nil {
		return nil, err
	}
	if !p.consume("::") {
		return nil, p.errorf("expected '::'")
	}
	name := p.memberName(true)
	if name == "" {
		return nil, p.errorf("expected method name")
	}
	ref := &graph.MethodReference{DeclaringType: owner, Name: name}

	if p.peek() == '`' {
		p.pos++
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		if ref.GenericArity, err = strconv.Atoi(p.src[start:p.pos]); err != nil {
			return nil, p.errorf("expected generic arity")
		}
	}

	var args []graph.TypeRef
	if p.peek() == '<' {
		if args, err = p.argumentList(); err != nil {
			return nil, err
		}
		if ref.GenericArity == 0 {
			ref.GenericArity = len(args)
		}
	}

	if ref.Parameters, err = p.parameterList(); err != nil {
		return nil, err
	}
	if p.consume(":") {
		if ref.ReturnType, err = p.typeRef(); err != nil {
			return nil, err
		}
	}

	if args != nil {
		return &graph.GenericMethodInstance{Element: ref, Arguments: args}, nil
	}
	return ref, nil
}

// splitArity splits "Name`2" into "Name" and 2.
func splitArity(seg string) (string, int) {
	i := strings.LastIndexByte(seg, '`')
	if i < 0 {
		return seg, 0
	}
	n, err := strconv.Atoi(seg[i+1:])
	if err != nil {
		return seg, 0
	}
	return seg[:i], n
}

// splitNamespace splits at the last '.' outside angle brackets.
func splitNamespace(name string) (string, string) {
	depth, cut := 0, -1
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<':
			depth++
		case '>':
			depth--
		case '.':
			if depth == 0 && i > 0 {
				cut = i
			}
		}
	}
	if cut < 0 {
		return "", name
	}
	return name[:cut], name[cut+1:]
}

// =============================================================================
// PRINTING
// =============================================================================

// FormatTypeRef prints t in the reference grammar. Scopes of external
// references are kept.
func FormatTypeRef(t graph.TypeRef) string {
	var sb strings.Builder
	writeTypeRef(&sb, t, 0)
	return sb.String()
}

func writeTypeRef(sb *strings.Builder, t graph.TypeRef, depth int) {
	if depth > maxRefDepth {
		sb.WriteString("?")
		return
	}
	switch v := t.(type) {
	case *graph.TypeReference:
		if v == nil {
			sb.WriteString("?")
			return
		}
		outer := v
		for outer.DeclaringType != nil {
			outer = outer.DeclaringType
		}
		if outer.Scope != "" {
			sb.WriteString("[" + outer.Scope + "]")
		}
		sb.WriteString(graph.TypeName(v))
	case *graph.TypeSpec:
		if v == nil {
			sb.WriteString("?")
			return
		}
		writeTypeRef(sb, v.Element, depth+1)
		switch v.Shape {
		case graph.ShapeGenericInstance:
			sb.WriteByte('<')
			writeTypeList(sb, v.Arguments, depth)
			sb.WriteByte('>')
		case graph.ShapeArray:
			sb.WriteByte('[')
			if v.Rank > 1 {
				sb.WriteString(strings.Repeat(",", v.Rank-1))
			}
			sb.WriteByte(']')
		case graph.ShapeByRef:
			sb.WriteByte('&')
		case graph.ShapePointer:
			sb.WriteByte('*')
		}
	default:
		sb.WriteString(graph.TypeName(t))
	}
}

func writeTypeList(sb *strings.Builder, list []graph.TypeRef, depth int) {
	for i, a := range list {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeTypeRef(sb, a, depth+1)
	}
}

// FormatMethodRef prints m in the reference grammar.
func FormatMethodRef(m graph.MethodRef) string {
	var sb strings.Builder
	switch v := m.(type) {
	case *graph.Method:
		if v == nil {
			return "?"
		}
		writeTypeRef(&sb, v.DeclaringType, 0)
		sb.WriteString("::" + v.Name)
		writeArity(&sb, v.Arity())
		sb.WriteByte('(')
		writeTypeList(&sb, graph.ParameterTypes(v.Parameters), 0)
		sb.WriteByte(')')
	case *graph.MethodReference:
		if v == nil {
			return "?"
		}
		writeMethodReference(&sb, v, nil)
	case *graph.GenericMethodInstance:
		if v == nil {
			return "?"
		}
		switch e := v.Element.(type) {
		case *graph.MethodReference:
			writeMethodReference(&sb, e, v.Arguments)
		case *graph.Method:
			writeMethodReference(&sb, &graph.MethodReference{
				DeclaringType: e.DeclaringType,
				Name:          e.Name,
				GenericArity:  e.Arity(),
				Parameters:    graph.ParameterTypes(e.Parameters),
			}, v.Arguments)
		default:
			return "?"
		}
	default:
		return "?"
	}
	return sb.String()
}

func writeMethodReference(sb *strings.Builder, m *graph.MethodReference, args []graph.TypeRef) {
	writeTypeRef(sb, m.DeclaringType, 0)
	sb.WriteString("::" + m.Name)
	if len(args) == 0 || m.GenericArity != len(args) {
		writeArity(sb, m.GenericArity)
	}
	if len(args) > 0 {
		sb.WriteByte('<')
		writeTypeList(sb, args, 0)
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	writeTypeList(sb, m.Parameters, 0)
	sb.WriteByte(')')
	if !graph.IsNil(m.ReturnType) {
		sb.WriteByte(':')
		writeTypeRef(sb, m.ReturnType, 0)
	}
}

func writeArity(sb *strings.Builder, n int) {
	if n > 0 {
		sb.WriteString("`" + strconv.Itoa(n))
	}
}

// FormatFieldRef prints f in the reference grammar.
func FormatFieldRef(f graph.FieldRef) string {
	switch v := f.(type) {
	case *graph.Field:
		if v == nil {
			return "?"
		}
		return FormatTypeRef(v.DeclaringType) + "::" + v.Name
	case *graph.FieldReference:
		if v == nil {
			return "?"
		}
		s := FormatTypeRef(v.DeclaringType) + "::" + v.Name
		if !graph.IsNil(v.FieldType) {
			s += ":" + FormatTypeRef(v.FieldType)
		}
		return s
	default:
		return "?"
	}
}

// FormatCallSite prints a call site signature.
func FormatCallSite(c *graph.CallSite) string {
	var sb strings.Builder
	writeTypeRef(&sb, c.ReturnType, 0)
	sb.WriteByte('(')
	writeTypeList(&sb, c.Parameters, 0)
	sb.WriteByte(')')
	return sb.String()
}
