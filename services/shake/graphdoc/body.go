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

	"github.com/AleutianAI/shake/services/shake/graph"
)

// body builds a method body in two passes: instructions are created first
// so branch targets and handler boundaries can point forward.
func (b *builder) body(path string, m *graph.Method, d *BodyDoc) (*graph.Body, error) {
	body := &graph.Body{}
	for i, vd := range d.Variables {
		v := &graph.Variable{Name: vd.Name, Index: i}
		var err error
		if v.VariableType, err = typeRef(at(path, "variables", i)+".type", vd.Type); err != nil {
			return nil, err
		}
		body.Variables = append(body.Variables, v)
	}

	byOffset := make(map[int]*graph.Instruction, len(d.Instructions))
	for i, id := range d.Instructions {
		ins := &graph.Instruction{Offset: i, OpCode: id.Op}
		if id.Offset != nil {
			ins.Offset = *id.Offset
		}
		if _, dup := byOffset[ins.Offset]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate offset %d", at(path, "instructions", i), ErrInvalidDocument, ins.Offset)
		}
		byOffset[ins.Offset] = ins
		body.Instructions = append(body.Instructions, ins)
	}

	for i := range d.Instructions {
		p := at(path, "instructions", i)
		if err := operand(p, m, body, byOffset, body.Instructions[i], &d.Instructions[i]); err != nil {
			return nil, err
		}
	}

	for i, hd := range d.Handlers {
		p := at(path, "handlers", i)
		kind, _ := graph.ParseHandlerKind(hd.Kind)
		h := &graph.ExceptionHandler{HandlerKind: kind}
		var err error
		if h.CatchType, err = typeRef(p+".catch_type", hd.CatchType); err != nil {
			return nil, err
		}
		bounds := []struct {
			name   string
			offset *int
			dst    **graph.Instruction
		}{
			{"try_start", hd.TryStart, &h.TryStart},
			{"try_end", hd.TryEnd, &h.TryEnd},
			{"handler_start", hd.HandlerStart, &h.HandlerStart},
			{"handler_end", hd.HandlerEnd, &h.HandlerEnd},
			{"filter_start", hd.FilterStart, &h.FilterStart},
		}
		for _, bd := range bounds {
			if bd.offset == nil {
				continue
			}
			ins, ok := byOffset[*bd.offset]
			if !ok {
				return nil, fmt.Errorf("%s.%s: %w: no instruction at offset %d", p, bd.name, ErrUnresolvedToken, *bd.offset)
			}
			*bd.dst = ins
		}
		body.Handlers = append(body.Handlers, h)
	}
	return body, nil
}

// operand checks d against the opcode table and sets the operand of ins.
func operand(path string, m *graph.Method, body *graph.Body, byOffset map[int]*graph.Instruction, ins *graph.Instruction, d *InstructionDoc) error {
	kind, ok := LookupOpcode(d.Op)
	if !ok {
		return fmt.Errorf("%s: %w: %q", path, ErrUnknownOpcode, d.Op)
	}

	given := givenOperands(d)
	if len(given) > 1 {
		return fmt.Errorf("%s: %w: %s takes one operand, got %v", path, ErrOperandMismatch, d.Op, given)
	}
	if !fits(kind, given) {
		return fmt.Errorf("%s: %w: %s takes %s, got %v", path, ErrOperandMismatch, d.Op, kind, given)
	}

	var err error
	switch {
	case d.Type != "":
		ins.Operand, err = typeRef(path+".type", d.Type)
	case d.Method != "":
		ins.Operand, err = methodRef(path+".method", d.Method)
	case d.Field != "":
		var f *graph.FieldReference
		if f, err = ParseFieldRef(d.Field); err != nil {
			err = fmt.Errorf("%s.field: %w", path, err)
		} else {
			ins.Operand = f
		}
	case d.Sig != "":
		var cs *graph.CallSite
		if cs, err = ParseCallSite(d.Sig); err != nil {
			err = fmt.Errorf("%s.sig: %w", path, err)
		} else {
			ins.Operand = cs
		}
	case d.Const != nil:
		if !constFits(kind, d.Const) {
			return fmt.Errorf("%s: %w: %s takes %s, got %T", path, ErrOperandMismatch, d.Op, kind, d.Const)
		}
		ins.Operand = constant(d.Const)
	case d.Var != nil:
		if *d.Var < 0 || *d.Var >= len(body.Variables) {
			return fmt.Errorf("%s.var: %w: no variable %d", path, ErrUnresolvedToken, *d.Var)
		}
		ins.Operand = body.Variables[*d.Var]
	case d.Arg != nil:
		if *d.Arg < 0 || *d.Arg >= len(m.Parameters) {
			return fmt.Errorf("%s.arg: %w: no parameter %d", path, ErrUnresolvedToken, *d.Arg)
		}
		ins.Operand = m.Parameters[*d.Arg]
	case d.Target != nil:
		target, ok := byOffset[*d.Target]
		if !ok {
			return fmt.Errorf("%s.target: %w: no instruction at offset %d", path, ErrUnresolvedToken, *d.Target)
		}
		ins.Operand = target
	case d.Targets != nil:
		for _, off := range d.Targets {
			target, ok := byOffset[off]
			if !ok {
				return fmt.Errorf("%s.targets: %w: no instruction at offset %d", path, ErrUnresolvedToken, off)
			}
			ins.Targets = append(ins.Targets, target)
		}
	}
	return err
}

func givenOperands(d *InstructionDoc) []string {
	var given []string
	add := func(set bool, name string) {
		if set {
			given = append(given, name)
		}
	}
	add(d.Type != "", "type")
	add(d.Method != "", "method")
	add(d.Field != "", "field")
	add(d.Sig != "", "sig")
	add(d.Const != nil, "const")
	add(d.Var != nil, "var")
	add(d.Arg != nil, "arg")
	add(d.Target != nil, "target")
	add(d.Targets != nil, "targets")
	return given
}

// fits reports whether the operand fields given suit kind. An absent
// operand is accepted only for OperandNone.
func fits(kind OperandKind, given []string) bool {
	if len(given) == 0 {
		return kind == OperandNone
	}
	switch given[0] {
	case "type":
		return kind == OperandType || kind == OperandToken
	case "method":
		return kind == OperandMethod || kind == OperandToken
	case "field":
		return kind == OperandField || kind == OperandToken
	case "sig":
		return kind == OperandSig
	case "const":
		return kind == OperandString || kind == OperandInt || kind == OperandFloat
	case "var":
		return kind == OperandVar
	case "arg":
		return kind == OperandArg
	case "target":
		return kind == OperandBranch
	case "targets":
		return kind == OperandSwitch
	}
	return false
}

func constFits(kind OperandKind, v any) bool {
	c := constant(v)
	switch kind {
	case OperandString:
		_, ok := c.Value.(string)
		return ok
	case OperandInt:
		switch c.Value.(type) {
		case int, int64, uint64:
			return true
		}
	case OperandFloat:
		switch c.Value.(type) {
		case int, int64, uint64, float64:
			return true
		}
	}
	return false
}
