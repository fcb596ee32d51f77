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

import "strings"

// OperandKind is the operand an opcode takes.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandType
	OperandMethod
	OperandField
	OperandToken
	OperandSig
	OperandString
	OperandInt
	OperandFloat
	OperandVar
	OperandArg
	OperandBranch
	OperandSwitch
)

var operandKindNames = map[OperandKind]string{
	OperandNone:   "none",
	OperandType:   "type",
	OperandMethod: "method",
	OperandField:  "field",
	OperandToken:  "token",
	OperandSig:    "sig",
	OperandString: "string",
	OperandInt:    "int",
	OperandFloat:  "float",
	OperandVar:    "var",
	OperandArg:    "arg",
	OperandBranch: "target",
	OperandSwitch: "targets",
}

// String returns the string representation of the OperandKind.
func (k OperandKind) String() string {
	if name, ok := operandKindNames[k]; ok {
		return name
	}
	return "none"
}

// opcodes maps every known opcode to its operand kind.
var opcodes = buildOpcodeTable()

// LookupOpcode returns the operand kind of op.
func LookupOpcode(op string) (OperandKind, bool) {
	k, ok := opcodes[strings.ToLower(op)]
	return k, ok
}

func buildOpcodeTable() map[string]OperandKind {
	t := make(map[string]OperandKind)
	add := func(kind OperandKind, ops ...string) {
		for _, op := range ops {
			t[op] = kind
		}
	}
	// Short branch forms share the table with their long forms.
	withShort := func(kind OperandKind, ops ...string) {
		for _, op := range ops {
			t[op] = kind
			t[op+".s"] = kind
		}
	}

	add(OperandNone,
		"nop", "break", "dup", "pop", "ret", "throw", "rethrow",
		"ldarg.0", "ldarg.1", "ldarg.2", "ldarg.3",
		"ldloc.0", "ldloc.1", "ldloc.2", "ldloc.3",
		"stloc.0", "stloc.1", "stloc.2", "stloc.3",
		"ldnull", "ldc.i4.m1", "ldc.i4.0", "ldc.i4.1", "ldc.i4.2", "ldc.i4.3",
		"ldc.i4.4", "ldc.i4.5", "ldc.i4.6", "ldc.i4.7", "ldc.i4.8",
		"ldind.i1", "ldind.u1", "ldind.i2", "ldind.u2", "ldind.i4", "ldind.u4",
		"ldind.i8", "ldind.i", "ldind.r4", "ldind.r8", "ldind.ref",
		"stind.ref", "stind.i1", "stind.i2", "stind.i4", "stind.i8",
		"stind.r4", "stind.r8", "stind.i",
		"add", "sub", "mul", "div", "div.un", "rem", "rem.un",
		"and", "or", "xor", "shl", "shr", "shr.un", "neg", "not",
		"add.ovf", "add.ovf.un", "mul.ovf", "mul.ovf.un", "sub.ovf", "sub.ovf.un",
		"conv.i1", "conv.i2", "conv.i4", "conv.i8", "conv.r4", "conv.r8",
		"conv.u1", "conv.u2", "conv.u4", "conv.u8", "conv.i", "conv.u", "conv.r.un",
		"conv.ovf.i1", "conv.ovf.i2", "conv.ovf.i4", "conv.ovf.i8",
		"conv.ovf.u1", "conv.ovf.u2", "conv.ovf.u4", "conv.ovf.u8",
		"conv.ovf.i", "conv.ovf.u",
		"conv.ovf.i1.un", "conv.ovf.i2.un", "conv.ovf.i4.un", "conv.ovf.i8.un",
		"conv.ovf.u1.un", "conv.ovf.u2.un", "conv.ovf.u4.un", "conv.ovf.u8.un",
		"conv.ovf.i.un", "conv.ovf.u.un",
		"ldlen", "ldelem.i1", "ldelem.u1", "ldelem.i2", "ldelem.u2", "ldelem.i4",
		"ldelem.u4", "ldelem.i8", "ldelem.i", "ldelem.r4", "ldelem.r8", "ldelem.ref",
		"stelem.i", "stelem.i1", "stelem.i2", "stelem.i4", "stelem.i8",
		"stelem.r4", "stelem.r8", "stelem.ref",
		"ckfinite", "endfinally", "endfilter", "localloc", "arglist",
		"ceq", "cgt", "cgt.un", "clt", "clt.un", "refanytype",
		"cpblk", "initblk", "readonly.", "tail.", "volatile.",
	)
	add(OperandType,
		"box", "unbox", "unbox.any", "castclass", "isinst", "newarr",
		"ldobj", "stobj", "cpobj", "initobj", "sizeof", "mkrefany", "refanyval",
		"ldelema", "ldelem", "stelem", "constrained.",
	)
	add(OperandMethod, "call", "callvirt", "newobj", "jmp", "ldftn", "ldvirtftn")
	add(OperandField, "ldfld", "ldflda", "stfld", "ldsfld", "ldsflda", "stsfld")
	add(OperandToken, "ldtoken")
	add(OperandSig, "calli")
	add(OperandString, "ldstr")
	add(OperandInt, "ldc.i4", "ldc.i4.s", "ldc.i8", "unaligned.", "no.")
	add(OperandFloat, "ldc.r4", "ldc.r8")
	withShort(OperandVar, "ldloc", "ldloca", "stloc")
	withShort(OperandArg, "ldarg", "ldarga", "starg")
	withShort(OperandBranch,
		"br", "brfalse", "brtrue", "beq", "bge", "bge.un", "bgt", "bgt.un",
		"ble", "ble.un", "blt", "blt.un", "bne.un", "leave",
	)
	add(OperandSwitch, "switch")
	return t
}
