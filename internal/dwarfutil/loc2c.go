// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import (
	"debug/dwarf"
	"fmt"
	"strings"
)

// CFragment is a piece of generated C produced by translating a DWARF
// location expression, spec.md §4.1 "Location translation". It is
// emitted inside a caller-provided `{ ... goto out; }` block.
type CFragment struct {
	// Text is the C expression computing the located value (for a
	// read) or an lvalue expression (for a write).
	Text string
	// Depth is the native-word stack depth this fragment consumes;
	// spec.md requires this not exceed 32.
	Depth int
}

const maxLocationStackDepth = 32

// TranslateLocation emits a C fragment that computes the value (or, if
// write is true, an lvalue) of a variable whose DW_AT_location
// attribute is loc. For a local variable frameBase supplies the
// enclosing subprogram's frame-base expression; pc is not used.
//
// Supported DWARF types: integer, boolean, char and enumeration base
// types, pointers, arrays (as a pointer to the element type), and
// structs (as `struct NAME`), with typedef/const/volatile stripped
// first. Float and complex types are rejected for both reads and
// writes; any other type is rejected as unsupported. References,
// array indexing and member selection are not handled here (see
// MemberAccess for member offsets), and bit-fields are not checked.
func TranslateLocation(typ dwarf.Type, loc []byte, pc uint64, frameBase []byte, write bool) (CFragment, error) {
	base, err := evalSimpleLocation(loc, frameBase)
	if err != nil {
		return CFragment{}, err
	}
	expr, depth, err := typeAccessExpr(typ, base.expr, write)
	if err != nil {
		return CFragment{}, err
	}
	if depth > maxLocationStackDepth {
		return CFragment{}, fmt.Errorf("dwarfutil: location expression stack depth %d exceeds %d", depth, maxLocationStackDepth)
	}
	return CFragment{Text: expr, Depth: depth}, nil
}

// simpleLocation is the result of evaluating a location expression
// that resolves to a single address or register, the common case this
// core needs to hand to the C emitter.
type simpleLocation struct {
	expr string // C expression for the address (or value, if inReg)
	inReg bool
}

// evalSimpleLocation evaluates the handful of DWARF opcodes the
// adapter's callers actually produce for SystemTap targets:
// DW_OP_addr, DW_OP_fbreg, DW_OP_breg*, and DW_OP_regN. A full DWARF
// expression VM is the underlying library's job upstream of this
// function; this function is the "turn the already-evaluated base
// address into C" step (spec.md describes this as delegating "a
// compiled-code library (loc2c)" the composed address to).
func evalSimpleLocation(loc []byte, frameBase []byte) (simpleLocation, error) {
	if len(loc) == 0 {
		return simpleLocation{}, fmt.Errorf("dwarfutil: empty location expression")
	}
	const (
		opAddr   = 0x03
		opFbreg  = 0x91
		opReg0   = 0x50
		opBreg0  = 0x70
	)
	op := loc[0]
	switch {
	case op == opAddr:
		addr := leUint64(loc[1:])
		return simpleLocation{expr: fmt.Sprintf("(void *)0x%xUL", addr)}, nil
	case op == opFbreg:
		offset, _ := sleb128(loc[1:])
		fb, err := evalFrameBase(frameBase)
		if err != nil {
			return simpleLocation{}, err
		}
		return simpleLocation{expr: fmt.Sprintf("((char *)(%s) + (%d))", fb, offset)}, nil
	case op >= opReg0 && op < opReg0+32:
		return simpleLocation{expr: fmt.Sprintf("CONTEXT_REG(%d)", op-opReg0), inReg: true}, nil
	case op >= opBreg0 && op < opBreg0+32:
		offset, _ := sleb128(loc[1:])
		return simpleLocation{expr: fmt.Sprintf("((char *)CONTEXT_REG(%d) + (%d))", op-opBreg0, offset)}, nil
	default:
		return simpleLocation{}, fmt.Errorf("dwarfutil: unsupported location opcode 0x%02x", op)
	}
}

func evalFrameBase(frameBase []byte) (string, error) {
	if len(frameBase) == 0 {
		return "", fmt.Errorf("dwarfutil: no frame base available for fbreg location")
	}
	const opCallFrameCFA = 0x9c
	if frameBase[0] == opCallFrameCFA {
		return "CONTEXT_CFA()", nil
	}
	loc, err := evalSimpleLocation(frameBase, nil)
	if err != nil {
		return "", err
	}
	return loc.expr, nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func sleb128(b []byte) (int64, int) {
	var result int64
	var shift uint
	var i int
	for i = 0; i < len(b); i++ {
		byt := b[i]
		result |= int64(byt&0x7f) << shift
		shift += 7
		if byt&0x80 == 0 {
			if shift < 64 && byt&0x40 != 0 {
				result |= -1 << shift
			}
			i++
			break
		}
	}
	return result, i
}

// typeAccessExpr wraps base with the C syntax needed to read (or
// write) a value of type typ, stripping typedef/const/volatile
// transparently and rejecting float/complex types for both reads and
// writes, per spec.md §4.1. Bit-fields are not detected.
func typeAccessExpr(typ dwarf.Type, base string, write bool) (string, int, error) {
	depth := 1
	for {
		switch t := typ.(type) {
		case *dwarf.TypedefType:
			typ = t.Type
			continue
		case *dwarf.QualType:
			typ = t.Type
			continue
		}
		break
	}
	switch t := typ.(type) {
	case *dwarf.IntType, *dwarf.UintType, *dwarf.BoolType, *dwarf.CharType, *dwarf.UcharType, *dwarf.EnumType:
		return fmt.Sprintf("(*(%s *)(%s))", cTypeName(typ), base), depth, nil
	case *dwarf.FloatType, *dwarf.ComplexType:
		if write {
			return "", 0, fmt.Errorf("dwarfutil: cannot write float/complex target variables")
		}
		return "", 0, fmt.Errorf("dwarfutil: cannot read float/complex target variables")
	case *dwarf.PtrType:
		return fmt.Sprintf("(*(%s **)(%s))", cTypeName(t.Type), base), depth, nil
	case *dwarf.ArrayType:
		return fmt.Sprintf("((%s *)(%s))", cTypeName(t.Type), base), depth, nil
	case *dwarf.StructType:
		return fmt.Sprintf("(*(struct %s *)(%s))", t.StructName, base), depth, nil
	default:
		return "", 0, fmt.Errorf("dwarfutil: unsupported target type %T", typ)
	}
}

// MemberAccess resolves a member access on an aggregate type via a
// breadth-first search across inheritance, recursing into anonymous
// (unnamed) members, per spec.md §4.1.
func MemberAccess(agg *dwarf.StructType, member string) (offset int64, typ dwarf.Type, err error) {
	type queued struct {
		s      *dwarf.StructType
		base   int64
	}
	queue := []queued{{agg, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, f := range cur.s.Field {
			if f.Name == member {
				return cur.base + f.ByteOffset, f.Type, nil
			}
			if f.Name == "" {
				if sub, ok := f.Type.(*dwarf.StructType); ok {
					queue = append(queue, queued{sub, cur.base + f.ByteOffset})
				}
			}
		}
	}
	return 0, nil, fmt.Errorf("dwarfutil: no member %q in %s", member, agg.StructName)
}

// cTypeName renders a DWARF type as a C type name, stripping
// typedef/const/volatile down to the underlying spelling for
// primitive types and naming aggregates by tag.
func cTypeName(typ dwarf.Type) string {
	switch t := typ.(type) {
	case nil:
		return "void"
	case *dwarf.TypedefType:
		return t.Name
	case *dwarf.QualType:
		return strings.TrimSpace(t.Qual + " " + cTypeName(t.Type))
	case *dwarf.IntType:
		return intCName(t.ByteSize, true)
	case *dwarf.UintType:
		return intCName(t.ByteSize, false)
	case *dwarf.CharType:
		return "char"
	case *dwarf.UcharType:
		return "unsigned char"
	case *dwarf.BoolType:
		return "int"
	case *dwarf.PtrType:
		return cTypeName(t.Type) + " *"
	case *dwarf.StructType:
		return "struct " + t.StructName
	case *dwarf.EnumType:
		return "int"
	default:
		return "void"
	}
}

func intCName(size int64, signed bool) string {
	u := ""
	if !signed {
		u = "unsigned "
	}
	switch size {
	case 1:
		return u + "char"
	case 2:
		return u + "short"
	case 4:
		return u + "int"
	default:
		return u + "long long"
	}
}
