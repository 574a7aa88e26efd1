// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"fmt"
	"strings"

	"stapcore/internal/ir"
)

func trimTrailingComma(s string) string {
	return strings.TrimSuffix(s, ", ")
}

// shiftClamp clamps a compound shift's right-hand operand into
// [0, 64], spec.md §4.3.4.
func shiftClamp(rhs CExpr) CExpr {
	return CExpr(fmt.Sprintf("clamp_t(int64_t, (%s), 0, 64)", rhs))
}

// UnaryMinus lowers `-x` as an unsigned-wraparound negation, spec.md
// §4.3.4: "0 - (uint64_t)x reinterpreted as signed, to avoid
// signed-overflow warnings on INT64_MIN."
func UnaryMinus(x CExpr) CExpr {
	return CExpr(fmt.Sprintf("((int64_t)(0ULL - (uint64_t)(%s)))", x))
}

// cBinOp renders the C infix operator text for an ir.BinOp, clamping
// shift amounts per spec.md §4.3.4.
func cBinOp(op ir.BinOp, lhs, rhs CExpr) CExpr {
	switch op {
	case ir.OpAdd:
		return CExpr(fmt.Sprintf("(%s + %s)", lhs, rhs))
	case ir.OpSub:
		return CExpr(fmt.Sprintf("(%s - %s)", lhs, rhs))
	case ir.OpMul:
		return CExpr(fmt.Sprintf("(%s * %s)", lhs, rhs))
	case ir.OpAnd:
		return CExpr(fmt.Sprintf("(%s & %s)", lhs, rhs))
	case ir.OpOr:
		return CExpr(fmt.Sprintf("(%s | %s)", lhs, rhs))
	case ir.OpXor:
		return CExpr(fmt.Sprintf("(%s ^ %s)", lhs, rhs))
	case ir.OpShl:
		return CExpr(fmt.Sprintf("(%s << %s)", lhs, shiftClamp(rhs)))
	case ir.OpShr:
		return CExpr(fmt.Sprintf("(%s >> %s)", lhs, shiftClamp(rhs)))
	case ir.OpDiv:
		return CExpr(fmt.Sprintf("(%s / %s)", lhs, rhs))
	case ir.OpMod:
		return CExpr(fmt.Sprintf("(%s %% %s)", lhs, rhs))
	default:
		return CExpr(fmt.Sprintf("(%s /* unknown op */ %s)", lhs, rhs))
	}
}

// BinOp exposes cBinOp's operator lowering to callers outside the
// package (internal/translator's body walker) that need the same
// infix-operator text a ScalarAssign/ArrayElementAssign would produce,
// without duplicating the shift-clamp handling here.
func BinOp(op ir.BinOp, lhs, rhs CExpr) CExpr {
	return cBinOp(op, lhs, rhs)
}

// ScalarAssign emits the canonical lowering of `L op= R` for a scalar
// target, spec.md §4.3.4:
//
//	tmp = R; check(R);
//	lock(L);  res = L op tmp;  L = res;  unlock(L);
//	res
//
// `=` bypasses the op entirely. `/` and `%` are runtime-guarded
// against a zero rvalue. isGlobal controls whether a lock/unlock pair
// is emitted; resultSlot names the temp the caller's plan reserved for
// this expression's value.
func ScalarAssign(target, rvalueSlot, resultSlot string, op string, binOp ir.BinOp, isGlobal bool, stmtToken string) *CStmt {
	b := Block()
	if op != "=" && (binOp == ir.OpDiv || binOp == ir.OpMod) {
		b.Append(Raw("if (unlikely(%s == 0)) {", rvalueSlot))
		b.Append(setLastError(ErrDivideByZero, stmtToken))
		b.Append(Raw("}"))
	}
	if isGlobal {
		b.Append(Raw("write_lock(&global_%s_lock);", target))
	}
	if op == "=" {
		b.Append(Raw("%s = %s;", resultSlot, rvalueSlot))
		b.Append(Raw("%s = %s;", target, resultSlot))
	} else {
		expr := cBinOp(binOp, CExpr(target), CExpr(rvalueSlot))
		b.Append(Raw("%s = %s;", resultSlot, expr))
		b.Append(Raw("%s = %s;", target, resultSlot))
	}
	if isGlobal {
		b.Append(Raw("write_unlock(&global_%s_lock);", target))
	}
	return b
}

// PostIncDecAssign emits the post-mode variant spec.md §4.3.4 calls
// out separately: the yielded value is L's value *before* the op.
func PostIncDecAssign(target, resultSlot string, binOp ir.BinOp, isGlobal bool) *CStmt {
	b := Block()
	if isGlobal {
		b.Append(Raw("write_lock(&global_%s_lock);", target))
	}
	b.Append(Raw("%s = %s;", resultSlot, target))
	b.Append(Raw("%s = %s;", target, cBinOp(binOp, CExpr(target), CExpr("1"))))
	if isGlobal {
		b.Append(Raw("write_unlock(&global_%s_lock);", target))
	}
	return b
}

// StatAppend emits a `<<<` statistics append: evaluate the rvalue,
// call _stp_stat_add, and yield the inserted value itself, spec.md
// §4.3.4.
func StatAppend(statTarget, valueSlot, resultSlot string) *CStmt {
	return Block(
		Raw("_stp_stat_add(%s, %s);", statTarget, valueSlot),
		Raw("%s = %s;", resultSlot, valueSlot),
	)
}

// ArrayElementAssign emits an array-element read-modify-write under
// the map's lock, spec.md §4.3.4: key temps load first in lexical
// order, then the rvalue, then the update. For a pure `=` the prior
// read is skipped since its result is discarded anyway.
func ArrayElementAssign(mapName string, keySlots []string, rvalueSlot, resultSlot, op string, binOp ir.BinOp, insertGuard *CStmt) *CStmt {
	b := Block()
	b.Append(Raw("write_lock(&global_%s_lock);", mapName))
	keyArgs := ""
	for _, k := range keySlots {
		keyArgs += k + ", "
	}
	if op == "=" {
		b.Append(insertGuard)
		b.Append(Raw("%s = %s;", resultSlot, rvalueSlot))
		b.Append(Raw("_stp_map_set(global_%s, %s%s);", mapName, keyArgs, resultSlot))
	} else {
		b.Append(Raw("int64_t __old = _stp_map_get(global_%s, %s);", mapName, trimTrailingComma(keyArgs)))
		expr := cBinOp(binOp, CExpr("__old"), CExpr(rvalueSlot))
		b.Append(Raw("%s = %s;", resultSlot, expr))
		b.Append(insertGuard)
		b.Append(Raw("_stp_map_set(global_%s, %s%s);", mapName, keyArgs, resultSlot))
	}
	b.Append(Raw("write_unlock(&global_%s_lock);", mapName))
	return b
}
