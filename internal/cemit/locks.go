// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import "stapcore/internal/ir"

// LockMode is how a probe body touches a given global, spec.md
// §4.3.7.
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
)

// LockEntry is one row of a probe's static lock-set table: which
// global, in which mode, and the name of its generated skip counter.
type LockEntry struct {
	Global *ir.VarDecl
	Mode   LockMode
}

// SkipCounterName is the per-lock counter incremented when a probe's
// entry bails out rather than blocking on an already-held lock.
func (e LockEntry) SkipCounterName() string {
	return "skipped_" + e.Global.Name
}

// LockSet computes the ordered, deduplicated set of globals a probe
// body touches, spec.md §4.3.7: a `<<<` (stat append) on a stats
// global counts as read because it is implicitly per-CPU; an `@op`
// extraction (StatOp, e.g. @sum/@count) counts as write because it
// aggregates across CPUs. Entries keep the order in which the body
// first touches each global; they are not sorted by the globals'
// declaration order.
type LockSet struct {
	entries []LockEntry
	seen    map[string]int // global name -> index into entries, for mode promotion
}

func NewLockSet() *LockSet {
	return &LockSet{seen: make(map[string]int)}
}

func (ls *LockSet) touch(v *ir.VarDecl, mode LockMode) {
	if v == nil || !v.Global {
		return
	}
	if i, ok := ls.seen[v.Name]; ok {
		if mode == LockWrite {
			ls.entries[i].Mode = LockWrite
		}
		return
	}
	ls.seen[v.Name] = len(ls.entries)
	ls.entries = append(ls.entries, LockEntry{Global: v, Mode: mode})
}

// Entries returns the accumulated lock set in first-touched order,
// with any later write upgrading an earlier read-only touch in place.
func (ls *LockSet) Entries() []LockEntry { return ls.entries }

// WalkExpr folds e's global touches into ls.
func (ls *LockSet) WalkExpr(e *ir.Expr) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ir.ExprSymbol:
		ls.touch(e.Decl, LockRead)
	case ir.ExprArrayIndex:
		ls.touch(e.Decl, LockRead)
		for _, idx := range e.Indices {
			ls.WalkExpr(idx)
		}
	case ir.ExprAssignment:
		if e.Target != nil && e.Target.Decl != nil {
			ls.touch(e.Target.Decl, LockWrite)
		} else {
			ls.WalkExpr(e.Target)
		}
		ls.WalkExpr(e.Value)
	case ir.ExprStatOp:
		// @sum/@count/... extraction aggregates across CPUs: a write.
		if e.StatTarget != nil && e.StatTarget.Decl != nil {
			ls.touch(e.StatTarget.Decl, LockWrite)
		} else {
			ls.WalkExpr(e.StatTarget)
		}
	case ir.ExprHistOp:
		ls.WalkExpr(e.HistTarget)
	case ir.ExprUnary, ir.ExprPreIncDec, ir.ExprPostIncDec:
		ls.WalkExpr(e.Sub)
	case ir.ExprBinary, ir.ExprLogical, ir.ExprComparison:
		ls.WalkExpr(e.LHS)
		ls.WalkExpr(e.RHS)
	case ir.ExprConcat, ir.ExprFuncCall, ir.ExprPrintFormat:
		for _, a := range e.Args {
			ls.WalkExpr(a)
		}
	case ir.ExprTernary:
		ls.WalkExpr(e.Cond)
		ls.WalkExpr(e.Then)
		ls.WalkExpr(e.Else)
	}
}

// WalkStatAppend folds a `<<<` stat append into ls: implicitly
// per-CPU, so a read-mode touch rather than write.
func (ls *LockSet) WalkStatAppend(target *ir.Expr) {
	if target != nil && target.Decl != nil {
		ls.touch(target.Decl, LockRead)
	}
}

// AcquireSequence emits the probe-entry lock acquisition of spec.md
// §4.3.7: acquire each entry in array order with a shared helper that
// either succeeds atomically or increments that lock's skip counter
// and returns early, so no probe ever blocks holding a partial set.
func AcquireSequence(entries []LockEntry) *CStmt {
	b := Block()
	for _, e := range entries {
		fn := "read_trylock"
		if e.Mode == LockWrite {
			fn = "write_trylock"
		}
		b.Append(Raw("if (!%s(&global_%s_lock)) {", fn, e.Global.Name))
		b.Append(Raw("\tatomic_inc(&%s);", e.SkipCounterName()))
		b.Append(ReleaseSequence(priorEntries(entries, e)))
		b.Append(Raw("\treturn;"))
		b.Append(Raw("}"))
	}
	return b
}

// ReleaseSequence emits the matching unlock-in-reverse-order sequence.
func ReleaseSequence(entries []LockEntry) *CStmt {
	b := Block()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fn := "read_unlock"
		if e.Mode == LockWrite {
			fn = "write_unlock"
		}
		b.Append(Raw("%s(&global_%s_lock);", fn, e.Global.Name))
	}
	return b
}

func priorEntries(all []LockEntry, upTo LockEntry) []LockEntry {
	out := make([]LockEntry, 0, len(all))
	for _, e := range all {
		if e.Global == upTo.Global {
			break
		}
		out = append(out, e)
	}
	return out
}
