// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plan reserves anonymous frame slots for intermediate values
// before the emitter runs, so the per-probe and per-function context
// struct has exactly the right layout (spec.md §4.2).
//
// This replaces the original translator's two-visitors-in-lockstep
// design (spec.md §9, "temp-counter/emitter coupling") with a single
// walk that returns a Plan; internal/cemit consumes the Plan instead
// of re-deriving slot numbers itself.
package plan

import "stapcore/internal/ir"

// Slot is one reserved temporary: its index within the overlay it
// belongs to, and the type it must hold.
type Slot struct {
	Index int
	Type  ir.Type
}

// Overlay is one anonymous-union group of slots that share storage:
// spec.md §4.2 "sequential statements inside a block share slot
// numbers via anonymous-union overlay... nested statements get
// disjoint overlays."
type Overlay struct {
	Slots    []Slot
	Children []*Overlay
}

// Plan is the result of walking one function or probe body.
type Plan struct {
	Root *Overlay
	// ForeachPlans maps a *ir.Stmt (a StmtForeach node) to the extra
	// slots it needs for its iterator, and, for histogram-of-stats-map
	// iteration, its key and aggregate-pointer slots.
	ForeachPlans map[*ir.Stmt]ForeachSlots
	// TotalSlots is the sum of slots across every overlay, for sizing
	// diagnostics; it is not itself the struct layout (overlays share
	// storage within a level).
	TotalSlots int
}

// ForeachSlots names the extra slots a foreach loop reserves beyond
// its body's own temporaries.
type ForeachSlots struct {
	Iterator     Slot
	Keys         []Slot // only populated for histogram-of-pmap iteration
	AggregatePtr *Slot  // only populated for histogram-of-pmap iteration
}

// walker carries the slot counter the planner increments and the
// overlay of the statement currently being walked, into which walkExpr
// records every slot it reserves; internal/cemit reads the finished
// Plan rather than keeping a counter of its own.
type walker struct {
	next    int
	plans   map[*ir.Stmt]ForeachSlots
	total   int
	cur     *Overlay
}

// Walk plans a function or probe body, returning the slot layout the
// emitter must reproduce in its context struct.
func Walk(body *ir.Stmt) *Plan {
	w := &walker{plans: make(map[*ir.Stmt]ForeachSlots)}
	root := w.walkStmt(body)
	return &Plan{Root: root, ForeachPlans: w.plans, TotalSlots: w.total}
}

func (w *walker) reserve(t ir.Type) Slot {
	s := Slot{Index: w.next, Type: t}
	w.next++
	w.total++
	return s
}

// needsSlot reports whether evaluating e materializes a result that
// must be held in a temporary, per spec.md §4.2: "every expression
// that materializes a result (non-trivial binary/comparison/concat/
// assignment/array access/stat op/print) requests a slot."
func needsSlot(e *ir.Expr) bool {
	switch e.Kind {
	case ir.ExprBinary, ir.ExprComparison, ir.ExprConcat, ir.ExprAssignment,
		ir.ExprArrayIndex, ir.ExprStatOp, ir.ExprPrintFormat,
		ir.ExprPreIncDec, ir.ExprPostIncDec:
		return true
	default:
		return false
	}
}

// walkExpr visits e's subexpressions before e itself, matching
// evaluation order, and reserves a slot for e when needsSlot(e).
func (w *walker) walkExpr(e *ir.Expr) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ir.ExprUnary, ir.ExprPreIncDec, ir.ExprPostIncDec:
		w.walkExpr(e.Sub)
	case ir.ExprBinary, ir.ExprLogical, ir.ExprComparison:
		w.walkExpr(e.LHS)
		w.walkExpr(e.RHS)
	case ir.ExprConcat, ir.ExprFuncCall, ir.ExprPrintFormat:
		for _, a := range e.Args {
			w.walkExpr(a)
		}
	case ir.ExprTernary:
		w.walkExpr(e.Cond)
		w.walkExpr(e.Then)
		w.walkExpr(e.Else)
	case ir.ExprArrayIndex:
		for _, idx := range e.Indices {
			w.walkExpr(idx)
		}
	case ir.ExprStatOp:
		w.walkExpr(e.StatTarget)
	case ir.ExprHistOp:
		w.walkExpr(e.HistTarget)
	case ir.ExprAssignment:
		w.walkExpr(e.Target)
		w.walkExpr(e.Value)
	}
	if needsSlot(e) {
		s := w.reserve(e.Type)
		if w.cur != nil {
			w.cur.Slots = append(w.cur.Slots, s)
		}
	}
}

// walkStmt visits s and its children, opening a fresh Overlay per
// nested statement so disjoint branches never alias each other's
// temporaries, and returns nil when no slot was reserved anywhere in
// s's subtree (the planner "must emit the struct/union opening and
// closing only when at least one slot was reserved inside").
func (w *walker) walkStmt(s *ir.Stmt) *Overlay {
	if s == nil {
		return nil
	}
	startNext := w.next
	ov := &Overlay{}
	prev := w.cur
	w.cur = ov
	defer func() { w.cur = prev }()

	switch s.Kind {
	case ir.StmtBlock:
		for _, child := range s.Stmts {
			if c := w.walkStmt(child); c != nil {
				ov.Children = append(ov.Children, c)
			}
		}
	case ir.StmtTryCatch:
		if c := w.walkStmt(s.Try); c != nil {
			ov.Children = append(ov.Children, c)
		}
		if c := w.walkStmt(s.Catch); c != nil {
			ov.Children = append(ov.Children, c)
		}
	case ir.StmtExpr, ir.StmtDelete:
		w.walkExpr(s.E)
	case ir.StmtIf:
		w.walkExpr(s.Cond)
		if c := w.walkStmt(s.Then); c != nil {
			ov.Children = append(ov.Children, c)
		}
		if c := w.walkStmt(s.Else); c != nil {
			ov.Children = append(ov.Children, c)
		}
	case ir.StmtFor:
		if c := w.walkStmt(s.Init); c != nil {
			ov.Children = append(ov.Children, c)
		}
		w.walkExpr(s.Cond)
		if c := w.walkStmt(s.Post); c != nil {
			ov.Children = append(ov.Children, c)
		}
		if c := w.walkStmt(s.Body); c != nil {
			ov.Children = append(ov.Children, c)
		}
	case ir.StmtForeach:
		w.walkForeach(s, ov)
	case ir.StmtReturn:
		w.walkExpr(s.Value)
	}

	if len(ov.Slots) == 0 && len(ov.Children) == 0 {
		if w.next == startNext {
			return nil
		}
	}
	return ov
}

func (w *walker) walkForeach(s *ir.Stmt, ov *Overlay) {
	if s.Limit != nil {
		w.walkExpr(s.Limit)
	}

	fs := ForeachSlots{}
	iterType := ir.Long
	if s.Array != nil && len(s.Array.IndexTypes) > 0 {
		iterType = s.Array.IndexTypes[0]
	}
	fs.Iterator = w.reserve(iterType)
	ov.Slots = append(ov.Slots, fs.Iterator)

	isHistOfPmap := s.Hist != nil && s.Array != nil && s.Array.Stat != nil
	if isHistOfPmap {
		for _, kt := range s.Array.IndexTypes {
			slot := w.reserve(kt)
			fs.Keys = append(fs.Keys, slot)
			ov.Slots = append(ov.Slots, slot)
		}
		agg := w.reserve(ir.Stats)
		fs.AggregatePtr = &agg
		ov.Slots = append(ov.Slots, agg)
	}

	w.plans[s] = fs

	if c := w.walkStmt(s.Body); c != nil {
		ov.Children = append(ov.Children, c)
	}
}
