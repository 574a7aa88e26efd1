// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"fmt"

	"stapcore/internal/ir"
)

// LoopLabels is the "top / continue / break" label triple spec.md
// §4.3.3 generates per loop.
type LoopLabels struct {
	Top, Continue, Break string
}

// LoopLabelsFor exposes the label triple a loop with the given id will
// render, so a caller lowering break/continue statements into gotos
// can target the same names without re-deriving the naming scheme.
func LoopLabelsFor(id int) LoopLabels {
	return labelsFor(id)
}

func labelsFor(id int) LoopLabels {
	return LoopLabels{
		Top:      fmt.Sprintf("loop_top_%d", id),
		Continue: fmt.Sprintf("loop_continue_%d", id),
		Break:    fmt.Sprintf("loop_break_%d", id),
	}
}

// ForLoop emits a `for`/`while` with its label triple and one action
// charge per iteration, spec.md §4.3.3.
func ForLoop(id int, init *CStmt, cond CExpr, post *CStmt, body *CStmt) *CStmt {
	l := labelsFor(id)
	return Block(
		init,
		Label(l.Top),
		If(fmt.Sprintf("!(%s)", cond), Goto(l.Break), nil),
		ActionBudget(1),
		body,
		Label(l.Continue),
		post,
		Goto(l.Top),
		Label(l.Break),
	)
}

// ForeachPlan bundles what the planner already computed (internal/plan)
// with the emitter's own lowering choices for one foreach loop.
type ForeachPlan struct {
	IteratorSlot string
	KeySlots     []string
	AggSlot      string
	SortColumn   int
	SortDir      ir.SortDir
	Invariant    bool
}

// ForeachArray emits iteration over a MAP/PMAP array, spec.md §4.3.3:
// optional limit evaluated once, optional sort (column 0 = sort by
// value, direction negated versus the runtime's own sense so script
// "ascending" becomes the runtime's -1), and for a pmap an aggregation
// step before iteration whose failure raises "aggregation overflow".
func ForeachArray(id int, mapName string, isPmap bool, limitSlot string, fp ForeachPlan, body *CStmt, stmtToken string) *CStmt {
	l := labelsFor(id)
	b := Block()
	sortCol := fp.SortColumn
	dir := -1
	if fp.SortDir == ir.SortDescending {
		dir = 1
	}
	if isPmap {
		b.Append(Raw("if (unlikely(_stp_pmap_agg(global_%s) == NULL)) {", mapName))
		b.Append(setLastError(ErrAggregationOver, stmtToken))
		b.Append(Raw("}"))
	}
	sortExpr := fmt.Sprintf("_stp_map_sort(global_%s, %d, %d)", mapName, sortCol, dir)
	b.Append(Raw("%s;", sortExpr))
	iterVar := "__it_" + fp.IteratorSlot
	b.Append(Raw("for (%s = _stp_map_start(global_%s); %s; %s = _stp_map_iter_next(global_%s, %s)) {",
		iterVar, mapName, iterVar, iterVar, mapName, iterVar))
	if limitSlot != "" {
		b.Append(Raw("if (__i++ >= %s) break;", limitSlot))
	}
	b.Append(Label(l.Top))
	b.Append(ActionBudget(1))
	b.Append(body)
	b.Append(Label(l.Continue))
	b.Append(Raw("}"))
	b.Append(Label(l.Break))
	return b
}

// ForeachHistogram emits iteration over a histogram's buckets,
// spec.md §4.3.3: a plain 0..buckets-1 walk.
func ForeachHistogram(id int, bucketCountExpr CExpr, body *CStmt) *CStmt {
	l := labelsFor(id)
	iv := fmt.Sprintf("__hi_%d", id)
	return Block(
		Raw("for (%s = 0; %s < %s; %s++) {", iv, iv, bucketCountExpr, iv),
		Label(l.Top),
		ActionBudget(1),
		body,
		Label(l.Continue),
		Raw("}"),
		Label(l.Break),
	)
}

// TryCatch emits try/catch as a nested scope with its own `out` label,
// spec.md §4.3.3: after the try, check and clear c->last_error before
// entering the catch. An empty catch{} still charges one action so it
// cannot spin forever on a repeatedly-failing try.
func TryCatch(id int, try *CStmt, catchVar string, catch *CStmt) *CStmt {
	outLabel := fmt.Sprintf("try_out_%d", id)
	retargetOut(try, outLabel)
	b := Block(try, Label(outLabel))
	b.Append(If("c->last_error", Block(
		func() *CStmt {
			if catchVar != "" {
				return Raw("strlcpy(%s, c->last_error, MAXSTRINGLEN);", catchVar)
			}
			return nil
		}(),
		Raw("c->last_error = NULL;"),
		ActionBudget(1),
		catch,
	), nil))
	return b
}

// retargetOut points every `goto out` inside s at label instead.
func retargetOut(s *CStmt, label string) {
	if s == nil {
		return
	}
	if s.Kind == CGoto && s.Text == "out" {
		s.Text = label
	}
	for _, c := range s.Stmts {
		retargetOut(c, label)
	}
	retargetOut(s.Then, label)
	retargetOut(s.Else, label)
	retargetOut(s.Body, label)
}

// NextOrReturn emits `next`/`return`'s shared goto-out idiom, spec.md
// §4.3.3: both flush the queued action count before jumping.
func NextOrReturn(pendingActions int) *CStmt {
	return Block(ActionBudget(pendingActions), Goto("out"))
}
