// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"testing"

	"stapcore/internal/ir"
)

func sym(name string, t ir.Type) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprSymbol, Symbol: name, Type: t}
}

func TestWalkSimpleAssignmentReservesOneSlot(t *testing.T) {
	// x = 1 + 2
	body := &ir.Stmt{
		Kind: ir.StmtBlock,
		Stmts: []*ir.Stmt{
			{
				Kind: ir.StmtExpr,
				E: &ir.Expr{
					Kind:     ir.ExprAssignment,
					AssignOp: "=",
					Target:   sym("x", ir.Long),
					Value: &ir.Expr{
						Kind: ir.ExprBinary,
						Op:   ir.OpAdd,
						Type: ir.Long,
						LHS:  &ir.Expr{Kind: ir.ExprLiteralLong, LongValue: 1, Type: ir.Long},
						RHS:  &ir.Expr{Kind: ir.ExprLiteralLong, LongValue: 2, Type: ir.Long},
					},
					Type: ir.Long,
				},
			},
		},
	}
	p := Walk(body)
	// One slot for the binary `1 + 2`, one for the assignment result.
	if p.TotalSlots != 2 {
		t.Fatalf("TotalSlots = %d, want 2", p.TotalSlots)
	}
}

func TestWalkNestedBlocksGetDisjointOverlays(t *testing.T) {
	mkAssign := func() *ir.Stmt {
		return &ir.Stmt{
			Kind: ir.StmtExpr,
			E: &ir.Expr{
				Kind:     ir.ExprAssignment,
				AssignOp: "=",
				Target:   sym("x", ir.Long),
				Value:    &ir.Expr{Kind: ir.ExprLiteralLong, LongValue: 1, Type: ir.Long},
				Type:     ir.Long,
			},
		}
	}
	body := &ir.Stmt{
		Kind: ir.StmtBlock,
		Stmts: []*ir.Stmt{
			{Kind: ir.StmtBlock, Stmts: []*ir.Stmt{mkAssign()}},
			{Kind: ir.StmtBlock, Stmts: []*ir.Stmt{mkAssign()}},
		},
	}
	p := Walk(body)
	if p.TotalSlots != 2 {
		t.Fatalf("TotalSlots = %d, want 2", p.TotalSlots)
	}
	if len(p.Root.Children) != 2 {
		t.Fatalf("expected two disjoint child overlays, got %d", len(p.Root.Children))
	}
	for _, child := range p.Root.Children {
		if len(child.Children) != 1 {
			t.Fatalf("expected one nested overlay per block, got %d", len(child.Children))
		}
		if len(child.Children[0].Slots) != 1 {
			t.Fatalf("expected one slot in innermost overlay, got %d", len(child.Children[0].Slots))
		}
	}
}

func TestWalkEmptyBodyReturnsNilOverlay(t *testing.T) {
	body := &ir.Stmt{Kind: ir.StmtBlock}
	p := Walk(body)
	if p.TotalSlots != 0 {
		t.Fatalf("TotalSlots = %d, want 0", p.TotalSlots)
	}
}

func TestWalkForeachReservesIteratorSlot(t *testing.T) {
	arrayDecl := &ir.VarDecl{Name: "a", Type: ir.Long, IndexTypes: []ir.Type{ir.Long}, Global: true}
	foreach := &ir.Stmt{
		Kind:  ir.StmtForeach,
		Iter:  &ir.VarDecl{Name: "k", Type: ir.Long},
		Array: arrayDecl,
		Body:  &ir.Stmt{Kind: ir.StmtBlock},
	}
	p := Walk(foreach)
	if p.TotalSlots != 1 {
		t.Fatalf("TotalSlots = %d, want 1 (iterator only)", p.TotalSlots)
	}
	fs, ok := p.ForeachPlans[foreach]
	if !ok {
		t.Fatalf("expected a ForeachSlots entry for the foreach statement")
	}
	if fs.AggregatePtr != nil {
		t.Fatalf("non-histogram foreach should not reserve an aggregate slot")
	}
}

func TestWalkForeachOverHistogramOfPmapReservesKeysAndAggregate(t *testing.T) {
	statDecl := &ir.VarDecl{
		Name: "s", Type: ir.Stats, IndexTypes: []ir.Type{ir.Long, ir.String},
		Global: true, Stat: &ir.StatDecl{Shape: ir.StatShapeLinear, Low: 0, High: 100, Step: 10},
	}
	foreach := &ir.Stmt{
		Kind:  ir.StmtForeach,
		Array: statDecl,
		Hist:  &ir.Expr{Kind: ir.ExprHistOp, HistOp: ir.HistLinear},
		Body:  &ir.Stmt{Kind: ir.StmtBlock},
	}
	p := Walk(foreach)
	// iterator + 2 keys + aggregate pointer = 4
	if p.TotalSlots != 4 {
		t.Fatalf("TotalSlots = %d, want 4", p.TotalSlots)
	}
	fs := p.ForeachPlans[foreach]
	if len(fs.Keys) != 2 {
		t.Fatalf("expected 2 key slots, got %d", len(fs.Keys))
	}
	if fs.AggregatePtr == nil {
		t.Fatalf("expected an aggregate pointer slot")
	}
}
