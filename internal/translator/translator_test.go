// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translator

import (
	"strings"
	"testing"

	"stapcore/internal/ir"
)

func simpleSession() *ir.Session {
	return &ir.Session{
		CompatVersion: "4.0",
		Globals: []*ir.VarDecl{
			{Name: "count", Type: ir.Long, Global: true},
		},
		Functions: []*ir.FuncDecl{
			{Name: "helper", Type: ir.Long, Body: &ir.Stmt{Kind: ir.StmtBlock}},
		},
		Probes: []*ir.DerivedProbe{
			{
				Name: "probe_0", PP: "begin", Location: "begin", Derivation: "begin",
				Body: &ir.Stmt{
					Kind: ir.StmtExpr,
					E: &ir.Expr{
						Kind:     ir.ExprAssignment,
						AssignOp: "=",
						Target:   &ir.Expr{Kind: ir.ExprSymbol, Symbol: "count", Decl: &ir.VarDecl{Name: "count", Global: true}},
						Value:    &ir.Expr{Kind: ir.ExprLiteralLong, LongValue: 1},
					},
				},
			},
		},
	}
}

func TestRunProducesZeroFinalIndentAndCompatMacro(t *testing.T) {
	d := NewDriver(nil)
	out, err := d.Run(simpleSession(), nil)
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}
	if !strings.Contains(out.MainC, "STAP_VERSION(4,0)") {
		t.Fatalf("expected the compat macro in the emitted header:\n%s", out.MainC)
	}
	if d.w.Indent() != 0 {
		t.Fatalf("final indent = %d, want 0", d.w.Indent())
	}
}

func TestAnalyzeGlobalLocksMarksWriteProbe(t *testing.T) {
	d := NewDriver(nil)
	sess := simpleSession()
	if err := d.analyzeGlobalLocks(sess, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Probes[0].NeedsGlobalLocks {
		t.Fatalf("expected the probe writing the global \"count\" to need locks")
	}
}

func TestRunRejectsBadCompatVersion(t *testing.T) {
	d := NewDriver(nil)
	sess := simpleSession()
	sess.CompatVersion = "not-a-version"
	if _, err := d.Run(sess, nil); err == nil {
		t.Fatalf("expected an error for an invalid compat version")
	}
}
