// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"strings"
	"testing"

	"stapcore/internal/ir"
	"stapcore/internal/version"
)

func TestRenderFlattensBlockBodyOfIf(t *testing.T) {
	s := If("x", Block(Raw("a;"), Raw("b;")), nil)
	w := NewWriter()
	w.Render(s)
	got := w.String()
	if strings.Count(got, "{") != 1 || strings.Count(got, "}") != 1 {
		t.Fatalf("expected exactly one brace pair for a flattened if-body, got:\n%s", got)
	}
	if !strings.Contains(got, "a;") || !strings.Contains(got, "b;") {
		t.Fatalf("missing body statements:\n%s", got)
	}
}

func TestDeduplicatorRedirectsSecondOccurrence(t *testing.T) {
	body := Block(Raw("x = 1;"))
	stamp := Hash(false, "begin", body)
	d := NewDeduplicator()

	name1, emitted1 := d.Canonical(stamp, "probe_1")
	if !emitted1 || name1 != "probe_1" {
		t.Fatalf("first occurrence: got (%q, %v), want (\"probe_1\", true)", name1, emitted1)
	}
	name2, emitted2 := d.Canonical(stamp, "probe_2")
	if emitted2 || name2 != "probe_1" {
		t.Fatalf("second occurrence: got (%q, %v), want (\"probe_1\", false)", name2, emitted2)
	}
}

func TestHashDiffersOnLockFlag(t *testing.T) {
	body := Block(Raw("x = 1;"))
	a := Hash(true, "begin", body)
	b := Hash(false, "begin", body)
	if a == b {
		t.Fatalf("expected distinct hashes for differing needsGlobalLocks")
	}
}

func TestModuleParamEligible(t *testing.T) {
	cases := []struct {
		v    *ir.VarDecl
		want bool
	}{
		{&ir.VarDecl{Name: "count"}, true},
		{&ir.VarDecl{Name: "license"}, false},
		{&ir.VarDecl{Name: "count", Wrap: true}, false},
		{&ir.VarDecl{Name: "tbl", IndexTypes: []ir.Type{ir.Long}}, false},
	}
	for _, c := range cases {
		if got := ModuleParamEligible(c.v); got != c.want {
			t.Errorf("ModuleParamEligible(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestMapInsertGuardSkippedForWrapMaps(t *testing.T) {
	wrapped := MapInsertGuard(&ir.VarDecl{Name: "a", Wrap: true}, "tok")
	w := NewWriter()
	w.Render(wrapped)
	if strings.Contains(w.String(), "array overflow") {
		t.Fatalf("wrap map must not raise an overflow error:\n%s", w.String())
	}

	unwrapped := MapInsertGuard(&ir.VarDecl{Name: "a"}, "tok")
	w2 := NewWriter()
	w2.Render(unwrapped)
	if !strings.Contains(w2.String(), "array overflow") {
		t.Fatalf("unwrapped map must raise an overflow error:\n%s", w2.String())
	}
}

func TestLockSetPromotesReadToWrite(t *testing.T) {
	decl := &ir.VarDecl{Name: "g", Global: true}
	ls := NewLockSet()
	ls.WalkExpr(&ir.Expr{Kind: ir.ExprSymbol, Symbol: "g", Decl: decl})
	ls.WalkExpr(&ir.Expr{
		Kind:     ir.ExprAssignment,
		AssignOp: "=",
		Target:   &ir.Expr{Kind: ir.ExprSymbol, Symbol: "g", Decl: decl},
		Value:    &ir.Expr{Kind: ir.ExprLiteralLong, LongValue: 1},
	})
	entries := ls.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one deduplicated entry, got %d", len(entries))
	}
	if entries[0].Mode != LockWrite {
		t.Fatalf("expected the later write to promote the entry, got mode %v", entries[0].Mode)
	}
}

func TestLockSetStatAppendIsReadMode(t *testing.T) {
	decl := &ir.VarDecl{Name: "s", Global: true, Type: ir.Stats}
	ls := NewLockSet()
	ls.WalkStatAppend(&ir.Expr{Kind: ir.ExprSymbol, Symbol: "s", Decl: decl})
	entries := ls.Entries()
	if len(entries) != 1 || entries[0].Mode != LockRead {
		t.Fatalf("expected a single read-mode entry for a <<< append, got %+v", entries)
	}
}

func TestParseFormatRejectsUnknownConversion(t *testing.T) {
	if _, err := ParseFormat("%q"); err == nil {
		t.Fatalf("expected an error for an unknown conversion specifier")
	}
}

func TestParseFormatCountsConversions(t *testing.T) {
	convs, err := ParseFormat("%d and %s and %%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("got %d conversions, want 3", len(convs))
	}
	if convs[2].Verb != '%' {
		t.Fatalf("expected the third conversion to be the literal %%, got %c", convs[2].Verb)
	}
}

func TestShortCircuitSingleStringEmit(t *testing.T) {
	k := PrintKey{ToStream: true, Format: "%s"}
	body := EmitPrinter("p0", k, []Conversion{{Verb: 's', Width: -1, Precision: -1}}, version.MustParse("4.0"))
	w := NewWriter()
	w.Render(body)
	got := w.String()
	if !strings.Contains(got, "_stp_print(_a0)") {
		t.Fatalf("expected the single-%%s short circuit to collapse to a plain emit:\n%s", got)
	}
}

func TestLegacyPointerFormatGatedOnCompatVersion(t *testing.T) {
	k := PrintKey{ToStream: true, Format: "%p"}
	old := EmitPrinter("p1", k, []Conversion{{Verb: 'p', Width: -1, Precision: -1}}, version.MustParse("1.2"))
	w := NewWriter()
	w.Render(old)
	if !strings.Contains(w.String(), "0x0x") {
		t.Fatalf("expected legacy double-0x %%p rendering for compat version < 1.3:\n%s", w.String())
	}

	newer := EmitPrinter("p2", k, []Conversion{{Verb: 'p', Width: -1, Precision: -1}}, version.MustParse("4.0"))
	w2 := NewWriter()
	w2.Render(newer)
	if strings.Contains(w2.String(), "0x0x") {
		t.Fatalf("did not expect legacy %%p rendering at compat version >= 1.3:\n%s", w2.String())
	}
}

func TestCallPrinterPassesArgsPositionally(t *testing.T) {
	got := CallPrinter("_stp_print_stream_0", []CExpr{"__t0", "__t1"})
	w := NewWriter()
	w.Render(got)
	if !strings.Contains(w.String(), "_stp_print_stream_0(__t0, __t1);") {
		t.Fatalf("expected a positional call, got:\n%s", w.String())
	}
}

func TestUnaryMinusAvoidsSignedOverflow(t *testing.T) {
	got := UnaryMinus("x")
	if !strings.Contains(string(got), "uint64_t") {
		t.Fatalf("expected UnaryMinus to route through an unsigned intermediate, got %q", got)
	}
}
