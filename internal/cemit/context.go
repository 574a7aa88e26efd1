// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"fmt"

	"stapcore/internal/ir"
	"stapcore/internal/plan"
)

// MaxNesting bounds concurrent reentrant probe hits per CPU, spec.md
// §4.3.1. Exceeding it is a runtime error (ErrMaxNesting), not a
// translator-time one: the generated code checks c->nesting at probe
// entry.
const MaxNesting = 20

// FrameLayout names the C struct the overlay in p describes: one
// member per reserved slot, grouped into nested anonymous unions that
// mirror p's Overlay tree so sibling temporaries share storage and
// disjoint branches never alias.
type FrameLayout struct {
	TypeName string
	Decl     *CStmt
}

// BuildFrame renders the probe/function-local frame struct for body's
// plan, spec.md §4.3.1: "the context struct's locals member is an
// anonymous union of per-probe/per-function structs, themselves
// containing anonymous unions for disjoint nested blocks, so two
// probes or two branches that never execute concurrently share the
// same bytes."
func BuildFrame(typeName string, p *plan.Plan) FrameLayout {
	b := Block()
	b.Append(Raw("struct %s {", typeName))
	if p.Root != nil {
		emitOverlayMembers(b, p.Root, 0)
	}
	b.Append(Raw("};"))
	return FrameLayout{TypeName: typeName, Decl: b}
}

func emitOverlayMembers(into *CStmt, ov *plan.Overlay, depth int) {
	for _, s := range ov.Slots {
		into.Append(Raw("%s %s;", cTypeForSlot(s.Type), slotName(depth, s.Index)))
	}
	if len(ov.Children) == 0 {
		return
	}
	if len(ov.Children) == 1 {
		emitOverlayMembers(into, ov.Children[0], depth+1)
		return
	}
	// Sibling branches never execute concurrently (only one arm of an
	// if/for/foreach body runs at a time), so they overlay into one
	// anonymous union rather than each getting disjoint struct space.
	into.Append(Raw("union {"))
	for i, child := range ov.Children {
		into.Append(Raw("struct {"))
		emitOverlayMembers(into, child, depth*10+i+1)
		into.Append(Raw("};"))
	}
	into.Append(Raw("};"))
}

func slotName(depth, index int) string {
	return fmt.Sprintf("__tmp_%d_%d", depth, index)
}

func cTypeForSlot(t ir.Type) string {
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

// NestingGuard emits the per-probe entry check of spec.md §4.3.1: bump
// c->nesting, bail through the shared "out" epilogue when the frame
// pool is exhausted, and arrange for the matching decrement regardless
// of how the probe body exits.
func NestingGuard(body *CStmt) *CStmt {
	return Block(
		Raw("if (atomic_add_unless(&c->nesting, 1, %d) == %d) {", MaxNesting, MaxNesting),
		Raw("\tatomic_add(-1, &c->nesting);"),
		setLastError(ErrMaxNesting, "<probe entry>"),
		Raw("}"),
		body,
		Raw("atomic_add(-1, &c->nesting);"),
	)
}

// ActionBudget emits the per-statement action counter decrement of
// spec.md §4.3.6: every statement that is not provably free (a bare
// literal or variable read) charges one unit against c->actionremain,
// and exhausting it raises ErrMaxAction through the same "out" label
// nesting relies on.
func ActionBudget(charge int) *CStmt {
	if charge <= 0 {
		return nil
	}
	return Block(
		Raw("if (unlikely(atomic_long_sub_return(%d, &c->actionremain) <= 0)) {", charge),
		setLastError(ErrMaxAction, "<action>"),
		Raw("}"),
	)
}
