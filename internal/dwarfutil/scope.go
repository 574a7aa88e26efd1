// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import (
	"debug/dwarf"
	"fmt"
)

// PrologueEnd finds the earliest line-record whose line differs from
// fn's own declaration line, bounded above by fn's high PC (spec.md
// §4.1 "Prologue resolution"). The record's file is not compared with
// the declaration's file (see fileIndexDiffers). Compiler-inserted synthetic records (line
// number 0) are skipped. If the search runs off the end without finding
// a differing record, the last in-range record is returned (the
// tail-call-like shape the spec calls out).
func (c *Context) PrologueEnd(m *Module, cu *dwarf.Entry, fn *dwarf.Entry) (addr uint64, found bool, err error) {
	lowpc, _ := fn.Val(dwarf.AttrLowpc).(uint64)
	highpc, err := functionHighPC(fn, lowpc)
	if err != nil {
		return 0, false, err
	}
	declFile, _ := fn.Val(dwarf.AttrDeclFile).(int64)
	declLine, _ := fn.Val(dwarf.AttrDeclLine).(int64)

	var lastInRange uint64
	haveLastInRange := false
	var result uint64
	resultFound := false

	err = c.IterateLines(m, cu, func(sl SourceLine) error {
		if sl.Address < lowpc || sl.Address >= highpc {
			return nil
		}
		if sl.Line == 0 {
			return nil // synthetic compiler-inserted record
		}
		lastInRange = sl.Address
		haveLastInRange = true
		if resultFound {
			return nil
		}
		if int64(sl.Line) != declLine || fileIndexDiffers(sl.File, declFile) {
			result = sl.Address
			resultFound = true
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if resultFound {
		return result, true, nil
	}
	if haveLastInRange {
		return lastInRange, true, nil
	}
	return lowpc, false, nil
}

// fileIndexDiffers always reports false: declFile is not resolved
// through the CU's file table, so PrologueEnd relies on the line
// number comparison alone to find the first post-declaration record.
func fileIndexDiffers(lineFile string, declFile int64) bool {
	return false
}

func functionHighPC(fn *dwarf.Entry, lowpc uint64) (uint64, error) {
	v := fn.Val(dwarf.AttrHighpc)
	switch hv := v.(type) {
	case uint64:
		return hv, nil
	case int64:
		// DWARF4+ may encode highpc as an offset from lowpc.
		return lowpc + uint64(hv), nil
	case nil:
		return 0, fmt.Errorf("dwarfutil: function has no high_pc")
	default:
		return 0, fmt.Errorf("dwarfutil: unexpected high_pc encoding %T", v)
	}
}

// Scopes is a scope chain from innermost to outermost, spec.md §4.1
// "getscopes(DIE)".
type Scopes struct {
	Module *Module
	CU     *dwarf.Entry
	Chain  []*dwarf.Entry
}

// GetScopesForDIE walks parent pointers from the cached parent map
// starting at die. For an inlined subroutine it follows
// DW_AT_abstract_origin once so variable lookup reaches the physical
// tree's scope, per spec.md §4.1.
func (c *Context) GetScopesForDIE(m *Module, cu *dwarf.Entry, die *dwarf.Entry) (*Scopes, error) {
	chain := []*dwarf.Entry{die}
	cur := die
	followedOrigin := false
	for {
		if cur.Tag == dwarf.TagInlinedSubroutine && !followedOrigin {
			if origin, ok := cur.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset); ok {
				physical, err := c.dieAt(m, origin)
				if err == nil && physical != nil {
					followedOrigin = true
					cur = physical
					chain = append(chain, cur)
					continue
				}
			}
		}
		parent, err := c.Parent(m, cu, cur)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}
	return &Scopes{Module: m, CU: cu, Chain: chain}, nil
}

// dieAt resolves a DIE by its absolute dwarf.Offset within m.
func (c *Context) dieAt(m *Module, off dwarf.Offset) (*dwarf.Entry, error) {
	r := m.dwarf.Reader()
	r.Seek(off)
	return r.Next()
}

// ResolveVariable finds the innermost scope in scopes that declares
// name, per spec.md §4.1 "Variable resolution". If the matching DIE
// has DW_AT_external set but no location/const_value (the known
// compiler-bug shape the spec calls out), sibling DIEs in the same
// scope are searched for a duplicate with a usable location.
func (c *Context) ResolveVariable(scopes *Scopes, name string) (*dwarf.Entry, *dwarf.Entry, error) {
	for _, scope := range scopes.Chain {
		r := scopes.Module.dwarf.Reader()
		r.Seek(scope.Offset)
		root, err := r.Next()
		if err != nil {
			return nil, nil, err
		}
		if !root.Children {
			continue
		}
		var candidate *dwarf.Entry
		for {
			e, err := r.Next()
			if err != nil {
				return nil, nil, err
			}
			if e == nil {
				break
			}
			if e.Children {
				r.SkipChildren()
			}
			if e.Tag != dwarf.TagVariable && e.Tag != dwarf.TagFormalParameter {
				continue
			}
			eName, _ := e.Val(dwarf.AttrName).(string)
			if eName != name {
				continue
			}
			if hasUsableLocation(e) {
				return scope, e, nil
			}
			if candidate == nil {
				candidate = e
			}
		}
		if candidate != nil {
			return scope, candidate, nil
		}
	}
	return nil, nil, fmt.Errorf("dwarfutil: no variable named %q visible in scope", name)
}

func hasUsableLocation(e *dwarf.Entry) bool {
	if e.Val(dwarf.AttrLocation) != nil {
		return true
	}
	if e.Val(dwarf.AttrConstValue) != nil {
		return true
	}
	return false
}

// FrameBaseScope walks outward from scopes to find the nearest
// subprogram or inlined-subroutine DIE carrying a frame-base
// attribute, switching to the physical-tree scopes for inlined
// subprograms, per spec.md §4.1.
func (c *Context) FrameBaseScope(scopes *Scopes) (*dwarf.Entry, []byte, bool, error) {
	for _, scope := range scopes.Chain {
		if scope.Tag != dwarf.TagSubprogram && scope.Tag != dwarf.TagInlinedSubroutine {
			continue
		}
		if fb, ok := scope.Val(dwarf.AttrFrameBase).([]byte); ok {
			return scope, fb, true, nil
		}
	}
	return nil, nil, false, nil
}
