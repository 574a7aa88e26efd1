// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import (
	"debug/dwarf"
	"io"
)

// ModuleFunc is a per-module iteration continuation.
type ModuleFunc func(*Module) error

// CUFunc is a per-CU iteration continuation.
type CUFunc func(*Module, *dwarf.Entry) error

// FuncFunc is a per-function iteration continuation.
type FuncFunc func(*Module, *dwarf.Entry, *dwarf.Entry) error // module, cu, function DIE

// checkInterrupt returns ErrInterrupted if the context's pending flag
// is set, per spec.md §5 ("polled at every iterator boundary").
func (c *Context) checkInterrupt() error {
	if c.Interrupted != nil && c.Interrupted() {
		return ErrInterrupted
	}
	return nil
}

// IterateModules calls fn once per module in open order, stopping
// early on error or interrupt.
func (c *Context) IterateModules(fn ModuleFunc) error {
	for _, m := range c.modules {
		if err := c.checkInterrupt(); err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// IterateCUs calls fn once per compilation unit of m.
func (c *Context) IterateCUs(m *Module, fn CUFunc) error {
	cus, err := c.CUs(m)
	if err != nil {
		return err
	}
	for _, cu := range cus {
		if err := c.checkInterrupt(); err != nil {
			return err
		}
		c.focusCU(m, cu)
		if err := fn(m, cu); err != nil {
			return err
		}
	}
	return nil
}

// IterateFunctions calls fn once per subprogram DIE with a low_pc in
// cu (i.e. defined, not merely declared).
func (c *Context) IterateFunctions(m *Module, cu *dwarf.Entry, fn FuncFunc) error {
	fm, err := c.funcsByName(m, cu)
	if err != nil {
		return err
	}
	for _, fns := range fm {
		for _, f := range fns {
			if err := c.checkInterrupt(); err != nil {
				return err
			}
			if _, ok := f.Val(dwarf.AttrLowpc).(uint64); !ok {
				continue
			}
			c.focusFunc(f)
			if err := fn(m, cu, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// IterateInlineInstances calls fn once per inline instance of origin
// within cu.
func (c *Context) IterateInlineInstances(m *Module, cu *dwarf.Entry, origin dwarf.Offset, fn func(*dwarf.Entry) error) error {
	insts, err := c.InlineInstances(m, cu, origin)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if err := c.checkInterrupt(); err != nil {
			return err
		}
		if err := fn(inst); err != nil {
			return err
		}
	}
	return nil
}

// Label is a DW_TAG_label DIE's resolved name and PC.
type Label struct {
	Name string
	PC   uint64
}

// IterateLabels calls fn once per label within the subtree rooted at
// scope (normally a function DIE).
func (c *Context) IterateLabels(m *Module, cu *dwarf.Entry, scope *dwarf.Entry, fn func(Label) error) error {
	r := m.dwarf.Reader()
	r.Seek(scope.Offset)
	if _, err := r.Next(); err != nil {
		return err
	}
	depth := 0
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil {
			if depth == 0 {
				break
			}
			depth--
			continue
		}
		if err := c.checkInterrupt(); err != nil {
			return err
		}
		if e.Tag == dwarf.TagLabel {
			name, _ := e.Val(dwarf.AttrName).(string)
			pc, _ := e.Val(dwarf.AttrLowpc).(uint64)
			if err := fn(Label{Name: name, PC: pc}); err != nil {
				return err
			}
		}
		if e.Children {
			depth++
		}
	}
	return nil
}

// SourceLine is one decoded line-table row.
type SourceLine struct {
	File      string
	Line      int
	Address   uint64
	IsStmt    bool
	EndOfSeq  bool
	PrologueE bool // DWARF5 PrologueEnd flag, when present
}

// IterateLines calls fn once per row of cu's line table.
func (c *Context) IterateLines(m *Module, cu *dwarf.Entry, fn func(SourceLine) error) error {
	lr, err := m.dwarf.LineReader(cu)
	if err != nil {
		return err
	}
	if lr == nil {
		return nil
	}
	var le dwarf.LineEntry
	for {
		if err := c.checkInterrupt(); err != nil {
			return err
		}
		if err := lr.Next(&le); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		var file string
		if le.File != nil {
			file = le.File.Name
		}
		if err := fn(SourceLine{
			File:      file,
			Line:      le.Line,
			Address:   le.Address,
			IsStmt:    le.IsStmt,
			EndOfSeq:  le.EndSequence,
			PrologueE: le.PrologueEnd,
		}); err != nil {
			return err
		}
	}
	return nil
}
