// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import "debug/dwarf"

// Focus model (spec.md §4.1): the adapter carries three mutable
// cursors. Changing a cursor resets any cursor "below" it: moving the
// module resets the CU and function cursors; moving the CU resets the
// function cursor.

func (c *Context) focusModule(m *Module) {
	if c.curModule == m {
		return
	}
	c.curModule = m
	c.curCU = nil
	c.curFunc = nil
}

func (c *Context) focusCU(m *Module, cu *dwarf.Entry) {
	c.focusModule(m)
	if c.curCU == cu {
		return
	}
	c.curCU = cu
	c.curFunc = nil
}

func (c *Context) focusFunc(f *dwarf.Entry) {
	c.curFunc = f
}

// CurrentModule, CurrentCU, and CurrentFunction expose the focus
// cursors for callers building diagnostics relative to "where we are."
func (c *Context) CurrentModule() *Module       { return c.curModule }
func (c *Context) CurrentCU() *dwarf.Entry      { return c.curCU }
func (c *Context) CurrentFunction() *dwarf.Entry { return c.curFunc }
