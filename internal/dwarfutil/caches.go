// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import "debug/dwarf"

// caches holds every lazily populated, per-adapter cache named in
// spec.md §4.1, keyed the way the spec prescribes. All caches are
// freed together when the owning Context is closed.
type caches struct {
	// module -> vector of CU entries.
	moduleCUs map[*Module][]*dwarf.Entry

	// CU (keyed by CU address, i.e. the CU entry's Offset) -> multimap
	// name -> function DIE.
	cuFuncsByName map[dwarf.Offset]map[string][]*dwarf.Entry

	// CU -> map inline-origin-address -> vector of inline-instance DIEs.
	cuInlinesByOrigin map[dwarf.Offset]map[dwarf.Offset][]*dwarf.Entry

	// CU -> map DIE-address -> parent DIE, for scope resolution that
	// does not cross inline boundaries.
	cuParents map[dwarf.Offset]map[dwarf.Offset]*dwarf.Entry

	// module -> set of type-unit CUs already merged in.
	mergedTypeUnits map[*Module]map[dwarf.Offset]bool

	// per-CU "global alias" cache of {qualifier}name -> DIE, used to
	// bind forward declarations to defining DIEs, possibly crossing
	// CUs.
	globalAlias map[dwarf.Offset]map[string]*dwarf.Entry
}

func newCaches() caches {
	return caches{
		moduleCUs:         make(map[*Module][]*dwarf.Entry),
		cuFuncsByName:     make(map[dwarf.Offset]map[string][]*dwarf.Entry),
		cuInlinesByOrigin: make(map[dwarf.Offset]map[dwarf.Offset][]*dwarf.Entry),
		cuParents:         make(map[dwarf.Offset]map[dwarf.Offset]*dwarf.Entry),
		mergedTypeUnits:   make(map[*Module]map[dwarf.Offset]bool),
		globalAlias:       make(map[dwarf.Offset]map[string]*dwarf.Entry),
	}
}

// cuKey is the cache key for a CU: its root entry's Offset, which is
// stable for the lifetime of the owning dwarf.Data and unique across
// CUs within one module (spec.md: "keyed by CU address").
func cuKey(cu *dwarf.Entry) dwarf.Offset { return cu.Offset }

// CUs returns the compilation units of m, populating the module->CUs
// cache on first use.
func (c *Context) CUs(m *Module) ([]*dwarf.Entry, error) {
	if cus, ok := c.caches.moduleCUs[m]; ok {
		return cus, nil
	}
	if m.dwarf == nil {
		return nil, nil
	}
	var cus []*dwarf.Entry
	r := m.dwarf.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag == dwarf.TagCompileUnit {
			cus = append(cus, e)
			r.SkipChildren()
		}
	}
	c.caches.moduleCUs[m] = cus
	return cus, nil
}

// funcsByName returns (and lazily builds) the CU's name -> function
// DIE multimap.
func (c *Context) funcsByName(m *Module, cu *dwarf.Entry) (map[string][]*dwarf.Entry, error) {
	key := cuKey(cu)
	if fm, ok := c.caches.cuFuncsByName[key]; ok {
		return fm, nil
	}
	fm := make(map[string][]*dwarf.Entry)
	inlines := make(map[dwarf.Offset][]*dwarf.Entry)
	parents := make(map[dwarf.Offset]*dwarf.Entry)

	r := m.dwarf.Reader()
	r.Seek(cu.Offset)
	root, err := r.Next()
	if err != nil {
		return nil, err
	}
	var walk func(parent *dwarf.Entry) error
	walk = func(parent *dwarf.Entry) error {
		for {
			e, err := r.Next()
			if err != nil {
				return err
			}
			if e == nil {
				return nil
			}
			parents[e.Offset] = parent
			switch e.Tag {
			case dwarf.TagSubprogram:
				if name, ok := e.Val(dwarf.AttrName).(string); ok {
					fm[name] = append(fm[name], e)
				}
			case dwarf.TagInlinedSubroutine:
				if origin, ok := e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset); ok {
					inlines[origin] = append(inlines[origin], e)
				}
			}
			if e.Children {
				if err := walk(e); err != nil {
					return err
				}
			}
		}
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	c.caches.cuFuncsByName[key] = fm
	c.caches.cuInlinesByOrigin[key] = inlines
	c.caches.cuParents[key] = parents
	return fm, nil
}

// InlineInstances returns the inline-instance DIEs whose
// DW_AT_abstract_origin points at origin within cu.
func (c *Context) InlineInstances(m *Module, cu *dwarf.Entry, origin dwarf.Offset) ([]*dwarf.Entry, error) {
	if _, err := c.funcsByName(m, cu); err != nil { // populates the inline cache as a side effect
		return nil, err
	}
	return c.caches.cuInlinesByOrigin[cuKey(cu)][origin], nil
}

// Parent returns the cached parent DIE of e within cu, or nil if e is
// the CU root or was never indexed.
func (c *Context) Parent(m *Module, cu *dwarf.Entry, e *dwarf.Entry) (*dwarf.Entry, error) {
	if _, err := c.funcsByName(m, cu); err != nil {
		return nil, err
	}
	return c.caches.cuParents[cuKey(cu)][e.Offset], nil
}

// FunctionsByName looks up functions named name within cu, populating
// the CU's multimap cache on first use.
func (c *Context) FunctionsByName(m *Module, cu *dwarf.Entry, name string) ([]*dwarf.Entry, error) {
	fm, err := c.funcsByName(m, cu)
	if err != nil {
		return nil, err
	}
	return fm[name], nil
}
