// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import (
	"debug/elf"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// PLTEntry is one resolved entry in a binary's procedure linkage
// table: its address, byte size, and the dynamic symbol it resolves
// to.
type PLTEntry struct {
	Addr uint64
	Size int
	Name string
}

// pltEntrySize is architecture-specific, per spec.md §4.1: "entry
// sizes are architecture-specific (16/16 on x86 and x86-64)."
func pltEntrySize(machine elf.Machine) (int, error) {
	switch machine {
	case elf.EM_386, elf.EM_X86_64:
		return 16, nil
	default:
		return 0, fmt.Errorf("dwarfutil: PLT enumeration unsupported on machine %v", machine)
	}
}

// EnumeratePLT parses .plt plus .rela.plt/.rel.plt and returns one
// PLTEntry per slot, verifying each slot decodes as an x86
// jump-through-GOT sequence before trusting the architecture's
// fixed entry size table.
func EnumeratePLT(f *elf.File) ([]PLTEntry, error) {
	entrySize, err := pltEntrySize(f.Machine)
	if err != nil {
		return nil, err
	}

	plt := f.Section(".plt")
	if plt == nil {
		return nil, nil
	}
	pltData, err := plt.Data()
	if err != nil {
		return nil, fmt.Errorf("dwarfutil: reading .plt: %w", err)
	}

	names, err := pltRelocNames(f)
	if err != nil {
		return nil, err
	}

	mode := 32
	if f.Class == elf.ELFCLASS64 {
		mode = 64
	}

	n := len(pltData) / entrySize
	entries := make([]PLTEntry, 0, n)
	// Slot 0 of .plt is the PLT's own resolver stub, not a callable
	// entry point; real entries start at slot 1.
	for i := 1; i < n; i++ {
		off := i * entrySize
		chunk := pltData[off : off+entrySize]
		inst, err := x86asm.Decode(chunk, mode)
		if err != nil {
			return nil, fmt.Errorf("dwarfutil: .plt slot %d at offset %#x does not decode as %d-bit x86: %w", i, off, mode, err)
		}
		if inst.Op != x86asm.JMP {
			return nil, fmt.Errorf("dwarfutil: .plt slot %d at offset %#x starts with %v, not a jump", i, off, inst.Op)
		}
		addr := plt.Addr + uint64(off)
		name := ""
		if i-1 < len(names) {
			name = names[i-1]
		}
		entries = append(entries, PLTEntry{Addr: addr, Size: entrySize, Name: name})
	}
	return entries, nil
}

// pltRelocNames returns the dynamic symbol name for each relocation in
// .rela.plt (or .rel.plt), in file order, matching the conventional
// one-relocation-per-PLT-slot layout.
func pltRelocNames(f *elf.File) ([]string, error) {
	syms, err := f.DynamicSymbols()
	if err != nil {
		// No dynamic symbol table is not fatal: a statically linked
		// binary simply has no PLT names to offer.
		return nil, nil
	}
	relaSec := f.Section(".rela.plt")
	if relaSec == nil {
		relaSec = f.Section(".rel.plt")
	}
	if relaSec == nil {
		return nil, nil
	}
	data, err := relaSec.Data()
	if err != nil {
		return nil, fmt.Errorf("dwarfutil: reading %s: %w", relaSec.Name, err)
	}

	var names []string
	is64 := f.Class == elf.ELFCLASS64
	isRela := relaSec.Name == ".rela.plt"
	entSize := relocEntrySize(is64, isRela)
	if entSize == 0 || len(data)%entSize != 0 {
		return nil, nil
	}
	order := f.ByteOrder
	for off := 0; off+entSize <= len(data); off += entSize {
		var symIdx uint32
		if is64 {
			info := order.Uint64(data[off+8 : off+16])
			symIdx = uint32(info >> 32)
		} else {
			info := order.Uint32(data[off+4 : off+8])
			symIdx = info >> 8
		}
		if int(symIdx) < len(syms) {
			names = append(names, syms[symIdx].Name)
		} else {
			names = append(names, "")
		}
	}
	return names, nil
}

func relocEntrySize(is64, isRela bool) int {
	switch {
	case is64 && isRela:
		return 24 // Elf64_Rela{Offset,Info,Addend}
	case is64 && !isRela:
		return 16 // Elf64_Rel{Offset,Info}
	case !is64 && isRela:
		return 12 // Elf32_Rela{Offset,Info,Addend}
	default:
		return 8 // Elf32_Rel{Offset,Info}
	}
}
