// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import (
	"debug/dwarf"
	"debug/elf"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestCollapseName(t *testing.T) {
	cases := map[string]string{
		"foo-bar":   "foo_bar",
		"foo,bar":   "foo_bar",
		"foo-bar,x": "foo_bar_x",
		"plain":     "plain",
	}
	for in, want := range cases {
		if got := collapseName(in); got != want {
			t.Errorf("collapseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchesPattern(t *testing.T) {
	cases := []struct {
		pattern, module string
		want            bool
	}{
		{"ext4", "ext4", true},
		{"ext4", "ext-4", false},
		{"ext*", "ext4", true},
		{"ext*", "ext-journal", true},
		{"snd_*", "snd-hda-intel", true},
		{"usb", "usbcore", false},
	}
	for _, c := range cases {
		got, err := matchesPattern(c.pattern, c.module)
		if err != nil {
			t.Fatalf("matchesPattern(%q, %q): %v", c.pattern, c.module, err)
		}
		if got != c.want {
			t.Errorf("matchesPattern(%q, %q) = %v, want %v", c.pattern, c.module, got, c.want)
		}
	}
}

func TestPLTEntrySize(t *testing.T) {
	cases := []struct {
		machine elf.Machine
		want    int
		wantErr bool
	}{
		{elf.EM_386, 16, false},
		{elf.EM_X86_64, 16, false},
		{elf.EM_AARCH64, 0, true},
	}
	for _, c := range cases {
		got, err := pltEntrySize(c.machine)
		if c.wantErr {
			if err == nil {
				t.Errorf("pltEntrySize(%v): want error", c.machine)
			}
			continue
		}
		if err != nil {
			t.Fatalf("pltEntrySize(%v): %v", c.machine, err)
		}
		if got != c.want {
			t.Errorf("pltEntrySize(%v) = %d, want %d", c.machine, got, c.want)
		}
	}
}

func TestX86DecodeRejectsGarbage(t *testing.T) {
	// A real PLT stub: jmp *GOT(%rip).
	jmp := []byte{0xff, 0x25, 0x02, 0x10, 0x00, 0x00}
	if _, err := x86asm.Decode(jmp, 64); err != nil {
		t.Errorf("expected jmp *0x...(%%rip) to decode: %v", err)
	}
	garbage := []byte{0x0f, 0x0f, 0x0f, 0x0f}
	if _, err := x86asm.Decode(garbage, 64); err == nil {
		t.Errorf("expected garbage bytes to fail to decode")
	}
}

func TestSleb128(t *testing.T) {
	cases := []struct {
		in   []byte
		want int64
	}{
		{[]byte{0x02}, 2},
		{[]byte{0x7e}, -2},
		{[]byte{0xff, 0x00}, 127},
		{[]byte{0x81, 0x7f}, -127},
	}
	for _, c := range cases {
		got, _ := sleb128(c.in)
		if got != c.want {
			t.Errorf("sleb128(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestBlacklistGuruModeBypass(t *testing.T) {
	bl := DefaultBlacklist()
	if r := bl.Check("notifier_call_chain", "", "", false, false); r == NotBlacklisted {
		t.Errorf("expected notifier_call_chain to be blacklisted")
	}
	if r := bl.Check("notifier_call_chain", "", "", false, true); r != NotBlacklisted {
		t.Errorf("expected guru mode to bypass the blacklist")
	}
	if r := bl.Check("do_open", "", "", false, false); r != NotBlacklisted {
		t.Errorf("do_open should not be blacklisted")
	}
	if r := bl.Check("do_open", "", ".init.text", false, false); r != BlacklistedSection {
		t.Errorf("expected .init.text section to be blacklisted, got %v", r)
	}
}

func TestMemberAccessBreadthFirst(t *testing.T) {
	inner := &dwarf.StructType{
		CommonType: dwarf.CommonType{ByteSize: 8},
		StructName: "inner",
		Field: []*dwarf.StructField{
			{Name: "x", ByteOffset: 0, Type: &dwarf.IntType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: 4}}}},
		},
	}
	outer := &dwarf.StructType{
		CommonType: dwarf.CommonType{ByteSize: 16},
		StructName: "outer",
		Field: []*dwarf.StructField{
			{Name: "", ByteOffset: 8, Type: inner},
		},
	}
	off, typ, err := MemberAccess(outer, "x")
	if err != nil {
		t.Fatalf("MemberAccess: %v", err)
	}
	if off != 8 {
		t.Errorf("MemberAccess offset = %d, want 8", off)
	}
	if _, ok := typ.(*dwarf.IntType); !ok {
		t.Errorf("MemberAccess type = %T, want *dwarf.IntType", typ)
	}
	if _, _, err := MemberAccess(outer, "nope"); err == nil {
		t.Errorf("expected error for missing member")
	}
}

func TestTypeAccessExprRejectsFloatWrite(t *testing.T) {
	ft := &dwarf.FloatType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: 8}}}
	if _, _, err := typeAccessExpr(ft, "base", true); err == nil {
		t.Errorf("expected float write to be rejected")
	}
	if _, _, err := typeAccessExpr(ft, "base", false); err == nil {
		t.Errorf("expected float read to be rejected")
	}
}
