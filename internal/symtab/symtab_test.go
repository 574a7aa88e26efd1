// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import (
	"debug/elf"
	"encoding/binary"
	"testing"
)

func TestIsArmMappingSymbol(t *testing.T) {
	cases := map[string]bool{
		"$a":       true,
		"$t":       true,
		"$d":       true,
		"$d.realdata": true,
		"main":     false,
		"$notasym": false,
	}
	for name, want := range cases {
		if got := isArmMappingSymbol(name); got != want {
			t.Errorf("isArmMappingSymbol(%q) = %v, want %v", name, got, want)
		}
	}
}

func buildIDNote(id []byte) []byte {
	name := []byte("GNU\x00")
	buf := make([]byte, 12+len(name)+len(id))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(name)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(id)))
	binary.LittleEndian.PutUint32(buf[8:12], 3)
	copy(buf[12:], name)
	copy(buf[12+len(name):], id)
	return buf
}

func TestParseBuildIDNote(t *testing.T) {
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	got, err := parseBuildIDNote(buildIDNote(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("parseBuildIDNote = % x, want % x", got, want)
	}
}

func TestParseBuildIDNoteMissing(t *testing.T) {
	if _, err := parseBuildIDNote([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error for a truncated/absent note")
	}
}

func TestAlign4(t *testing.T) {
	cases := map[uint32]uint32{0: 0, 1: 4, 3: 4, 4: 4, 5: 8}
	for in, want := range cases {
		if got := align4(in); got != want {
			t.Errorf("align4(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSynthesizeDebugFrameHdrSortsByInitialLocation(t *testing.T) {
	f := &elf.File{}
	f.Class = elf.ELFCLASS64

	mkFDE := func(initLoc uint64) []byte {
		// length(4) + cie_ptr(4, not 0xffffffff) + initial_location(8)
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint32(buf[0:4], 12) // length covers the remaining 12 bytes
		binary.LittleEndian.PutUint32(buf[4:8], 0)  // cie pointer: a real CIE offset, not the all-ones marker
		binary.LittleEndian.PutUint64(buf[8:16], initLoc)
		return buf
	}

	var frame []byte
	frame = append(frame, mkFDE(0x2000)...)
	frame = append(frame, mkFDE(0x1000)...)

	hdr, err := synthesizeDebugFrameHdr(f, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hdr) < 4+8 {
		t.Fatalf("hdr too short: %d bytes", len(hdr))
	}
	if hdr[0] != 1 {
		t.Fatalf("expected version byte 1, got %d", hdr[0])
	}
	// header(4) + count(8, udata8 for a 64-bit target) = 12 bytes before the table.
	firstEntryLoc := binary.LittleEndian.Uint64(hdr[12:20])
	if firstEntryLoc != 0x1000 {
		t.Fatalf("expected the lowest initial_location (0x1000) first, got 0x%x", firstEntryLoc)
	}
}

func TestByteArrayLiteral(t *testing.T) {
	if got := byteArrayLiteral(nil); got != "{}" {
		t.Fatalf("byteArrayLiteral(nil) = %q, want {}", got)
	}
	if got := byteArrayLiteral([]byte{0xab, 0x01}); got != "{0xab,0x01}" {
		t.Fatalf("byteArrayLiteral = %q, want {0xab,0x01}", got)
	}
}
