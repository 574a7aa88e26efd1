// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"
)

func ptrSizeOf(f *elf.File) int {
	if f.Class == elf.ELFCLASS64 {
		return 8
	}
	return 4
}

// synthesizeDebugFrameHdr builds a .eh_frame_hdr-shaped index over a
// plain .debug_frame section, spec.md §4.4 step 4: a 4-byte header
// (version 1, absptr pointer encoding, udata4/udata8 count encoding
// per address class, absptr table encoding), then the FDE count in
// that count encoding, then a table of (initial_location, fde_offset)
// pairs, each field pointer-sized, sorted by initial_location. No
// eh_frame_ptr field is written.
//
// .debug_frame differs from .eh_frame only in using an all-ones CIE
// pointer (rather than 0) to mark a CIE entry; everything else about
// scanning FDE headers is the same 32-bit-length-prefixed record
// format.
func synthesizeDebugFrameHdr(f *elf.File, debugFrame []byte) ([]byte, error) {
	type fdeEntry struct {
		initialLocation uint64
		offset          uint32
	}
	var fdes []fdeEntry

	cieIsCIE := func(cieID uint32) bool { return cieID == 0xffffffff }

	off := uint32(0)
	for off+4 <= uint32(len(debugFrame)) {
		length := binary.LittleEndian.Uint32(debugFrame[off : off+4])
		if length == 0 {
			break
		}
		recordStart := off
		entryOff := off + 4
		if entryOff+4 > uint32(len(debugFrame)) {
			return nil, fmt.Errorf("truncated .debug_frame record at offset %d", off)
		}
		cieID := binary.LittleEndian.Uint32(debugFrame[entryOff : entryOff+4])
		if !cieIsCIE(cieID) {
			// FDE: the next field (after the 4-byte CIE pointer) is the
			// initial_location, whose width matches the target address
			// size. This synthesizer only supports the common 8-byte
			// (64-bit target) and 4-byte (32-bit target) cases.
			addrFieldOff := entryOff + 4
			ptrSize := ptrSizeOf(f)
			if addrFieldOff+uint32(ptrSize) > uint32(len(debugFrame)) {
				return nil, fmt.Errorf("truncated FDE at offset %d", off)
			}
			var initLoc uint64
			if ptrSize == 8 {
				initLoc = binary.LittleEndian.Uint64(debugFrame[addrFieldOff : addrFieldOff+8])
			} else {
				initLoc = uint64(binary.LittleEndian.Uint32(debugFrame[addrFieldOff : addrFieldOff+4]))
			}
			fdes = append(fdes, fdeEntry{initialLocation: initLoc, offset: recordStart})
		}
		off = recordStart + 4 + length
	}

	sort.Slice(fdes, func(i, j int) bool { return fdes[i].initialLocation < fdes[j].initialLocation })

	const (
		dwEhPeAbsptr = 0x00
		dwEhPeUdata4 = 0x03
		dwEhPeUdata8 = 0x04
	)
	countEncoding := byte(dwEhPeUdata4)
	if ptrSizeOf(f) == 8 {
		countEncoding = dwEhPeUdata8
	}

	hdr := []byte{
		1,                 // version
		dwEhPeAbsptr,      // eh_frame_ptr_enc (unused by this synthesized form)
		countEncoding,     // fde_count_enc
		dwEhPeAbsptr,      // table_enc
	}
	countBuf := make([]byte, 8)
	if countEncoding == dwEhPeUdata8 {
		binary.LittleEndian.PutUint64(countBuf, uint64(len(fdes)))
		hdr = append(hdr, countBuf...)
	} else {
		binary.LittleEndian.PutUint32(countBuf, uint32(len(fdes)))
		hdr = append(hdr, countBuf[:4]...)
	}

	for _, e := range fdes {
		var entry [16]byte
		if countEncoding == dwEhPeUdata8 {
			binary.LittleEndian.PutUint64(entry[0:8], e.initialLocation)
			binary.LittleEndian.PutUint64(entry[8:16], uint64(e.offset))
			hdr = append(hdr, entry[:]...)
		} else {
			binary.LittleEndian.PutUint32(entry[0:4], uint32(e.initialLocation))
			binary.LittleEndian.PutUint32(entry[4:8], e.offset)
			hdr = append(hdr, entry[:8]...)
		}
	}
	return hdr, nil
}
