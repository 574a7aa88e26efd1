// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import (
	"fmt"
	"strings"

	"github.com/google/pprof/profile"
)

// kretprobeTrampolineSymbol is the kernel symbol whose relocated
// address the translator core records separately, spec.md §4.4 step
// 3: "record kretprobe_trampoline_holder's relocated address."
const kretprobeTrampolineSymbol = "kretprobe_trampoline_holder"

// KretprobeTrampolineAddr searches m's sections for the kretprobe
// trampoline symbol and returns its address, or 0 if not found.
func KretprobeTrampolineAddr(m *Module) uint64 {
	for _, sec := range m.Sections {
		for _, sym := range sec.Symbols {
			if sym.Name == kretprobeTrampolineSymbol {
				return sym.Addr
			}
		}
	}
	return 0
}

// EmitHeader renders the final C header of spec.md §4.4: one record
// per module, an index array _stp_modules[], and the single
// _stp_kretprobe_trampoline scalar.
func EmitHeader(modules []*Module) string {
	var b strings.Builder
	for i, m := range modules {
		fmt.Fprintf(&b, "static struct _stp_module __module_%d = {\n", i)
		fmt.Fprintf(&b, "\t.name = %q,\n", m.Name)
		fmt.Fprintf(&b, "\t.path = %q,\n", m.Path)
		fmt.Fprintf(&b, "\t.build_id_bytes = %s,\n", byteArrayLiteral(m.BuildID))
		fmt.Fprintf(&b, "\t.build_id_offset = 0x%xULL,\n", m.BuildIDOff)
		fmt.Fprintf(&b, "\t.eh_frame_addr = 0x%xULL,\n", m.EhFrameAddr)
		fmt.Fprintf(&b, "\t.eh_frame_len = %d,\n", len(m.EhFrame))
		fmt.Fprintf(&b, "\t.eh_frame_hdr_len = %d,\n", len(m.EhFrameHdr))
		fmt.Fprintf(&b, "\t.debug_frame_len = %d,\n", len(m.DebugFrame))
		fmt.Fprintf(&b, "\t.debug_frame_hdr_len = %d,\n", len(m.SynthHdr))
		fmt.Fprintf(&b, "\t.debug_frame_hdr_off = 0x%xULL,\n", m.SynthHdrOff)
		fmt.Fprintf(&b, "\t.num_sections = %d,\n", len(m.Sections))
		b.WriteString("};\n\n")
	}

	b.WriteString("static struct _stp_module *_stp_modules[] = {\n")
	for i := range modules {
		fmt.Fprintf(&b, "\t&__module_%d,\n", i)
	}
	b.WriteString("};\n\n")
	fmt.Fprintf(&b, "static const unsigned _stp_num_modules = %d;\n", len(modules))

	var trampoline uint64
	for _, m := range modules {
		if a := KretprobeTrampolineAddr(m); a != 0 {
			trampoline = a
			break
		}
	}
	fmt.Fprintf(&b, "static unsigned long _stp_kretprobe_trampoline = 0x%xUL;\n", trampoline)
	return b.String()
}

func byteArrayLiteral(bs []byte) string {
	if len(bs) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range bs {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "0x%02x", v)
	}
	b.WriteByte('}')
	return b.String()
}

// MirrorProfile renders modules as a pprof profile.Profile, one
// sample per module keyed by build-id, with a "bytes" value per
// unwind table. This is additional tooling output, inspectable with
// pprof -top/-web during development; the canonical output remains
// EmitHeader's C text (see SPEC_FULL.md §4.4).
func MirrorProfile(modules []*Module) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "eh_frame", Unit: "bytes"},
			{Type: "debug_frame", Unit: "bytes"},
			{Type: "debug_frame_hdr", Unit: "bytes"},
		},
	}
	for i, m := range modules {
		loc := &profile.Location{ID: uint64(i + 1)}
		fn := &profile.Function{
			ID:   uint64(i + 1),
			Name: fmt.Sprintf("%s (build-id %x)", m.Name, m.BuildID),
		}
		loc.Line = []profile.Line{{Function: fn}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(len(m.EhFrame)), int64(len(m.DebugFrame)), int64(len(m.SynthHdr))},
		})
	}
	return p
}
