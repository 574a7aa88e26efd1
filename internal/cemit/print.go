// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"fmt"
	"strings"

	"stapcore/internal/version"
)

// MaxPrintArgs is the hard per-print argument cap, spec.md §4.3.5.
const MaxPrintArgs = 32

// MaxMemDumpBytes is the %m/%M precision ceiling; exceeding it is a
// runtime error rather than a silent clamp, spec.md §4.3.5.
const MaxMemDumpBytes = 1024

// PrintKey identifies one specialized printer the emitter must
// generate: a distinct (to_stream, format) pair gets its own function,
// named deterministically so repeated formats share one printer.
type PrintKey struct {
	ToStream bool
	Format   string
}

// Name is the deterministic generated-function name for a print key.
func (k PrintKey) Name(index int) string {
	kind := "str"
	if k.ToStream {
		kind = "stream"
	}
	return fmt.Sprintf("_stp_print_%s_%d", kind, index)
}

// Conversion is one parsed printf-style conversion specifier.
type Conversion struct {
	Verb       byte // d,i,u,o,x,X,b,p,c,s,m,M,%
	Width      int  // static width; -1 when none is given or it is `*` (see DynWidth)
	Precision  int  // static precision; -1 when none is given or it is `*` (see DynPrec)
	DynWidth   bool
	DynPrec    bool
}

// PrintPlanner collects distinct print keys during a body walk so the
// translator can emit one specialized function per pair, spec.md
// §4.3.5: "the emitter collects every distinct (to_stream,
// format_string) pair and emits one specialized printer per pair."
type PrintPlanner struct {
	order []PrintKey
	index map[PrintKey]int
}

func NewPrintPlanner() *PrintPlanner {
	return &PrintPlanner{index: make(map[PrintKey]int)}
}

// Register records k if new and returns its generated function name.
func (p *PrintPlanner) Register(k PrintKey) string {
	if i, ok := p.index[k]; ok {
		return k.Name(i)
	}
	i := len(p.order)
	p.index[k] = i
	p.order = append(p.order, k)
	return k.Name(i)
}

// Keys returns every distinct print key registered so far, in
// first-registration order, so the driver can emit exactly one
// specialized printer per pair into the common header.
func (p *PrintPlanner) Keys() []PrintKey {
	return p.order
}

// ParseFormat returns the conversions of a printf-style format string
// in order, spec.md §4.3.5's conversion set:
// d/i/u/o/x/X/b/p/c/s standard; m/M raw/hex memory dump; %% literal.
// The literal text between conversions is not returned.
func ParseFormat(format string) ([]Conversion, error) {
	var out []Conversion
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i >= len(format) {
			return nil, fmt.Errorf("print.go: trailing %% in format %q", format)
		}
		conv := Conversion{Width: -1, Precision: -1}
		if format[i] == '*' {
			conv.DynWidth = true
			i++
		} else {
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				conv.Width = max(conv.Width, 0)*10 + int(format[i]-'0')
				i++
			}
		}
		if i < len(format) && format[i] == '.' {
			i++
			if i < len(format) && format[i] == '*' {
				conv.DynPrec = true
				i++
			} else {
				for i < len(format) && format[i] >= '0' && format[i] <= '9' {
					conv.Precision = max(conv.Precision, 0)*10 + int(format[i]-'0')
					i++
				}
			}
		}
		if i >= len(format) {
			return nil, fmt.Errorf("print.go: incomplete conversion in format %q", format)
		}
		conv.Verb = format[i]
		switch conv.Verb {
		case 'd', 'i', 'u', 'o', 'x', 'X', 'b', 'p', 'c', 's', 'm', 'M', '%':
		default:
			return nil, fmt.Errorf("print.go: unknown conversion %%%c", conv.Verb)
		}
		out = append(out, conv)
	}
	return out, nil
}

// printerParamType is the formal-parameter C type a conversion's
// argument takes: 's'/'m'/'M' read a string_t buffer, everything else
// (including 'p', which formats a Long address) is an int64_t.
func printerParamType(verb byte) string {
	switch verb {
	case 's', 'm', 'M':
		return "string_t"
	default:
		return "int64_t"
	}
}

// printerParamList renders a specialized printer's formal parameter
// list: one "_aN" per conversion that consumes an argument, skipping
// the literal "%%" conversion.
func printerParamList(conversions []Conversion) string {
	var parts []string
	i := 0
	for _, c := range conversions {
		if c.Verb == '%' {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s _a%d", printerParamType(c.Verb), i))
		i++
	}
	return strings.Join(parts, ", ")
}

func printerParamCount(conversions []Conversion) int {
	n := 0
	for _, c := range conversions {
		if c.Verb != '%' {
			n++
		}
	}
	return n
}

// shortCircuitEmit implements the two short-circuit optimizations of
// spec.md §4.3.5: a single "%s" with a single string argument
// collapses to a plain emit, and "...%s...\n" with one argument
// collapses to an emit-with-newline.
func shortCircuitEmit(format string, conversions []Conversion) (*CStmt, bool) {
	if printerParamCount(conversions) != 1 {
		return nil, false
	}
	switch format {
	case "%s":
		return Raw("_stp_print(_a0);"), true
	default:
		if strings.Count(format, "%") == 1 && strings.HasSuffix(format, "%s\n") {
			prefix := strings.TrimSuffix(format, "%s\n")
			if !strings.Contains(prefix, "%") {
				return Raw("_stp_print(%q); _stp_print(_a0); _stp_print(\"\\n\");", prefix), true
			}
		}
	}
	return nil, false
}

// EmitPrinter generates one specialized printer body, spec.md
// §4.3.5: streaming mode prints each conversion through
// _stp_printf/_stp_print as it is reached, with no per-conversion
// length precomputed and nothing reserved from the ring buffer up
// front; string mode writes into __stp_printf_locals.__retvalue,
// capped to MAXSTRINGLEN-1. The printer takes its arguments as ordinary formal
// parameters (_a0, _a1, ...) rather than baking literal call-site
// expressions into its body, so the same generated function can be
// called from every call site sharing its (to_stream, format) pair —
// use CallPrinter to emit those calls.
func EmitPrinter(name string, k PrintKey, conversions []Conversion, compat version.Version) *CStmt {
	if printerParamCount(conversions) > MaxPrintArgs {
		return Comment("print %s exceeds the %d-argument cap", name, MaxPrintArgs)
	}
	params := printerParamList(conversions)
	if body, ok := shortCircuitEmit(k.Format, conversions); ok {
		return Block(Raw("static void %s(%s) {", name, params), body, Raw("}"))
	}

	b := Block()
	b.Append(Raw("static void %s(%s) {", name, params))
	if k.ToStream {
		b.Append(Raw("unsigned __len = 0;"))
	} else {
		b.Append(Raw("unsigned __pos = 0;"))
	}

	argi := 0
	nextArg := func() CExpr {
		a := CExpr(fmt.Sprintf("_a%d", argi))
		argi++
		return a
	}

	for _, c := range conversions {
		switch c.Verb {
		case '%':
			b.Append(emitLiteral(k.ToStream, "%"))
		case 'm', 'M':
			arg := nextArg()
			prec := c.Precision
			if prec < 0 {
				prec = 256
			}
			b.Append(Raw("if (unlikely(%d > %d)) {", prec, MaxMemDumpBytes))
			b.Append(setLastError(ErrTooManyBytes(prec), name))
			b.Append(Raw("}"))
			b.Append(emitMemDump(k.ToStream, c.Verb == 'M', arg, prec))
		case 'p':
			arg := nextArg()
			if compat.Less(version.V1_3) {
				b.Append(emitLegacyPointer(k.ToStream, arg))
			} else {
				b.Append(emitConversion(k.ToStream, 'p', arg))
			}
		default:
			arg := nextArg()
			b.Append(emitConversion(k.ToStream, c.Verb, arg))
		}
	}
	if !k.ToStream {
		b.Append(Raw("__stp_printf_locals.__retvalue[__pos < MAXSTRINGLEN ? __pos : MAXSTRINGLEN-1] = '\\0';"))
	}
	b.Append(Raw("}"))
	return b
}

// CallPrinter emits a call to a printer EmitPrinter generated, passing
// args positionally as its _aN formal parameters.
func CallPrinter(name string, args []CExpr) *CStmt {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = string(a)
	}
	return Raw("%s(%s);", name, strings.Join(parts, ", "))
}

func emitLiteral(toStream bool, text string) *CStmt {
	if toStream {
		return Raw("_stp_print(%q);", text)
	}
	return Raw("__pos += snprintf(__stp_printf_locals.__retvalue+__pos, MAXSTRINGLEN-__pos, %q);", text)
}

func emitConversion(toStream bool, verb byte, arg CExpr) *CStmt {
	spec := "%" + string(verb)
	if toStream {
		return Raw("_stp_printf(%q, %s);", spec, arg)
	}
	return Raw("__pos += snprintf(__stp_printf_locals.__retvalue+__pos, MAXSTRINGLEN-__pos, %q, %s);", spec, arg)
}

func emitMemDump(toStream, hex bool, arg CExpr, n int) *CStmt {
	fn := "_stp_text_dump"
	if hex {
		fn = "_stp_hex_dump"
	}
	if toStream {
		return Raw("%s(%s, %d);", fn, arg, n)
	}
	return Raw("__pos += %s_str(__stp_printf_locals.__retvalue+__pos, MAXSTRINGLEN-__pos, %s, %d);", fn, arg, n)
}

// emitLegacyPointer reproduces the pre-1.3 %p rendering: two leading
// "0x" and right-padded, spec.md §4.3.5.
func emitLegacyPointer(toStream bool, arg CExpr) *CStmt {
	if toStream {
		return Raw("_stp_printf(\"0x0x%%-16p\", %s);", arg)
	}
	return Raw("__pos += snprintf(__stp_printf_locals.__retvalue+__pos, MAXSTRINGLEN-__pos, \"0x0x%%-16p\", %s);", arg)
}
