// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"fmt"
	"strings"
)

// Writer accumulates rendered C text with explicit indent tracking.
// internal/translator asserts (spec.md §8) that Indent() returns to 0
// between driver sections.
type Writer struct {
	b      strings.Builder
	indent int
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Indent() int { return w.indent }

func (w *Writer) String() string { return w.b.String() }

func (w *Writer) line(s string) {
	w.b.WriteString(strings.Repeat("\t", w.indent))
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

// Raw writes a pre-formatted line at the current indent, e.g. for
// section boundaries (macro blocks, comments) the render tree does not
// model node-by-node.
func (w *Writer) Raw(format string, args ...interface{}) {
	w.line(fmt.Sprintf(format, args...))
}

// Render writes s and its children to w.
func (w *Writer) Render(s *CStmt) {
	if s == nil {
		return
	}
	switch s.Kind {
	case CRaw:
		w.line(s.Text)
	case CLabel:
		w.b.WriteString(s.Text)
		w.b.WriteString(":;\n")
	case CGoto:
		w.line(fmt.Sprintf("goto %s;", s.Text))
	case CComment:
		w.line(fmt.Sprintf("/* %s */", s.Text))
	case CBlock:
		w.line("{")
		w.indent++
		for _, child := range s.Stmts {
			w.Render(child)
		}
		w.indent--
		w.line("}")
	case CIf:
		w.line(fmt.Sprintf("if (%s) {", s.Cond))
		w.indent++
		w.renderBody(s.Then)
		w.indent--
		if s.Else != nil {
			w.line("} else {")
			w.indent++
			w.renderBody(s.Else)
			w.indent--
		}
		w.line("}")
	case CFor:
		w.line(fmt.Sprintf("for (%s; %s; %s) {", s.Init, s.ForCond, s.Post))
		w.indent++
		w.renderBody(s.Body)
		w.indent--
		w.line("}")
	}
}

// renderBody renders a statement as the body of an already-braced
// construct (if/for), flattening a top-level CBlock so it does not
// open a redundant nested pair of braces.
func (w *Writer) renderBody(s *CStmt) {
	if s == nil {
		return
	}
	if s.Kind == CBlock {
		for _, child := range s.Stmts {
			w.Render(child)
		}
		return
	}
	w.Render(s)
}
