// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import "fmt"

// Runtime-reported error strings, spec.md §7. These are not Go errors:
// they are C string literals the emitted module assigns to
// c->last_error at run time.
const (
	ErrMaxAction       = "MAXACTION exceeded"
	ErrMaxNesting      = "MAXNESTING exceeded"
	ErrDivideByZero    = "division by 0"
	ErrAggregationOver = "aggregation overflow"
	ErrEmptyAggregate  = "empty aggregate"
	ErrHistIndexRange  = "histogram index out of range"
)

// ErrArrayOverflow formats the "array overflow" message, which carries
// either the configured MAXMAPENTRIES or the array's declared size
// limit, per spec.md §7.
func ErrArrayOverflow(limit int) string {
	return fmt.Sprintf("array overflow, check MAXMAPENTRIES | size limit (%d)", limit)
}

// ErrTooManyBytes formats the %m/%M precision-too-large message,
// spec.md §4.3.5: "precision > 1024 raises a 'too many bytes' ...
// runtime error."
func ErrTooManyBytes(precision int) string {
	return fmt.Sprintf("too many bytes requested (%d, max 1024)", precision)
}

// setLastError appends the goto-out idiom every runtime-reported error
// site uses (spec.md §4.3.6): assign c->last_error and c->last_stmt,
// then jump to the body's out label.
func setLastError(msg string, stmtToken string) *CStmt {
	return Block(
		Raw("c->last_error = %q;", msg),
		Raw("c->last_stmt = %q;", stmtToken),
		Goto("out"),
	)
}
