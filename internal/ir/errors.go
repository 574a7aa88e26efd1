// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// SemanticError is a fatal translate-time diagnostic: configuration,
// type, or resolution failure. No module is produced when one occurs.
type SemanticError struct {
	Tok     Token
	Message string
}

func (e *SemanticError) Error() string {
	if e.Tok.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Tok.File, e.Tok.Line, e.Tok.Column, e.Message)
}

// Errorf builds a *SemanticError at tok with a formatted message.
func Errorf(tok Token, format string, args ...interface{}) *SemanticError {
	return &SemanticError{Tok: tok, Message: fmt.Sprintf(format, args...)}
}
