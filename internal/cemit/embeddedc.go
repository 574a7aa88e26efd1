// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

// MyprocUnprivilegedTag marks an embedded-C block as requiring the
// myproc-unprivileged assertion, spec.md §4.3.10.
const MyprocUnprivilegedTag = "myproc-unprivileged"

// EmbeddedC emits an embedded-C block verbatim inside a C block,
// spec.md §4.3.10. A block tagged MyprocUnprivilegedTag gets an
// assertion that the probe's pid/euid matches the current task,
// inserted before the verbatim text.
func EmbeddedC(tag string, body string) *CStmt {
	b := Block()
	if tag == MyprocUnprivilegedTag {
		b.Append(Raw("assert(c->uid == current_uid().val && c->pid == current->pid);"))
	}
	b.Append(Raw("%s", body))
	return b
}
