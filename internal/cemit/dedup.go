// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DupeStamp is the structural hash of one probe, spec.md §4.3.8: the
// needs_global_locks flag, the probe's type-specific canonicalization
// tag, and a structural dump of its body. Using a structural hash over
// the CStmt tree (rather than hashing rendered text) means two probes
// whose bodies only differ in an incidental rendering choice still
// collide correctly, and keeps the dedup key a single fixed-size value
// suitable for a map key.
type DupeStamp [blake2b.Size256]byte

// Hash computes the dupe stamp for a probe body.
func Hash(needsGlobalLocks bool, dupeStampKind string, body *CStmt) DupeStamp {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on a bad key length, and nil is
		// always a valid (no-key) argument.
		panic(err)
	}
	fmt.Fprintf(h, "locks=%v\n", needsGlobalLocks)
	fmt.Fprintf(h, "kind=%s\n", dupeStampKind)
	hashStmt(h, body)
	var out DupeStamp
	copy(out[:], h.Sum(nil))
	return out
}

type hashWriter interface {
	Write([]byte) (int, error)
}

func hashStmt(w hashWriter, s *CStmt) {
	if s == nil {
		fmt.Fprint(w, "<nil>")
		return
	}
	fmt.Fprintf(w, "(%d", s.Kind)
	switch s.Kind {
	case CRaw, CLabel, CGoto, CComment:
		fmt.Fprintf(w, " %q", s.Text)
	case CBlock:
		for _, child := range s.Stmts {
			hashStmt(w, child)
		}
	case CIf:
		fmt.Fprintf(w, " %q", s.Cond)
		hashStmt(w, s.Then)
		hashStmt(w, s.Else)
	case CFor:
		fmt.Fprintf(w, " %q %q %q", s.Init, s.ForCond, s.Post)
		hashStmt(w, s.Body)
	}
	fmt.Fprint(w, ")")
}

// Deduplicator tracks which probe was the first to produce a given
// DupeStamp, so later probes with an identical stamp are redirected to
// the first probe's generated function name instead of emitting a
// duplicate (spec.md §4.3.8). It also drives elision of per-probe
// context substructs: Canonical reports whether stamp has been seen
// before.
type Deduplicator struct {
	first map[DupeStamp]string
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{first: make(map[DupeStamp]string)}
}

// Canonical returns the generated function name to use for a probe
// whose dupe stamp is stamp and whose own generated name would be
// ownName: the first probe to register a given stamp keeps its own
// name; every subsequent probe with the same stamp is redirected to
// it, and emitted is false in that case (the caller must not emit the
// trampoline body again).
func (d *Deduplicator) Canonical(stamp DupeStamp, ownName string) (name string, emitted bool) {
	if existing, ok := d.first[stamp]; ok {
		return existing, false
	}
	d.first[stamp] = ownName
	return ownName, true
}
