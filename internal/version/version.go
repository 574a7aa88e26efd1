// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package version parses and compares the translator's "X.Y"
// compatibility version string, and exposes it as the compile-time
// comparator STAP_VERSION the emitted module uses to gate behavior
// that changed between translator releases (spec.md §6).
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a parsed "X.Y" compatibility version. Both components
// must fit a byte per spec.md §6 and §8.
type Version struct {
	Major, Minor uint8
}

// Parse parses "X.Y", rejecting components outside [0,255].
func Parse(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("version: %q is not of the form X.Y", s)
	}
	ma, err := strconv.Atoi(major)
	if err != nil || ma < 0 || ma > 255 {
		return Version{}, fmt.Errorf("version: major component %q out of range [0,255]", major)
	}
	mi, err := strconv.Atoi(minor)
	if err != nil || mi < 0 || mi > 255 {
		return Version{}, fmt.Errorf("version: minor component %q out of range [0,255]", minor)
	}
	return Version{Major: uint8(ma), Minor: uint8(mi)}, nil
}

// String renders back to "X.Y".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compat returns the STAP_VERSION(a,b) encoding: (a<<8)+b.
func (v Version) Compat() int {
	return int(v.Major)<<8 + int(v.Minor)
}

// semverString normalizes to the "vX.Y.0" form golang.org/x/mod/semver
// expects; the translator's compatibility version has no patch
// component, so it is always pinned to 0 for comparison purposes.
func (v Version) semverString() string {
	return fmt.Sprintf("v%d.%d.0", v.Major, v.Minor)
}

// Compare reports whether v is less than, equal to, or greater than
// other, the same convention as golang.org/x/mod/semver.Compare (and
// strings.Compare): negative, zero, or positive.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.semverString(), other.semverString())
}

// Less reports v < other, the form most call sites in internal/cemit
// use directly (e.g. "for compatibility version < 1.3").
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// AtLeast reports v >= other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// MustParse is Parse but panics on error; used for the package-level
// version constants compiled into the emitter (e.g. the 1.3 threshold
// for legacy %p formatting, spec.md §4.3.5).
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// V1_3 is the threshold below which %p imitates the older runtime's
// two-leading-"0x", right-padded behavior (spec.md §4.3.5).
var V1_3 = MustParse("1.3")
