// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package version

import "testing"

func TestParseCompat(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1.0", 1 << 8, false},
		{"2.6", 2<<8 + 6, false},
		{"0.0", 0, false},
		{"255.255", 255<<8 + 255, false},
		{"256.0", 0, true},
		{"1.256", 0, true},
		{"1", 0, true},
		{"a.b", 0, true},
	}
	for _, c := range cases {
		v, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): want error, got %v", c.in, v)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", c.in, err)
		}
		if got := v.Compat(); got != c.want {
			t.Errorf("Parse(%q).Compat() = %d, want %d", c.in, got, c.want)
		}
		if v.String() != c.in {
			t.Errorf("Parse(%q).String() = %q, want %q", c.in, v.String(), c.in)
		}
	}
}

func TestCompare(t *testing.T) {
	v12 := MustParse("1.2")
	v13 := MustParse("1.3")
	v20 := MustParse("2.0")

	if !v12.Less(v13) {
		t.Errorf("1.2 should be less than 1.3")
	}
	if !v13.Less(v20) {
		t.Errorf("1.3 should be less than 2.0")
	}
	if v13.Less(v12) {
		t.Errorf("1.3 should not be less than 1.2")
	}
	if !v13.AtLeast(v13) {
		t.Errorf("1.3 should be at least 1.3")
	}
}

func TestV1_3Threshold(t *testing.T) {
	if !MustParse("1.2").Less(V1_3) {
		t.Errorf("1.2 should precede the legacy %%p threshold")
	}
	if MustParse("1.3").Less(V1_3) {
		t.Errorf("1.3 should not precede itself")
	}
}
