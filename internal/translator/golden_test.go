// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translator

import (
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
)

// goldenFixture holds the golden-file snippets this test checks for,
// in the same named-file-archive shape cmd/go's own script tests use
// (golang.org/x/tools/txtar), grounded in the teacher's go.mod direct
// requirement on golang.org/x/tools.
const goldenFixture = `
-- expect/common_header.c --
#define STAP_VERSION(a,b) (((a)<<8)+(b))
#define STAP_COMPAT_VERSION STAP_VERSION(4,0)
-- expect/module_metadata.c --
MODULE_LICENSE("GPL");
MODULE_INFO(systemtap_compatible, "4.0");
`

func TestRunMatchesGoldenSnippets(t *testing.T) {
	arc := txtar.Parse([]byte(goldenFixture))
	files := make(map[string]string, len(arc.Files))
	for _, f := range arc.Files {
		files[f.Name] = string(f.Data)
	}

	d := NewDriver(nil)
	out, err := d.Run(simpleSession(), nil)
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}

	for name, want := range files {
		want = strings.TrimRight(want, "\n")
		for _, line := range strings.Split(want, "\n") {
			if line == "" {
				continue
			}
			if !strings.Contains(out.MainC, line) {
				t.Errorf("%s: generated output missing expected line %q", name, line)
			}
		}
	}
}
