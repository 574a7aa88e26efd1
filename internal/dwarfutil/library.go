// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfutil

import (
	"bufio"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// knownLinkers whitelists the dynamic linkers this package will trust
// enough to exec with LD_TRACE_LOADED_OBJECTS=1, per spec.md §4.1
// "Library enumeration": "only a whitelist of known dynamic linkers is
// accepted."
var knownLinkers = map[string]bool{
	"/lib/ld-linux.so.2":       true,
	"/lib64/ld-linux-x86-64.so.2": true,
	"/lib/ld-linux-aarch64.so.1":  true,
	"/lib/ld-linux-armhf.so.3":    true,
}

// lddLine matches "name => /path (0xADDR)" and the interpreter's own
// "/path (0xADDR)" self-entry.
var lddLine = regexp.MustCompile(`^\s*(?:(\S+)\s*=>\s*)?(/\S+)\s+\(0x[0-9a-fA-F]+\)\s*$`)

// runLoaderTrace invokes the program interpreter with
// LD_TRACE_LOADED_OBJECTS=1 against binaryPath and parses the
// resulting "name => /path (0x...)" lines.
func runLoaderTrace(interp, binaryPath string) (map[string]string, error) {
	if !knownLinkers[interp] {
		return nil, fmt.Errorf("dwarfutil: %s is not a whitelisted dynamic linker", interp)
	}
	cmd := exec.Command(interp, binaryPath)
	cmd.Env = append(cmd.Env, "LD_TRACE_LOADED_OBJECTS=1")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("dwarfutil: running loader trace on %s: %w", binaryPath, err)
	}
	libs := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		m := lddLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := m[1]
		path := m[2]
		if name == "" {
			name = baseName(path)
		}
		libs[name] = path
	}
	return libs, sc.Err()
}

// DiscoverLibraries runs the loader trace on every module in mods
// (skipping those with no usable interpreter) and returns the union of
// discovered shared libraries not already open in the context,
// supporting spec.md §4.4's "automatic library inclusion."
func (c *Context) DiscoverLibraries(interp string, mods []*Module) (map[string]string, error) {
	discovered := make(map[string]string)
	for _, m := range mods {
		libs, err := runLoaderTrace(interp, m.Path)
		if err != nil {
			continue // degraded, not fatal: spec.md §7
		}
		for name, path := range libs {
			if _, already := c.byName[collapseName(name)]; already {
				continue
			}
			discovered[name] = path
		}
	}
	return discovered, nil
}
