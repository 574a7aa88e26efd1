// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command stapcore reads a serialized translator session and drives
// internal/translator over it, producing the generated C translation
// unit and its symbol/unwind header.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"stapcore/internal/dwarfutil"
	"stapcore/internal/ir"
	"stapcore/internal/translator"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: stapcore [-o outdir] session.json\n")
	flag.PrintDefaults()
	os.Exit(2)
}

var outDir = flag.String("o", ".", "directory to write the generated C files into")

func main() {
	log.SetPrefix("stapcore: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
	}

	sess, err := readSession(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	ctx := dwarfutil.NewContext()
	defer ctx.Close()
	modules := openModules(ctx, sess)

	d := translator.NewDriver(ctx)
	out, err := d.Run(sess, modules)
	if err != nil {
		log.Fatal(err)
	}

	if err := writeOutput(*outDir, out); err != nil {
		log.Fatal(err)
	}
}

func readSession(path string) (*ir.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var sess ir.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", path, err)
	}
	return &sess, nil
}

func openModules(ctx *dwarfutil.Context, sess *ir.Session) []*dwarfutil.Module {
	var out []*dwarfutil.Module
	if sess.KernelBuild != "" {
		m, err := ctx.OpenKernel(sess.KernelBuild, nil)
		if err != nil {
			log.Printf("kernel image: %v", err)
		} else {
			out = append(out, m)
		}
	}
	for _, path := range sess.UnwindModules {
		m, err := ctx.OpenModule(path, sess.KernelBuild != "")
		if err != nil {
			log.Printf("%s: %v", path, err)
			continue
		}
		out = append(out, m)
	}
	return out
}

func writeOutput(dir string, out *translator.Output) error {
	if err := os.WriteFile(dir+"/stap_module.c", []byte(out.MainC), 0644); err != nil {
		return fmt.Errorf("writing generated module: %w", err)
	}
	if err := os.WriteFile(dir+"/stap-symbols.h", []byte(out.SymbolsH), 0644); err != nil {
		return fmt.Errorf("writing symbol header: %w", err)
	}
	for name, text := range out.Auxiliary {
		if err := os.WriteFile(dir+"/"+name, []byte(text), 0644); err != nil {
			return fmt.Errorf("writing auxiliary file %s: %w", name, err)
		}
	}
	return nil
}
