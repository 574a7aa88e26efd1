// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cemit

import "time"

// ForceShutdownAfter bounds how long module exit polls for busy
// per-CPU contexts before forcing teardown regardless, spec.md
// §4.3.9: "polls for busy contexts up to a deadline (with an override
// that forces shutdown after 10 s)." Exposed as a field rather than a
// constant so a session can override it (DESIGN.md's Open Question
// decision).
type Driver struct {
	ForceShutdownAfter time.Duration
}

const defaultForceShutdownAfter = 10 * time.Second

// NewDriver returns a Driver with spec.md's default 10s shutdown
// deadline.
func NewDriver() *Driver {
	return &Driver{ForceShutdownAfter: defaultForceShutdownAfter}
}

// ProbeGroup is one registration/unregistration unit the lifecycle
// functions iterate over, in declaration order for init/refresh and
// reverse order for exit (spec.md §4.3.9).
type ProbeGroup struct {
	Name             string
	RegisterFn       string
	UnregisterFn     string
	RefreshFn        string // empty if the group has no dynamic refresh hook
}

// Init emits the generated module init function, spec.md §4.3.9:
// kernel release/version check, embedded build-id check, privilege
// credential superset check, one context per possible CPU, global +
// rwlock + timing-stat initialization, probe group registration in
// declaration order, STARTING -> RUNNING transition.
func Init(groups []ProbeGroup, globalNames []string, requiredCreds string) *CStmt {
	b := Block()
	b.Append(Raw("static int stp_module_init(void) {"))
	b.Append(Raw("int rc;"))
	b.Append(Raw("if (strcmp(utsname()->release, STAP_KERNEL_RELEASE) != 0) return -EINVAL;"))
	b.Append(Raw("if (strcmp(utsname()->version, STAP_KERNEL_VERSION) != 0) return -EINVAL;"))
	b.Append(Raw("if (!_stp_build_id_check()) return -EINVAL;"))
	b.Append(Raw("if (!cap_issubset(%s, current_cred()->cap_effective)) return -EACCES;", requiredCreds))
	b.Append(Raw("contexts = _stp_alloc_percpu_contexts();"))
	b.Append(Raw("if (contexts == NULL) return -ENOMEM;"))
	for _, g := range globalNames {
		b.Append(Raw("rwlock_init(&global_%s_lock);", g))
		b.Append(Raw("_stp_timing_init(&global_%s_timing);", g))
	}
	for _, g := range groups {
		b.Append(Raw("rc = %s();", g.RegisterFn))
		b.Append(Raw("if (rc) goto unreg_%s;", g.Name))
	}
	b.Append(Raw("atomic_set(&session_state, STAP_SESSION_RUNNING);"))
	b.Append(Raw("return 0;"))
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		b.Append(Label("unreg_" + g.Name))
		for j := i - 1; j >= 0; j-- {
			b.Append(Raw("%s();", groups[j].UnregisterFn))
		}
		b.Append(Raw("return rc;"))
	}
	b.Append(Raw("}"))
	return b
}

// Refresh emits the dynamic-probe re-registration hook, spec.md
// §4.3.9: reruns each group's refresh hook (proc events, uprobes that
// may have appeared or disappeared since init/the last refresh).
func Refresh(groups []ProbeGroup) *CStmt {
	b := Block()
	b.Append(Raw("static void stp_module_refresh(void) {"))
	for _, g := range groups {
		if g.RefreshFn == "" {
			continue
		}
		b.Append(Raw("%s();", g.RefreshFn))
	}
	b.Append(Raw("}"))
	return b
}

// Exit emits the generated module exit function, spec.md §4.3.9:
// STOPPING transition, unregister in reverse order, poll for busy
// contexts up to d.ForceShutdownAfter (without a deadline when it is
// zero), deallocate globals, print per-probe and global statistics if
// enabled, free context memory.
func (d *Driver) Exit(groups []ProbeGroup, globalNames []string, printTiming bool) *CStmt {
	b := Block()
	b.Append(Raw("static void stp_module_exit(void) {"))
	if d.ForceShutdownAfter > 0 {
		b.Append(Raw("unsigned long deadline = jiffies + msecs_to_jiffies(%d);", d.ForceShutdownAfter.Milliseconds()))
	}
	b.Append(Raw("atomic_set(&session_state, STAP_SESSION_STOPPING);"))
	for i := len(groups) - 1; i >= 0; i-- {
		b.Append(Raw("%s();", groups[i].UnregisterFn))
	}
	if d.ForceShutdownAfter > 0 {
		b.Append(Raw("while (_stp_ctx_in_use() && time_before(jiffies, deadline)) {"))
	} else {
		b.Append(Raw("while (_stp_ctx_in_use()) {"))
	}
	b.Append(Raw("\tcond_resched();"))
	b.Append(Raw("}"))
	for _, g := range globalNames {
		b.Append(Raw("_stp_map_free(global_%s);", g))
	}
	if printTiming {
		for i := len(groups) - 1; i >= 0; i-- {
			b.Append(Raw("_stp_print_probe_timing(%q);", groups[i].Name))
		}
		for _, g := range globalNames {
			b.Append(Raw("_stp_print_skipped(%q, &skipped_%s);", g, g))
		}
	}
	b.Append(Raw("_stp_free_percpu_contexts(contexts);"))
	b.Append(Raw("}"))
	return b
}
