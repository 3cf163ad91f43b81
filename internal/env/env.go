package env

import (
	"os"
	"sort"
	"strings"
)

// Vars is a set of K->V environment overrides.
type Vars map[string]string

// Env composes the environment handed to launched servers: the OS environment
// as the base, fleet-wide overrides on top, then per-slot variables last.
type Env struct {
	global Vars
	base   Vars // cached OS environment
}

func New() *Env {
	return &Env{global: make(Vars)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Vars)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.base = base
}

// Set adds a fleet-wide variable applied to every launched server.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.global[k] = v
}

// Merge returns the final environment in "K=V" form: OS base, then global
// overrides, then perSlot. ${VAR} references are expanded against the
// composed map (single pass, no recursion). Output is sorted for stable
// command construction.
func (e *Env) Merge(perSlot Vars) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Vars, len(e.base)+len(e.global)+len(perSlot))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for k, v := range perSlot {
		if k == "" {
			continue
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Vars) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
