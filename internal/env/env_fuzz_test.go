package env

import (
	"strings"
	"testing"
)

// FuzzMerge feeds Merge random global and per-slot variables to ensure it
// never panics and always emits well-formed sorted "K=V" pairs.
func FuzzMerge(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"), []byte("C=${B}-y"))
	f.Add([]byte("FOO=bar"), []byte("FOO=${FOO}"))
	f.Add([]byte("X=$Y"), []byte("Y=${X}")) // cyclic-like

	f.Fuzz(func(t *testing.T, globalB, perB []byte) {
		global := splitPairs(string(globalB))
		per := splitPairs(string(perB))

		e := New()
		e.base = Vars{} // keep the OS environment out of the invariant checks
		for k, v := range global {
			e.Set(k, v)
		}
		out := e.Merge(per)

		for _, kv := range out {
			if !strings.Contains(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
			if strings.HasPrefix(kv, "=") {
				t.Fatalf("empty key: %q", kv)
			}
		}
		// when no input contains '$', no placeholder may survive expansion
		containsDollar := false
		for _, m := range []Vars{global, per} {
			for k, v := range m {
				if strings.ContainsRune(k, '$') || strings.ContainsRune(v, '$') {
					containsDollar = true
				}
			}
		}
		if !containsDollar {
			for _, kv := range out {
				if strings.Contains(kv, "${") {
					t.Fatalf("unexpected placeholder remains: %q", kv)
				}
			}
		}
	})
}

// splitPairs parses newline-separated K=V lines into Vars, capped at 20
// entries to bound fuzz cost.
func splitPairs(s string) Vars {
	out := make(Vars)
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		i := strings.IndexByte(ln, '=')
		if i <= 0 {
			continue
		}
		out[ln[:i]] = ln[i+1:]
		if len(out) >= 20 {
			break
		}
	}
	return out
}
