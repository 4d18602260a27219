package env

import (
	"strings"
	"testing"
)

// FuzzMergeLayers checks that later layers win and every output entry is a
// well formed pair.
func FuzzMergeLayers(f *testing.F) {
	f.Add("DEVSTACK_FZ_PORT", "80", "8080")
	f.Add("devstack_fz_x", "a=b", "")
	f.Add("DEVSTACK_FZ_REF", "${HOME}", "plain")

	f.Fuzz(func(t *testing.T, key, global, override string) {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return
		}
		if strings.Contains(override, "$") {
			return
		}
		e := New().WithSet(key, global)
		out := e.Merge(Var{key: override})

		found := 0
		for _, kv := range out {
			i := strings.IndexByte(kv, '=')
			if i <= 0 {
				t.Fatalf("malformed pair %q", kv)
			}
			if fold(kv[:i]) == fold(key) {
				found++
				if kv[i+1:] != override {
					t.Fatalf("%s = %q, want override %q", key, kv[i+1:], override)
				}
			}
		}
		if found != 1 {
			t.Fatalf("%s appears %d times", key, found)
		}
	})
}
