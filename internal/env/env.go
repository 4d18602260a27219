// Package env composes process environments from the OS environment and
// layered overrides.
package env

import (
	"os"
	"runtime"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = Parse(os.Environ())
}

// WithSet returns a copy of e with k=v added to the global variables.
func (e *Env) WithSet(k, v string) *Env {
	out := &Env{Var: make(Var, len(e.Var)+1), env: e.env}
	for kk, vv := range e.Var {
		out.Var[kk] = vv
	}
	out.Var[k] = v
	return out
}

// Parse turns "K=V" pairs into a map. Entries without '=' or with an empty
// key are skipped.
func Parse(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// Merge composes the final environment: OS base, then global e.Var, then
// each layer in order. ${VAR} references are expanded once against the
// composed map. The result is sorted "K=V" pairs.
func (e *Env) Merge(layers ...Var) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var))
	keys := make(map[string]string) // folded key -> stored key
	put := func(k, v string) {
		if k == "" {
			return
		}
		fk := fold(k)
		if prev, ok := keys[fk]; ok && prev != k {
			delete(m, prev)
		}
		keys[fk] = k
		m[k] = v
	}
	for k, v := range e.env {
		put(k, v)
	}
	for k, v := range e.Var {
		put(k, v)
	}
	for _, l := range layers {
		for k, v := range l {
			put(k, v)
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

// fold normalizes keys on Windows, whose environment is case-insensitive.
func fold(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
