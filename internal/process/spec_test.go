//go:build !windows

package process

import (
	"reflect"
	"testing"
)

func TestCommandLine(t *testing.T) {
	cases := []struct {
		in   string
		path string
		args []string
	}{
		{"npm run dev", "npm", []string{"run", "dev"}},
		{"  php -S 127.0.0.1:8000  ", "php", []string{"-S", "127.0.0.1:8000"}},
		{"echo a | cat", "/bin/sh", []string{"-c", "echo a | cat"}},
		{"sh -c 'sleep 1'", "/bin/sh", []string{"-c", "sleep 1"}},
		{"", "/bin/true", nil},
	}
	for _, c := range cases {
		path, args := CommandLine(c.in)
		if path != c.path || !reflect.DeepEqual(args, c.args) {
			t.Errorf("CommandLine(%q) = %q %q, want %q %q", c.in, path, args, c.path, c.args)
		}
	}
}

func TestSpecCommandAppliesDirEnvGroup(t *testing.T) {
	s := Spec{Path: "true", WorkDir: "/tmp", Env: []string{"A=1"}}
	cmd := s.command()
	if cmd.Dir != "/tmp" || len(cmd.Env) != 1 {
		t.Fatalf("dir/env not applied: %q %v", cmd.Dir, cmd.Env)
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatal("Setpgid not set")
	}
}

func TestShellAlwaysWraps(t *testing.T) {
	s := Shell(" npm run dev ")
	if s.Path != "/bin/sh" || !reflect.DeepEqual(s.Args, []string{"-c", "npm run dev"}) {
		t.Fatalf("Shell = %q %q", s.Path, s.Args)
	}
	if e := Shell(""); e.Path != "/bin/true" {
		t.Fatalf("empty Shell = %q", e.Path)
	}
}
