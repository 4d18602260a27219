package process

import (
	"os/exec"
	"strings"
)

// Spec describes a process to be spawned by the Registry.
type Spec struct {
	Path    string   // executable path or name resolved through PATH
	Args    []string // arguments, not including the program name
	WorkDir string   // optional working dir
	Env     []string // full environment in "K=V" form; nil inherits the parent's
	// Capture returns stdout/stderr as readable streams on the Handle.
	// When false both streams go to the null device.
	Capture bool
}

// ShellSpec builds a Spec that runs command line through the platform shell
// when it needs one. Commands that already invoke a shell are honored,
// commands with metacharacters are wrapped, plain commands run directly.
func ShellSpec(command string) Spec {
	path, args := CommandLine(command)
	return Spec{Path: path, Args: args}
}

// Shell builds a Spec that always runs command through the platform shell,
// so launcher scripts and shell syntax behave as in a terminal.
func Shell(command string) Spec {
	script := strings.TrimSpace(command)
	if script == "" {
		path, args := trueCommand()
		return Spec{Path: path, Args: args}
	}
	path, args := shellCommand(script)
	return Spec{Path: path, Args: args}
}

// CommandLine splits a raw command string into program and arguments.
func CommandLine(command string) (string, []string) {
	cmdStr := strings.TrimSpace(command)
	if cmdStr == "" {
		return trueCommand()
	}
	if forceShell {
		return shellCommand(cmdStr)
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		return shellCommand(afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return shellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	return parts[0], parts[1:]
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// script after -c with one pair of wrapping quotes stripped.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}

func (s Spec) command() *exec.Cmd {
	// #nosec G204 commands come from local descriptors owned by the user
	cmd := exec.Command(s.Path, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if s.Env != nil {
		cmd.Env = s.Env
	}
	configureSysProcAttr(cmd)
	return cmd
}
