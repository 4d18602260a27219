//go:build !windows

package process

// forceShell is false on Unix: plain commands are executed directly.
const forceShell = false

// shellCommand returns a shell invocation for Unix systems.
func shellCommand(script string) (string, []string) {
	return "/bin/sh", []string{"-c", script}
}

// trueCommand returns a command that always succeeds on Unix systems.
func trueCommand() (string, []string) {
	return "/bin/true", nil
}
