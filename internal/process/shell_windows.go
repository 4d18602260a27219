//go:build windows

package process

// Package manager launchers (npm, pnpm, yarn) are .cmd scripts on Windows
// and need cmd.exe to run, so every command goes through the shell.
const forceShell = true

// shellCommand returns a shell invocation for Windows systems.
func shellCommand(script string) (string, []string) {
	return "cmd", []string{"/C", script}
}

// trueCommand returns a command that always succeeds on Windows systems.
func trueCommand() (string, []string) {
	return "cmd", []string{"/C", "rem"}
}
