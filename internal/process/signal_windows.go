//go:build windows

package process

import (
	"os/exec"
	"strconv"
	"syscall"
)

// killGroup asks taskkill to terminate pid with its whole tree. Exit status
// 128 means the process is already gone, which is fine.
func killGroup(pid int) error {
	// #nosec G204 pid is numeric
	cmd := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: CREATE_NO_WINDOW}
	if err := cmd.Run(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 128 {
			return nil
		}
		return err
	}
	return nil
}
