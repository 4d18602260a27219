//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// killGroup sends SIGKILL to the process group led by pid. Processes spawned
// by the Registry lead their own group; for adopted processes the call
// fails with ESRCH or EPERM and the per-process walk does the work.
func killGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.EPERM) {
		return nil
	}
	return err
}
