//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"syscall"
)

// isProcessRunning checks if a process with the given PID is running (Unix)
func isProcessRunning(pid int) (bool, string) {
	if pid <= 0 {
		return false, "invalid PID"
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, "process not found"
	}

	// signal 0 only checks for existence
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, ""
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false, "process has finished"
	case errors.Is(err, syscall.EPERM):
		// exists, owned by someone else
		return true, ""
	default:
		return false, "cannot signal process"
	}
}
