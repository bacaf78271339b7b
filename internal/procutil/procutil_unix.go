//go:build !windows

package procutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Status probes pid with signal 0. A permission error still proves the
// process exists. The reason describes why a process is considered gone.
func Status(pid int) (bool, string) {
	if pid <= 0 {
		return false, "invalid PID"
	}

	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, ""
	case errors.Is(err, unix.EPERM):
		return true, ""
	case errors.Is(err, unix.ESRCH):
		return false, "process not found"
	default:
		return false, "cannot signal process: " + err.Error()
	}
}
