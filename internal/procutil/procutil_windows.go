//go:build windows

package procutil

import (
	"golang.org/x/sys/windows"
)

// Status opens pid for a limited query. Exited processes whose handle is
// still held elsewhere report a non-active exit code.
func Status(pid int) (bool, string) {
	if pid <= 0 {
		return false, "invalid PID"
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false, "process not found"
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return true, ""
	}
	const stillActive = 259
	if code != stillActive {
		return false, "process has finished"
	}
	return true, ""
}
