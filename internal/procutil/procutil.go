// Package procutil probes whether a process exists without affecting it.
package procutil

// IsRunning reports whether a process with the given PID exists.
func IsRunning(pid int) bool {
	running, _ := Status(pid)
	return running
}
