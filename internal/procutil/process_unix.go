//go:build !windows

package procutil

import (
	"golang.org/x/sys/unix"
)

// Terminate sends SIGTERM to the process identified by pid.
func Terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// IsProcessAlive checks whether a process with the given pid is still
// running. Signal 0 performs the existence and permission check without
// delivering anything.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
