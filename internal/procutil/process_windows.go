//go:build windows

package procutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// Terminate kills the process identified by pid. Windows has no SIGTERM;
// TerminateProcess is the only portable option.
func Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid: %d", pid)
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	defer p.Release()
	return p.Kill()
}

// IsProcessAlive checks whether a process with the given pid is still
// running by opening a query-only handle.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(h)
	return true
}
