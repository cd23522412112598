//go:build windows

package action

// The direct Win32 paths (ExitWindowsEx, SetSuspendState, LockWorkStation)
// require shutdown privilege adjustment; the stock command-line tools below
// perform the same adjustment internally, so they are both the fallback and
// the simple path. rundll32 entry points run in the caller's session.
var handlers = map[Kind]func() error{
	Shutdown: func() error {
		return runFirst([]string{"shutdown", "/s", "/t", "0"})
	},
	Restart: func() error {
		return runFirst([]string{"shutdown", "/r", "/t", "0"})
	},
	Suspend: suspend,
	Sleep:   suspend,
	Lock: func() error {
		return runFirst([]string{"rundll32.exe", "user32.dll,LockWorkStation"})
	},
}

func suspend() error {
	return runFirst([]string{"rundll32.exe", "powrprof.dll,SetSuspendState", "0", "1", "0"})
}
