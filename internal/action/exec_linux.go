//go:build linux

package action

// Power actions go through systemd when present, with legacy sysvinit tools
// as fallback. Lock targets the active graphical session via loginctl, then
// the session screensaver.
var handlers = map[Kind]func() error{
	Shutdown: func() error {
		return runFirst(
			[]string{"systemctl", "poweroff"},
			[]string{"shutdown", "now"},
		)
	},
	Restart: func() error {
		return runFirst(
			[]string{"systemctl", "reboot"},
			[]string{"reboot"},
		)
	},
	Suspend: suspend,
	Sleep:   suspend,
	Lock: func() error {
		return runFirst(
			[]string{"loginctl", "lock-session"},
			[]string{"xdg-screensaver", "lock"},
		)
	},
}

func suspend() error {
	return runFirst(
		[]string{"systemctl", "suspend"},
		[]string{"pm-suspend"},
	)
}
