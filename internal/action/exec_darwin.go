//go:build darwin

package action

var handlers = map[Kind]func() error{
	Shutdown: func() error {
		return runFirst([]string{"osascript", "-e", `tell app "System Events" to shut down`})
	},
	Restart: func() error {
		return runFirst([]string{"osascript", "-e", `tell app "System Events" to restart`})
	},
	Suspend: suspend,
	Sleep:   suspend,
	Lock: func() error {
		return runFirst([]string{"pmset", "displaysleepnow"})
	},
}

func suspend() error {
	return runFirst([]string{"pmset", "sleepnow"})
}
