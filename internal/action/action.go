// Package action maps abstract machine actions to concrete OS operations.
// The executor is a stateless dispatch table: it tries the preferred
// mechanism for the platform and falls back to an equivalent command-line
// tool. Failures are reported to the caller, never fatal to a session.
package action

import (
	"fmt"
	"os/exec"
	"strings"
)

// Kind identifies one of the supported machine actions.
type Kind int

const (
	Shutdown Kind = iota
	Restart
	Suspend
	Sleep
	OpenExecutable
	Lock
)

// wire names as stored in the settings file and shown in logs.
var kindNames = map[Kind]string{
	Shutdown:       "Shutdown",
	Restart:        "Restart",
	Suspend:        "Suspend",
	Sleep:          "Sleep",
	OpenExecutable: "OpenExe",
	Lock:           "Lock",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Shutdown"
}

// ParseKind resolves a wire name case-insensitively.
func ParseKind(s string) (Kind, bool) {
	for kind, name := range kindNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return kind, true
		}
	}
	return Shutdown, false
}

// Execute performs the action. exePath is only meaningful for
// OpenExecutable. Unsupported kind/platform combinations fail without side
// effects.
func Execute(kind Kind, exePath string) error {
	if kind == OpenExecutable {
		if exePath == "" {
			return fmt.Errorf("action: OpenExe requires an executable path")
		}
		return launchDetached(exePath)
	}
	handler, ok := handlers[kind]
	if !ok {
		return fmt.Errorf("action: unsupported kind %q on this platform", kind)
	}
	return handler()
}

// launchDetached starts the program and releases it immediately so a hung
// child can never stall the session event loop.
func launchDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("action: start %s: %w", name, err)
	}
	return cmd.Process.Release()
}

// runFirst tries each command in order and succeeds on the first one that
// launches. The commands are fire-and-forget fallback chains, not pipelines.
func runFirst(commands ...[]string) error {
	var lastErr error
	for _, argv := range commands {
		if err := launchDetached(argv[0], argv[1:]...); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("action: no fallback command available")
	}
	return lastErr
}
