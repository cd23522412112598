//go:build windows

package svcctl

import (
	"fmt"
	"os/exec"
	"strings"
)

func install(cfg Config) error {
	description := cfg.Description
	if description == "" {
		description = "MQTT Power Manager service"
	}
	// sc.exe wants a space after each key= and the whole command quoted.
	binPath := fmt.Sprintf("\"%s\" run", cfg.ExePath)
	if err := sc("create", ServiceName, "binPath=", binPath, "start=", "auto"); err != nil {
		return err
	}
	sc("description", ServiceName, description) // cosmetic; ignore failure
	return sc("start", ServiceName)
}

func uninstall() error {
	sc("stop", ServiceName) // best effort; may already be stopped
	return sc("delete", ServiceName)
}

func start() error {
	return sc("start", ServiceName)
}

func stop() error {
	return sc("stop", ServiceName)
}

func isActive() bool {
	out, err := exec.Command("sc.exe", "query", ServiceName).Output()
	return err == nil && strings.Contains(string(out), "RUNNING")
}

func sc(args ...string) error {
	out, err := exec.Command("sc.exe", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("sc %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
