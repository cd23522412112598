//go:build linux

package svcctl

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const unitPath = "/etc/systemd/system/" + ServiceName + ".service"

const unitTemplate = `[Unit]
Description=%s
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s run
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

func install(cfg Config) error {
	description := cfg.Description
	if description == "" {
		description = "MQTT Power Manager service"
	}
	unit := fmt.Sprintf(unitTemplate, description, cfg.ExePath)
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", ServiceName)
}

func uninstall() error {
	systemctl("disable", "--now", ServiceName) // best effort; may not be enabled
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	return systemctl("daemon-reload")
}

func start() error {
	return systemctl("start", ServiceName)
}

func stop() error {
	return systemctl("stop", ServiceName)
}

func isActive() bool {
	out, err := exec.Command("systemctl", "is-active", ServiceName).Output()
	return err == nil && strings.TrimSpace(string(out)) == "active"
}

func systemctl(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
