//go:build !windows

package config

import (
	"os"
	"os/user"
	"path/filepath"
)

// candidateDirs lists settings directories from most to least preferred:
// a machine-wide location available before login, the active interactive
// user's config dir (resolved even when the caller runs as root), the
// generic per-user config dir, and finally the home directory.
func candidateDirs() []string {
	dirs := []string{"/var/lib/mpm"}

	if home := interactiveUserHome(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "mpm"))
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(cfg, "mpm"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".mpm"))
	}
	return dirs
}

// interactiveUserHome resolves the logged-in user's home when the process
// itself runs under a different account (root service started via sudo or
// a login manager). Empty when no interactive user can be determined.
func interactiveUserHome() string {
	if os.Geteuid() != 0 {
		return ""
	}
	name := os.Getenv("SUDO_USER")
	if name == "" || name == "root" {
		return ""
	}
	u, err := user.Lookup(name)
	if err != nil {
		return ""
	}
	return u.HomeDir
}

func relaxDir(dir string) error {
	return os.Chmod(dir, 0o777)
}

func relaxFile(path string) error {
	return os.Chmod(path, 0o666)
}

func endpointIn(dir string) string {
	return filepath.Join(dir, SocketName)
}
