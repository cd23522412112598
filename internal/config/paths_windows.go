//go:build windows

package config

import (
	"os"
	"os/exec"
	"path/filepath"
)

func candidateDirs() []string {
	var dirs []string
	if pd := os.Getenv("ProgramData"); pd != "" {
		dirs = append(dirs, filepath.Join(pd, "MPM"))
	} else {
		dirs = append(dirs, `C:\ProgramData\MPM`)
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(cfg, "MPM"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "MPM"))
	}
	return dirs
}

// relaxDir grants Authenticated Users modify access so the GUI (user
// account) and the service (LocalSystem) can share the directory.
func relaxDir(dir string) error {
	return grantAuthenticatedUsers(dir, "(OI)(CI)M")
}

func relaxFile(path string) error {
	return grantAuthenticatedUsers(path, "M")
}

// grantAuthenticatedUsers adjusts the DACL via icacls. SID *AU-1-5-11 is the
// well-known Authenticated Users group, avoiding localized group names.
func grantAuthenticatedUsers(path, rights string) error {
	cmd := exec.Command("icacls", path, "/grant", "*S-1-5-11:"+rights)
	return cmd.Run()
}

func endpointIn(string) string {
	return PipeName
}
