// Package config resolves the shared on-disk locations used by both the
// interactive mpm process and the mpmd background service. The settings
// directory must be reachable before any interactive login (the service
// starts at boot) and writable by ordinary user accounts afterwards, so
// resolution walks a fallback chain and relaxes permissions best-effort.
package config

import (
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	// PipeName is the well-known IPC endpoint on Windows.
	PipeName = `\\.\pipe\MPMServiceIpc`

	// SocketName is the IPC socket file name on Unix, created inside
	// the shared settings directory.
	SocketName = "mpmd.sock"

	settingsFileName = "settings.yaml"
	tokenFileName    = "ipc_token"
	keyFileName      = ".secret.key"
	pidFileName      = "mpmd.pid"
)

// Paths groups every shared file location for one machine.
type Paths struct {
	Dir          string // shared settings directory
	SettingsFile string // settings.yaml
	TokenFile    string // IPC authentication token
	KeyFile      string // machine-scoped secret key
	PIDFile      string // daemon pid file
	Endpoint     string // IPC endpoint (socket path or pipe name)
}

var (
	sharedOnce sync.Once
	sharedDir  string
	sharedErr  error
)

// Shared resolves the shared settings directory once per process and returns
// the derived paths. An error here means no writable location exists at all,
// which callers treat as startup-fatal.
func Shared() (Paths, error) {
	sharedOnce.Do(func() {
		sharedDir, sharedErr = resolveSharedDir(candidateDirs())
	})
	if sharedErr != nil {
		return Paths{}, sharedErr
	}
	return pathsIn(sharedDir), nil
}

func pathsIn(dir string) Paths {
	return Paths{
		Dir:          dir,
		SettingsFile: filepath.Join(dir, settingsFileName),
		TokenFile:    filepath.Join(dir, tokenFileName),
		KeyFile:      filepath.Join(dir, keyFileName),
		PIDFile:      filepath.Join(dir, pidFileName),
		Endpoint:     endpointIn(dir),
	}
}

// resolveSharedDir returns the first candidate that can be created and
// written to. Each winner gets its permissions relaxed so that both the
// service account and interactive users can read and write it.
func resolveSharedDir(candidates []string) (string, error) {
	var lastErr error
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			lastErr = err
			continue
		}
		if !isWritable(dir) {
			continue
		}
		if err := relaxDir(dir); err != nil {
			log.Printf("[Config] could not relax permissions on %s: %v", dir, err)
		}
		return dir, nil
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return "", lastErr
}

func isWritable(dir string) bool {
	probe := filepath.Join(dir, ".mpm-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// RelaxFile widens the mode of a shared file so a lower-privileged reader can
// use material written by the service account (and vice versa). Failures are
// non-fatal; the file stays usable for the writer.
func RelaxFile(path string) {
	if err := relaxFile(path); err != nil {
		log.Printf("[Config] could not relax permissions on %s: %v", path, err)
	}
}
