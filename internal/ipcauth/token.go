// Package ipcauth manages the shared secret that authenticates local
// control-channel requests. The token lives next to the settings file with
// permissions relaxed to all local authenticated accounts, so the GUI
// (running as a normal user) can read a token written by the service
// (running as a system account), and vice versa.
package ipcauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mpm-project/mpm/internal/config"
)

const tokenBytes = 32 // 256 bits

// LoadOrCreate returns the IPC token at path, generating and persisting a
// fresh one when none exists. Generation failure is startup-fatal for the
// IPC server; clients treat a missing token as "service unavailable".
func LoadOrCreate(path string) (string, error) {
	token, err := Load(path)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("ipcauth: generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)

	if err := os.WriteFile(path, []byte(token), 0o644); err != nil {
		return "", fmt.Errorf("ipcauth: write token file: %w", err)
	}
	config.RelaxFile(path)
	return token, nil
}

// Load reads the token at path, trimmed. A missing file yields "" without
// an error.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("ipcauth: read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
