// Package secret protects the broker password at rest. Values are sealed
// with AES-256-GCM under a machine-scoped key file shared by every local
// account, so the service (LocalSystem or root) can decrypt what an
// interactive user wrote, and vice versa.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/mpm-project/mpm/internal/config"
)

const keySize = 32 // AES-256

// Store seals and opens secret settings values with the machine key.
type Store struct {
	key []byte
}

// Open loads the machine key at keyPath, creating it on first use. The key
// file permissions are relaxed so both the service account and interactive
// users can read it.
func Open(keyPath string) (*Store, error) {
	key, err := loadKey(keyPath)
	if err != nil {
		return nil, err
	}
	if key == nil {
		key, err = createKey(keyPath)
		if err != nil {
			return nil, err
		}
	}
	return &Store{key: key}, nil
}

// Encrypt seals plaintext and returns base64(nonce|ciphertext) suitable for
// the text settings format. Empty input maps to empty output.
func (s *Store) Encrypt(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return ""
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return ""
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// Decrypt opens a stored value. Malformed or foreign-scoped input yields the
// empty string; callers interpret that as "no password", never as an error.
func (s *Store) Decrypt(stored string) string {
	if stored == "" {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return ""
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return ""
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}
	if len(data) < gcm.NonceSize() {
		return ""
	}
	plain, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return ""
	}
	return string(plain)
}

// loadKey reads an existing key file. Returns nil, nil when the file does
// not exist yet.
func loadKey(keyPath string) ([]byte, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("secret: read machine key: %w", err)
	}
	if len(data) != keySize {
		return nil, fmt.Errorf("secret: machine key at %s has invalid size %d (expected %d)", keyPath, len(data), keySize)
	}
	return data, nil
}

// createKey generates the machine key atomically: the key is written to a
// temp file and hard-linked into place. os.Link fails with EEXIST when
// another process created the key first, so exactly one key wins and the
// loser reads the winner's key. A torn key would make every stored password
// on the machine unreadable, hence the ceremony.
func createKey(keyPath string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("secret: generate machine key: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(keyPath), ".secret.key.tmp.*")
	if err != nil {
		return nil, fmt.Errorf("secret: create key temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(key); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("secret: write key temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("secret: close key temp file: %w", err)
	}

	if err := os.Link(tmpPath, keyPath); err != nil {
		os.Remove(tmpPath)
		if os.IsExist(err) {
			raceKey, loadErr := loadKey(keyPath)
			if loadErr != nil {
				return nil, loadErr
			}
			if raceKey == nil {
				return nil, fmt.Errorf("secret: machine key %s vanished after creation race", keyPath)
			}
			return raceKey, nil
		}
		return nil, fmt.Errorf("secret: link machine key: %w", err)
	}
	os.Remove(tmpPath)

	config.RelaxFile(keyPath)
	log.Printf("[Secret] created machine key at %s", keyPath)
	return key, nil
}
