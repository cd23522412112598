package ipcauth

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrCreateGeneratesUrlSafeToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc_token")
	token, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if token == "" {
		t.Fatal("token is empty")
	}
	if strings.ContainsAny(token, "+/=\n ") {
		t.Fatalf("token is not URL-safe unpadded: %q", token)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("token has %d bytes of entropy, want 32", len(raw))
	}
}

func TestLoadOrCreateIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc_token")
	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("token changed between loads: %q vs %q", first, second)
	}
}

func TestLoadTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc_token")
	if err := os.WriteFile(path, []byte("  tok-123\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	token, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if token != "tok-123" {
		t.Fatalf("Load = %q", token)
	}
}

func TestLoadMissingFileIsEmptyNotError(t *testing.T) {
	token, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing token file must not error: %v", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty", token)
	}
}
