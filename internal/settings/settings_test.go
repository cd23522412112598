package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mpm-project/mpm/internal/action"
	"github.com/mpm-project/mpm/internal/secret"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	secrets, err := secret.Open(filepath.Join(dir, ".secret.key"))
	if err != nil {
		t.Fatalf("secret.Open: %v", err)
	}
	return NewStore(filepath.Join(dir, "settings.yaml"), secrets)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	st := newTestStore(t)
	s, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Host != DefaultHost || s.Port != DefaultPort {
		t.Errorf("broker defaults: %s:%d", s.Host, s.Port)
	}
	if s.ReconnectSec != DefaultReconnectSec || s.TimeoutSec != DefaultTimeoutSec {
		t.Errorf("timer defaults: reconnect=%d timeout=%d", s.ReconnectSec, s.TimeoutSec)
	}
	if len(s.Actions) != 0 {
		t.Errorf("unexpected actions: %v", s.Actions)
	}
}

func TestActionListRoundTripPreservesOrder(t *testing.T) {
	st := newTestStore(t)
	in := Defaults()
	in.CustomID = "bob"
	in.Actions = []Action{
		{Name: "tv", Message: "PRESS", Type: action.Shutdown},
		{Name: "lamp", Message: "go", Type: action.Lock},
		{Name: "tv", Message: "PRESS", Type: action.Restart}, // duplicate name kept
		{Name: "run", Message: "PRESS", ExePath: "/usr/bin/true", Type: action.OpenExecutable},
	}
	if err := st.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Actions) != len(in.Actions) {
		t.Fatalf("got %d actions, want %d", len(out.Actions), len(in.Actions))
	}
	for i := range in.Actions {
		if out.Actions[i] != in.Actions[i] {
			t.Errorf("action %d: got %+v, want %+v", i, out.Actions[i], in.Actions[i])
		}
	}
}

func TestLoadDropsEmptyNameEntries(t *testing.T) {
	st := newTestStore(t)
	content := `
actions:
  - name: tv
    message: PRESS
    type: Shutdown
  - name: ""
    message: PRESS
    type: Lock
  - name: lamp
    type: Lock
`
	if err := os.WriteFile(st.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Actions) != 2 {
		t.Fatalf("got %d actions, want 2 (empty name dropped)", len(s.Actions))
	}
	if s.Actions[1].Message != DefaultMessage {
		t.Errorf("missing message should default to %q, got %q", DefaultMessage, s.Actions[1].Message)
	}
}

func TestLoadToleratesHandEditedScalars(t *testing.T) {
	st := newTestStore(t)
	content := `
user:
  customId: alice
mqtt:
  host: broker.local
  port: "8883"
options:
  printOnly: "true"
  reconnectSec: "0"
`
	if err := os.WriteFile(st.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Port != 8883 {
		t.Errorf("quoted port: got %d", s.Port)
	}
	if !s.PrintOnly {
		t.Error("quoted bool should coerce to true")
	}
	if s.ReconnectSec != 1 {
		t.Errorf("reconnectSec below minimum should clamp to 1, got %d", s.ReconnectSec)
	}
}

func TestUnknownActionTypeFallsBackToShutdown(t *testing.T) {
	st := newTestStore(t)
	content := "actions:\n  - name: x\n    type: Hibernate\n"
	if err := os.WriteFile(st.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.Actions[0].Type != action.Shutdown {
		t.Errorf("unknown type should fall back to Shutdown, got %v", s.Actions[0].Type)
	}
}

func TestLegacyPasswordMigration(t *testing.T) {
	st := newTestStore(t)
	content := "mqtt:\n  host: h\n  password: hunter2\n"
	if err := os.WriteFile(st.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Password != "hunter2" {
		t.Fatalf("legacy password not loaded, got %q", s.Password)
	}

	// The migration rewrote the file: plaintext gone, encrypted form present.
	raw, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "hunter2") {
		t.Fatal("plaintext password still on disk after migration")
	}
	if !strings.Contains(string(raw), "passwordEnc") {
		t.Fatal("no encrypted password on disk after migration")
	}

	// Idempotent: a second load sees the encrypted value and changes nothing.
	before, _ := os.ReadFile(st.Path())
	again, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if again.Password != "hunter2" {
		t.Fatalf("password lost after migration, got %q", again.Password)
	}
	after, _ := os.ReadFile(st.Path())
	if string(before) != string(after) {
		t.Fatal("second load rewrote the file; migration is not idempotent")
	}
}

func TestSaveNeverWritesPlaintextPassword(t *testing.T) {
	st := newTestStore(t)
	s := Defaults()
	s.Password = "topsecret"
	if err := st.Save(s); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "topsecret") {
		t.Fatal("plaintext password written to disk")
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Password != "topsecret" {
		t.Fatalf("password did not survive round trip, got %q", loaded.Password)
	}
}
