// Package settings persists the shared configuration file that both the
// interactive process and the background service read. The file is the
// single source of truth: in-memory copies are caches, invalidated by an
// explicit reload. Values are grouped by prefix (user, mqtt, options,
// service) plus an ordered actions list.
package settings

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/mpm-project/mpm/internal/action"
	"github.com/mpm-project/mpm/internal/config"
	"github.com/mpm-project/mpm/internal/secret"
)

const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 1883
	DefaultMessage      = "PRESS"
	DefaultReconnectSec = 5
	DefaultTimeoutSec   = 10
)

// Action is one configured automation: a topic suffix, the payload that
// triggers it, and the machine action to perform.
type Action struct {
	Name    string
	Message string
	ExePath string
	Type    action.Kind
}

// Settings is the in-memory snapshot of the shared configuration. Password
// holds the plaintext for the current process only; on disk the value lives
// under mqtt.passwordEnc.
type Settings struct {
	CustomID string

	Host     string
	Port     int
	Username string
	Password string

	PrintOnly         bool
	TimeoutSec        int
	AutoConnect       bool
	AutoReconnect     bool
	ReconnectSec      int
	StartWithWindows  bool
	StartMinimized    bool
	StartupPathLocked bool
	StartupPath       string

	ServiceUseOnly  bool
	StartPromptMode string
	StopPromptMode  string

	Actions []Action
}

// Defaults returns a settings snapshot with every default applied.
func Defaults() *Settings {
	return &Settings{
		Host:         DefaultHost,
		Port:         DefaultPort,
		TimeoutSec:   DefaultTimeoutSec,
		ReconnectSec: DefaultReconnectSec,
	}
}

// Store reads and writes the settings file, consulting the secret store for
// the broker password.
type Store struct {
	path    string
	secrets *secret.Store
}

// NewStore binds a settings file path to a secret store.
func NewStore(path string, secrets *secret.Store) *Store {
	return &Store{path: path, secrets: secrets}
}

// Path returns the settings file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads the whole file into a fresh snapshot. A missing file yields
// defaults. A legacy plaintext mqtt.password is migrated: re-encrypted,
// persisted under mqtt.passwordEnc, and the legacy key dropped. Repeated
// loads after migration are no-ops.
func (st *Store) Load() (*Settings, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", st.path, err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", st.path, err)
	}

	s, migrate := st.fromDoc(&doc)
	if migrate {
		if err := st.Save(s); err != nil {
			log.Printf("[Settings] could not persist password migration: %v", err)
		} else {
			log.Printf("[Settings] migrated legacy plaintext password to encrypted storage")
		}
	}
	return s, nil
}

// Save writes the whole snapshot atomically and relaxes the file mode so the
// other process can read it. The password is stored encrypted; the legacy
// plaintext key is never written back.
func (st *Store) Save(s *Settings) error {
	doc := st.toDoc(s)
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(st.path), ".settings.tmp.*")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("settings: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, st.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: replace %s: %w", st.path, err)
	}
	config.RelaxFile(st.path)
	return nil
}

// fileDoc is the on-disk shape. Groups are untyped maps so hand-edited
// files with quoted numbers or yes/no booleans still load.
type fileDoc struct {
	User    map[string]any   `yaml:"user"`
	MQTT    map[string]any   `yaml:"mqtt"`
	Options map[string]any   `yaml:"options"`
	Service map[string]any   `yaml:"service"`
	Actions []map[string]any `yaml:"actions"`
}

func (st *Store) fromDoc(doc *fileDoc) (*Settings, bool) {
	s := Defaults()

	s.CustomID = cast.ToString(doc.User["customId"])
	if v, ok := doc.MQTT["host"]; ok {
		s.Host = cast.ToString(v)
	}
	if v, ok := doc.MQTT["port"]; ok {
		if port := cast.ToInt(v); port > 0 {
			s.Port = port
		}
	}
	s.Username = cast.ToString(doc.MQTT["username"])

	migrate := false
	if enc := cast.ToString(doc.MQTT["passwordEnc"]); enc != "" && st.secrets != nil {
		s.Password = st.secrets.Decrypt(enc)
	}
	if s.Password == "" {
		if legacy := cast.ToString(doc.MQTT["password"]); legacy != "" {
			s.Password = legacy
			migrate = st.secrets != nil
		}
	} else if _, hasLegacy := doc.MQTT["password"]; hasLegacy {
		// Encrypted value wins, but the stale plaintext key must go.
		migrate = true
	}

	s.PrintOnly = cast.ToBool(doc.Options["printOnly"])
	if v, ok := doc.Options["timeoutSec"]; ok {
		s.TimeoutSec = cast.ToInt(v)
	}
	s.AutoConnect = cast.ToBool(doc.Options["autoConnect"])
	s.AutoReconnect = cast.ToBool(doc.Options["autoReconnect"])
	if v, ok := doc.Options["reconnectSec"]; ok {
		s.ReconnectSec = cast.ToInt(v)
	}
	if s.ReconnectSec < 1 {
		s.ReconnectSec = 1
	}
	s.StartWithWindows = cast.ToBool(doc.Options["startWithWindows"])
	s.StartMinimized = cast.ToBool(doc.Options["startMinimized"])
	s.StartupPathLocked = cast.ToBool(doc.Options["startupPathLocked"])
	s.StartupPath = cast.ToString(doc.Options["startupPath"])

	s.ServiceUseOnly = cast.ToBool(doc.Service["useOnly"])
	s.StartPromptMode = cast.ToString(doc.Service["startPromptMode"])
	s.StopPromptMode = cast.ToString(doc.Service["stopPromptMode"])

	for _, raw := range doc.Actions {
		a := Action{
			Name:    cast.ToString(raw["name"]),
			Message: cast.ToString(raw["message"]),
			ExePath: cast.ToString(raw["exePath"]),
		}
		if a.Name == "" {
			continue // invalid entry, dropped on load
		}
		if a.Message == "" {
			a.Message = DefaultMessage
		}
		kind, ok := action.ParseKind(cast.ToString(raw["type"]))
		if !ok {
			kind = action.Shutdown
		}
		a.Type = kind
		s.Actions = append(s.Actions, a)
	}

	return s, migrate
}

type persistAction struct {
	Name    string `yaml:"name"`
	Message string `yaml:"message"`
	ExePath string `yaml:"exePath,omitempty"`
	Type    string `yaml:"type"`
}

type persistDoc struct {
	User struct {
		CustomID string `yaml:"customId"`
	} `yaml:"user"`
	MQTT struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		Username    string `yaml:"username,omitempty"`
		PasswordEnc string `yaml:"passwordEnc,omitempty"`
	} `yaml:"mqtt"`
	Options struct {
		PrintOnly         bool   `yaml:"printOnly"`
		TimeoutSec        int    `yaml:"timeoutSec"`
		AutoConnect       bool   `yaml:"autoConnect"`
		AutoReconnect     bool   `yaml:"autoReconnect"`
		ReconnectSec      int    `yaml:"reconnectSec"`
		StartWithWindows  bool   `yaml:"startWithWindows"`
		StartMinimized    bool   `yaml:"startMinimized"`
		StartupPathLocked bool   `yaml:"startupPathLocked"`
		StartupPath       string `yaml:"startupPath,omitempty"`
	} `yaml:"options"`
	Service struct {
		UseOnly         bool   `yaml:"useOnly"`
		StartPromptMode string `yaml:"startPromptMode,omitempty"`
		StopPromptMode  string `yaml:"stopPromptMode,omitempty"`
	} `yaml:"service"`
	Actions []persistAction `yaml:"actions"`
}

func (st *Store) toDoc(s *Settings) *persistDoc {
	var doc persistDoc
	doc.User.CustomID = s.CustomID
	doc.MQTT.Host = s.Host
	doc.MQTT.Port = s.Port
	doc.MQTT.Username = s.Username
	if s.Password != "" && st.secrets != nil {
		doc.MQTT.PasswordEnc = st.secrets.Encrypt(s.Password)
	}
	doc.Options.PrintOnly = s.PrintOnly
	doc.Options.TimeoutSec = s.TimeoutSec
	doc.Options.AutoConnect = s.AutoConnect
	doc.Options.AutoReconnect = s.AutoReconnect
	doc.Options.ReconnectSec = s.ReconnectSec
	doc.Options.StartWithWindows = s.StartWithWindows
	doc.Options.StartMinimized = s.StartMinimized
	doc.Options.StartupPathLocked = s.StartupPathLocked
	doc.Options.StartupPath = s.StartupPath
	doc.Service.UseOnly = s.ServiceUseOnly
	doc.Service.StartPromptMode = s.StartPromptMode
	doc.Service.StopPromptMode = s.StopPromptMode
	for _, a := range s.Actions {
		doc.Actions = append(doc.Actions, persistAction{
			Name:    a.Name,
			Message: a.Message,
			ExePath: a.ExePath,
			Type:    a.Type.String(),
		})
	}
	return &doc
}
