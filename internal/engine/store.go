package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"firestige.xyz/sniffer/internal/filter"
)

// SettingsStore persists the control settings (selected device and filters)
// so they survive a daemon restart. Implementations must be safe for concurrent use.
type SettingsStore interface {
	// Save overwrites the persisted settings.
	Save(s Settings) error
	// Load returns the persisted settings, or an error satisfying
	// errors.Is(err, os.ErrNotExist) when nothing was saved yet.
	Load() (Settings, error)
}

// Settings is the on-disk wire format.
type Settings struct {
	Version string         `json:"version"`
	Device  string         `json:"device,omitempty"`
	Filters filter.Filters `json:"filters"`
	SavedAt time.Time      `json:"saved_at"`
}

const (
	settingsVersion  = "v1"
	settingsFileName = "settings.json"
)

// FileSettingsStore keeps the settings in a single JSON file. Writes go
// through a temp file and an atomic rename.
type FileSettingsStore struct {
	path string
}

// NewFileSettingsStore creates the store under dir, creating dir if needed.
func NewFileSettingsStore(dir string) (*FileSettingsStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("settings store: create directory %q: %w", dir, err)
	}
	return &FileSettingsStore{path: filepath.Join(dir, settingsFileName)}, nil
}

// Path returns the settings file location.
func (s *FileSettingsStore) Path() string {
	return s.path
}

// Save implements SettingsStore.
func (s *FileSettingsStore) Save(st Settings) error {
	if st.Version == "" {
		st.Version = settingsVersion
	}
	if st.SavedAt.IsZero() {
		st.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("settings store: marshal: %w", err)
	}

	// Unique temp file per save so concurrent saves never share a path.
	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), "."+settingsFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("settings store: create temp file: %w", err)
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("settings store: write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("settings store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("settings store: rename temp -> %q: %w", s.path, err)
	}

	slog.Debug("settings persisted", "device", st.Device, "filters", st.Filters.String())
	return nil
}

// Load implements SettingsStore.
func (s *FileSettingsStore) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, fmt.Errorf("settings store: %q not found: %w", s.path, os.ErrNotExist)
		}
		return Settings{}, fmt.Errorf("settings store: read %q: %w", s.path, err)
	}
	var st Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return Settings{}, fmt.Errorf("settings store: unmarshal %q: %w", s.path, err)
	}
	if st.Version != settingsVersion {
		return Settings{}, fmt.Errorf("settings store: unsupported version %q", st.Version)
	}
	return st, nil
}

// noopStore is a SettingsStore that does nothing, used when persistence is disabled.
type noopStore struct{}

func (noopStore) Save(_ Settings) error   { return nil }
func (noopStore) Load() (Settings, error) { return Settings{}, os.ErrNotExist }

// Ensure noopStore satisfies the SettingsStore interface at compile time.
var _ SettingsStore = noopStore{}
