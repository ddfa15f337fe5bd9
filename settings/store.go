package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	// BlobKey is the key of the persisted settings blob
	BlobKey = "eth-checksum-settings"

	// ThemeKey holds "dark" or "light", separately from the settings blob
	ThemeKey = "theme"
)

// persisted is the on-disk wrapper of the settings blob
type persisted struct {
	State struct {
		Settings json.RawMessage `json:"settings"`
	} `json:"state"`
	Version int `json:"version"`
}

// Store persists settings and theme in a KV
type Store struct {
	kv     KV
	logger *slog.Logger
}

// NewStore creates a store over kv
func NewStore(kv KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load reads the persisted settings, migrating older blobs forward and
// writing the upgraded blob back. A missing blob yields the defaults.
func (s *Store) Load() (Settings, error) {
	raw, ok, err := s.kv.Get(BlobKey)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	if !ok {
		return Defaults(), nil
	}

	var blob persisted
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings blob: %w", err)
	}

	settings, err := Migrate(blob.Version, blob.State.Settings)
	if err != nil {
		return Settings{}, err
	}

	if blob.Version < CurrentVersion {
		s.logger.Info("settings migrated", "from", blob.Version, "to", CurrentVersion)
		if err := s.Save(settings); err != nil {
			return Settings{}, err
		}
	}
	return settings, nil
}

// Save writes settings at the current version
func (s *Store) Save(settings Settings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	var blob persisted
	blob.State.Settings = encoded
	blob.Version = CurrentVersion

	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to encode settings blob: %w", err)
	}
	if err := s.kv.Set(BlobKey, raw); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// LoadTheme returns the persisted theme, or fallback when none is stored
func (s *Store) LoadTheme(fallback bool) (bool, error) {
	raw, ok, err := s.kv.Get(ThemeKey)
	if err != nil {
		return fallback, fmt.Errorf("failed to read theme: %w", err)
	}
	if !ok || len(raw) == 0 {
		return fallback, nil
	}
	return string(raw) == "dark", nil
}

// SaveTheme persists the theme
func (s *Store) SaveTheme(isDark bool) error {
	value := "light"
	if isDark {
		value = "dark"
	}
	return s.kv.Set(ThemeKey, []byte(value))
}
