package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// State is the live settings snapshot and theme of one widget instance.
// Every change is validated and, when a Store is attached, persisted.
type State struct {
	mu       sync.RWMutex
	settings Settings
	isDark   bool
	store    *Store
	logger   *slog.Logger
}

// NewState creates a state from the defaults and a light theme
func NewState() *State {
	return &State{settings: Defaults(), logger: slog.Default()}
}

// LoadState restores settings and theme from store. darkFallback is the
// theme used when none was persisted, like the OS colour-scheme preference.
func LoadState(store *Store, darkFallback bool) (*State, error) {
	settings, err := store.Load()
	if err != nil {
		return nil, err
	}
	isDark, err := store.LoadTheme(darkFallback)
	if err != nil {
		return nil, err
	}
	return &State{
		settings: settings,
		isDark:   isDark,
		store:    store,
		logger:   store.logger,
	}, nil
}

// Snapshot returns the current settings and theme
func (s *State) Snapshot() (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, s.isDark
}

// Settings returns the current settings
func (s *State) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// IsDark reports whether the dark theme is on
func (s *State) IsDark() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDark
}

// Replace validates and installs a full settings snapshot
func (s *State) Replace(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = next
	return s.persistSettingsLocked()
}

// UpdateSetting sets one field by its JSON name, e.g. "squareCount"
func (s *State) UpdateSetting(name string, value json.RawMessage) error {
	return s.Update(map[string]json.RawMessage{name: value})
}

// Update sets several fields by JSON name. Either every field is applied or,
// on the first unknown name or invalid value, none is.
func (s *State) Update(changes map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(s.settings)
	if err != nil {
		return err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return err
	}
	for name, value := range changes {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%w: unknown setting %q", ErrInvalidSettings, name)
		}
		fields[name] = value
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	var next Settings
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	s.settings = next
	return s.persistSettingsLocked()
}

// ResetToDefaults restores the default settings; the theme is kept
func (s *State) ResetToDefaults() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = Defaults()
	return s.persistSettingsLocked()
}

// SetDark sets the theme
func (s *State) SetDark(isDark bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isDark = isDark
	return s.persistThemeLocked()
}

// ToggleTheme flips the theme and returns the new value
func (s *State) ToggleTheme() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isDark = !s.isDark
	return s.isDark, s.persistThemeLocked()
}

// ApplyProfile overwrites settings and theme with a loaded profile
func (s *State) ApplyProfile(next Settings, isDark bool) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = next
	s.isDark = isDark
	if err := s.persistSettingsLocked(); err != nil {
		return err
	}
	return s.persistThemeLocked()
}

func (s *State) persistSettingsLocked() error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(s.settings)
}

func (s *State) persistThemeLocked() error {
	if s.store == nil {
		return nil
	}
	return s.store.SaveTheme(s.isDark)
}
