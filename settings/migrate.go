package settings

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnsupportedVersion = errors.New("unsupported settings version")

// Migrate upgrades a settings blob written at version to the current
// snapshot. It is pure and total over every historical version:
//
//   - 0: {squareColor}
//   - 1: adds squareCount, squareStep, squareStepIncrement, squareRotation
//     and parallaxMultiplier
//   - 2: replaces squareColor with squareColorFamily and squareColorStep
//
// Fields missing from the blob take their default value. A version newer
// than CurrentVersion is rejected rather than guessed at.
func Migrate(version int, blob json.RawMessage) (Settings, error) {
	if version < 0 || version > CurrentVersion {
		return Settings{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	fields := map[string]json.RawMessage{}
	if len(blob) > 0 && string(blob) != "null" {
		if err := json.Unmarshal(blob, &fields); err != nil {
			return Settings{}, fmt.Errorf("failed to decode settings v%d: %w", version, err)
		}
	}

	if version < 2 {
		migrateColor(fields)
	}

	out := Defaults()
	normalized, err := json.Marshal(fields)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := json.Unmarshal(normalized, &out); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings v%d: %w", version, err)
	}

	if err := out.Validate(); err != nil {
		return Settings{}, err
	}
	return out, nil
}

// MigrateBlob is Migrate expressed over encoded blobs
func MigrateBlob(version int, blob json.RawMessage) (json.RawMessage, error) {
	s, err := Migrate(version, blob)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// migrateColor renames the single-value colour of v0 and v1 into a family
// and step pair. Colours outside the legacy palette fall back to the
// default family.
func migrateColor(fields map[string]json.RawMessage) {
	family := DefaultColorFamily
	if raw, ok := fields["squareColor"]; ok {
		var legacy string
		if json.Unmarshal(raw, &legacy) == nil && isLegacyColor(legacy) {
			family = legacy
		}
		delete(fields, "squareColor")
	}

	fields["squareColorFamily"], _ = json.Marshal(family)
	fields["squareColorStep"], _ = json.Marshal(DefaultColorStep)
}

func isLegacyColor(name string) bool {
	for _, c := range LegacyColors {
		if c == name {
			return true
		}
	}
	return false
}
