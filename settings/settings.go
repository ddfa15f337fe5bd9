// Package settings holds the widget's local settings snapshot: defaults,
// the colour palette, forward-only migration of persisted blobs and the
// theme preference.
package settings

import (
	"errors"
	"fmt"
	"math"
)

// CurrentVersion is the version of the persisted settings blob this
// package writes
const CurrentVersion = 2

// Limits accepted by Validate
const (
	MaxSquareCount = 500
	maxMagnitude   = 100
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the snapshot of user-tunable widget settings
type Settings struct {
	SquareCount         int     `json:"squareCount"`
	SquareStep          float64 `json:"squareStep"`
	SquareStepIncrement float64 `json:"squareStepIncrement"`
	SquareRotation      float64 `json:"squareRotation"`
	ParallaxMultiplier  float64 `json:"parallaxMultiplier"`
	SquareColorFamily   string  `json:"squareColorFamily"`
	SquareColorStep     int     `json:"squareColorStep"`
}

// Defaults returns the settings a fresh install starts with
func Defaults() Settings {
	return Settings{
		SquareCount:         50,
		SquareStep:          5,
		SquareStepIncrement: 0.1,
		SquareRotation:      1,
		ParallaxMultiplier:  2,
		SquareColorFamily:   DefaultColorFamily,
		SquareColorStep:     DefaultColorStep,
	}
}

// Validate reports the first field outside its accepted range
func (s Settings) Validate() error {
	if s.SquareCount < 0 || s.SquareCount > MaxSquareCount {
		return fmt.Errorf("%w: squareCount %d out of range [0, %d]", ErrInvalidSettings, s.SquareCount, MaxSquareCount)
	}

	for _, f := range []struct {
		name     string
		value    float64
		negative bool
	}{
		{"squareStep", s.SquareStep, false},
		{"squareStepIncrement", s.SquareStepIncrement, false},
		{"squareRotation", s.SquareRotation, true},
		{"parallaxMultiplier", s.ParallaxMultiplier, true},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || math.Abs(f.value) > maxMagnitude {
			return fmt.Errorf("%w: %s %v out of range", ErrInvalidSettings, f.name, f.value)
		}
		if !f.negative && f.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidSettings, f.name)
		}
	}

	if !IsColorFamily(s.SquareColorFamily) {
		return fmt.Errorf("%w: unknown colour family %q", ErrInvalidSettings, s.SquareColorFamily)
	}
	if !IsColorStep(s.SquareColorStep) {
		return fmt.Errorf("%w: unknown colour step %d", ErrInvalidSettings, s.SquareColorStep)
	}
	return nil
}
