// Package settings persists the last used devices, gains and mutes as JSON.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var ErrSettingsIO = errors.New("settings i/o error")

// Settings is the persisted state of the control surface.
type Settings struct {
	VBInput  string  `json:"vb_input"`
	MicInput string  `json:"mic_input"`
	Output   string  `json:"output"`
	MicGain  float64 `json:"mic_gain"`
	VBGain   float64 `json:"vb_gain"`
	MicMuted bool    `json:"mic_muted"`
	VBMuted  bool    `json:"vb_muted"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		MicGain: 1.0,
		VBGain:  1.0,
	}
}

// Load reads settings from path. It always returns usable settings: a
// missing file yields the defaults with no error, and an unreadable or
// malformed file yields the defaults with an error wrapping ErrSettingsIO.
// Fields absent from the file keep their defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("no settings file found, using defaults", "path", path)
			return Default(), nil
		}
		return Default(), fmt.Errorf("%w: failed to read %s: %v", ErrSettingsIO, path, err)
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("%w: failed to parse %s: %v", ErrSettingsIO, path, err)
	}

	slog.Info("settings loaded", "path", path)
	return s, nil
}

// Save writes s to path, creating the parent directory if needed.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal settings: %v", ErrSettingsIO, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: failed to create %s: %v", ErrSettingsIO, dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrSettingsIO, path, err)
	}

	slog.Info("settings saved", "path", path)
	return nil
}
