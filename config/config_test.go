package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LoadConfig looks for .env in the working directory, so every test runs in
// a fresh one.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := chdirTemp(t)

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.LogFile)
	assert.Equal(t, "settings.json", cfg.SettingsFile)
	assert.Equal(t, BackendPortaudio, cfg.Backend)
	assert.Equal(t, 10, cfg.BufferDepth)
	assert.Empty(t, cfg.FileInputs)
	assert.False(t, cfg.FileLoop)
}

func TestLoadConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
loglevel: debug
backend: file
bufferdepth: 4
file:
  loop: true
  inputs:
    cable: vb.wav
    mic: mic.mp3
  outputs:
    recording: out.wav
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, 4, cfg.BufferDepth)
	assert.True(t, cfg.FileLoop)
	assert.Equal(t, map[string]string{"cable": "vb.wav", "mic": "mic.mp3"}, cfg.FileInputs)
	assert.Equal(t, map[string]string{"recording": "out.wav"}, cfg.FileOutputs)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JOYNER_LOGLEVEL", "warn")
	t.Setenv("JOYNER_SETTINGSFILE", "/tmp/joyner/settings.json")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/tmp/joyner/settings.json", cfg.SettingsFile)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JOYNER_LOGFILE=logs/joyner.log\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("JOYNER_LOGFILE") })

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "logs/joyner.log", cfg.LogFile)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JOYNER_BACKEND", "jack")

	_, err := LoadConfig("")
	assert.Error(t, err)
}
