package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	want := Settings{
		VBInput:  "CABLE Output",
		MicInput: "Microphone (USB)",
		Output:   "CABLE Input",
		MicGain:  1.37,
		VBGain:   2.5,
		MicMuted: true,
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.VBInput, got.VBInput)
	assert.Equal(t, want.MicInput, got.MicInput)
	assert.Equal(t, want.Output, got.Output)
	assert.InDelta(t, want.MicGain, got.MicGain, 1e-9)
	assert.InDelta(t, want.VBGain, got.VBGain, 1e-9)
	assert.Equal(t, want.MicMuted, got.MicMuted)
	assert.Equal(t, want.VBMuted, got.VBMuted)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestLoadMalformedFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	got, err := Load(path)
	assert.ErrorIs(t, err, ErrSettingsIO)
	assert.Equal(t, Default(), got)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"output": "Speakers", "vb_muted": true}`), 0644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Settings{Output: "Speakers", VBMuted: true, MicGain: 1, VBGain: 1}, got)
}

func TestFileUsesSnakeCaseKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, Save(path, Default()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{"vb_input", "mic_input", "output", "mic_gain", "vb_gain", "mic_muted", "vb_muted"} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}
}

func TestSaveToUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := Save(filepath.Join(blocker, "settings.json"), Default())
	assert.ErrorIs(t, err, ErrSettingsIO)
}
