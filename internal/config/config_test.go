package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "server:\n  port: 9001\nwhisper:\n  model: small\n  formats:\n    - vtt\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "small", cfg.Whisper.Model)
	assert.Equal(t, []string{"vtt"}, cfg.Whisper.Formats)
	// Untouched keys keep their defaults.
	assert.Equal(t, "local", cfg.Whisper.Provider)
	assert.True(t, cfg.Watcher.MoveCompleted)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "large", cfg.Whisper.Model)
	assert.Equal(t, []string{"txt", "srt"}, cfg.Whisper.Formats)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AUDIOSCRIBE_SERVER_PORT", "7777")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestSettleInterval(t *testing.T) {
	assert.Equal(t, 2*time.Second, WatcherConfig{}.SettleInterval())
	assert.Equal(t, 500*time.Millisecond, WatcherConfig{SettleMs: 500}.SettleInterval())
}
