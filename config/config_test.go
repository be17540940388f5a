package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mpd", cfg.Audio.Backend)
	assert.Equal(t, 500, cfg.NFC.DebounceWindowMs)
	assert.Equal(t, 3, cfg.Audio.ReconnectAttempts)
	assert.Equal(t, 5000, cfg.Audio.ReconnectDelayMs)
	assert.Equal(t, []string{"localhost:6600"}, cfg.MPD.Servers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `nfc:
  reset_pin: 25
  debounce_window_ms: 750
audio:
  backend: upnp
  renderer: Kitchen
  default_volume: 30
mpd:
  servers:
    - radio:6600
    - localhost:6600
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.NFC.ResetPin)
	assert.Equal(t, 750, cfg.NFC.DebounceWindowMs)
	assert.Equal(t, "upnp", cfg.Audio.Backend)
	assert.Equal(t, "Kitchen", cfg.Audio.Renderer)
	assert.Equal(t, 30, cfg.Audio.DefaultVolume)
	assert.Equal(t, []string{"radio:6600", "localhost:6600"}, cfg.MPD.Servers)
	// untouched sections keep their defaults
	assert.Equal(t, 5000, cfg.Audio.StartTimeoutMs)
}

func TestEnvironmentOverlay(t *testing.T) {
	t.Setenv("AUDIOBOOKSHELF_BASE_URL", "http://books.local:13378")
	t.Setenv("AUDIOBOOKSHELF_TOKEN", "sekrit")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://books.local:13378", cfg.Audiobookshelf.BaseURL)
	assert.Equal(t, "sekrit", cfg.Audiobookshelf.Token)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mangle  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bogus backend", func(c *Config) { c.Audio.Backend = "gramophone" }, true},
		{"no mpd servers", func(c *Config) { c.MPD.Servers = nil }, true},
		{"volume out of range", func(c *Config) { c.Audio.DefaultVolume = 250 }, true},
		{"no servers but upnp", func(c *Config) { c.MPD.Servers = nil; c.Audio.Backend = "upnp" }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mangle(&cfg)
			err := cfg.validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
