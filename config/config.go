package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Everything has a workable default
// so that a missing config file still produces a runnable player.
type Config struct {
	NFC            NFCConfig            `yaml:"nfc"`
	Audio          AudioConfig          `yaml:"audio"`
	MPD            MPDConfig            `yaml:"mpd"`
	Audiobookshelf AudiobookshelfConfig `yaml:"audiobookshelf"`
	// CardsFile is the human editable card registry.
	CardsFile string `yaml:"cards_file"`
	// StateFile is the database holding volume and playback positions.
	StateFile string `yaml:"state_file"`
}

type NFCConfig struct {
	// ResetPin and IRQPin are the BCM pin numbers wired to the RC522.
	ResetPin int `yaml:"reset_pin"`
	IRQPin   int `yaml:"irq_pin"`
	// DebounceWindowMs is how long repeat taps of the same card are
	// coalesced into one.
	DebounceWindowMs int `yaml:"debounce_window_ms"`
}

type AudioConfig struct {
	// Backend selects the player adapter: "mpd" or "upnp".
	Backend string `yaml:"backend"`
	// Renderer is the friendly name of the UPnP renderer to control. Only
	// used by the upnp backend; empty picks the first one found.
	Renderer string `yaml:"renderer"`
	// DefaultVolume is used when the state store has no stored level yet.
	DefaultVolume int `yaml:"default_volume"`
	// StartTimeoutMs bounds how long a tap may take to produce audio.
	StartTimeoutMs int `yaml:"start_timeout_ms"`
	// ReconnectAttempts and ReconnectDelayMs bound stream recovery.
	ReconnectAttempts int `yaml:"reconnect_attempts"`
	ReconnectDelayMs  int `yaml:"reconnect_delay_ms"`
}

type MPDConfig struct {
	// Servers are the candidate addresses, probed at startup; the fastest
	// responder wins.
	Servers []string `yaml:"servers"`
	// TimeoutMs bounds every single backend call.
	TimeoutMs int `yaml:"timeout_ms"`
}

// AudiobookshelfConfig carries the catalog endpoint and credentials. The
// token never belongs in the config file; it is taken from the
// environment.
type AudiobookshelfConfig struct {
	BaseURL   string `yaml:"base_url" env:"AUDIOBOOKSHELF_BASE_URL"`
	Token     string `yaml:"-" env:"AUDIOBOOKSHELF_TOKEN"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".nfc-radio")
	return Config{
		NFC: NFCConfig{
			ResetPin:         22,
			IRQPin:           18,
			DebounceWindowMs: 500,
		},
		Audio: AudioConfig{
			Backend:           "mpd",
			DefaultVolume:     50,
			StartTimeoutMs:    5000,
			ReconnectAttempts: 3,
			ReconnectDelayMs:  5000,
		},
		MPD: MPDConfig{
			Servers:   []string{"localhost:6600"},
			TimeoutMs: 5000,
		},
		Audiobookshelf: AudiobookshelfConfig{
			TimeoutMs: 5000,
		},
		CardsFile: filepath.Join(base, "cards.yaml"),
		StateFile: filepath.Join(base, "state.db"),
	}
}

// Load reads the config file at path, falling back to defaults for a
// missing file, and overlays credentials from the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Audio.Backend {
	case "mpd", "upnp":
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}
	if len(c.MPD.Servers) == 0 && c.Audio.Backend == "mpd" {
		return fmt.Errorf("no MPD servers configured")
	}
	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 100 {
		return fmt.Errorf("default volume %v out of range 0-100", c.Audio.DefaultVolume)
	}
	return nil
}
