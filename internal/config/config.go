// Package config loads the engine's TOML configuration file, the way
// navitone-cli's internal/config package loads its own: struct tags,
// toml.DecodeFile, and defaults applied before decode.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration for the playback core.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Audio     AudioConfig     `toml:"audio"`
	Plugins   PluginsConfig   `toml:"plugins"`
	MPRIS     MPRISConfig     `toml:"mpris"`
	Log       LogConfig       `toml:"log"`
	Providers ProvidersConfig `toml:"providers"`
}

// StorageConfig points at the badger KV database backing the player store
// and plugin table.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// AudioConfig carries output and default-volume settings. NewApplication
// does not read them: the audio backend's output format is fixed in code
// (44100 Hz, stereo) and the player store takes its volume and volume mode
// from its own persisted state.
type AudioConfig struct {
	SampleRate    int     `toml:"sample_rate"`
	ChannelCount  int     `toml:"channel_count"`
	DefaultVolume float64 `toml:"default_volume"` // raw 0..100
	VolumeMode    string  `toml:"volume_mode"`     // "single", "persist_separate", "persist_clamp"
}

// PluginsConfig locates the install layout described in spec.md §4.8.
type PluginsConfig struct {
	Root    string   `toml:"root"`
	Enabled []string `toml:"enabled"`
}

// MPRISConfig toggles the optional OS media-session sink.
type MPRISConfig struct {
	Enabled  bool   `toml:"enabled"`
	BusName  string `toml:"bus_name"`
	Identity string `toml:"identity"`
}

// ProvidersConfig configures the built-in provider plugins the registry
// installs at startup.
type ProvidersConfig struct {
	Navidrome NavidromeConfig `toml:"navidrome"`
	Bilibili  BilibiliConfig  `toml:"bilibili"`
}

// NavidromeConfig carries the connection details for the built-in Subsonic
// provider, mirroring navitone-cli's NavidromeConfig section.
type NavidromeConfig struct {
	Enabled   bool   `toml:"enabled"`
	ServerURL string `toml:"server_url"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// BilibiliConfig toggles the built-in Bilibili audio provider (spec.md §1's
// "third-party provider URLs" example). It has no credentials because the
// provider only calls Bilibili's public, unauthenticated endpoints.
type BilibiliConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig mirrors internal/logger.Config for TOML round-tripping.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a configuration with sane defaults, the way
// navitone-cli's config.DefaultConfig does.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Audio: AudioConfig{
			SampleRate:    44100,
			ChannelCount:  2,
			DefaultVolume: 100,
			VolumeMode:    "single",
		},
		Plugins: PluginsConfig{
			Root:    filepath.Join(defaultDataDir(), "plugins"),
			Enabled: nil,
		},
		Providers: ProvidersConfig{
			Bilibili: BilibiliConfig{Enabled: false},
		},
		MPRIS: MPRISConfig{
			Enabled:  true,
			BusName:  "org.mpris.MediaPlayer2.gotune",
			Identity: "GoTune",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gotune-core"
	}
	return filepath.Join(dir, "gotune-core")
}

// Path returns the default config file location, creating its parent
// directory if necessary.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	root := filepath.Join(dir, "gotune-core")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return filepath.Join(root, "config.toml"), nil
}

// Load reads the config file at path, applying defaults first so a
// partially-specified file only overrides what it sets. If path does not
// exist, the defaults are written there and returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in TOML form.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
