// Package config loads the collision server's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Listen         string        `yaml:"listen"`
	TickRate       int           `yaml:"tick_rate"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	GridCellSize   float64       `yaml:"grid_cell_size"`
	Database       string        `yaml:"database"`
	PresetsDir     string        `yaml:"presets_dir"`
	Logging        LoggingConfig `yaml:"logging"`
	Peer           PeerConfig    `yaml:"peer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PeerConfig struct {
	MaxPeers      int `yaml:"max_peers"`
	MaxPerIP      int `yaml:"max_per_ip"`
	RateLimit     int `yaml:"rate_limit"`
	InboxCapacity int `yaml:"inbox_capacity"`
}

// Default returns the configuration used for missing keys.
func Default() *Config {
	return &Config{
		Listen:         ":8090",
		TickRate:       60,
		BufferCapacity: 16,
		GridCellSize:   4,
		Database:       "collision.db",
		PresetsDir:     "presets",
		Logging:        LoggingConfig{Level: "info", Format: "console"},
		Peer: PeerConfig{
			MaxPeers:      32,
			MaxPerIP:      4,
			RateLimit:     120,
			InboxCapacity: 4096,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.TickRate <= 0 || c.TickRate > 1000:
		return fmt.Errorf("%w: tick_rate %d", ErrInvalid, c.TickRate)
	case c.BufferCapacity <= 0:
		return fmt.Errorf("%w: buffer_capacity %d", ErrInvalid, c.BufferCapacity)
	case c.GridCellSize <= 0:
		return fmt.Errorf("%w: grid_cell_size %g", ErrInvalid, c.GridCellSize)
	case c.Peer.MaxPeers < 0 || c.Peer.MaxPerIP < 0 || c.Peer.RateLimit < 0:
		return fmt.Errorf("%w: negative peer limit", ErrInvalid)
	}
	return nil
}
