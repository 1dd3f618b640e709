// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/phonobox/internal/app/player"
)

// Config represents the application configuration.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Player  PlayerConfig  `yaml:"player"`
	Storage StorageConfig `yaml:"storage"`
}

// LoggerConfig represents logging configuration.
type LoggerConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
}

// PlayerConfig represents playback controller configuration.
type PlayerConfig struct {
	PersistState            *bool    `yaml:"persist_state" default:"true"`
	PersistenceKey          string   `yaml:"persistence_key" default:"phonobox_state" validate:"required"`
	EnableMediaSession      bool     `yaml:"enable_media_session"`
	EnableKeyboardShortcuts bool     `yaml:"enable_keyboard_shortcuts" default:"true"`
	InitialVolume           *float64 `yaml:"initial_volume" default:"1.0" validate:"omitempty,gte=0,lte=1"`
	PreloadStrategy         string   `yaml:"preload_strategy" default:"metadata" validate:"oneof=none metadata auto"`
}

// StorageConfig represents persisted store configuration.
type StorageConfig struct {
	Dir string `yaml:"dir"` // Empty selects an in-memory store
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("PHONOBOX_STATE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("PHONOBOX_PERSISTENCE_KEY"); v != "" {
		c.Player.PersistenceKey = v
	}
	if v := os.Getenv("PHONOBOX_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// PlayerOptions maps the configuration onto player options.
func (c *Config) PlayerOptions() player.Options {
	return player.Options{
		PersistState:            c.Player.PersistState,
		PersistenceKey:          c.Player.PersistenceKey,
		EnableMediaSession:      c.Player.EnableMediaSession,
		EnableKeyboardShortcuts: c.Player.EnableKeyboardShortcuts,
		InitialVolume:           c.Player.InitialVolume,
		PreloadStrategy:         c.Player.PreloadStrategy,
	}
}
