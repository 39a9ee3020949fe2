// Copyright 2026 Teyda Authors

package teyda

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/teyda/teyda/pkg/discord"
	"github.com/teyda/teyda/pkg/telegram"
)

// DefaultDataDir is where file content lands when the config does not name
// a directory.
const DefaultDataDir = "./teyda_data"

// Config is the top-level bridge configuration. Each entry under a platform
// key becomes an independent adapter instance with its own bot session.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Telegram []telegram.Config `yaml:"telegram"`
	Discord  []discord.Config  `yaml:"discord"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.expandTokens()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// expandTokens resolves $VAR and ${VAR} references in token fields, so
// config files can stay free of secrets. Unset variables expand to the
// empty string and fail validation.
func (c *Config) expandTokens() {
	for i := range c.Telegram {
		c.Telegram[i].Token = os.ExpandEnv(c.Telegram[i].Token)
	}
	for i := range c.Discord {
		c.Discord[i].Token = os.ExpandEnv(c.Discord[i].Token)
	}
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if len(c.Telegram) == 0 && len(c.Discord) == 0 {
		return errors.New("config: no adapters configured")
	}
	for i, tc := range c.Telegram {
		if tc.Token == "" {
			return fmt.Errorf("config: telegram[%d] has no token", i)
		}
	}
	for i, dc := range c.Discord {
		if dc.Token == "" {
			return fmt.Errorf("config: discord[%d] has no token", i)
		}
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config: bad log_level %q: %w", c.LogLevel, err)
		}
	}
	return nil
}

// Level parses the configured log level. Validation already guaranteed it
// parses.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
