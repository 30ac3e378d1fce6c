// Package config loads and watches the daemon configuration.
//
// The file is YAML, decoded strictly (unknown keys are rejected) so typos
// fail at startup instead of silently disabling a safety feature.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"alertkit/internal/alertstore"
	logx "alertkit/pkg/logx"
)

type Config struct {
	Logging     Logging     `yaml:"logging"`
	Storage     Storage     `yaml:"storage"`
	Sounds      Sounds      `yaml:"sounds"`
	Mute        Mute        `yaml:"mute"`
	Telegram    Telegram    `yaml:"telegram"`
	Maintenance Maintenance `yaml:"maintenance"`
}

type Logging struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (l Logging) LogxConfig() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

type Storage struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

func (s Storage) StoreConfig() (alertstore.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return alertstore.Config{}, err
	}
	return alertstore.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: busy}, nil
}

type Sounds struct {
	Dir string `yaml:"dir"`
}

type Mute struct {
	// Duration is the default window opened by an operator mute request.
	Duration string `yaml:"duration"`
}

func (m Mute) WindowDuration() (time.Duration, error) {
	return ParseDurationOrDefault("mute.duration", m.Duration, 30*time.Minute)
}

type Telegram struct {
	Enabled    bool   `yaml:"enabled"`
	Token      string `yaml:"token"`
	ChatID     int64  `yaml:"chat_id"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

type Maintenance struct {
	// SummaryAt is a daily HH:MM for the store summary log line.
	SummaryAt string `yaml:"summary_at"`
	// ResyncEvery re-runs sound catalog sync for registered vendors.
	ResyncEvery string `yaml:"resync_every"`
}

func (m Maintenance) ResyncInterval() (time.Duration, error) {
	return ParseDurationOrDefault("maintenance.resync_every", m.ResyncEvery, 6*time.Hour)
}

// Load reads and strictly decodes the config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Storage.StoreConfig(); err != nil {
		return err
	}
	if _, err := c.Mute.WindowDuration(); err != nil {
		return err
	}
	if _, err := c.Maintenance.ResyncInterval(); err != nil {
		return err
	}
	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram.enabled")
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
