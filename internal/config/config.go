package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SyncTimings configures the sync controller. Zero values are filled
// with the reference defaults before validation.
type SyncTimings struct {
	QuietPeriod  time.Duration `yaml:"-" validate:"min=0"`
	PollInterval time.Duration `yaml:"-" validate:"min=0"`
	Cooldown     time.Duration `yaml:"-" validate:"min=0"`
	WatchTick    time.Duration `yaml:"-" validate:"min=0"`
}

// UnmarshalYAML accepts durations in time.ParseDuration form ("30s",
// "500ms"). Omitted keys keep whatever value the struct already holds.
func (s *SyncTimings) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		QuietPeriod  string `yaml:"quietPeriod"`
		PollInterval string `yaml:"pollInterval"`
		Cooldown     string `yaml:"cooldown"`
		WatchTick    string `yaml:"watchTick"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sync.quietPeriod", raw.QuietPeriod, &s.QuietPeriod},
		{"sync.pollInterval", raw.PollInterval, &s.PollInterval},
		{"sync.cooldown", raw.Cooldown, &s.Cooldown},
		{"sync.watchTick", raw.WatchTick, &s.WatchTick},
	} {
		if err := setDuration(f.dst, f.raw, f.name); err != nil {
			return err
		}
	}
	return nil
}

// PresenceTimings configures the presence broadcaster.
type PresenceTimings struct {
	Throttle   time.Duration `yaml:"-" validate:"min=0"`
	StaleAfter time.Duration `yaml:"-" validate:"min=0"`
	SweepEvery time.Duration `yaml:"-" validate:"min=0"`
}

// UnmarshalYAML accepts durations in time.ParseDuration form.
func (p *PresenceTimings) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Throttle   string `yaml:"throttle"`
		StaleAfter string `yaml:"staleAfter"`
		SweepEvery string `yaml:"sweepEvery"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"presence.throttle", raw.Throttle, &p.Throttle},
		{"presence.staleAfter", raw.StaleAfter, &p.StaleAfter},
		{"presence.sweepEvery", raw.SweepEvery, &p.SweepEvery},
	} {
		if err := setDuration(f.dst, f.raw, f.name); err != nil {
			return err
		}
	}
	return nil
}

func setDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", field, err)
	}
	*dst = d
	return nil
}

// Config represents the application configuration.
type Config struct {
	NATSURL      string          `yaml:"natsURL,omitempty"`
	IdentityFile string          `yaml:"identityFile,omitempty"`
	Sync         SyncTimings     `yaml:"sync,omitempty"`
	Presence     PresenceTimings `yaml:"presence,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		NATSURL: "nats://127.0.0.1:4222",
		Sync: SyncTimings{
			QuietPeriod:  30 * time.Second,
			PollInterval: 5 * time.Second,
			Cooldown:     time.Second,
			WatchTick:    time.Second,
		},
		Presence: PresenceTimings{
			Throttle:   80 * time.Millisecond,
			StaleAfter: 6 * time.Second,
			SweepEvery: 2 * time.Second,
		},
	}
}

// Load loads and validates the configuration from openrota.yaml,
// looking in the current directory first and the user's home directory
// second. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := findConfigFile()
	if err != nil {
		return Default(), nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads and validates the configuration from a specific
// path. Omitted fields fall back to defaults.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate runs struct validation over the configuration.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// applyDefaults fills zeroed timing fields so a sparse config file
// cannot disable the fallback machinery by accident.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.NATSURL == "" {
		cfg.NATSURL = def.NATSURL
	}
	if cfg.Sync.QuietPeriod == 0 {
		cfg.Sync.QuietPeriod = def.Sync.QuietPeriod
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = def.Sync.PollInterval
	}
	if cfg.Sync.Cooldown == 0 {
		cfg.Sync.Cooldown = def.Sync.Cooldown
	}
	if cfg.Sync.WatchTick == 0 {
		cfg.Sync.WatchTick = def.Sync.WatchTick
	}
	if cfg.Presence.Throttle == 0 {
		cfg.Presence.Throttle = def.Presence.Throttle
	}
	if cfg.Presence.StaleAfter == 0 {
		cfg.Presence.StaleAfter = def.Presence.StaleAfter
	}
	if cfg.Presence.SweepEvery == 0 {
		cfg.Presence.SweepEvery = def.Presence.SweepEvery
	}
}

// findConfigFile searches for openrota.yaml in the current directory
// and the home directory.
func findConfigFile() (string, error) {
	configFileName := "openrota.yaml"

	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
