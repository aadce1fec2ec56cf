// Package config holds the runtime configuration of the match server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LimitConfig configures a single sliding-window limiter.
type LimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// LobbyConfig groups the tunables of the lobby engine.
type LobbyConfig struct {
	// SweepInterval is how often the registry looks for abandoned lobbies.
	SweepInterval Duration `yaml:"sweep_interval"`
	// AbandonGrace is how long a pre-start lobby may sit with every player
	// offline before the sweep removes it.
	AbandonGrace Duration `yaml:"abandon_grace"`
	// UndoHalfMoves is how many half-moves an accepted undo rolls back.
	// Capped at the number of moves actually played.
	UndoHalfMoves int `yaml:"undo_half_moves"`
	// Default time control for lobbies created without one.
	DefaultInitialMs   int64 `yaml:"default_initial_ms"`
	DefaultIncrementMs int64 `yaml:"default_increment_ms"`
}

// Config is the full server configuration.
type Config struct {
	Port          string `yaml:"port"`
	Debug         bool   `yaml:"debug"`
	AllowedOrigin string `yaml:"allowed_origin"`

	HTTPLimit LimitConfig `yaml:"http_limit"`
	WSLimit   LimitConfig `yaml:"ws_limit"`

	Lobby LobbyConfig `yaml:"lobby"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		Port: "8080",
		HTTPLimit: LimitConfig{
			Requests: 20,
			Window:   Duration(time.Minute),
		},
		WSLimit: LimitConfig{
			Requests: 60,
			Window:   Duration(10 * time.Second),
		},
		Lobby: LobbyConfig{
			SweepInterval:      Duration(time.Minute),
			AbandonGrace:       Duration(5 * time.Minute),
			UndoHalfMoves:      2,
			DefaultInitialMs:   5 * 60 * 1000,
			DefaultIncrementMs: 0,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("DEBUG")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("FRONTEND_PATH")); v != "" {
		c.AllowedOrigin = v
	}
	if v := strings.TrimSpace(os.Getenv("LOBBY_ABANDON_GRACE")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Lobby.AbandonGrace = Duration(d)
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOBBY_SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Lobby.SweepInterval = Duration(d)
		}
	}
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: port must not be empty")
	}
	if c.HTTPLimit.Requests <= 0 || c.HTTPLimit.Window <= 0 {
		return fmt.Errorf("config: invalid http limit %d/%s", c.HTTPLimit.Requests, c.HTTPLimit.Window.Std())
	}
	if c.WSLimit.Requests <= 0 || c.WSLimit.Window <= 0 {
		return fmt.Errorf("config: invalid ws limit %d/%s", c.WSLimit.Requests, c.WSLimit.Window.Std())
	}
	if c.Lobby.SweepInterval <= 0 || c.Lobby.AbandonGrace <= 0 {
		return fmt.Errorf("config: invalid lobby sweep settings")
	}
	if c.Lobby.UndoHalfMoves <= 0 {
		c.Lobby.UndoHalfMoves = 2
	}
	return nil
}
