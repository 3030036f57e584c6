// ABOUTME: Configuration loading and parsing for arena-gateway.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete arena-gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Matches  MatchesConfig  `yaml:"matches"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listen address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the archive database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MatchesConfig holds match timing configuration.
type MatchesConfig struct {
	BroadcastInterval time.Duration `yaml:"-"`
	MinMoveDelay      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	BroadcastIntervalRaw string `yaml:"broadcast_interval"`
	MinMoveDelayRaw      string `yaml:"min_move_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "data/arena.db"},
		Matches: MatchesConfig{
			BroadcastInterval: time.Second,
			MinMoveDelay:      500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present and valid.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values
// and applies defaults for unset ones.
func parseDurations(cfg *Config) error {
	var err error

	cfg.Matches.BroadcastInterval = time.Second
	if cfg.Matches.BroadcastIntervalRaw != "" {
		cfg.Matches.BroadcastInterval, err = time.ParseDuration(cfg.Matches.BroadcastIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing broadcast_interval %q: %w", cfg.Matches.BroadcastIntervalRaw, err)
		}
	}

	cfg.Matches.MinMoveDelay = 500 * time.Millisecond
	if cfg.Matches.MinMoveDelayRaw != "" {
		cfg.Matches.MinMoveDelay, err = time.ParseDuration(cfg.Matches.MinMoveDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing min_move_delay %q: %w", cfg.Matches.MinMoveDelayRaw, err)
		}
	}

	return nil
}
