// Package config loads the patternlock configuration from JSON, TOML or YAML.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/logging"
)

// Config holds the runtime configuration of both the verifier and the client.
type Config struct {
	// Verifier.
	DBPath             string `json:"db_path" toml:"db_path" yaml:"db_path"`
	ListenAddr         string `json:"listen_addr" toml:"listen_addr" yaml:"listen_addr"`
	BcryptCost         int    `json:"bcrypt_cost" toml:"bcrypt_cost" yaml:"bcrypt_cost"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" toml:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	MaxFailedAttempts  int    `json:"max_failed_attempts" toml:"max_failed_attempts" yaml:"max_failed_attempts"`
	LockoutSec         int    `json:"lockout_sec" toml:"lockout_sec" yaml:"lockout_sec"`
	// AdminToken unlocks the audit endpoint. Empty disables it.
	AdminToken         string `json:"admin_token" toml:"admin_token" yaml:"admin_token"`

	// Client.
	APIURL            string `json:"api_url" toml:"api_url" yaml:"api_url"`
	SessionPath       string `json:"session_path" toml:"session_path" yaml:"session_path"`
	RequestTimeoutSec int    `json:"request_timeout_sec" toml:"request_timeout_sec" yaml:"request_timeout_sec"`
	ClearDelayMs      int    `json:"clear_delay_ms" toml:"clear_delay_ms" yaml:"clear_delay_ms"`
	SuccessDelayMs    int    `json:"success_delay_ms" toml:"success_delay_ms" yaml:"success_delay_ms"`
	MismatchDelayMs   int    `json:"mismatch_delay_ms" toml:"mismatch_delay_ms" yaml:"mismatch_delay_ms"`
	FailureDelayMs    int    `json:"failure_delay_ms" toml:"failure_delay_ms" yaml:"failure_delay_ms"`
	RedirectDelayMs   int    `json:"redirect_delay_ms" toml:"redirect_delay_ms" yaml:"redirect_delay_ms"`

	// Shared.
	MinPatternLength int    `json:"min_pattern_length" toml:"min_pattern_length" yaml:"min_pattern_length"`
	LogLevel         string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFormat        string `json:"log_format" toml:"log_format" yaml:"log_format"`
}

// Load reads a config file, applies defaults, and validates. The format is
// chosen by extension: .toml, .yaml/.yml, anything else is JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse config TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config JSON: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "patternlock.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":3000"
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 30
	}
	if c.MaxFailedAttempts == 0 {
		c.MaxFailedAttempts = 5
	}
	if c.LockoutSec == 0 {
		c.LockoutSec = 300
	}
	if c.APIURL == "" {
		c.APIURL = "http://localhost:3000"
	}
	if c.SessionPath == "" {
		c.SessionPath = "patternlock-session.db"
	}
	if c.RequestTimeoutSec == 0 {
		c.RequestTimeoutSec = 10
	}
	if c.ClearDelayMs == 0 {
		c.ClearDelayMs = 500
	}
	if c.SuccessDelayMs == 0 {
		c.SuccessDelayMs = 1000
	}
	if c.MismatchDelayMs == 0 {
		c.MismatchDelayMs = 1500
	}
	if c.FailureDelayMs == 0 {
		c.FailureDelayMs = 1500
	}
	if c.RedirectDelayMs == 0 {
		c.RedirectDelayMs = 1500
	}
	if c.MinPatternLength == 0 {
		c.MinPatternLength = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = string(logging.FormatText)
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.MinPatternLength < 1 || c.MinPatternLength > 9 {
		problems = append(problems, "min_pattern_length must be between 1 and 9")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		problems = append(problems, "bcrypt_cost must be between 4 and 31")
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, "rate_limit_per_minute must not be negative")
	}
	if c.MaxFailedAttempts < 0 {
		problems = append(problems, "max_failed_attempts must not be negative")
	}
	if c.LockoutSec < 0 {
		problems = append(problems, "lockout_sec must not be negative")
	}
	if c.RequestTimeoutSec < 0 {
		problems = append(problems, "request_timeout_sec must not be negative")
	}
	for name, v := range map[string]int{
		"clear_delay_ms":    c.ClearDelayMs,
		"success_delay_ms":  c.SuccessDelayMs,
		"mismatch_delay_ms": c.MismatchDelayMs,
		"failure_delay_ms":  c.FailureDelayMs,
		"redirect_delay_ms": c.RedirectDelayMs,
	} {
		if v < 0 {
			problems = append(problems, name+" must not be negative")
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, "log_level must be debug, info, warn or error")
	}
	if f := logging.Format(c.LogFormat); f != logging.FormatText && f != logging.FormatJSON {
		problems = append(problems, "log_format must be text or json")
	}

	if len(problems) > 0 {
		return &domain.AuthError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// RequestTimeout returns the client's HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ClearDelay returns how long a too-short pattern stays visible.
func (c *Config) ClearDelay() time.Duration { return ms(c.ClearDelayMs) }

// SuccessDelay returns the pause after a success message.
func (c *Config) SuccessDelay() time.Duration { return ms(c.SuccessDelayMs) }

// MismatchDelay returns the pause after a confirmation mismatch.
func (c *Config) MismatchDelay() time.Duration { return ms(c.MismatchDelayMs) }

// FailureDelay returns the pause after a rejected submission.
func (c *Config) FailureDelay() time.Duration { return ms(c.FailureDelayMs) }

// RedirectDelay returns the pause before switching screens after success.
func (c *Config) RedirectDelay() time.Duration { return ms(c.RedirectDelayMs) }

// Logging returns the logging configuration for component.
func (c *Config) Logging(component string) logging.Config {
	return logging.Config{
		Level:     c.LogLevel,
		Format:    logging.Format(c.LogFormat),
		Component: component,
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
