// Package config provides configuration management for the daily login tool.
// Account credentials come only from the environment; everything else may be
// set in an optional YAML file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment variables holding the account credentials
const (
	EnvEmail    = "STACK_EMAIL"
	EnvPassword = "STACK_PASS"
	EnvName     = "STACK_NAME"
)

// ErrMissingCredentials is returned when any of the credential variables is unset
var ErrMissingCredentials = fmt.Errorf("set '%s' '%s' '%s' env variables to log into the Stack sites",
	EnvEmail, EnvPassword, EnvName)

// Config holds all configuration settings for the tool
type Config struct {
	// Account credentials, environment only
	Stack StackConfig `yaml:"-"`

	// Browser configuration
	Browser BrowserConfig `yaml:"browser"`

	// Element waiting
	Wait WaitConfig `yaml:"wait"`

	// Human-like input settings
	Stealth StealthConfig `yaml:"stealth"`

	// Visit history
	Storage StorageConfig `yaml:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Periodic runs
	Schedule ScheduleConfig `yaml:"schedule"`
}

// StackConfig is the credential triple for the account
type StackConfig struct {
	Email    string
	Password string
	Name     string
}

// BrowserConfig holds browser automation settings
type BrowserConfig struct {
	Headless      bool   `yaml:"headless"`
	Bin           string `yaml:"bin"`
	Timeout       int    `yaml:"timeout_seconds"`
	SlowMotion    int    `yaml:"slow_motion_ms"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// WaitConfig controls how long each element presence check may take
type WaitConfig struct {
	PresenceTimeout int `yaml:"presence_timeout_seconds"`
}

// StealthConfig holds human-like interaction settings
type StealthConfig struct {
	Enabled           bool    `yaml:"enabled"`
	TypingDelayMin    int     `yaml:"typing_delay_min_ms"`
	TypingDelayMax    int     `yaml:"typing_delay_max_ms"`
	TypingMistakeRate float64 `yaml:"typing_mistake_rate"`
	ActionDelayMin    int     `yaml:"action_delay_min_ms"`
	ActionDelayMax    int     `yaml:"action_delay_max_ms"`
	RandomUserAgent   bool    `yaml:"random_user_agent"`
}

// StorageConfig holds visit history settings
type StorageConfig struct {
	HistoryEnabled bool   `yaml:"history_enabled"`
	DatabasePath   string `yaml:"database_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
}

// ScheduleConfig holds the cron schedule used by daemon mode
type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:      true,
			Timeout:       60,
			SlowMotion:    0,
			ScreenshotDir: "./data/screenshots",
		},
		Wait: WaitConfig{
			PresenceTimeout: 5,
		},
		Stealth: StealthConfig{
			Enabled:           true,
			TypingDelayMin:    40,
			TypingDelayMax:    160,
			TypingMistakeRate: 0,
			ActionDelayMin:    300,
			ActionDelayMax:    900,
			RandomUserAgent:   false,
		},
		Storage: StorageConfig{
			HistoryEnabled: true,
			DatabasePath:   "./data/history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Schedule: ScheduleConfig{
			Cron:     "",
			Timezone: "Local",
		},
	}
}

// LoadConfig loads configuration from a YAML file and applies environment variable overrides.
// Credentials are read but not required here; see RequireCredentials.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults
		} else {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	c.Stack = StackConfig{
		Email:    os.Getenv(EnvEmail),
		Password: os.Getenv(EnvPassword),
		Name:     os.Getenv(EnvName),
	}

	if headless := os.Getenv("BROWSER_HEADLESS"); headless != "" {
		c.Browser.Headless = headless == "true" || headless == "1"
	}
	if bin := os.Getenv("BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if dbPath := os.Getenv("HISTORY_DB_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}

	if schedule := os.Getenv("STACK_SCHEDULE"); schedule != "" {
		c.Schedule.Cron = schedule
	}
	if tz := os.Getenv("STACK_TIMEZONE"); tz != "" {
		c.Schedule.Timezone = tz
	}
}

// RequireCredentials fails unless email, password and display name are all set.
// It must be called before any browser is launched.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Stack.Email == "" {
		missing = append(missing, EnvEmail)
	}
	if c.Stack.Password == "" {
		missing = append(missing, EnvPassword)
	}
	if c.Stack.Name == "" {
		missing = append(missing, EnvName)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w (missing: %v)", ErrMissingCredentials, missing)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Wait.PresenceTimeout <= 0 {
		return errors.New("presence_timeout_seconds must be positive")
	}
	if c.Browser.Timeout <= 0 {
		return errors.New("timeout_seconds must be positive")
	}

	if c.Stealth.TypingDelayMin < 0 || c.Stealth.TypingDelayMin > c.Stealth.TypingDelayMax {
		return errors.New("typing delay range is invalid")
	}
	if c.Stealth.ActionDelayMin < 0 || c.Stealth.ActionDelayMin > c.Stealth.ActionDelayMax {
		return errors.New("action delay range is invalid")
	}
	if c.Stealth.TypingMistakeRate < 0 || c.Stealth.TypingMistakeRate > 1 {
		return errors.New("typing_mistake_rate must be between 0 and 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule.Cron, err)
		}
	}

	return nil
}

// Location returns the configured schedule timezone
func (c *Config) Location() (*time.Location, error) {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "Local"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", tz, err)
	}
	return loc, nil
}

// GetTimeout returns the overall browser timeout as a time.Duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Browser.Timeout) * time.Second
}

// GetPresenceTimeout returns the wait applied to each element presence check
func (c *Config) GetPresenceTimeout() time.Duration {
	return time.Duration(c.Wait.PresenceTimeout) * time.Second
}

// SaveConfig saves the current configuration to a YAML file. Credentials are never written.
func (c *Config) SaveConfig(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
