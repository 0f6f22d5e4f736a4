package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	API     APIConfig     `json:"api"`
	Poller  PollerConfig  `json:"poller"`
	Session SessionConfig `json:"session"`
	Output  OutputConfig  `json:"output"`
	Server  ServerConfig  `json:"server"`
	Locale  string        `json:"locale"`
}

// APIConfig holds the backend connection settings
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
}

// PollerConfig holds the completion poller settings
type PollerConfig struct {
	IntervalMS     int  `json:"interval_ms"`
	MaxAttempts    int  `json:"max_attempts"`
	RetryTransport bool `json:"retry_transport"`
}

// SessionConfig says where the login is cached. Token and Key only come from
// the environment and are never written to the config file.
type SessionConfig struct {
	Path  string `json:"path"`
	Token string `json:"-"`
	Key   string `json:"-"`
}

// OutputConfig holds configuration for rendered images
type OutputConfig struct {
	DefaultFormat string  `json:"default_format"`
	OutputDir     string  `json:"output_dir"`
	Quality       int     `json:"quality"`
	ViewportWidth float64 `json:"viewport_width"`
	MaxHeight     float64 `json:"max_height"`
}

// ServerConfig holds the report viewer settings
type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: 30,
			Retries:        2,
		},
		Poller: PollerConfig{
			IntervalMS:  5000,
			MaxAttempts: 60,
		},
		Session: SessionConfig{
			Path: defaultSessionPath(),
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			OutputDir:     "./output",
			Quality:       90,
			ViewportWidth: 1280,
			MaxHeight:     800,
		},
		Server: ServerConfig{
			ListenAddr: ":8090",
		},
		Locale: "en",
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path when it exists, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if cfg, err = LoadFromFile(path); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadDotEnv loads KEY=value files into the process environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from UXA_* environment variables
func (c *Config) ApplyEnv() error {
	c.API.BaseURL = getenv("UXA_API_BASE_URL", c.API.BaseURL)
	c.Session.Token = getenv("UXA_TOKEN", c.Session.Token)
	c.Session.Key = getenv("UXA_SESSION_KEY", c.Session.Key)
	c.Session.Path = getenv("UXA_SESSION_PATH", c.Session.Path)
	c.Locale = getenv("UXA_LOCALE", c.Locale)
	c.Server.ListenAddr = getenv("UXA_LISTEN_ADDR", c.Server.ListenAddr)

	var err error
	if c.API.TimeoutSeconds, err = getenvInt("UXA_API_TIMEOUT_SECONDS", c.API.TimeoutSeconds); err != nil {
		return err
	}
	if c.Poller.IntervalMS, err = getenvInt("UXA_POLL_INTERVAL_MS", c.Poller.IntervalMS); err != nil {
		return err
	}
	if c.Poller.MaxAttempts, err = getenvInt("UXA_POLL_MAX_ATTEMPTS", c.Poller.MaxAttempts); err != nil {
		return err
	}
	return nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url cannot be empty")
	}

	if c.API.TimeoutSeconds < 1 {
		return fmt.Errorf("api.timeout_seconds must be positive")
	}

	if c.API.Retries < 0 {
		return fmt.Errorf("api.retries cannot be negative")
	}

	if c.Poller.IntervalMS < 1 {
		return fmt.Errorf("poller.interval_ms must be positive")
	}

	if c.Poller.MaxAttempts < 1 {
		return fmt.Errorf("poller.max_attempts must be positive")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch c.Output.DefaultFormat {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.default_format must be png, jpg or webp")
	}

	if c.Output.ViewportWidth <= 0 || c.Output.MaxHeight <= 0 {
		return fmt.Errorf("output.viewport_width and output.max_height must be positive")
	}

	return nil
}

// Timeout returns the API timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// PollInterval returns the poller interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalMS) * time.Millisecond
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "ux-analyzer", "config.json")
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./session.json"
	}
	return filepath.Join(home, ".config", "ux-analyzer", "session.json")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
