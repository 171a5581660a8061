package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envToken          = "COPILOT_BRIDGE_TOKEN"
	envUpstreamAPIKey = "COPILOT_API_KEY"

	defaultHistoryWindow = 20
	defaultMaxConcurrent = 32
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server        ServerConfig   `yaml:"server"`
	Upstream      UpstreamConfig `yaml:"upstream"`
	Auth          AuthConfig     `yaml:"auth"`
	HistoryWindow int            `yaml:"history_window"`
	MaxConcurrent int            `yaml:"max_concurrent"`
	Verbose       bool           `yaml:"verbose"`
	Sanitize      SanitizeConfig `yaml:"sanitize"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UpstreamConfig locates the chat-completion capability behind the bridge.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// AuthConfig holds the shared token clients must present.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// SanitizeConfig gates the output tag-repair pass.
type SanitizeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads YAML configuration from disk, applies environment overrides and
// validates the result. A .env file next to the process is honoured when
// present; secrets from the environment win over the file.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	_ = godotenv.Load()
	if token := os.Getenv(envToken); token != "" {
		cfg.Auth.Token = token
	}
	if key := os.Getenv(envUpstreamAPIKey); key != "" {
		cfg.Upstream.APIKey = key
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HistoryWindow == 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url must be provided")
	}
	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		return fmt.Errorf("upstream.api_key must be provided (yaml or %s)", envUpstreamAPIKey)
	}
	if strings.TrimSpace(c.Auth.Token) == "" {
		return fmt.Errorf("auth.token must be provided (yaml or %s)", envToken)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history_window must not be negative, got %d", c.HistoryWindow)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}
