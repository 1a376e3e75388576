package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Provider ProviderConfig `yaml:"provider"`
	Agent    AgentConfig    `yaml:"agent"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the listen address for the websocket endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the chat store backend. Driver is "sqlite" or
// "memory".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ProviderConfig selects the model provider. Name is "openai", "anthropic"
// or "mock".
type ProviderConfig struct {
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AgentConfig holds engine tuning parameters. Streaming defaults to true;
// set it to false to run turns on the single-shot completion path.
type AgentConfig struct {
	SystemContext   string   `yaml:"system_context"`
	MaxToolAttempts int      `yaml:"max_tool_attempts"`
	Temperature     *float64 `yaml:"temperature"`
	MaxTokens       int64    `yaml:"max_tokens"`
	Streaming       *bool    `yaml:"streaming"`
}

// HistoryConfig selects the history policy. Policy is "count" or "token".
type HistoryConfig struct {
	Policy      string `yaml:"policy"`
	MaxMessages int    `yaml:"max_messages"`
	MaxTokens   int    `yaml:"max_tokens"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration suitable for local development with an
// in-memory store.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "memory"},
		Provider: ProviderConfig{Name: "openai"},
		History:  HistoryConfig{Policy: "count", MaxMessages: 20},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path. Environment variables
// in the form ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values; unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks required fields, returning the first failure found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	switch c.Provider.Name {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown provider.name %q", c.Provider.Name)
	}

	switch c.History.Policy {
	case "count", "token":
	default:
		return fmt.Errorf("unknown history.policy %q", c.History.Policy)
	}

	return nil
}
