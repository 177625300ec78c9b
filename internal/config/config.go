// Package config loads host configuration from an optional YAML file with
// environment-variable expansion, then applies environment overrides,
// defaults, and fail-fast validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full host configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	MCP      MCPConfig      `yaml:"mcp"`
	Sessions SessionsConfig `yaml:"sessions"`
	React    ReactConfig    `yaml:"react"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LLMConfig struct {
	// Provider selects the backend: openai or anthropic.
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// Temperature is a pointer so an explicit 0 is distinguishable from
	// an absent value, which defaults to 0.1.
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

type MCPConfig struct {
	// ServersConfig is the path of the server-inventory descriptor.
	ServersConfig  string        `yaml:"servers_config"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	WatchInventory bool          `yaml:"watch_inventory"`
}

type SessionsConfig struct {
	MaxMessages            int `yaml:"max_messages"`
	IdleTimeoutMinutes     int `yaml:"idle_timeout_minutes"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
}

type ReactConfig struct {
	MaxIterations          int `yaml:"max_iterations"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration. The file is optional; environment
// variables override file values; missing or invalid required settings
// abort with an error.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
		if cfg.LLM.Provider == "" {
			cfg.LLM.Provider = "anthropic"
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("OPENAI_TEMPERATURE %q: %w", v, err)
		}
		t := float32(f)
		cfg.LLM.Temperature = &t
	}
	if v := os.Getenv("OPENAI_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPENAI_MAX_TOKENS %q: %w", v, err)
		}
		cfg.LLM.MaxTokens = n
	}
	if v := os.Getenv("MCP_SERVERS_CONFIG"); v != "" {
		cfg.MCP.ServersConfig = v
	}
	if v := os.Getenv("SESSION_IDLE_TIMEOUT_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SESSION_IDLE_TIMEOUT_MINUTES %q: %w", v, err)
		}
		cfg.Sessions.IdleTimeoutMinutes = n
	}
	if v := os.Getenv("SESSION_CLEANUP_INTERVAL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SESSION_CLEANUP_INTERVAL_MINUTES %q: %w", v, err)
		}
		cfg.Sessions.CleanupIntervalMinutes = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == nil {
		t := float32(0.1)
		cfg.LLM.Temperature = &t
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.MCP.ServersConfig == "" {
		cfg.MCP.ServersConfig = "./mcp_servers.json"
	}
	if cfg.MCP.CallTimeout == 0 {
		cfg.MCP.CallTimeout = 30 * time.Second
	}
	if cfg.Sessions.MaxMessages == 0 {
		cfg.Sessions.MaxMessages = 50
	}
	if cfg.Sessions.IdleTimeoutMinutes == 0 {
		cfg.Sessions.IdleTimeoutMinutes = 30
	}
	if cfg.Sessions.CleanupIntervalMinutes == 0 {
		cfg.Sessions.CleanupIntervalMinutes = 5
	}
	if cfg.React.MaxIterations == 0 {
		cfg.React.MaxIterations = 10
	}
	if cfg.React.MaxConsecutiveFailures == 0 {
		cfg.React.MaxConsecutiveFailures = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if !filepath.IsAbs(cfg.MCP.ServersConfig) {
		if abs, err := filepath.Abs(cfg.MCP.ServersConfig); err == nil {
			cfg.MCP.ServersConfig = abs
		}
	}
}

// Validate enforces the startup contract. Invalid values abort the host.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: LLM API key is required (set OPENAI_API_KEY)")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown LLM provider %q", c.LLM.Provider)
	}
	if t := c.Temperature(); t < 0 || t > 2 {
		return fmt.Errorf("config: temperature %v out of range [0, 2]", t)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Sessions.IdleTimeoutMinutes < 0 || c.Sessions.CleanupIntervalMinutes < 0 {
		return fmt.Errorf("config: session timings must be non-negative")
	}
	return nil
}

// Temperature returns the sampling temperature, defaulting to 0.1 when
// unset.
func (c *Config) Temperature() float32 {
	if c.LLM.Temperature == nil {
		return 0.1
	}
	return *c.LLM.Temperature
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Sessions.IdleTimeoutMinutes) * time.Minute
}

// CleanupInterval returns the eviction sweep interval as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}
