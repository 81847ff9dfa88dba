package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models sitework.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret        string `yaml:"jwt_secret"`
		AccessTTLMinutes int    `yaml:"access_ttl_minutes"`
		RefreshTTLHours  int    `yaml:"refresh_ttl_hours"`
	} `yaml:"auth"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Shifts struct {
		MaxWriteAttempts int `yaml:"max_write_attempts"`
		HistorySize      int `yaml:"history_size"`
	} `yaml:"shifts"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with sw config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Auth.AccessTTLMinutes <= 0 {
		return fmt.Errorf("config.auth.access_ttl_minutes must be positive")
	}
	if c.Auth.RefreshTTLHours <= 0 {
		return fmt.Errorf("config.auth.refresh_ttl_hours must be positive")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("config.redis.url is required")
	}
	if c.Shifts.MaxWriteAttempts < 0 {
		return fmt.Errorf("config.shifts.max_write_attempts must not be negative")
	}
	if c.Shifts.HistorySize < 0 {
		return fmt.Errorf("config.shifts.history_size must not be negative")
	}
	return nil
}

// AccessTTL returns the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.Auth.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.Auth.RefreshTTLHours) * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sitework.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api/v1

auth:
  jwt_secret: ""
  access_ttl_minutes: 15
  refresh_ttl_hours: 168

redis:
  url: redis://127.0.0.1:6379/0

shifts:
  max_write_attempts: 3
  history_size: 50
`
