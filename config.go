package imagepulse

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Port               int    `yaml:"port"`
	DatabasePath       string `yaml:"database_path"`
	MaxConcurrentPulls int    `yaml:"max_concurrent_pulls"`
	PerRegistryMax     int    `yaml:"per_registry_max"`
	LeaseSeconds       int    `yaml:"lease_seconds"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults sets default values for unspecified configuration options
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "/var/lib/imagepulse/imagepulse.db"
	}
	if c.MaxConcurrentPulls == 0 {
		c.MaxConcurrentPulls = 5
	}
	if c.PerRegistryMax == 0 {
		c.PerRegistryMax = 2
	}
	if c.LeaseSeconds == 0 {
		c.LeaseSeconds = 300
	}
}

// ApplyEnv overrides configuration values from the environment:
// APP_PORT, DATABASE_PATH, MAX_CONCURRENT_PULLS, PER_REGISTRY_MAX,
// LEASE_SECONDS.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	for _, e := range []struct {
		name string
		dst  *int
	}{
		{"APP_PORT", &c.Port},
		{"MAX_CONCURRENT_PULLS", &c.MaxConcurrentPulls},
		{"PER_REGISTRY_MAX", &c.PerRegistryMax},
		{"LEASE_SECONDS", &c.LeaseSeconds},
	} {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be a number, got %q", e.name, v)
		}
		*e.dst = parsed
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}
	if c.MaxConcurrentPulls < 1 || c.MaxConcurrentPulls > 10 {
		return fmt.Errorf("invalid max_concurrent_pulls: %d (must be between 1 and 10)", c.MaxConcurrentPulls)
	}
	if c.PerRegistryMax < 1 || c.PerRegistryMax > 10 {
		return fmt.Errorf("invalid per_registry_max: %d (must be between 1 and 10)", c.PerRegistryMax)
	}
	if c.LeaseSeconds < 1 {
		return fmt.Errorf("invalid lease_seconds: %d (must be positive)", c.LeaseSeconds)
	}
	return nil
}
