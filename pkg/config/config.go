// Package config defines the configuration surface of the analyzer and the
// loaders that populate it. Values are merged from, in increasing precedence:
// built-in defaults, a YAML document (file, Consul, etcd, or ZooKeeper),
// HARVEST_* environment variables, command-line flags, and per-call options.
package config

import (
	"fmt"
	"strings"

	"github.com/harvest-ai/harvest/pkg/observability"
)

// ObservabilityConfig configures tracing and metrics export.
type ObservabilityConfig = observability.Config

// Config is the root configuration document.
type Config struct {
	// Version is the config schema version. Optional.
	Version string `yaml:"version,omitempty"`

	// Name labels this deployment in logs and traces. Optional.
	Name string `yaml:"name,omitempty"`

	LLM     LLMSettings   `yaml:"llm,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	Paths   PathsConfig   `yaml:"paths,omitempty"`
	Logging LoggerConfig  `yaml:"logging,omitempty"`
	Memory  MemoryConfig  `yaml:"memory,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`

	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// ProcessConfigPipeline runs the standard processing steps on a loaded
// config: PreProcess, SetDefaults, then Validate.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: config cannot be nil")
	}

	cfg.PreProcess()

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: validation failed: %w", err)
	}

	return cfg, nil
}

// PreProcess normalizes fields whose spelling is flexible in YAML before
// defaults and validation run.
func (c *Config) PreProcess() {
	c.LLM.Provider = LLMProvider(strings.ToLower(strings.TrimSpace(string(c.LLM.Provider))))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if c.LLM.Providers == nil {
		c.LLM.Providers = make(map[string]*ProviderConfig)
	}
}

func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Name == "" {
		c.Name = "harvest"
	}
	c.LLM.SetDefaults()
	c.Session.SetDefaults()
	c.Paths.SetDefaults()
	c.Logging.SetDefaults()
	c.Memory.SetDefaults()
	c.Server.SetDefaults()
	c.Observability.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// DefaultConfig returns a config populated entirely from defaults and the
// process environment. Used when no config document is supplied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.PreProcess()
	cfg.SetDefaults()
	return cfg
}
