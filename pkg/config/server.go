package config

import (
	"fmt"
	"time"
)

const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
)

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// ReadTimeout and WriteTimeout bound a single request/response cycle.
	ReadTimeout  Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout Duration `yaml:"write_timeout,omitempty"`

	// IdleTimeout bounds how long a keep-alive connection may sit unused.
	IdleTimeout Duration `yaml:"idle_timeout,omitempty"`

	// ShutdownTimeout bounds graceful drain on exit.
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultServerHost
	}
	if c.Port == 0 {
		c.Port = DefaultServerPort
	}
	if c.ReadTimeout.Duration() == 0 {
		c.ReadTimeout = Duration(30 * time.Second)
	}
	if c.WriteTimeout.Duration() == 0 {
		c.WriteTimeout = Duration(10 * time.Minute)
	}
	if c.IdleTimeout.Duration() == 0 {
		c.IdleTimeout = Duration(2 * time.Minute)
	}
	if c.ShutdownTimeout.Duration() == 0 {
		c.ShutdownTimeout = Duration(15 * time.Second)
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Address returns the host:port the server binds to.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
