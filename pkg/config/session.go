package config

import "fmt"

const (
	DefaultMaxSessions            = 100
	DefaultSessionTimeoutMinutes  = 30
	DefaultCleanupIntervalMinutes = 5
	DefaultCompletedCacheTTL      = 60
)

// SessionConfig bounds the session registry and its sweeper.
type SessionConfig struct {
	// MaxSessions caps concurrently held sessions (1 to 1000).
	// Default: 100. At capacity the oldest-activity session is evicted.
	MaxSessions int `yaml:"max_sessions,omitempty"`

	// TimeoutMinutes is the idle timeout after which a session is
	// eligible for cleanup (1 to 1440). Default: 30.
	TimeoutMinutes int `yaml:"timeout_minutes,omitempty"`

	// CleanupIntervalMinutes is how often the sweeper runs (1 to 60).
	// Default: 5.
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes,omitempty"`

	// CompletedSessionCacheTTLMinutes is how long terminal-state
	// sessions stay queryable after completion (1 to 1440). Default: 60.
	CompletedSessionCacheTTLMinutes int `yaml:"completed_session_cache_ttl_minutes,omitempty"`
}

func (c *SessionConfig) SetDefaults() {
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.TimeoutMinutes == 0 {
		c.TimeoutMinutes = DefaultSessionTimeoutMinutes
	}
	if c.CleanupIntervalMinutes == 0 {
		c.CleanupIntervalMinutes = DefaultCleanupIntervalMinutes
	}
	if c.CompletedSessionCacheTTLMinutes == 0 {
		c.CompletedSessionCacheTTLMinutes = DefaultCompletedCacheTTL
	}
}

func (c *SessionConfig) Validate() error {
	if c.MaxSessions < 1 || c.MaxSessions > 1000 {
		return fmt.Errorf("max_sessions must be between 1 and 1000, got %d", c.MaxSessions)
	}
	if c.TimeoutMinutes < 1 || c.TimeoutMinutes > 1440 {
		return fmt.Errorf("timeout_minutes must be between 1 and 1440, got %d", c.TimeoutMinutes)
	}
	if c.CleanupIntervalMinutes < 1 || c.CleanupIntervalMinutes > 60 {
		return fmt.Errorf("cleanup_interval_minutes must be between 1 and 60, got %d", c.CleanupIntervalMinutes)
	}
	if c.CompletedSessionCacheTTLMinutes < 1 || c.CompletedSessionCacheTTLMinutes > 1440 {
		return fmt.Errorf("completed_session_cache_ttl_minutes must be between 1 and 1440, got %d", c.CompletedSessionCacheTTLMinutes)
	}
	return nil
}
