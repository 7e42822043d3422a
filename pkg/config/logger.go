package config

import "fmt"

// LoggerConfig configures logging behavior.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-file, --log-format)
//  2. Environment variables (HARVEST_LOG_LEVEL, HARVEST_LOG_FILE, HARVEST_LOG_FORMAT)
//  3. Config file (logging section)
//  4. Defaults (info level, simple format, stderr)
type LoggerConfig struct {
	// Level specifies the log level.
	// Values: trace, debug, info, warn, error, fatal. Default: info.
	// trace and fatal are accepted as aliases for debug and error.
	Level string `yaml:"level,omitempty"`

	// File specifies the log file path. If empty, logs go to stderr.
	File string `yaml:"file,omitempty"`

	// Format specifies the log format.
	// Values: "simple" (level + message), "verbose" (time + level + message).
	// Default: simple
	Format string `yaml:"format,omitempty"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	if c.Level != "" {
		validLevels := map[string]bool{
			"trace":   true,
			"debug":   true,
			"info":    true,
			"warn":    true,
			"warning": true,
			"error":   true,
			"fatal":   true,
		}
		if !validLevels[c.Level] {
			return fmt.Errorf("invalid log level %q (valid: trace, debug, info, warn, error, fatal)", c.Level)
		}
	}
	return nil
}
