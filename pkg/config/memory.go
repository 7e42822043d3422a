package config

import "fmt"

const (
	DefaultMaxHeapSizeMB      = 4096
	DefaultWarningThresholdMB = 1024
	DefaultSnapshotIntervalMs = 30000
)

// MemoryConfig tunes the heap monitor.
type MemoryConfig struct {
	// MonitoringEnabled turns on periodic heap sampling. Default: false.
	MonitoringEnabled *bool `yaml:"monitoring_enabled,omitempty"`

	// MaxHeapSizeMB is the heap ceiling that triggers forced cleanup
	// (128 to 8192). Default: 4096.
	MaxHeapSizeMB int `yaml:"max_heap_size_mb,omitempty"`

	// WarningThresholdMB is the heap level that logs a warning
	// (64 to 4096). Default: 1024.
	WarningThresholdMB int `yaml:"warning_threshold_mb,omitempty"`

	// SnapshotIntervalMs is the sampling period in milliseconds
	// (5000 to 300000). Default: 30000.
	SnapshotIntervalMs int `yaml:"snapshot_interval_ms,omitempty"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.MonitoringEnabled == nil {
		c.MonitoringEnabled = BoolPtr(false)
	}
	if c.MaxHeapSizeMB == 0 {
		c.MaxHeapSizeMB = DefaultMaxHeapSizeMB
	}
	if c.WarningThresholdMB == 0 {
		c.WarningThresholdMB = DefaultWarningThresholdMB
	}
	if c.SnapshotIntervalMs == 0 {
		c.SnapshotIntervalMs = DefaultSnapshotIntervalMs
	}
}

func (c *MemoryConfig) Validate() error {
	if c.MaxHeapSizeMB < 128 || c.MaxHeapSizeMB > 8192 {
		return fmt.Errorf("max_heap_size_mb must be between 128 and 8192, got %d", c.MaxHeapSizeMB)
	}
	if c.WarningThresholdMB < 64 || c.WarningThresholdMB > 4096 {
		return fmt.Errorf("warning_threshold_mb must be between 64 and 4096, got %d", c.WarningThresholdMB)
	}
	if c.SnapshotIntervalMs < 5000 || c.SnapshotIntervalMs > 300000 {
		return fmt.Errorf("snapshot_interval_ms must be between 5000 and 300000, got %d", c.SnapshotIntervalMs)
	}
	if c.WarningThresholdMB >= c.MaxHeapSizeMB {
		return fmt.Errorf("warning_threshold_mb (%d) must be below max_heap_size_mb (%d)",
			c.WarningThresholdMB, c.MaxHeapSizeMB)
	}
	return nil
}

// IsMonitoringEnabled reports whether heap sampling should run.
func (c *MemoryConfig) IsMonitoringEnabled() bool {
	return BoolValue(c.MonitoringEnabled, false)
}
