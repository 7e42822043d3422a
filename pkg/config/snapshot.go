package config

import (
	"errors"
	"sync"
)

// ErrAlreadyInitialized means Initialize was called on a snapshot that
// already holds a configuration.
var ErrAlreadyInitialized = errors.New("configuration already initialized")

// ErrNotInitialized means the snapshot was read before Initialize.
var ErrNotInitialized = errors.New("configuration not initialized")

// Snapshot holds the process configuration once, immutably. The serve
// path initializes one snapshot at startup and hands it to the session
// manager and server; tests create private snapshots instead of
// sharing process state. A live snapshot cannot be re-initialized:
// components cache values from it, so swapping it underneath them
// would desynchronize the process (config reload restarts the server
// instead).
type Snapshot struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSnapshot returns an empty snapshot awaiting Initialize.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Initialize runs the processing pipeline on cfg and freezes the
// result. A second call fails with ErrAlreadyInitialized.
func (s *Snapshot) Initialize(cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		return ErrAlreadyInitialized
	}
	processed, err := ProcessConfigPipeline(cfg)
	if err != nil {
		return err
	}
	s.cfg = processed
	return nil
}

// Config returns the frozen configuration. It fails before Initialize.
func (s *Snapshot) Config() (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil, ErrNotInitialized
	}
	return s.cfg, nil
}

// MustConfig returns the frozen configuration and panics before
// Initialize. For wiring paths that run strictly after startup.
func (s *Snapshot) MustConfig() *Config {
	cfg, err := s.Config()
	if err != nil {
		panic(err)
	}
	return cfg
}
