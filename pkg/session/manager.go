package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/dag"
	"github.com/harvest-ai/harvest/pkg/emitter"
	"github.com/harvest-ai/harvest/pkg/llms"
)

var (
	// ErrSessionNotFound means the id is not in the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAtCapacity means the registry is full and no session could
	// be evicted to make room.
	ErrAtCapacity = errors.New("session registry at capacity")
)

// Manager owns the session registry: creation, lookup, capacity
// eviction, idle cancellation, and removal of expired terminal
// sessions.
type Manager struct {
	analysis *Analysis
	emitter  *emitter.Emitter
	session  config.SessionConfig
	paths    config.PathsConfig

	mu       sync.RWMutex
	sessions map[string]*Session

	startOnce sync.Once
	closeOnce sync.Once
	stop      context.CancelFunc
	done      chan struct{}
}

// NewManager builds a manager over a shared LLM client and a
// configuration snapshot.
func NewManager(client *llms.Client, cfg *config.Config) *Manager {
	session := cfg.Session
	session.SetDefaults()
	return &Manager{
		analysis: NewAnalysis(client),
		emitter:  emitter.New(emitter.JavaScript()),
		session:  session,
		paths:    cfg.Paths,
		sessions: make(map[string]*Session),
	}
}

// Start launches the background sweeper. Close stops it.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, m.stop = context.WithCancel(ctx)
		m.done = make(chan struct{})
		go m.sweep(ctx)
	})
}

// Close stops the sweeper and waits for it to exit. Sessions remain
// queryable.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.stop != nil {
			m.stop()
			<-m.done
		}
	})
}

// Create registers a new session and runs its start event. The
// session stays in the registry even when the start event fails, so
// the failure remains queryable. At capacity the session with the
// oldest activity is cancelled and evicted first.
func (m *Manager) Create(ctx context.Context, start StartSession) (*Session, error) {
	if err := m.admit(ctx); err != nil {
		return nil, err
	}

	s := newSession(m.analysis, m.emitter)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("Session created", "session", s.ID, "har", start.HarPath)

	if err := s.Handle(ctx, start); err != nil {
		return s, err
	}
	return s, nil
}

// Get returns the session for the id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns all sessions ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Delete cancels the session and removes it from the registry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Handle(ctx, Cancel{})
	slog.Info("Session deleted", "session", id)
	return nil
}

// ClearAll cancels and removes every session.
func (m *Manager) ClearAll(ctx context.Context) int {
	m.mu.Lock()
	victims := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		victims = append(victims, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range victims {
		s.Handle(ctx, Cancel{})
	}
	if len(victims) > 0 {
		slog.Info("Cleared all sessions", "count", len(victims))
	}
	return len(victims)
}

// AnalyzeCompletionState runs completion analysis for the session and
// re-syncs its cached completeness flag.
func (m *Manager) AnalyzeCompletionState(id string) (*dag.CompletionReport, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeCompletion(), nil
}

// GenerateCode runs the session's code generation event and writes
// the program to the session's own directory under the configured
// output path. The generated text is returned alongside the file
// path; a write failure returns the text with the error.
func (m *Manager) GenerateCode(ctx context.Context, id string) (code, path string, err error) {
	s, err := m.Get(id)
	if err != nil {
		return "", "", err
	}
	if err := s.Handle(ctx, GenerateCode{}); err != nil {
		return "", "", err
	}
	code, _ = s.GeneratedCode()

	dir, fellback, err := m.paths.ResolveOutputDir()
	if err != nil {
		return code, "", err
	}
	if fellback {
		slog.Warn("Configured output directory unusable, using fallback", "dir", dir)
	}
	sessionDir := filepath.Join(dir, s.ID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return code, "", err
	}
	path = filepath.Join(sessionDir, "client"+m.emitter.Extension())
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return code, "", err
	}
	slog.Info("Generated client written", "session", id, "path", path)
	return code, path, nil
}

// admit makes room for one more session, evicting the session with
// the oldest activity when the registry is full.
func (m *Manager) admit(ctx context.Context) error {
	m.mu.Lock()
	var victim *Session
	if len(m.sessions) >= m.session.MaxSessions {
		for _, s := range m.sessions {
			if victim == nil || s.LastActivity().Before(victim.LastActivity()) {
				victim = s
			}
		}
		if victim == nil {
			m.mu.Unlock()
			return ErrAtCapacity
		}
		delete(m.sessions, victim.ID)
	}
	m.mu.Unlock()

	if victim != nil {
		victim.Handle(ctx, Cancel{})
		slog.Warn("Evicted oldest session at capacity", "session", victim.ID)
	}
	return nil
}

func (m *Manager) sweep(ctx context.Context) {
	defer close(m.done)

	interval := time.Duration(m.session.CleanupIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runSweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass immediately: idle sessions past the
// timeout are cancelled and expired terminal sessions are removed. The
// background sweeper does the same on its own schedule; this entry
// point lets the memory monitor force a pass under heap pressure.
func (m *Manager) Sweep(ctx context.Context) {
	m.runSweep(ctx)
}

// runSweep cancels sessions idle past the timeout and removes
// terminal sessions older than the cache TTL.
func (m *Manager) runSweep(ctx context.Context) {
	timeout := time.Duration(m.session.TimeoutMinutes) * time.Minute
	ttl := time.Duration(m.session.CompletedSessionCacheTTLMinutes) * time.Minute
	now := time.Now()

	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	var expired []string
	for _, s := range all {
		if s.State().IsTerminal() {
			if now.Sub(s.TerminalAt()) > ttl {
				expired = append(expired, s.ID)
			}
			continue
		}
		if idle := now.Sub(s.LastActivity()); idle > timeout {
			s.Handle(ctx, Cancel{})
			slog.Info("Cancelled idle session", "session", s.ID, "idle", idle.Round(time.Second))
		}
	}

	if len(expired) == 0 {
		return
	}
	m.mu.Lock()
	for _, id := range expired {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	slog.Info("Removed expired sessions", "count", len(expired))
}
