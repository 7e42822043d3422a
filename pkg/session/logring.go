package session

import (
	"sync"
	"time"
)

// maxLogEntries bounds the per-session activity log. Once the ring is
// full each new entry evicts the oldest.
const maxLogEntries = 500

// LogEntry is one line of a session's activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// logRing keeps the most recent session activity. Safe for concurrent
// use.
type logRing struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	wrapped bool
}

func newLogRing() *logRing {
	return &logRing{}
}

func (r *logRing) add(level, message string) {
	entry := LogEntry{Time: time.Now(), Level: level, Message: message}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.wrapped && len(r.entries) < maxLogEntries {
		r.entries = append(r.entries, entry)
		return
	}
	r.wrapped = true
	r.entries[r.next] = entry
	r.next = (r.next + 1) % maxLogEntries
}

// snapshot returns the retained entries, oldest first.
func (r *logRing) snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.wrapped {
		out := make([]LogEntry, len(r.entries))
		copy(out, r.entries)
		return out
	}
	out := make([]LogEntry, 0, maxLogEntries)
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
