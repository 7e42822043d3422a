// Package memwatch samples process heap usage on an interval, flags a
// sustained upward trend as a suspected leak, and can force a cleanup
// pass (session sweep plus garbage collection) when the heap crosses
// its configured ceiling.
package memwatch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/harvest-ai/harvest/pkg/config"
)

// trendWindow is how many samples feed the leak slope. With the
// default 30s interval the window spans five minutes.
const trendWindow = 10

// leakSlopeMBPerMin is the sustained growth rate treated as a
// suspected leak once the window is full.
const leakSlopeMBPerMin = 1.0

type sample struct {
	at     time.Time
	heapMB float64
}

// Assessment is the outcome of one heap sample.
type Assessment struct {
	HeapMB        float64
	SlopeMBPerMin float64

	// LeakSuspected is set when the sample window is full and its
	// least-squares slope exceeds the leak threshold.
	LeakSuspected bool

	// OverWarning and OverLimit report the configured thresholds.
	OverWarning bool
	OverLimit   bool
}

// Monitor owns the sampling loop. Cleanup is invoked when a sample
// crosses the heap ceiling.
type Monitor struct {
	cfg     config.MemoryConfig
	cleanup func(context.Context)

	mu         sync.Mutex
	samples    []sample
	leakActive bool

	startOnce sync.Once
	closeOnce sync.Once
	stop      context.CancelFunc
	done      chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCleanup sets the hook run when the heap crosses its ceiling,
// before garbage collection is requested. The session manager's sweep
// is the intended hook.
func WithCleanup(fn func(context.Context)) Option {
	return func(m *Monitor) { m.cleanup = fn }
}

// New builds a monitor over the given limits.
func New(cfg config.MemoryConfig, opts ...Option) *Monitor {
	m := &Monitor{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sampling loop when monitoring is enabled. Close
// stops it.
func (m *Monitor) Start(ctx context.Context) {
	if !m.cfg.IsMonitoringEnabled() {
		return
	}
	m.startOnce.Do(func() {
		ctx, m.stop = context.WithCancel(ctx)
		m.done = make(chan struct{})
		go m.run(ctx)
	})
}

// Close stops the sampling loop and waits for it to exit.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		if m.stop != nil {
			m.stop()
			<-m.done
		}
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	interval := time.Duration(m.cfg.SnapshotIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

// sampleOnce reads the heap, records the sample, and acts on the
// assessment: warnings are logged, a full window with sustained growth
// raises the leak diagnostic once per episode, and crossing the
// ceiling forces a cleanup.
func (m *Monitor) sampleOnce(ctx context.Context) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heapMB := float64(stats.HeapAlloc) / (1 << 20)

	assessment, announce := m.record(heapMB, time.Now())

	if announce {
		slog.Warn("MemoryLeakSuspected: heap growing steadily",
			"heap_mb", int(assessment.HeapMB),
			"slope_mb_per_min", assessment.SlopeMBPerMin,
			"window", trendWindow)
	}
	if assessment.OverLimit {
		slog.Warn("Heap over configured ceiling, forcing cleanup",
			"heap_mb", int(assessment.HeapMB), "max_mb", m.cfg.MaxHeapSizeMB)
		m.PerformCleanup(ctx)
	} else if assessment.OverWarning {
		slog.Warn("Heap over warning threshold",
			"heap_mb", int(assessment.HeapMB), "warning_mb", m.cfg.WarningThresholdMB)
	}
}

// record appends one sample and assesses it. announce is set the first
// sample a leak episode is detected, so the diagnostic is not repeated
// every interval while the trend persists.
func (m *Monitor) record(heapMB float64, at time.Time) (assessment Assessment, announce bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, sample{at: at, heapMB: heapMB})
	if len(m.samples) > trendWindow {
		m.samples = m.samples[len(m.samples)-trendWindow:]
	}

	assessment = Assessment{
		HeapMB:      heapMB,
		OverWarning: heapMB > float64(m.cfg.WarningThresholdMB),
		OverLimit:   heapMB > float64(m.cfg.MaxHeapSizeMB),
	}
	if len(m.samples) == trendWindow {
		assessment.SlopeMBPerMin = slopePerMinute(m.samples)
		assessment.LeakSuspected = assessment.SlopeMBPerMin > leakSlopeMBPerMin
	}

	if assessment.LeakSuspected && !m.leakActive {
		announce = true
	}
	m.leakActive = assessment.LeakSuspected
	return assessment, announce
}

// PerformCleanup runs the cleanup hook, then asks the runtime to
// collect garbage.
func (m *Monitor) PerformCleanup(ctx context.Context) {
	if m.cleanup != nil {
		m.cleanup(ctx)
	}
	runtime.GC()
	slog.Info("Memory cleanup performed")
}

// LastHeapMB returns the most recent sample, or zero before sampling
// starts.
func (m *Monitor) LastHeapMB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return 0
	}
	return m.samples[len(m.samples)-1].heapMB
}

// slopePerMinute fits heap megabytes against minutes since the first
// sample by least squares and returns the slope.
func slopePerMinute(samples []sample) float64 {
	n := float64(len(samples))
	origin := samples[0].at

	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := s.at.Sub(origin).Minutes()
		sumX += x
		sumY += s.heapMB
		sumXY += x * s.heapMB
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
