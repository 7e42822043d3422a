package observability

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultDebugSpanLimit = 1000

// DebugExporter is a SpanExporter that keeps recent span data in memory
// so the debug API can show what the pipeline did for a session without
// a collector. Oldest spans are evicted once the limit is reached.
type DebugExporter struct {
	mu      sync.RWMutex
	spans   []*DebugSpan
	maxSize int
}

// DebugSpan is the JSON shape served by the debug API.
type DebugSpan struct {
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	Name       string            `json:"name"`
	StartTime  int64             `json:"start_time_unix_nano"`
	EndTime    int64             `json:"end_time_unix_nano"`
	DurationMs float64           `json:"duration_ms"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Status     string            `json:"status"`
	StatusMsg  string            `json:"status_message,omitempty"`
}

func NewDebugExporter() *DebugExporter {
	return &DebugExporter{maxSize: defaultDebugSpanLimit}
}

// WithMaxSize sets the maximum number of spans to retain.
func (e *DebugExporter) WithMaxSize(size int) *DebugExporter {
	e.maxSize = size
	return e
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *DebugExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range spans {
		ds := &DebugSpan{
			TraceID:    s.SpanContext().TraceID().String(),
			SpanID:     s.SpanContext().SpanID().String(),
			Name:       s.Name(),
			StartTime:  s.StartTime().UnixNano(),
			EndTime:    s.EndTime().UnixNano(),
			DurationMs: float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000.0,
			Status:     s.Status().Code.String(),
			StatusMsg:  s.Status().Description,
		}
		if attrs := s.Attributes(); len(attrs) > 0 {
			ds.Attributes = make(map[string]string, len(attrs))
			for _, kv := range attrs {
				ds.Attributes[string(kv.Key)] = kv.Value.Emit()
			}
		}
		e.spans = append(e.spans, ds)
	}

	if over := len(e.spans) - e.maxSize; over > 0 {
		e.spans = e.spans[over:]
	}

	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *DebugExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = nil
	return nil
}

// Spans returns a copy of the retained spans, newest last.
func (e *DebugExporter) Spans() []*DebugSpan {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*DebugSpan, len(e.spans))
	copy(out, e.spans)
	return out
}

var _ sdktrace.SpanExporter = (*DebugExporter)(nil)
