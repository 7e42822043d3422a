package observability

import (
	"context"
	"net/http"
	"time"
)

// NoopMetrics is a Metrics implementation that does nothing. It is the
// default until observability is initialized, so call sites never need
// nil checks.
type NoopMetrics struct{}

func (NoopMetrics) RecordLLMCall(_ context.Context, _, _, _ string, _ time.Duration, _ error) {}
func (NoopMetrics) RecordSessionEvent(_ context.Context, _ string, _ time.Duration, _ error) {}
func (NoopMetrics) SetSessionsActive(_ context.Context, _ int)                               {}
func (NoopMetrics) RecordHarParse(_ context.Context, _, _ int, _ time.Duration)              {}
func (NoopMetrics) RecordCodeGenerated(_ context.Context, _ int, _ time.Duration, _ error)   {}
func (NoopMetrics) RecordHTTPRequest(_ context.Context, _, _ string, _ int, _ time.Duration) {}

// Handler returns 503 so a scrape of a disabled endpoint is explicit.
func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

var _ Metrics = NoopMetrics{}
var _ Metrics = (*PrometheusMetrics)(nil)
