package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records the counters and histograms the analysis pipeline
// emits. All methods must be safe for concurrent use and cheap when
// metrics are disabled.
type Metrics interface {
	RecordLLMCall(ctx context.Context, provider, model, function string, duration time.Duration, err error)
	RecordSessionEvent(ctx context.Context, event string, duration time.Duration, err error)
	SetSessionsActive(ctx context.Context, count int)
	RecordHarParse(ctx context.Context, totalEntries, relevantEntries int, duration time.Duration)
	RecordCodeGenerated(ctx context.Context, nodeCount int, duration time.Duration, err error)
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)
	Handler() http.Handler
}

// PrometheusMetrics implements Metrics over an OpenTelemetry meter
// backed by a Prometheus exporter and registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	llmDuration    metric.Float64Histogram
	llmCallsTotal  metric.Int64Counter
	llmErrorsTotal metric.Int64Counter

	eventDuration    metric.Float64Histogram
	eventsTotal      metric.Int64Counter
	eventErrorsTotal metric.Int64Counter
	sessionsActive   metric.Int64Gauge

	harEntriesTotal  metric.Int64Counter
	harRelevantTotal metric.Int64Counter
	harParseDuration metric.Float64Histogram

	codegenDuration    metric.Float64Histogram
	codegenTotal       metric.Int64Counter
	codegenErrorsTotal metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpTotal    metric.Int64Counter
}

// InitMetrics builds the Prometheus-backed metrics when enabled, or a
// noop implementation otherwise.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (Metrics, error) {
	if !cfg.Enabled {
		return NoopMetrics{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := meterProvider.Meter(cfg.Namespace)

	m := &PrometheusMetrics{registry: registry}
	ns := cfg.Namespace

	if m.llmDuration, err = meter.Float64Histogram(
		ns+"_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}
	if m.llmCallsTotal, err = meter.Int64Counter(
		ns+"_llm_requests_total",
		metric.WithDescription("Total LLM requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm calls counter: %w", err)
	}
	if m.llmErrorsTotal, err = meter.Int64Counter(
		ns+"_llm_errors_total",
		metric.WithDescription("Total LLM request errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	if m.eventDuration, err = meter.Float64Histogram(
		ns+"_session_event_duration_seconds",
		metric.WithDescription("Session event processing duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create event duration histogram: %w", err)
	}
	if m.eventsTotal, err = meter.Int64Counter(
		ns+"_session_events_total",
		metric.WithDescription("Total session events processed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}
	if m.eventErrorsTotal, err = meter.Int64Counter(
		ns+"_session_event_errors_total",
		metric.WithDescription("Total session events that failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create event errors counter: %w", err)
	}
	if m.sessionsActive, err = meter.Int64Gauge(
		ns+"_sessions_active",
		metric.WithDescription("Sessions currently held by the manager"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions gauge: %w", err)
	}

	if m.harEntriesTotal, err = meter.Int64Counter(
		ns+"_har_entries_total",
		metric.WithDescription("Total HAR entries seen by the parser"),
	); err != nil {
		return nil, fmt.Errorf("failed to create har entries counter: %w", err)
	}
	if m.harRelevantTotal, err = meter.Int64Counter(
		ns+"_har_relevant_entries_total",
		metric.WithDescription("HAR entries surviving relevance filtering"),
	); err != nil {
		return nil, fmt.Errorf("failed to create har relevant counter: %w", err)
	}
	if m.harParseDuration, err = meter.Float64Histogram(
		ns+"_har_parse_duration_seconds",
		metric.WithDescription("HAR parse and filter duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create har parse histogram: %w", err)
	}

	if m.codegenDuration, err = meter.Float64Histogram(
		ns+"_codegen_duration_seconds",
		metric.WithDescription("Code generation duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create codegen histogram: %w", err)
	}
	if m.codegenTotal, err = meter.Int64Counter(
		ns+"_codegen_total",
		metric.WithDescription("Total code generation attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create codegen counter: %w", err)
	}
	if m.codegenErrorsTotal, err = meter.Int64Counter(
		ns+"_codegen_errors_total",
		metric.WithDescription("Code generation attempts that failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create codegen errors counter: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		ns+"_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http histogram: %w", err)
	}
	if m.httpTotal, err = meter.Int64Counter(
		ns+"_http_requests_total",
		metric.WithDescription("Total HTTP requests served"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http counter: %w", err)
	}

	return m, nil
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, provider, model, function string, duration time.Duration, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("function", function),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordSessionEvent(ctx context.Context, event string, duration time.Duration, err error) {
	if m == nil || m.eventDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String("event", event)}

	m.eventDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.eventErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) SetSessionsActive(ctx context.Context, count int) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Record(ctx, int64(count))
}

func (m *PrometheusMetrics) RecordHarParse(ctx context.Context, totalEntries, relevantEntries int, duration time.Duration) {
	if m == nil || m.harParseDuration == nil {
		return
	}
	m.harEntriesTotal.Add(ctx, int64(totalEntries))
	m.harRelevantTotal.Add(ctx, int64(relevantEntries))
	m.harParseDuration.Record(ctx, duration.Seconds())
}

func (m *PrometheusMetrics) RecordCodeGenerated(ctx context.Context, nodeCount int, duration time.Duration, err error) {
	if m == nil || m.codegenDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int("nodes", nodeCount)}

	m.codegenDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.codegenTotal.Add(ctx, 1)
	if err != nil {
		m.codegenErrorsTotal.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", statusCode),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Handler exposes the Prometheus registry for scraping.
func (m *PrometheusMetrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return NoopMetrics{}.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGlobalMetrics installs the process-wide metrics sink.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics sink, which is a
// noop until SetGlobalMetrics is called.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
