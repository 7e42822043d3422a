package llms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/observability"
)

const (
	// Per-call deadline bounds. Configured timeouts are clamped into
	// this window.
	minCallTimeout     = time.Second
	maxCallTimeout     = 5 * time.Minute
	defaultCallTimeout = 5 * time.Minute
)

// Client wraps a Provider with the call policy shared by every
// analysis step: a per-call deadline, retries for malformed model
// output, schema validation of function arguments, and telemetry.
//
// Transport failures are retried inside the HTTP layer, so by the time
// an UnavailableError reaches the Client its budget is already spent
// and the Client fails fast. Only malformed responses are retried
// here, since a fresh completion is the one thing that can fix them.
type Client struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	tracer     trace.Tracer
	metrics    observability.Metrics

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewClient builds a Client over provider using cfg's timeout and
// retry budget. A nil cfg yields the defaults.
func NewClient(provider Provider, cfg *config.ProviderConfig) *Client {
	timeout := defaultCallTimeout
	maxRetries := config.DefaultMaxRetries
	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = clampTimeout(time.Duration(cfg.Timeout) * time.Millisecond)
		}
		maxRetries = config.IntValue(cfg.MaxRetries, config.DefaultMaxRetries)
	}

	return &Client{
		provider:   provider,
		timeout:    timeout,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		tracer:     observability.GetTracer("harvest.llms"),
		metrics:    observability.GetGlobalMetrics(),
		schemas:    make(map[string]*jsonschema.Schema),
	}
}

// NewClientFromSettings builds the active provider and wraps it.
func NewClientFromSettings(settings *config.LLMSettings) (*Client, error) {
	provider, err := NewProvider(settings)
	if err != nil {
		return nil, err
	}
	pc, _ := settings.ActiveProvider()
	return NewClient(provider, pc), nil
}

func clampTimeout(d time.Duration) time.Duration {
	if d < minCallTimeout {
		return minCallTimeout
	}
	if d > maxCallTimeout {
		return maxCallTimeout
	}
	return d
}

func (c *Client) Provider() Provider {
	return c.provider
}

func (c *Client) Close() error {
	return c.provider.Close()
}

// CallFunction asks the model to invoke fn, validates the returned
// arguments against fn's parameter schema, and decodes them into
// result. The deadline covers all retries.
func (c *Client) CallFunction(ctx context.Context, messages []Message, fn FunctionDef, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "llm.call_function", trace.WithAttributes(
		attribute.String("llm.provider", c.provider.Name()),
		attribute.String("llm.model", c.provider.ModelName()),
		attribute.String("llm.function", fn.Name),
	))
	defer span.End()

	start := time.Now()
	err := c.withRetry(ctx, func() error {
		call, err := c.provider.CallFunction(ctx, messages, fn)
		if err != nil {
			return err
		}
		return c.decodeArguments(call, fn, result)
	})
	c.metrics.RecordLLMCall(ctx, c.provider.Name(), c.provider.ModelName(), fn.Name, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GenerateCompletion returns free-form model text under the same
// deadline and retry policy as CallFunction.
func (c *Client) GenerateCompletion(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "llm.generate_completion", trace.WithAttributes(
		attribute.String("llm.provider", c.provider.Name()),
		attribute.String("llm.model", c.provider.ModelName()),
	))
	defer span.End()

	var text string
	start := time.Now()
	err := c.withRetry(ctx, func() error {
		var callErr error
		text, callErr = c.provider.GenerateCompletion(ctx, messages)
		return callErr
	})
	c.metrics.RecordLLMCall(ctx, c.provider.Name(), c.provider.ModelName(), "completion", time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetStatus(codes.Ok, "")
	return text, nil
}

// withRetry runs op, retrying malformed responses with exponential
// backoff (1s, 2s, 4s). All other errors return immediately.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return c.wrapContextError(ctx.Err())
			case <-time.After(delay):
			}
		}

		err := op()
		if err == nil {
			return nil
		}

		var malformed *MalformedResponseError
		if errors.As(err, &malformed) {
			lastErr = err
			continue
		}

		return c.wrapContextError(err)
	}
	return lastErr
}

func (c *Client) wrapContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: c.provider.Name(), Timeout: c.timeout, Err: err}
	}
	return err
}

// decodeArguments validates the call against fn's parameter schema and
// unmarshals the arguments into result. Schema violations count as
// malformed responses and feed the retry loop.
func (c *Client) decodeArguments(call *FunctionCall, fn FunctionDef, result interface{}) error {
	var payload interface{}
	if err := json.Unmarshal(call.Arguments, &payload); err != nil {
		return &MalformedResponseError{
			Provider: c.provider.Name(),
			Reason:   "function arguments are not valid JSON",
			Raw:      string(call.Arguments),
		}
	}

	if fn.Parameters != nil {
		schema, err := c.schemaFor(fn)
		if err != nil {
			return fmt.Errorf("invalid parameter schema for %s: %w", fn.Name, err)
		}
		if err := schema.Validate(payload); err != nil {
			return &MalformedResponseError{
				Provider: c.provider.Name(),
				Reason:   fmt.Sprintf("arguments do not match the %s schema: %v", fn.Name, err),
				Raw:      string(call.Arguments),
			}
		}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(call.Arguments, result); err != nil {
		return &MalformedResponseError{
			Provider: c.provider.Name(),
			Reason:   fmt.Sprintf("arguments do not decode into %T: %v", result, err),
			Raw:      string(call.Arguments),
		}
	}
	return nil
}

// schemaFor compiles and caches fn's parameter schema. Function
// definitions are static for the life of the process, so the cache is
// keyed by name alone.
func (c *Client) schemaFor(fn FunctionDef) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if schema, ok := c.schemas[fn.Name]; ok {
		return schema, nil
	}

	raw, err := json.Marshal(fn.Parameters)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(fn.Name+".json", doc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(fn.Name + ".json")
	if err != nil {
		return nil, err
	}

	c.schemas[fn.Name] = schema
	return schema, nil
}
