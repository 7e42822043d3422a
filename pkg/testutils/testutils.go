// Package testutils provides shared test fixtures: a scripted LLM
// provider, retry-free client construction, and canned HAR captures
// for the common analysis shapes.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/llms"
)

// ProviderCall records one scripted provider invocation.
type ProviderCall struct {
	Function string
	Messages []llms.Message
}

// ScriptedProvider implements llms.Provider with injectable behavior.
// CallFn receives the zero-based call number so a script can vary its
// answer across a sequence. Every invocation is recorded for
// inspection through Calls.
type ScriptedProvider struct {
	CallFn     func(call int, fn llms.FunctionDef) (*llms.FunctionCall, error)
	CompleteFn func(call int, messages []llms.Message) (string, error)

	mu    sync.Mutex
	calls []ProviderCall
}

func (p *ScriptedProvider) Name() string      { return "scripted" }
func (p *ScriptedProvider) ModelName() string { return "scripted-model" }
func (p *ScriptedProvider) Close() error      { return nil }

func (p *ScriptedProvider) CallFunction(ctx context.Context, messages []llms.Message, fn llms.FunctionDef) (*llms.FunctionCall, error) {
	p.mu.Lock()
	call := len(p.calls)
	p.calls = append(p.calls, ProviderCall{Function: fn.Name, Messages: messages})
	p.mu.Unlock()

	if p.CallFn == nil {
		return nil, fmt.Errorf("unscripted call to %s", fn.Name)
	}
	return p.CallFn(call, fn)
}

func (p *ScriptedProvider) GenerateCompletion(ctx context.Context, messages []llms.Message) (string, error) {
	p.mu.Lock()
	call := len(p.calls)
	p.calls = append(p.calls, ProviderCall{Function: "completion", Messages: messages})
	p.mu.Unlock()

	if p.CompleteFn == nil {
		return "", fmt.Errorf("unscripted completion request")
	}
	return p.CompleteFn(call, messages)
}

// Calls returns the recorded invocations in order.
func (p *ScriptedProvider) Calls() []ProviderCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProviderCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many provider calls were made so far.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// FunctionReply scripts a provider that answers every function call
// with the same JSON arguments.
func FunctionReply(arguments string) *ScriptedProvider {
	return &ScriptedProvider{
		CallFn: func(call int, fn llms.FunctionDef) (*llms.FunctionCall, error) {
			return &llms.FunctionCall{Name: fn.Name, Arguments: json.RawMessage(arguments)}, nil
		},
	}
}

// FunctionReplies scripts a provider that answers successive function
// calls with the given JSON payloads and fails past the end of the
// script.
func FunctionReplies(arguments ...string) *ScriptedProvider {
	return &ScriptedProvider{
		CallFn: func(call int, fn llms.FunctionDef) (*llms.FunctionCall, error) {
			if call >= len(arguments) {
				return nil, fmt.Errorf("call %d exceeds the %d scripted replies", call, len(arguments))
			}
			return &llms.FunctionCall{Name: fn.Name, Arguments: json.RawMessage(arguments[call])}, nil
		},
	}
}

// NewLLMClient wraps provider in a client with no retry budget, so a
// malformed response fails after a single attempt and tests never
// sleep through backoff.
func NewLLMClient(provider llms.Provider) *llms.Client {
	return llms.NewClient(provider, &config.ProviderConfig{
		Timeout:    5000,
		MaxRetries: config.IntPtr(0),
	})
}
