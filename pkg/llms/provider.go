package llms

import (
	"context"
	"fmt"

	"github.com/harvest-ai/harvest/pkg/config"
)

// Provider is a single LLM backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name returns the provider identifier (openai, gemini).
	Name() string

	// ModelName returns the model this provider targets.
	ModelName() string

	// CallFunction forces the model to invoke fn and returns the raw
	// call. The caller validates and decodes the arguments.
	CallFunction(ctx context.Context, messages []Message, fn FunctionDef) (*FunctionCall, error)

	// GenerateCompletion returns free-form text for the prompt.
	GenerateCompletion(ctx context.Context, messages []Message) (string, error)

	Close() error
}

// NewProvider builds the active provider from settings. The llm.model
// override, when set, wins over the per-provider model.
func NewProvider(settings *config.LLMSettings) (Provider, error) {
	if settings == nil {
		return nil, ErrNoProviderConfigured
	}

	pc, ok := settings.ActiveProvider()
	if !ok {
		return nil, fmt.Errorf("%s: %w", settings.Provider, ErrNoProviderConfigured)
	}

	cfg := *pc
	if settings.Model != "" {
		cfg.Model = settings.Model
	}

	switch settings.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(&cfg)
	case config.LLMProviderGemini:
		return NewGeminiProvider(&cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q (supported: openai, gemini): %w",
			settings.Provider, ErrNoProviderConfigured)
	}
}
