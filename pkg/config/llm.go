package config

import (
	"fmt"
	"os"
	"strings"
)

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderGemini LLMProvider = "gemini"
)

const (
	DefaultOpenAIModel = "gpt-4o"
	DefaultGeminiModel = "gemini-2.0-flash"

	// Per-call deadline bounds in milliseconds.
	MinProviderTimeoutMs     = 1000
	MaxProviderTimeoutMs     = 300000
	DefaultProviderTimeoutMs = 300000

	DefaultMaxRetries = 3
)

// LLMSettings selects the active provider and holds per-provider
// credentials and tuning.
type LLMSettings struct {
	// Provider selects the active provider (openai, gemini).
	// Auto-detected when empty: LLM_PROVIDER env var first, then the
	// shape of whichever API key is available ("sk-" means OpenAI,
	// "AIza" means Gemini), OpenAI as the final fallback.
	Provider LLMProvider `yaml:"provider,omitempty"`

	// Model overrides the active provider's model.
	Model string `yaml:"model,omitempty"`

	// Providers holds per-provider settings, keyed by provider name.
	Providers map[string]*ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// Model used when llm.model is not set.
	Model string `yaml:"model,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout is the per-call deadline in milliseconds (1000 to 300000).
	// Default: 300000 (5 minutes).
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries bounds retry attempts per call (0 to 10). Default: 3.
	MaxRetries *int `yaml:"max_retries,omitempty"`
}

func (c *LLMSettings) SetDefaults() {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for _, name := range []LLMProvider{LLMProviderOpenAI, LLMProviderGemini} {
		if c.Providers[string(name)] == nil {
			c.Providers[string(name)] = &ProviderConfig{}
		}
	}

	for name, pc := range c.Providers {
		if pc.APIKey == "" {
			pc.APIKey = GetProviderAPIKey(name)
		}
		if pc.Model == "" {
			switch LLMProvider(name) {
			case LLMProviderOpenAI:
				pc.Model = DefaultOpenAIModel
			case LLMProviderGemini:
				pc.Model = DefaultGeminiModel
			}
		}
		if pc.Timeout == 0 {
			pc.Timeout = DefaultProviderTimeoutMs
		}
		if pc.MaxRetries == nil {
			pc.MaxRetries = IntPtr(DefaultMaxRetries)
		}
	}

	if c.Provider == "" {
		c.Provider = c.detectProvider()
	}

	if c.Model == "" {
		if pc := c.Providers[string(c.Provider)]; pc != nil {
			c.Model = pc.Model
		}
	}
}

func (c *LLMSettings) Validate() error {
	switch c.Provider {
	case LLMProviderOpenAI, LLMProviderGemini, "":
	default:
		return fmt.Errorf("invalid provider %q (valid: openai, gemini)", c.Provider)
	}

	for name, pc := range c.Providers {
		switch LLMProvider(name) {
		case LLMProviderOpenAI, LLMProviderGemini:
		default:
			return fmt.Errorf("unknown provider %q in providers section (valid: openai, gemini)", name)
		}
		if pc == nil {
			continue
		}
		if pc.Timeout != 0 && (pc.Timeout < MinProviderTimeoutMs || pc.Timeout > MaxProviderTimeoutMs) {
			return fmt.Errorf("provider %q: timeout must be between %d and %d ms, got %d",
				name, MinProviderTimeoutMs, MaxProviderTimeoutMs, pc.Timeout)
		}
		if pc.MaxRetries != nil && (*pc.MaxRetries < 0 || *pc.MaxRetries > 10) {
			return fmt.Errorf("provider %q: max_retries must be between 0 and 10, got %d",
				name, *pc.MaxRetries)
		}
	}

	return nil
}

// ActiveProvider returns the config for the selected provider.
func (c *LLMSettings) ActiveProvider() (*ProviderConfig, bool) {
	pc, ok := c.Providers[string(c.Provider)]
	return pc, ok && pc != nil
}

// detectProvider picks a provider when none is configured: LLM_PROVIDER
// env var first, then the shape of any available API key, OpenAI last.
func (c *LLMSettings) detectProvider() LLMProvider {
	switch strings.ToLower(os.Getenv("LLM_PROVIDER")) {
	case "openai":
		return LLMProviderOpenAI
	case "gemini":
		return LLMProviderGemini
	}

	if p, ok := DetectProviderFromKeyShape(c.availableKeys()...); ok {
		return p
	}

	return LLMProviderOpenAI
}

// DetectProviderFromKeyShape discriminates providers by API key prefix:
// OpenAI keys start with "sk-", Google AI keys with "AIza".
func DetectProviderFromKeyShape(keys ...string) (LLMProvider, bool) {
	for _, key := range keys {
		switch {
		case strings.HasPrefix(key, "sk-"):
			return LLMProviderOpenAI, true
		case strings.HasPrefix(key, "AIza"):
			return LLMProviderGemini, true
		}
	}
	return "", false
}

func (c *LLMSettings) availableKeys() []string {
	var keys []string
	for _, name := range []string{"openai", "gemini"} {
		if pc := c.Providers[name]; pc != nil && pc.APIKey != "" {
			keys = append(keys, pc.APIKey)
		}
	}
	return keys
}
