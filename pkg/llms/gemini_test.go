package llms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harvest-ai/harvest/pkg/config"
)

func newGeminiTestProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewGeminiProvider(&config.ProviderConfig{
		APIKey:     "AIza-test",
		BaseURL:    server.URL,
		Timeout:    5000,
		MaxRetries: config.IntPtr(0),
	})
	if err != nil {
		t.Fatalf("NewGeminiProvider: %v", err)
	}
	return provider
}

func TestNewGeminiProvider(t *testing.T) {
	t.Run("nil_config", func(t *testing.T) {
		_, err := NewGeminiProvider(nil)
		if !errors.Is(err, ErrNoProviderConfigured) {
			t.Errorf("Expected ErrNoProviderConfigured, got %v", err)
		}
	})

	t.Run("missing_api_key", func(t *testing.T) {
		_, err := NewGeminiProvider(&config.ProviderConfig{})
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("Expected ErrMissingAPIKey, got %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		provider, err := NewGeminiProvider(&config.ProviderConfig{APIKey: "AIza-test"})
		if err != nil {
			t.Fatalf("NewGeminiProvider: %v", err)
		}
		if provider.config.BaseURL != defaultGeminiBaseURL {
			t.Errorf("Expected default base URL, got %q", provider.config.BaseURL)
		}
		if provider.ModelName() != config.DefaultGeminiModel {
			t.Errorf("Expected default model, got %q", provider.ModelName())
		}
		if provider.Name() != "gemini" {
			t.Errorf("Expected provider name gemini, got %q", provider.Name())
		}
	})
}

func TestGeminiProvider_CallFunction(t *testing.T) {
	var captured geminiRequest
	var capturedPath, capturedKey string

	provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		w.Write([]byte(`{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [{"functionCall": {"name": "identify_dynamic_parts", "args": {"dynamic_parts": ["d_123"]}}}]
				},
				"finishReason": "STOP"
			}]
		}`))
	})

	fn := identifyDynamicPartsDef()
	call, err := provider.CallFunction(context.Background(), []Message{
		{Role: RoleSystem, Content: "You analyze HTTP captures."},
		{Role: RoleAssistant, Content: "Earlier finding: the session token is issued at login."},
		{Role: RoleUser, Content: "Which parts of this request are dynamic?"},
	}, fn)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}

	wantPath := "/v1beta/models/" + config.DefaultGeminiModel + ":generateContent"
	if capturedPath != wantPath {
		t.Errorf("Expected path %s, got %s", wantPath, capturedPath)
	}
	if capturedKey != "AIza-test" {
		t.Errorf("Expected key query param, got %q", capturedKey)
	}

	if len(captured.Contents) != 3 {
		t.Fatalf("Expected 3 content turns, got %d", len(captured.Contents))
	}
	roles := []string{captured.Contents[0].Role, captured.Contents[1].Role, captured.Contents[2].Role}
	if roles[0] != "user" || roles[1] != "model" || roles[2] != "user" {
		t.Errorf("Unexpected role mapping: %v", roles)
	}

	if captured.ToolConfig == nil {
		t.Fatal("Expected forced tool config")
	}
	if captured.ToolConfig.FunctionCallingConfig.Mode != "ANY" {
		t.Errorf("Expected mode ANY, got %q", captured.ToolConfig.FunctionCallingConfig.Mode)
	}
	allowed := captured.ToolConfig.FunctionCallingConfig.AllowedFunctionNames
	if len(allowed) != 1 || allowed[0] != fn.Name {
		t.Errorf("Expected allowed functions [%s], got %v", fn.Name, allowed)
	}
	if len(captured.Tools) != 1 || len(captured.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("Expected one function declaration, got %+v", captured.Tools)
	}
	if captured.Tools[0].FunctionDeclarations[0].Name != fn.Name {
		t.Errorf("Unexpected declared function: %q", captured.Tools[0].FunctionDeclarations[0].Name)
	}

	if call.Name != fn.Name {
		t.Errorf("Expected call to %s, got %s", fn.Name, call.Name)
	}
	var args struct {
		DynamicParts []string `json:"dynamic_parts"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		t.Fatalf("Failed to decode arguments: %v", err)
	}
	if len(args.DynamicParts) != 1 || args.DynamicParts[0] != "d_123" {
		t.Errorf("Unexpected dynamic parts: %v", args.DynamicParts)
	}
}

func TestGeminiProvider_CallFunction_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "no_candidates",
			body: `{"candidates": []}`,
		},
		{
			name: "text_instead_of_call",
			body: `{"candidates": [{"content": {"role": "model", "parts": [{"text": "I think the token is dynamic."}]}}]}`,
		},
		{
			name: "wrong_function",
			body: `{"candidates": [{"content": {"role": "model", "parts": [{"functionCall": {"name": "other_function", "args": {}}}]}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := provider.CallFunction(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, identifyDynamicPartsDef())
			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedResponseError, got %v", err)
			}
			if malformed.Provider != "gemini" {
				t.Errorf("Expected provider gemini, got %q", malformed.Provider)
			}
		})
	}
}

func TestGeminiProvider_CallFunction_MissingArgs(t *testing.T) {
	provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"functionCall": {"name": "identify_dynamic_parts"}}]}}]}`))
	})

	call, err := provider.CallFunction(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, identifyDynamicPartsDef())
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if string(call.Arguments) != "{}" {
		t.Errorf("Expected empty arguments object, got %s", call.Arguments)
	}
}

func TestGeminiProvider_APIError(t *testing.T) {
	provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`))
	})

	_, err := provider.CallFunction(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, identifyDynamicPartsDef())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "API key not valid" {
		t.Errorf("Unexpected message: %q", apiErr.Message)
	}
	if apiErr.Type != "INVALID_ARGUMENT" {
		t.Errorf("Unexpected status type: %q", apiErr.Type)
	}
}

func TestGeminiProvider_Unavailable(t *testing.T) {
	provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := provider.GenerateCompletion(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected UnavailableError, got %v", err)
	}
}

func TestGeminiProvider_GenerateCompletion(t *testing.T) {
	provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [{"text": "The login request "}, {"text": "must run first."}]
				}
			}]
		}`))
	})

	text, err := provider.GenerateCompletion(context.Background(), []Message{{Role: RoleUser, Content: "Summarize the workflow."}})
	if err != nil {
		t.Fatalf("GenerateCompletion: %v", err)
	}
	if text != "The login request must run first." {
		t.Errorf("Unexpected completion: %q", text)
	}
}

func TestToGeminiContents_SkipsEmptyTurns(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleUser, Content: "analyze this"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleUser, Content: "and this"},
	})
	if len(contents) != 2 {
		t.Fatalf("Expected empty turn to be dropped, got %d contents", len(contents))
	}
	for _, content := range contents {
		if strings.TrimSpace(content.Parts[0]["text"].(string)) == "" {
			t.Error("Expected no empty text parts")
		}
	}
}
