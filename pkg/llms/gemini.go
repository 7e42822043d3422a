package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/httpclient"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider speaks the generateContent API over plain HTTP.
type GeminiProvider struct {
	config     *config.ProviderConfig
	httpClient *httpclient.Client
}

type geminiRequest struct {
	Contents   []geminiContent   `json:"contents"`
	Tools      []geminiToolSet   `json:"tools,omitempty"`
	ToolConfig *geminiToolConfig `json:"toolConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart holds one of text, functionCall or functionResponse.
type geminiPart map[string]interface{}

type geminiToolSet struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// geminiToolConfig forces function calling: mode ANY restricted to one
// declared function makes the model always invoke it.
type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiFunctionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiProvider builds a provider from per-provider settings.
func NewGeminiProvider(cfg *config.ProviderConfig) (*GeminiProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gemini: %w", ErrNoProviderConfigured)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = defaultGeminiBaseURL
	}
	if c.Model == "" {
		c.Model = config.DefaultGeminiModel
	}
	if c.Timeout == 0 {
		c.Timeout = config.DefaultProviderTimeoutMs
	}

	return &GeminiProvider{
		config:     &c,
		httpClient: createHTTPClient(&c, httpclient.ParseGeminiHeaders),
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) ModelName() string {
	return p.config.Model
}

func (p *GeminiProvider) Close() error {
	return nil
}

// CallFunction forces the model to invoke fn and returns the raw call.
func (p *GeminiProvider) CallFunction(ctx context.Context, messages []Message, fn FunctionDef) (*FunctionCall, error) {
	request := &geminiRequest{
		Contents: toGeminiContents(messages),
		Tools: []geminiToolSet{{
			FunctionDeclarations: []geminiFunctionDeclaration{{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			}},
		}},
		ToolConfig: &geminiToolConfig{
			FunctionCallingConfig: geminiFunctionCallingConfig{
				Mode:                 "ANY",
				AllowedFunctionNames: []string{fn.Name},
			},
		},
	}

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if len(response.Candidates) == 0 {
		return nil, &MalformedResponseError{Provider: "gemini", Reason: "no candidates in response"}
	}

	for _, part := range response.Candidates[0].Content.Parts {
		fc, ok := part["functionCall"].(map[string]interface{})
		if !ok {
			continue
		}

		name, _ := fc["name"].(string)
		if name != fn.Name {
			return nil, &MalformedResponseError{
				Provider: "gemini",
				Reason:   fmt.Sprintf("model called %s instead of %s", name, fn.Name),
			}
		}

		args := fc["args"]
		if args == nil {
			args = map[string]interface{}{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, &MalformedResponseError{Provider: "gemini", Reason: "function arguments are not serializable"}
		}

		return &FunctionCall{Name: name, Arguments: raw}, nil
	}

	return nil, &MalformedResponseError{
		Provider: "gemini",
		Reason:   fmt.Sprintf("model did not call %s", fn.Name),
	}
}

// GenerateCompletion returns the model's text for the given prompt.
func (p *GeminiProvider) GenerateCompletion(ctx context.Context, messages []Message) (string, error) {
	request := &geminiRequest{
		Contents: toGeminiContents(messages),
	}

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", err
	}

	if len(response.Candidates) == 0 {
		return "", &MalformedResponseError{Provider: "gemini", Reason: "no candidates in response"}
	}

	var textParts []string
	for _, part := range response.Candidates[0].Content.Parts {
		if text, ok := part["text"].(string); ok {
			textParts = append(textParts, text)
		}
	}

	return strings.Join(textParts, ""), nil
}

// toGeminiContents converts prompt turns to the Gemini role model:
// assistant becomes model, and system turns become user turns since the
// v1beta API has no system role.
func toGeminiContents(messages []Message) []geminiContent {
	var contents []geminiContent
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case RoleAssistant:
			role = "model"
		case RoleSystem:
			role = "user"
		}

		if msg.Content == "" {
			continue
		}

		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{"text": msg.Content}},
		})
	}
	return contents
}

func (p *GeminiProvider) makeRequest(ctx context.Context, request *geminiRequest) (*geminiResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.config.BaseURL, p.config.Model, p.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, p.classifyRequestError(ctx, resp, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Provider: "gemini", Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var response geminiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &MalformedResponseError{Provider: "gemini", Reason: "response body is not valid JSON", Raw: string(body)}
	}

	if response.Error != nil {
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: response.Error.Code,
			Message:    response.Error.Message,
			Type:       response.Error.Status,
		}
	}

	return &response, nil
}

func (p *GeminiProvider) classifyRequestError(ctx context.Context, resp *http.Response, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) {
		return &UnavailableError{Provider: "gemini", Err: err}
	}

	if resp != nil {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{
			Provider:   "gemini",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
		var parsed struct {
			Error geminiError `json:"error"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
			apiErr.Type = parsed.Error.Status
		}
		return apiErr
	}

	return &UnavailableError{Provider: "gemini", Err: err}
}
