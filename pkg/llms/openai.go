package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/httpclient"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the chat completions API over plain HTTP.
type OpenAIProvider struct {
	config     *config.ProviderConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  interface{}     `json:"tool_choice,omitempty"`
}

type openAIMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// createHTTPClient builds the retrying transport shared by the providers.
// Transport failures and retryable statuses are retried here with the
// 1s/2s/4s ladder; the Client layer above retries malformed responses.
func createHTTPClient(cfg *config.ProviderConfig, parser httpclient.RateLimitHeaderParser) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		}),
		httpclient.WithMaxRetries(config.IntValue(cfg.MaxRetries, config.DefaultMaxRetries)),
		httpclient.WithBaseDelay(time.Second),
		httpclient.WithHeaderParser(parser),
	)
}

// NewOpenAIProvider builds a provider from per-provider settings.
// Unset fields fall back to package defaults.
func NewOpenAIProvider(cfg *config.ProviderConfig) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai: %w", ErrNoProviderConfigured)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = defaultOpenAIBaseURL
	}
	if c.Model == "" {
		c.Model = config.DefaultOpenAIModel
	}
	if c.Timeout == 0 {
		c.Timeout = config.DefaultProviderTimeoutMs
	}

	return &OpenAIProvider{
		config:     &c,
		httpClient: createHTTPClient(&c, httpclient.ParseOpenAIHeaders),
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) ModelName() string {
	return p.config.Model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

// CallFunction forces the model to invoke fn and returns the raw call.
func (p *OpenAIProvider) CallFunction(ctx context.Context, messages []Message, fn FunctionDef) (*FunctionCall, error) {
	request := openAIRequest{
		Model:       p.config.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: 0,
		Tools: []openAITool{{
			Type:     "function",
			Function: openAIToolFunction(fn),
		}},
		ToolChoice: map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": fn.Name},
		},
	}

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, &MalformedResponseError{Provider: "openai", Reason: "no response choices"}
	}

	choice := response.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, &MalformedResponseError{
			Provider: "openai",
			Reason:   fmt.Sprintf("model did not call %s", fn.Name),
			Raw:      choice.Message.Content,
		}
	}

	tc := choice.Message.ToolCalls[0]
	if tc.Function.Name != fn.Name {
		return nil, &MalformedResponseError{
			Provider: "openai",
			Reason:   fmt.Sprintf("model called %s instead of %s", tc.Function.Name, fn.Name),
		}
	}
	if !json.Valid([]byte(tc.Function.Arguments)) {
		return nil, &MalformedResponseError{
			Provider: "openai",
			Reason:   "function arguments are not valid JSON",
			Raw:      tc.Function.Arguments,
		}
	}

	return &FunctionCall{
		Name:      tc.Function.Name,
		Arguments: json.RawMessage(tc.Function.Arguments),
	}, nil
}

// GenerateCompletion returns the assistant's text for the given prompt.
func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, messages []Message) (string, error) {
	request := openAIRequest{
		Model:       p.config.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: 0,
	}

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", &MalformedResponseError{Provider: "openai", Reason: "no response choices"}
	}

	return response.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openAIMessage {
	out := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		out[i] = openAIMessage{Role: msg.Role, Content: msg.Content}
	}
	return out
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	// The retrying client can return both a response and an error for
	// non-retryable statuses; inspect the body in that case too.
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, p.classifyRequestError(ctx, resp, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Provider: "openai", Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &MalformedResponseError{Provider: "openai", Reason: "response body is not valid JSON", Raw: string(body)}
	}

	if response.Error != nil {
		return nil, &APIError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    response.Error.Message,
			Type:       response.Error.Type,
			Code:       response.Error.Code,
		}
	}

	return &response, nil
}

func (p *OpenAIProvider) classifyRequestError(ctx context.Context, resp *http.Response, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) {
		return &UnavailableError{Provider: "openai", Err: err}
	}

	// Non-retryable status with a live response: a definitive API
	// rejection such as 400/401/403.
	if resp != nil {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
		var parsed struct {
			Error openAIError `json:"error"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
			apiErr.Type = parsed.Error.Type
			apiErr.Code = parsed.Error.Code
		}
		return apiErr
	}

	return &UnavailableError{Provider: "openai", Err: err}
}
