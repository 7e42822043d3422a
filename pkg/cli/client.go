package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harvest-ai/harvest/pkg/server"
)

// ClientFlags select the server the session commands talk to.
type ClientFlags struct {
	Server string `help:"Analysis server URL." env:"HARVEST_SERVER" default:"http://localhost:8080" placeholder:"URL"`
}

// Client calls the analysis server's REST API and unwraps its JSON
// envelopes.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// RemoteError is a failure envelope returned by the server, preserved
// verbatim so the CLI reports exactly what the server said.
type RemoteError struct {
	Status int
	Body   server.ErrorBody
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Body.Code, e.Body.Message)
}

// call performs one request and returns the raw result payload.
func (c *Client) call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool              `json:"success"`
		Result  json.RawMessage   `json:"result"`
		Error   *server.ErrorBody `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("invalid response from %s %s: %w", method, path, err)
	}
	if !envelope.Success {
		if envelope.Error == nil {
			return nil, fmt.Errorf("%s %s failed with status %d", method, path, resp.StatusCode)
		}
		return nil, &RemoteError{Status: resp.StatusCode, Body: *envelope.Error}
	}
	return envelope.Result, nil
}

// CreateSessionRequest mirrors the server's session creation body.
type CreateSessionRequest struct {
	HarPath        string            `json:"har_path"`
	Prompt         string            `json:"prompt"`
	CookiePath     string            `json:"cookie_path,omitempty"`
	InputVariables map[string]string `json:"input_variables,omitempty"`
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/sessions", req)
}

func (c *Client) GetSession(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, "/sessions/"+id, nil)
}

func (c *Client) ListSessions(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, "/sessions", nil)
}

func (c *Client) DeleteSession(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodDelete, "/sessions/"+id, nil)
}

func (c *Client) IdentifyWorkflow(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/sessions/"+id+"/workflow", nil)
}

func (c *Client) ProcessNext(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/sessions/"+id+"/process", nil)
}

func (c *Client) AddVariable(ctx context.Context, id, name, value string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/sessions/"+id+"/variables",
		map[string]string{"name": name, "value": value})
}

func (c *Client) Completion(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, "/sessions/"+id+"/complete", nil)
}

func (c *Client) Blockers(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, "/sessions/"+id+"/blockers", nil)
}

func (c *Client) Unresolved(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, "/sessions/"+id+"/unresolved", nil)
}

func (c *Client) Requests(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, "/sessions/"+id+"/requests", nil)
}

func (c *Client) Generate(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/sessions/"+id+"/generate", nil)
}
