package llms

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoProviderConfigured means no provider could be selected from
// configuration or the environment.
var ErrNoProviderConfigured = errors.New("no LLM provider configured")

// ErrMissingAPIKey means the selected provider has no API key.
var ErrMissingAPIKey = errors.New("missing API key")

// UnavailableError reports a provider that could not be reached or kept
// failing with server errors after transport-level retries.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s provider unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a call that exceeded its deadline.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call timed out after %s", e.Provider, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a response the provider returned but
// that does not satisfy the expected shape: no function call, a call to
// the wrong function, unparseable arguments, or arguments failing schema
// validation. These are retried with backoff.
type MalformedResponseError struct {
	Provider string
	Reason   string
	Raw      string
}

func (e *MalformedResponseError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("%s returned malformed response: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s returned malformed response: %s: %s", e.Provider, e.Reason, truncateForError(e.Raw))
}

// APIError reports a definitive rejection from the provider API, such as
// auth failures or invalid requests. Not retried.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Type != "" || e.Code != "" {
		return fmt.Sprintf("%s API error (status %d): %s (type: %s, code: %s)",
			e.Provider, e.StatusCode, e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func truncateForError(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
