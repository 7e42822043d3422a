package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harvest-ai/harvest/pkg/analysis"
	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/emitter"
	"github.com/harvest-ai/harvest/pkg/har"
	"github.com/harvest-ai/harvest/pkg/llms"
	"github.com/harvest-ai/harvest/pkg/session"
)

// Envelope is the JSON shape of every API response. Exactly one of
// Result and Error is set.
type Envelope struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a symbolic code, a human message, and optional
// structured context such as a completion report.
type ErrorBody struct {
	Code            string      `json:"code"`
	Message         string      `json:"message"`
	Recommendations []string    `json:"recommendations,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// Error codes shared by the HTTP API and the CLI.
const (
	CodeInvalidHarFormat    = "INVALID_HAR_FORMAT"
	CodeEmptyHar            = "EMPTY_HAR"
	CodeNoCandidates        = "NO_CANDIDATES"
	CodeLlmUnavailable      = "LLM_UNAVAILABLE"
	CodeLlmTimeout          = "LLM_TIMEOUT"
	CodeLlmMalformed        = "LLM_MALFORMED_RESPONSE"
	CodeNoProvider          = "NO_PROVIDER_CONFIGURED"
	CodeMissingAPIKey       = "MISSING_API_KEY"
	CodeAnalysisIncomplete  = "ANALYSIS_INCOMPLETE"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionAtCapacity   = "SESSION_AT_CAPACITY"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeAlreadyInitialized  = "ALREADY_INITIALIZED"
	CodeOutputPathUnsafe    = "OUTPUT_PATH_UNSAFE"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInternal            = "INTERNAL_ERROR"
	CodeProviderAPIRejected = "PROVIDER_API_ERROR"
)

// ClassifyError maps an error from any pipeline layer onto its
// symbolic code, optional structured data, and setup recommendations
// for configuration problems.
func ClassifyError(err error) *ErrorBody {
	body := &ErrorBody{Code: CodeInternal, Message: err.Error()}

	var incomplete *emitter.AnalysisIncompleteError
	var invalid *session.InvalidTransitionError
	var unavailable *llms.UnavailableError
	var timeout *llms.TimeoutError
	var malformed *llms.MalformedResponseError
	var apiErr *llms.APIError

	switch {
	case errors.Is(err, har.ErrInvalidFormat):
		body.Code = CodeInvalidHarFormat
		body.Recommendations = []string{
			"Export the capture again as HAR 1.2 from the browser's network panel",
		}
	case errors.Is(err, har.ErrEmptyHar):
		body.Code = CodeEmptyHar
		body.Recommendations = []string{
			"Record the workflow with the network panel open so API calls are captured",
			"Check that the capture is not limited to analytics or static assets",
		}
	case errors.Is(err, analysis.ErrNoCandidates):
		body.Code = CodeNoCandidates
		body.Recommendations = []string{
			"Refine the prompt to describe the action visible in the capture",
		}
	case errors.As(err, &incomplete):
		body.Code = CodeAnalysisIncomplete
		body.Data = incomplete.Report
	case errors.As(err, &invalid):
		body.Code = CodeInvalidTransition
	case errors.Is(err, session.ErrSessionNotFound):
		body.Code = CodeSessionNotFound
	case errors.Is(err, session.ErrAtCapacity):
		body.Code = CodeSessionAtCapacity
	case errors.Is(err, llms.ErrNoProviderConfigured):
		body.Code = CodeNoProvider
		body.Recommendations = providerSetupSteps
	case errors.Is(err, llms.ErrMissingAPIKey):
		body.Code = CodeMissingAPIKey
		body.Recommendations = providerSetupSteps
	case errors.Is(err, config.ErrAlreadyInitialized):
		body.Code = CodeAlreadyInitialized
	case errors.Is(err, config.ErrOutputPathUnsafe):
		body.Code = CodeOutputPathUnsafe
	case errors.As(err, &timeout):
		body.Code = CodeLlmTimeout
		body.Recommendations = []string{
			"Raise llm.providers.<name>.timeout, or simplify the capture",
		}
	case errors.As(err, &unavailable):
		body.Code = CodeLlmUnavailable
	case errors.As(err, &malformed):
		body.Code = CodeLlmMalformed
	case errors.As(err, &apiErr):
		body.Code = CodeProviderAPIRejected
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			body.Recommendations = providerSetupSteps
		}
	}
	return body
}

// providerSetupSteps is shown whenever the model provider is missing
// or misconfigured.
var providerSetupSteps = []string{
	"Set OPENAI_API_KEY (sk-...) or GEMINI_API_KEY (AIza...) in the environment or a .env file",
	"Or configure llm.providers.<name>.api_key in the config file",
	"Select a provider explicitly with llm.provider or LLM_PROVIDER when both keys are present",
}

// httpStatus maps an error code to the response status.
func httpStatus(code string) int {
	switch code {
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeInvalidRequest, CodeInvalidHarFormat, CodeEmptyHar, CodeNoCandidates:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeAnalysisIncomplete:
		return http.StatusConflict
	case CodeSessionAtCapacity:
		return http.StatusTooManyRequests
	case CodeLlmTimeout:
		return http.StatusGatewayTimeout
	case CodeLlmUnavailable, CodeLlmMalformed, CodeProviderAPIRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, status int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: true, Result: result})
}

func writeError(w http.ResponseWriter, err error) {
	body := ClassifyError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(body.Code))
	_ = json.NewEncoder(w).Encode(Envelope{Success: false, Error: body})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error:   &ErrorBody{Code: CodeInvalidRequest, Message: message},
	})
}
