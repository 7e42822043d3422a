// Package llms provides the LLM provider abstraction used by dependency
// analysis: plain completions and forced function calls returning arguments
// validated against a JSON schema. OpenAI and Gemini are spoken natively
// over HTTP; the Client layer adds deadlines, retry on malformed output and
// schema validation on top of whichever provider is configured.
package llms

import (
	"encoding/json"
	"sort"
)

// Message roles. Gemini has no system role; its provider folds system
// messages into user turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single prompt turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FunctionDef describes a function the model is forced to call.
// Parameters is a JSON schema for the arguments object.
type FunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// FunctionCall is the raw function invocation returned by a provider,
// before schema validation and decoding.
type FunctionCall struct {
	Name      string
	Arguments json.RawMessage
}

// ObjectSchema builds a JSON schema for an object with the given
// properties, all required. Convenient for the small fixed-shape
// argument schemas the analysis functions use.
func ObjectSchema(properties map[string]interface{}) map[string]interface{} {
	required := make([]string, 0, len(properties))
	for name := range properties {
		required = append(required, name)
	}
	sort.Strings(required)

	return map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// StringArrayProperty is a schema fragment for an array-of-strings field.
func StringArrayProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}

// IntegerProperty is a schema fragment for an integer field.
func IntegerProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// StringProperty is a schema fragment for a string field.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}
