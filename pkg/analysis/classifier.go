package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/harvest-ai/harvest/pkg/curl"
	"github.com/harvest-ai/harvest/pkg/llms"
)

// staticTokens are values that look interesting to a model but never
// depend on earlier traffic. Compared lowercased.
var staticTokens = map[string]bool{
	"application/json":                  true,
	"application/xml":                   true,
	"application/x-www-form-urlencoded": true,
	"application/javascript":            true,
	"multipart/form-data":               true,
	"text/html":                         true,
	"text/plain":                        true,
	"text/css":                          true,
	"true":                              true,
	"false":                             true,
	"null":                              true,
	"get":                               true,
	"post":                              true,
	"put":                               true,
	"delete":                            true,
	"patch":                             true,
	"head":                              true,
	"options":                           true,
}

// Classifier finds the substrings of a request that must have been
// produced at runtime.
type Classifier struct {
	caller
}

func NewClassifier(client *llms.Client) *Classifier {
	return &Classifier{caller: newCaller(client)}
}

func identifyDynamicPartsDef() llms.FunctionDef {
	return llms.FunctionDef{
		Name:        "identify_dynamic_parts",
		Description: "Report the substrings of the command whose values were produced at runtime by earlier requests or cookies.",
		Parameters: llms.ObjectSchema(map[string]interface{}{
			"dynamic_parts": llms.StringArrayProperty("Each dynamic substring, exactly as it appears in the command"),
		}),
	}
}

type dynamicPartsResult struct {
	DynamicParts []string `json:"dynamic_parts"`
}

// Classify returns candidate dynamic parts in first-seen order. Script
// URLs classify as empty without a model call, and after the client's
// retries malformed model output degrades to empty rather than failing
// the session.
func (c *Classifier) Classify(ctx context.Context, curlText string, inputVariables map[string]string) ([]string, error) {
	if req, err := curl.Parse(curlText); err == nil && req.IsScript() {
		return nil, nil
	}

	names := make([]string, 0, len(inputVariables))
	for name := range inputVariables {
		names = append(names, name)
	}

	var result dynamicPartsResult
	err := c.client.CallFunction(ctx, classifierMessages(c.counter, curlText, names), identifyDynamicPartsDef(), &result)
	if err != nil {
		if isMalformed(err) {
			slog.Warn("Dynamic part classification returned unusable output, treating as none", "error", err)
			return nil, nil
		}
		return nil, err
	}

	return filterParts(result.DynamicParts, inputVariables), nil
}

// filterParts drops noise from the model's answer: empty and
// single-character strings, well-known static values, and anything
// equal to an input variable's value. Order is preserved, duplicates
// collapse onto their first occurrence.
func filterParts(parts []string, inputVariables map[string]string) []string {
	boundValues := make(map[string]bool, len(inputVariables))
	for _, value := range inputVariables {
		boundValues[value] = true
	}

	seen := make(map[string]bool, len(parts))
	var kept []string
	for _, part := range parts {
		if len(part) < 2 || seen[part] {
			continue
		}
		if staticTokens[strings.ToLower(part)] || boundValues[part] {
			continue
		}
		seen[part] = true
		kept = append(kept, part)
	}
	return kept
}
