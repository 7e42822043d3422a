package analysis

import (
	"context"
	"log/slog"

	"github.com/harvest-ai/harvest/pkg/llms"
)

// Binder matches user-declared input variables against a request and
// removes satisfied parts from the dynamic set.
type Binder struct {
	caller
}

func NewBinder(client *llms.Client) *Binder {
	return &Binder{caller: newCaller(client)}
}

func identifyInputVariablesDef() llms.FunctionDef {
	return llms.FunctionDef{
		Name:        "identify_input_variables",
		Description: "Report which of the declared input variables appear, by value, in the command.",
		Parameters: llms.ObjectSchema(map[string]interface{}{
			"input_variables": llms.StringArrayProperty("Names of the declared variables whose values appear in the command"),
		}),
	}
}

type inputVariablesResult struct {
	InputVariables []string `json:"input_variables"`
}

// Bind returns the variables that appear in the request and the
// dynamic parts still unexplained after removing every part equal to a
// bound variable's value. Without declared variables there is nothing
// to do and no model call is made.
func (b *Binder) Bind(ctx context.Context, curlText string, variables map[string]string, dynamicParts []string) (map[string]string, []string, error) {
	remaining := append([]string(nil), dynamicParts...)
	if len(variables) == 0 {
		return map[string]string{}, remaining, nil
	}

	var result inputVariablesResult
	err := b.client.CallFunction(ctx, binderMessages(b.counter, curlText, variables), identifyInputVariablesDef(), &result)
	if err != nil {
		if isMalformed(err) {
			slog.Warn("Input variable matching returned unusable output, binding nothing", "error", err)
			return map[string]string{}, remaining, nil
		}
		return nil, nil, err
	}

	bound := make(map[string]string)
	for _, name := range result.InputVariables {
		if value, ok := variables[name]; ok {
			bound[name] = value
		}
	}

	if len(bound) == 0 {
		return bound, remaining, nil
	}
	boundValues := make(map[string]bool, len(bound))
	for _, value := range bound {
		boundValues[value] = true
	}
	kept := remaining[:0]
	for _, part := range remaining {
		if !boundValues[part] {
			kept = append(kept, part)
		}
	}
	return bound, kept, nil
}
