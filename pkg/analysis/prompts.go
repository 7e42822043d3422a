package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harvest-ai/harvest/pkg/har"
	"github.com/harvest-ai/harvest/pkg/llms"
)

// Token budgets for the variable-size pieces of each prompt. Captured
// bodies can be arbitrarily large; everything else in these prompts is
// small and fixed.
const (
	curlTextTokenBudget  = 3000
	candidateTokenBudget = 1200
	summaryTokenBudget   = 4000
)

// truncationMarker is appended whenever prompt text was cut, so
// truncation is visible to the model and deterministic for tests.
const truncationMarker = "\n[truncated]"

// fitText truncates text to the token budget, marking the cut.
func fitText(counter *llms.TokenCounter, text string, budget int) string {
	if counter.Count(text) <= budget {
		return text
	}
	return counter.TruncateToFit(text, budget) + truncationMarker
}

func classifierMessages(counter *llms.TokenCounter, curlText string, variableNames []string) []llms.Message {
	var sb strings.Builder
	sb.WriteString("You are analyzing one HTTP request captured from a browser session. ")
	sb.WriteString("Identify every substring whose value the client could not have known ahead of time: ")
	sb.WriteString("session identifiers, csrf tokens, bearer tokens, nonces, and record ids that earlier ")
	sb.WriteString("responses or cookies must have produced. Report each one exactly as it appears. ")
	sb.WriteString("Do not report static values such as content types, booleans, or HTTP method names.")
	if len(variableNames) > 0 {
		names := append([]string(nil), variableNames...)
		sort.Strings(names)
		sb.WriteString(" The user can supply these input variables: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(". Values bound to them are provided by the user, not by earlier requests.")
	}

	return []llms.Message{
		{Role: llms.RoleSystem, Content: sb.String()},
		{Role: llms.RoleUser, Content: fitText(counter, curlText, curlTextTokenBudget)},
	}
}

func binderMessages(counter *llms.TokenCounter, curlText string, variables map[string]string) []llms.Message {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("The user declared input variables for this workflow. ")
	sb.WriteString("Report which of them appear, by value, in the request below.\n\nVariables:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s = %s\n", name, variables[name])
	}
	sb.WriteString("\nRequest:\n")
	sb.WriteString(fitText(counter, curlText, curlTextTokenBudget))

	return []llms.Message{
		{Role: llms.RoleSystem, Content: "You match declared input variables against an HTTP request. Only report variables whose value actually appears in the request text."},
		{Role: llms.RoleUser, Content: sb.String()},
	}
}

func tieBreakMessages(counter *llms.TokenCounter, part string, candidates []string) []llms.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The value %q appears in the responses of %d captured requests. ", part, len(candidates))
	sb.WriteString("Pick the request that most directly produces it and is simplest to replay: ")
	sb.WriteString("prefer dedicated API calls over page loads, and fewer moving parts over more.\n")
	for i, candidate := range candidates {
		fmt.Fprintf(&sb, "\n[%d]\n%s\n", i, fitText(counter, candidate, candidateTokenBudget))
	}

	return []llms.Message{
		{Role: llms.RoleSystem, Content: "You select the best producer among captured HTTP requests. Answer with the zero-based index of your choice."},
		{Role: llms.RoleUser, Content: sb.String()},
	}
}

func workflowMessages(counter *llms.TokenCounter, prompt string, summaries []har.URLSummary) []llms.Message {
	var sb strings.Builder
	sb.WriteString("Task described by the user:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nCaptured requests, most relevant first:\n")
	var lines strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&lines, "%s %s (%s, %s)\n", s.Method, s.URL, s.RequestType, s.ResponseType)
	}
	sb.WriteString(fitText(counter, lines.String(), summaryTokenBudget))
	sb.WriteString("\nWhich URL is the one that accomplishes the task?")

	return []llms.Message{
		{Role: llms.RoleSystem, Content: "You pick the single captured URL that realizes the user's goal. It must be one of the listed URLs, spelled exactly as shown."},
		{Role: llms.RoleUser, Content: sb.String()},
	}
}
