package analysis

import (
	"context"
	"log/slog"

	"github.com/harvest-ai/harvest/pkg/har"
	"github.com/harvest-ai/harvest/pkg/llms"
)

// WorkflowIdentifier selects the captured URL that realizes the user's
// prompt.
type WorkflowIdentifier struct {
	caller
}

func NewWorkflowIdentifier(client *llms.Client) *WorkflowIdentifier {
	return &WorkflowIdentifier{caller: newCaller(client)}
}

func identifyEndURLDef() llms.FunctionDef {
	return llms.FunctionDef{
		Name:        "identify_end_url",
		Description: "Name the captured URL that accomplishes the user's task.",
		Parameters: llms.ObjectSchema(map[string]interface{}{
			"url": llms.StringProperty("One of the listed URLs, exactly as shown"),
		}),
	}
}

type endURLResult struct {
	URL string `json:"url"`
}

// Identify returns the summary whose URL the model picked. When the
// model's answer is not one of the candidates, or is unusable after
// retries, selection falls back deterministically to the first
// API-tagged summary (the list is already ranked), then to the first
// summary overall. An empty list returns ErrNoCandidates.
func (w *WorkflowIdentifier) Identify(ctx context.Context, summaries []har.URLSummary, prompt string) (har.URLSummary, error) {
	if len(summaries) == 0 {
		return har.URLSummary{}, ErrNoCandidates
	}

	var result endURLResult
	err := w.client.CallFunction(ctx, workflowMessages(w.counter, prompt, summaries), identifyEndURLDef(), &result)
	if err != nil && !isMalformed(err) {
		return har.URLSummary{}, err
	}
	if err == nil {
		for _, s := range summaries {
			if s.URL == result.URL {
				return s, nil
			}
		}
	}

	fallback := summaries[0]
	for _, s := range summaries {
		if s.IsAPI() {
			fallback = s
			break
		}
	}
	slog.Warn("Workflow selection fell back to the ranked list",
		"answer", result.URL, "fallback", fallback.URL)
	return fallback, nil
}
