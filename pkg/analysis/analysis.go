// Package analysis implements the LLM-assisted reasoning steps of the
// pipeline: classifying which substrings of a request are dynamic,
// binding user-supplied input variables, tracing each dynamic part back
// to the cookie or prior response that produced it, and selecting the
// request that realizes the user's prompt.
//
// Provider-fatal errors (authentication, exhausted availability,
// deadlines) always surface to the caller. Malformed model output never
// does: after the client's own retries it degrades to the conservative
// answer for the step and is logged, so one bad completion cannot sink
// a session.
package analysis

import (
	"errors"

	"github.com/harvest-ai/harvest/pkg/llms"
)

// ErrNoCandidates is returned when workflow selection has no URLs to
// choose from.
var ErrNoCandidates = errors.New("no candidate URLs to choose a workflow from")

// caller bundles what every analysis step needs: the function-calling
// client and a token counter for keeping prompts inside the model's
// context.
type caller struct {
	client  *llms.Client
	counter *llms.TokenCounter
}

func newCaller(client *llms.Client) caller {
	return caller{
		client:  client,
		counter: llms.NewTokenCounter(client.Provider().ModelName()),
	}
}

// isMalformed reports whether the error is exhausted-retries malformed
// model output, the class every step degrades on.
func isMalformed(err error) bool {
	var malformed *llms.MalformedResponseError
	return errors.As(err, &malformed)
}
