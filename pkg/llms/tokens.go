package llms

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for a model so prompt builders can keep
// capture summaries inside the context window. When no encoding is
// available (tiktoken fetches vocabularies on first use, which needs
// network access) it degrades to character-based estimation.
type TokenCounter struct {
	model    string
	encoding *tiktoken.Tiktoken
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTokenCounter builds a counter for model. It never fails:
// unresolvable models fall back to cl100k_base, and a missing
// vocabulary falls back to estimation.
func NewTokenCounter(model string) *TokenCounter {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if cached, ok := encodingCache[model]; ok {
		return &TokenCounter{model: model, encoding: cached}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return &TokenCounter{model: model}
	}

	encodingCache[model] = encoding
	return &TokenCounter{model: model, encoding: encoding}
}

func (tc *TokenCounter) Model() string {
	return tc.model
}

// Count returns the token count for text, or a rounded-up four
// characters per token estimate without an encoding.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens across a prompt, including the per-turn
// framing overhead OpenAI documents for its chat format.
func (tc *TokenCounter) CountMessages(messages []Message) int {
	const tokensPerMessage = 3

	total := 3
	for _, msg := range messages {
		total += tokensPerMessage
		total += tc.Count(msg.Role)
		total += tc.Count(msg.Content)
	}
	return total
}

// TruncateToFit cuts text down to at most maxTokens tokens. Truncation
// happens on token boundaries when an encoding is available, otherwise
// on the estimated character budget.
func (tc *TokenCounter) TruncateToFit(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	if tc == nil || tc.encoding == nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return strings.ToValidUTF8(text[:limit], "")
	}

	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.encoding.Decode(tokens[:maxTokens])
}
