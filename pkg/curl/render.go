package curl

import (
	"encoding/json"
	"strings"
)

// Render produces the curl command for this request. The output is
// deterministic: headers are sorted alphabetically (original casing
// kept), query keys are sorted by the encoder, and JSON bodies are
// compacted with sorted object keys. Rendering the same request twice
// yields identical bytes.
func (r *Request) Render() string {
	var b strings.Builder

	b.WriteString("curl -X ")
	b.WriteString(r.Method)
	b.WriteString(" ")
	b.WriteString(shellQuote(r.FullURL()))

	if r.Headers != nil {
		for _, header := range r.Headers.Sorted() {
			for _, value := range header.Values {
				b.WriteString(" \\\n  -H ")
				b.WriteString(shellQuote(header.Name + ": " + value))
			}
		}
	}

	if !r.Body.IsEmpty() {
		b.WriteString(" \\\n  --data ")
		b.WriteString(shellQuote(r.Body.Text()))
	}

	return b.String()
}

// Text returns the canonical wire text of the body: compact JSON with
// sorted keys, an encoded form, or the raw capture.
func (b *Body) Text() string {
	if b == nil {
		return ""
	}
	switch b.Kind {
	case BodyJSON:
		raw, err := json.Marshal(b.JSON)
		if err != nil {
			return b.Raw
		}
		return string(raw)
	case BodyForm:
		return b.Form.Encode()
	case BodyRaw:
		return b.Raw
	default:
		return ""
	}
}

// ContentType returns the media type implied by the body kind, or ""
// when the capture gave no hint.
func (b *Body) ContentType() string {
	if b == nil {
		return ""
	}
	switch b.Kind {
	case BodyJSON:
		return "application/json"
	case BodyForm:
		return "application/x-www-form-urlencoded"
	default:
		return ""
	}
}

// shellQuote single-quotes s for a POSIX shell, closing and reopening
// the quotes around embedded single quotes.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
