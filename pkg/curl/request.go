// Package curl holds the canonical HTTP request model shared by the HAR
// pipeline, the dependency analyzer and the code emitter, together with a
// deterministic curl-command rendering and its inverse. The curl text is
// the representation shown to the LLM, so rendering the same request must
// always produce identical bytes.
package curl

import (
	"net/url"
	"sort"
	"strings"
)

// Header is a named header with one or more values. Name keeps the
// casing seen first on ingest; lookups are case-insensitive.
type Header struct {
	Name   string
	Values []string
}

// Headers is a case-insensitive header collection that remembers the
// original casing for emission.
type Headers struct {
	byKey map[string]*Header
}

func NewHeaders() *Headers {
	return &Headers{byKey: make(map[string]*Header)}
}

// Add appends value under name. The first-seen casing of name wins.
func (h *Headers) Add(name, value string) {
	key := strings.ToLower(name)
	if existing, ok := h.byKey[key]; ok {
		existing.Values = append(existing.Values, value)
		return
	}
	h.byKey[key] = &Header{Name: name, Values: []string{value}}
}

// Set replaces all values under name.
func (h *Headers) Set(name, value string) {
	key := strings.ToLower(name)
	h.byKey[key] = &Header{Name: name, Values: []string{value}}
}

// Get returns the first value for name.
func (h *Headers) Get(name string) (string, bool) {
	header, ok := h.byKey[strings.ToLower(name)]
	if !ok || len(header.Values) == 0 {
		return "", false
	}
	return header.Values[0], true
}

// Values returns all values for name.
func (h *Headers) Values(name string) []string {
	header, ok := h.byKey[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return header.Values
}

func (h *Headers) Has(name string) bool {
	_, ok := h.byKey[strings.ToLower(name)]
	return ok
}

func (h *Headers) Del(name string) {
	delete(h.byKey, strings.ToLower(name))
}

func (h *Headers) Len() int {
	return len(h.byKey)
}

// Sorted returns the headers ordered alphabetically by lowercased name.
// This is the emission order for rendering.
func (h *Headers) Sorted() []Header {
	keys := make([]string, 0, len(h.byKey))
	for key := range h.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Header, 0, len(keys))
	for _, key := range keys {
		header := h.byKey[key]
		values := make([]string, len(header.Values))
		copy(values, header.Values)
		out = append(out, Header{Name: header.Name, Values: values})
	}
	return out
}

func (h *Headers) Clone() *Headers {
	clone := NewHeaders()
	for key, header := range h.byKey {
		values := make([]string, len(header.Values))
		copy(values, header.Values)
		clone.byKey[key] = &Header{Name: header.Name, Values: values}
	}
	return clone
}

// BodyKind discriminates how a request body was captured.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyForm
	BodyRaw
)

// Body is a structured request body: a parsed JSON tree, a form
// mapping, or raw text.
type Body struct {
	Kind BodyKind
	JSON interface{}
	Form url.Values
	Raw  string
}

// IsEmpty reports whether there is nothing to send.
func (b *Body) IsEmpty() bool {
	return b == nil || b.Kind == BodyNone
}

// Request is the canonical HTTP request used throughout analysis.
// Headers hold only what survives ingest filtering; QueryParams carry
// the union of the capture's query records and the URL's own query.
type Request struct {
	Method      string
	URL         string
	Headers     *Headers
	QueryParams url.Values
	Body        *Body
	Response    *Response
}

func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method:      strings.ToUpper(method),
		URL:         rawURL,
		Headers:     NewHeaders(),
		QueryParams: url.Values{},
	}
}

// BaseURL returns the URL stripped of its query and fragment.
func (r *Request) BaseURL() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		if i := strings.IndexAny(r.URL, "?#"); i >= 0 {
			return r.URL[:i]
		}
		return r.URL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// FullURL returns the base URL with the query-parameter mapping encoded
// onto it, keys in sorted order.
func (r *Request) FullURL() string {
	base := r.BaseURL()
	if len(r.QueryParams) == 0 {
		return base
	}
	return base + "?" + r.QueryParams.Encode()
}

// IsScript reports whether the request targets a script asset. Script
// URLs are never classified for dynamic parts and never serve as
// provenance sources.
func (r *Request) IsScript() bool {
	return strings.HasSuffix(strings.ToLower(r.BaseURL()), ".js")
}

// IsModifying reports whether the method implies a state change.
func (r *Request) IsModifying() bool {
	switch r.Method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

func (r *Request) Clone() *Request {
	clone := &Request{
		Method:   r.Method,
		URL:      r.URL,
		Response: r.Response,
	}
	if r.Headers != nil {
		clone.Headers = r.Headers.Clone()
	} else {
		clone.Headers = NewHeaders()
	}
	clone.QueryParams = url.Values{}
	for key, values := range r.QueryParams {
		copied := make([]string, len(values))
		copy(copied, values)
		clone.QueryParams[key] = copied
	}
	if r.Body != nil {
		body := *r.Body
		if r.Body.Form != nil {
			body.Form = url.Values{}
			for key, values := range r.Body.Form {
				copied := make([]string, len(values))
				copy(copied, values)
				body.Form[key] = copied
			}
		}
		clone.Body = &body
	}
	return clone
}
