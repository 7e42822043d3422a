package har

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// Options controls entry filtering. The zero value applies the default
// exclusions.
type Options struct {
	// ExcludeKeywords replaces the default URL denylist entirely when
	// non-nil. An empty non-nil slice disables keyword exclusion.
	ExcludeKeywords []string

	// IncludeAllAPIRequests keeps any URL containing an API path
	// indicator before exclusion rules run.
	IncludeAllAPIRequests bool

	// PreserveAnalytics disables filtering altogether.
	PreserveAnalytics bool

	// CustomFilters exclude any URL for which a filter returns true.
	CustomFilters []func(url string) bool
}

// ParsedHAR is the normalized capture: filtered requests in capture
// order, the deduplicated and ranked URL summaries, cookies collected
// from the entries, and the validation report.
type ParsedHAR struct {
	Requests  []*curl.Request
	Summaries []URLSummary
	Cookies   *CookieJar
	Report    *ValidationReport
}

// Parse loads and normalizes a HAR file.
func Parse(path string, opts Options) (*ParsedHAR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read HAR file %s: %w", path, err)
	}
	return ParseBytes(data, opts)
}

// ParseBytes normalizes an in-memory HAR document.
func ParseBytes(data []byte, opts Options) (*ParsedHAR, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if doc.Log == nil || doc.Log.Entries == nil {
		return nil, ErrInvalidFormat
	}

	filter := newEntryFilter(opts)

	requests := make([]*curl.Request, 0, len(doc.Log.Entries))
	for _, e := range doc.Log.Entries {
		req := normalizeEntry(e)
		if filter.keep(req) {
			requests = append(requests, req)
		}
	}

	jar := extractCookies(doc.Log.Entries)

	return &ParsedHAR{
		Requests:  requests,
		Summaries: BuildSummaries(requests),
		Cookies:   jar,
		Report:    buildReport(len(doc.Log.Entries), requests, jar),
	}, nil
}

// normalizeEntry converts one HAR entry into the canonical request
// model: tracking headers dropped (auth always kept), query parameters
// unioned from the URL and the queryString records, the body
// structured, and the response attached.
func normalizeEntry(e entry) *curl.Request {
	req := curl.NewRequest(e.Request.Method, e.Request.URL)

	for _, h := range e.Request.Headers {
		if keepHeader(h.Name) {
			req.Headers.Add(h.Name, h.Value)
		}
	}

	if u, err := url.Parse(e.Request.URL); err == nil {
		for key, values := range u.Query() {
			copied := make([]string, len(values))
			copy(copied, values)
			req.QueryParams[key] = copied
		}
	}
	for _, q := range e.Request.QueryString {
		if !containsValue(req.QueryParams[q.Name], q.Value) {
			req.QueryParams.Add(q.Name, q.Value)
		}
	}

	req.Body = buildBody(e.Request.PostData)
	req.Response = buildResponse(e.Response)
	return req
}

func containsValue(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// buildBody structures the captured body: JSON when the text parses,
// raw text otherwise, a form mapping when only params were recorded.
// Malformed bodies are never fatal.
func buildBody(pd *postData) *curl.Body {
	if pd == nil {
		return nil
	}

	if pd.Text != "" {
		var tree interface{}
		if err := json.Unmarshal([]byte(pd.Text), &tree); err == nil {
			return &curl.Body{Kind: curl.BodyJSON, JSON: tree, Raw: pd.Text}
		}
		return &curl.Body{Kind: curl.BodyRaw, Raw: pd.Text}
	}

	if len(pd.Params) > 0 {
		form := url.Values{}
		for _, p := range pd.Params {
			form.Add(p.Name, p.Value)
		}
		return &curl.Body{Kind: curl.BodyForm, Form: form}
	}

	return nil
}

func buildResponse(er entryResponse) *curl.Response {
	resp := curl.NewResponse(er.Status, er.StatusText)
	for _, h := range er.Headers {
		resp.Headers.Add(h.Name, h.Value)
	}
	if er.Content != nil {
		resp.BodyText = er.Content.Text
		if !resp.Headers.Has("Content-Type") && er.Content.MimeType != "" {
			resp.Headers.Set("Content-Type", er.Content.MimeType)
		}
	}
	return resp
}

// extractCookies collects cookies seen across all entries. Response
// cookies override request cookies of the same name, and later entries
// override earlier ones, so the jar reflects the final captured state.
func extractCookies(entries []entry) *CookieJar {
	jar := NewCookieJar()
	for _, e := range entries {
		for _, c := range e.Request.Cookies {
			jar.Set(c.Name, CookieEntry{Value: c.Value, Domain: c.Domain, Path: c.Path})
		}
		if cookieHeader := headerValue(e.Request.Headers, "cookie"); cookieHeader != "" {
			for name, value := range parseCookieHeader(cookieHeader) {
				if _, exists := jar.Get(name); !exists {
					jar.Set(name, CookieEntry{Value: value})
				}
			}
		}
	}
	for _, e := range entries {
		for _, c := range e.Response.Cookies {
			jar.Set(c.Name, CookieEntry{
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			})
		}
	}
	return jar
}

func headerValue(headers []nameValue, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
