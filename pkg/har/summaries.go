package har

import (
	"sort"
	"strings"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// Request and response classifications used in URL summaries.
const (
	RequestTypeAPI   = "api"
	RequestTypePage  = "page"
	RequestTypeAsset = "asset"
	RequestTypeOther = "other"

	ResponseTypeJSON   = "json"
	ResponseTypeHTML   = "html"
	ResponseTypeText   = "text"
	ResponseTypeBinary = "binary"
	ResponseTypeNone   = "none"
)

// URLSummary is one deduplicated URL from the capture, classified for
// ranking and for compact presentation in analysis prompts.
type URLSummary struct {
	Method       string `json:"method"`
	URL          string `json:"url"`
	RequestType  string `json:"request_type"`
	ResponseType string `json:"response_type"`
}

// IsAPI reports whether the summary describes an API call, either by
// URL shape or because the response was JSON.
func (s URLSummary) IsAPI() bool {
	return s.RequestType == RequestTypeAPI
}

// BuildSummaries deduplicates requests by method and URL, keeping the
// first occurrence, then ranks them: API calls before everything else,
// and within each group modifying methods before reads. The sort is
// stable, so capture order breaks ties.
func BuildSummaries(requests []*curl.Request) []URLSummary {
	seen := make(map[string]bool, len(requests))
	summaries := make([]URLSummary, 0, len(requests))
	for _, req := range requests {
		key := req.Method + " " + req.URL
		if seen[key] {
			continue
		}
		seen[key] = true
		summaries = append(summaries, summarize(req))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if a, b := summaries[i].IsAPI(), summaries[j].IsAPI(); a != b {
			return a
		}
		return methodRank(summaries[i].Method) < methodRank(summaries[j].Method)
	})
	return summaries
}

func summarize(req *curl.Request) URLSummary {
	return URLSummary{
		Method:       req.Method,
		URL:          req.URL,
		RequestType:  classifyRequest(req),
		ResponseType: classifyResponse(req.Response),
	}
}

func classifyRequest(req *curl.Request) string {
	if IsAPIURL(req.URL) {
		return RequestTypeAPI
	}
	if req.Response != nil && req.Response.IsJSON() {
		return RequestTypeAPI
	}
	if req.IsScript() || (req.Response != nil && isAssetContentType(req.Response.ContentType())) {
		return RequestTypeAsset
	}
	if req.Response != nil && req.Response.IsHTML() {
		return RequestTypePage
	}
	return RequestTypeOther
}

func classifyResponse(resp *curl.Response) string {
	if resp == nil {
		return ResponseTypeNone
	}
	ct := resp.ContentType()
	switch {
	case resp.IsJSON():
		return ResponseTypeJSON
	case resp.IsHTML():
		return ResponseTypeHTML
	case strings.HasPrefix(ct, "text/"):
		return ResponseTypeText
	case ct == "" && resp.BodyText == "":
		return ResponseTypeNone
	default:
		return ResponseTypeBinary
	}
}

func methodRank(method string) int {
	switch method {
	case "POST":
		return 0
	case "PUT":
		return 1
	case "DELETE":
		return 2
	case "GET":
		return 3
	default:
		return 4
	}
}
