package analysis

import (
	"context"
	"log/slog"

	"github.com/harvest-ai/harvest/pkg/curl"
	"github.com/harvest-ai/harvest/pkg/har"
	"github.com/harvest-ai/harvest/pkg/llms"
)

// CookieDependency resolves a dynamic part to a cookie in the jar.
type CookieDependency struct {
	Part       string
	CookieName string
	Value      string
}

// RequestDependency resolves a dynamic part to a captured request
// whose response produced it.
type RequestDependency struct {
	Part    string
	Request *curl.Request
}

// Provenance is the outcome of tracing a set of dynamic parts.
// Slices follow the order of the parts traced.
type Provenance struct {
	CookieDependencies  []CookieDependency
	RequestDependencies []RequestDependency
	NotFoundParts       []string
}

// Finder traces dynamic parts back to their producers.
type Finder struct {
	caller
}

func NewFinder(client *llms.Client) *Finder {
	return &Finder{caller: newCaller(client)}
}

func getSimplestCurlIndexDef() llms.FunctionDef {
	return llms.FunctionDef{
		Name:        "get_simplest_curl_index",
		Description: "Choose the candidate request that most directly produces the value and is simplest to replay.",
		Parameters: llms.ObjectSchema(map[string]interface{}{
			"index": llms.IntegerProperty("Zero-based index of the chosen candidate"),
		}),
	}
}

type curlIndexResult struct {
	Index int `json:"index"`
}

// Find resolves each part, in order: the cookie jar wins on an exact
// value match, then the responses of prior requests are scanned for
// the part as a substring. Script and HTML responses are never data
// sources, and the consumer's own request is excluded. Multiple
// response candidates are tie-broken by the model; a single candidate
// skips the call.
func (f *Finder) Find(ctx context.Context, parts []string, requests []*curl.Request, jar *har.CookieJar, consumer *curl.Request) (*Provenance, error) {
	prov := &Provenance{}
	for _, part := range parts {
		if name, ok := jar.FindByValue(part); ok {
			prov.CookieDependencies = append(prov.CookieDependencies, CookieDependency{
				Part:       part,
				CookieName: name,
				Value:      part,
			})
			continue
		}

		candidates := responseCandidates(part, requests, consumer)
		if len(candidates) == 0 {
			prov.NotFoundParts = append(prov.NotFoundParts, part)
			continue
		}

		chosen := candidates[0]
		if len(candidates) > 1 {
			picked, err := f.pickSimplest(ctx, part, candidates)
			if err != nil {
				return nil, err
			}
			chosen = picked
		}
		prov.RequestDependencies = append(prov.RequestDependencies, RequestDependency{
			Part:    part,
			Request: chosen,
		})
	}
	return prov, nil
}

// responseCandidates returns the prior requests whose responses could
// have produced the part, in capture order.
func responseCandidates(part string, requests []*curl.Request, consumer *curl.Request) []*curl.Request {
	var candidates []*curl.Request
	for _, req := range requests {
		if consumer != nil && req.Method == consumer.Method && req.URL == consumer.URL {
			continue
		}
		if req.Response == nil || req.IsScript() || req.Response.IsHTML() {
			continue
		}
		if req.Response.Contains(part) {
			candidates = append(candidates, req)
		}
	}
	return candidates
}

// pickSimplest asks the model to choose among candidates. Unusable
// answers, including an index outside the list, fall back to the
// earliest capture.
func (f *Finder) pickSimplest(ctx context.Context, part string, candidates []*curl.Request) (*curl.Request, error) {
	rendered := make([]string, len(candidates))
	for i, req := range candidates {
		rendered[i] = req.Render()
	}

	var result curlIndexResult
	err := f.client.CallFunction(ctx, tieBreakMessages(f.counter, part, rendered), getSimplestCurlIndexDef(), &result)
	if err != nil {
		if isMalformed(err) {
			slog.Warn("Candidate selection returned unusable output, keeping the earliest capture", "part", part, "error", err)
			return candidates[0], nil
		}
		return nil, err
	}
	if result.Index < 0 || result.Index >= len(candidates) {
		slog.Warn("Candidate selection returned an out-of-range index, keeping the earliest capture",
			"part", part, "index", result.Index, "candidates", len(candidates))
		return candidates[0], nil
	}
	return candidates[result.Index], nil
}
