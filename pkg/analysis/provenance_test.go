package analysis

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/harvest-ai/harvest/pkg/curl"
	"github.com/harvest-ai/harvest/pkg/har"
	"github.com/harvest-ai/harvest/pkg/llms"
	"github.com/harvest-ai/harvest/pkg/testutils"
)

// capturedRequest builds a request with an attached JSON response.
func capturedRequest(method, rawURL, respBody string) *curl.Request {
	req := curl.NewRequest(method, rawURL)
	resp := curl.NewResponse(200, "OK")
	resp.Headers.Set("Content-Type", "application/json")
	resp.BodyText = respBody
	req.Response = resp
	return req
}

func TestFind_CookieBeatsResponses(t *testing.T) {
	jar := har.NewCookieJar()
	jar.Set("session_id", har.CookieEntry{Value: "sess_abc123"})
	producer := capturedRequest("POST", "https://x/api/auth/login", `{"session":"sess_abc123"}`)

	provider := testutils.FunctionReply(`{"index":0}`)
	finder := NewFinder(testutils.NewLLMClient(provider))

	prov, err := finder.Find(context.Background(), []string{"sess_abc123"}, []*curl.Request{producer}, jar, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := []CookieDependency{{Part: "sess_abc123", CookieName: "session_id", Value: "sess_abc123"}}
	if !reflect.DeepEqual(prov.CookieDependencies, want) {
		t.Errorf("CookieDependencies = %+v, want %+v", prov.CookieDependencies, want)
	}
	if len(prov.RequestDependencies) != 0 {
		t.Errorf("Cookie matches must not also resolve to requests: %+v", prov.RequestDependencies)
	}
	if provider.CallCount() != 0 {
		t.Errorf("Cookie resolution must not reach the model, got %d calls", provider.CallCount())
	}
}

func TestFind_SingleCandidateSkipsModel(t *testing.T) {
	producer := capturedRequest("POST", "https://x/api/auth/login", `{"access_token":"tok_abc"}`)

	provider := testutils.FunctionReply(`{"index":0}`)
	finder := NewFinder(testutils.NewLLMClient(provider))

	prov, err := finder.Find(context.Background(), []string{"tok_abc"}, []*curl.Request{producer}, har.NewCookieJar(), nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(prov.RequestDependencies) != 1 || prov.RequestDependencies[0].Request != producer {
		t.Fatalf("RequestDependencies = %+v, want the single producer", prov.RequestDependencies)
	}
	if prov.RequestDependencies[0].Part != "tok_abc" {
		t.Errorf("Part = %q, want tok_abc", prov.RequestDependencies[0].Part)
	}
	if provider.CallCount() != 0 {
		t.Errorf("A single candidate must not reach the model, got %d calls", provider.CallCount())
	}
}

func TestFind_TieBreakFollowsModelIndex(t *testing.T) {
	first := capturedRequest("GET", "https://x/home/feed", `{"token":"tok_abc","noise":true}`)
	second := capturedRequest("POST", "https://x/api/auth/login", `{"access_token":"tok_abc"}`)

	provider := testutils.FunctionReply(`{"index":1}`)
	finder := NewFinder(testutils.NewLLMClient(provider))

	prov, err := finder.Find(context.Background(), []string{"tok_abc"}, []*curl.Request{first, second}, har.NewCookieJar(), nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(prov.RequestDependencies) != 1 || prov.RequestDependencies[0].Request != second {
		t.Fatalf("RequestDependencies = %+v, want the model's pick", prov.RequestDependencies)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 tie-break call, got %d", len(calls))
	}
	user := calls[0].Messages[1].Content
	if !strings.Contains(user, "[0]") || !strings.Contains(user, "[1]") {
		t.Errorf("Tie-break prompt should index candidates, got %q", user)
	}
}

func TestFind_OutOfRangeIndexKeepsEarliest(t *testing.T) {
	first := capturedRequest("GET", "https://x/api/a", `{"v":"tok_abc"}`)
	second := capturedRequest("GET", "https://x/api/b", `{"v":"tok_abc"}`)

	provider := testutils.FunctionReply(`{"index":7}`)
	finder := NewFinder(testutils.NewLLMClient(provider))

	prov, err := finder.Find(context.Background(), []string{"tok_abc"}, []*curl.Request{first, second}, har.NewCookieJar(), nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(prov.RequestDependencies) != 1 || prov.RequestDependencies[0].Request != first {
		t.Fatalf("An out-of-range index must keep the earliest capture, got %+v", prov.RequestDependencies)
	}
}

func TestFind_MalformedTieBreakKeepsEarliest(t *testing.T) {
	first := capturedRequest("GET", "https://x/api/a", `{"v":"tok_abc"}`)
	second := capturedRequest("GET", "https://x/api/b", `{"v":"tok_abc"}`)

	provider := testutils.FunctionReply(`{"not_an_index":true}`)
	finder := NewFinder(testutils.NewLLMClient(provider))

	prov, err := finder.Find(context.Background(), []string{"tok_abc"}, []*curl.Request{first, second}, har.NewCookieJar(), nil)
	if err != nil {
		t.Fatalf("Malformed tie-break must degrade, not fail: %v", err)
	}
	if len(prov.RequestDependencies) != 1 || prov.RequestDependencies[0].Request != first {
		t.Fatalf("Expected the earliest capture, got %+v", prov.RequestDependencies)
	}
}

func TestFind_SkipsConsumerScriptsAndDocuments(t *testing.T) {
	consumer := capturedRequest("GET", "https://x/api/download", `{"echo":"tok_abc"}`)
	script := capturedRequest("GET", "https://x/static/app.js", `{"v":"tok_abc"}`)
	page := capturedRequest("GET", "https://x/home", `<div>tok_abc</div>`)
	page.Response.Headers.Set("Content-Type", "text/html")
	unanswered := curl.NewRequest("GET", "https://x/api/pending")

	provider := testutils.FunctionReply(`{"index":0}`)
	finder := NewFinder(testutils.NewLLMClient(provider))

	requests := []*curl.Request{consumer, script, page, unanswered}
	prov, err := finder.Find(context.Background(), []string{"tok_abc"}, requests, har.NewCookieJar(), consumer)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !reflect.DeepEqual(prov.NotFoundParts, []string{"tok_abc"}) {
		t.Errorf("NotFoundParts = %v, want the part unresolved", prov.NotFoundParts)
	}
	if len(prov.RequestDependencies) != 0 {
		t.Errorf("No usable producer should match, got %+v", prov.RequestDependencies)
	}
}

func TestFind_MixedProvenance(t *testing.T) {
	jar := har.NewCookieJar()
	jar.Set("csrf_token", har.CookieEntry{Value: "csrf_xyz789"})
	producer := capturedRequest("POST", "https://x/api/auth/login", `{"access_token":"tok_abc"}`)

	provider := testutils.FunctionReply(`{"index":0}`)
	finder := NewFinder(testutils.NewLLMClient(provider))

	parts := []string{"csrf_xyz789", "tok_abc", "missing_token"}
	prov, err := finder.Find(context.Background(), parts, []*curl.Request{producer}, jar, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(prov.CookieDependencies) != 1 || prov.CookieDependencies[0].CookieName != "csrf_token" {
		t.Errorf("CookieDependencies = %+v", prov.CookieDependencies)
	}
	if len(prov.RequestDependencies) != 1 || prov.RequestDependencies[0].Part != "tok_abc" {
		t.Errorf("RequestDependencies = %+v", prov.RequestDependencies)
	}
	if !reflect.DeepEqual(prov.NotFoundParts, []string{"missing_token"}) {
		t.Errorf("NotFoundParts = %v", prov.NotFoundParts)
	}
}

func TestFind_FatalTieBreakSurfaces(t *testing.T) {
	first := capturedRequest("GET", "https://x/api/a", `{"v":"tok_abc"}`)
	second := capturedRequest("GET", "https://x/api/b", `{"v":"tok_abc"}`)

	provider := &testutils.ScriptedProvider{
		CallFn: func(call int, fn llms.FunctionDef) (*llms.FunctionCall, error) {
			return nil, &llms.UnavailableError{Provider: "scripted", Err: errors.New("down")}
		},
	}
	finder := NewFinder(testutils.NewLLMClient(provider))

	_, err := finder.Find(context.Background(), []string{"tok_abc"}, []*curl.Request{first, second}, har.NewCookieJar(), nil)
	var unavailable *llms.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected UnavailableError, got %v", err)
	}
}
