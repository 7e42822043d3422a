package curl

import (
	"net/url"
	"strings"
	"testing"
)

func sampleRequest() *Request {
	req := NewRequest("POST", "https://api.example.com/v1/search")
	req.QueryParams.Set("page", "1")
	req.QueryParams.Set("q", "widgets")
	req.Headers.Add("Content-Type", "application/json")
	req.Headers.Add("Authorization", "Bearer tok_abc")
	req.Headers.Add("X-Api-Key", "key_123")
	req.Body = &Body{Kind: BodyJSON, JSON: map[string]interface{}{
		"query": "widgets",
		"limit": float64(10),
	}}
	return req
}

func TestRender_Deterministic(t *testing.T) {
	req := sampleRequest()

	first := req.Render()
	for i := 0; i < 5; i++ {
		if got := req.Render(); got != first {
			t.Fatalf("Render is not deterministic:\n%s\nvs\n%s", first, got)
		}
	}
}

func TestRender_Shape(t *testing.T) {
	got := sampleRequest().Render()

	want := "curl -X POST 'https://api.example.com/v1/search?page=1&q=widgets' \\\n" +
		"  -H 'Authorization: Bearer tok_abc' \\\n" +
		"  -H 'Content-Type: application/json' \\\n" +
		"  -H 'X-Api-Key: key_123' \\\n" +
		"  --data '{\"limit\":10,\"query\":\"widgets\"}'"

	if got != want {
		t.Errorf("Render:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_HeaderOrderIgnoresInsertionOrder(t *testing.T) {
	a := NewRequest("GET", "https://api.example.com/v1/me")
	a.Headers.Add("X-Api-Key", "k")
	a.Headers.Add("Authorization", "Bearer tok")

	b := NewRequest("GET", "https://api.example.com/v1/me")
	b.Headers.Add("Authorization", "Bearer tok")
	b.Headers.Add("X-Api-Key", "k")

	if a.Render() != b.Render() {
		t.Error("Expected identical rendering regardless of header insertion order")
	}
}

func TestRender_QuotesEscaped(t *testing.T) {
	req := NewRequest("POST", "https://api.example.com/v1/notes")
	req.Body = &Body{Kind: BodyRaw, Raw: "it's got quotes"}

	got := req.Render()
	if !strings.Contains(got, `--data 'it'\''s got quotes'`) {
		t.Errorf("Expected escaped single quote, got:\n%s", got)
	}
}

func TestRender_FormBody(t *testing.T) {
	req := NewRequest("POST", "https://auth.example.com/login")
	req.Headers.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Body = &Body{Kind: BodyForm, Form: url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
	}}

	got := req.Render()
	if !strings.Contains(got, "--data 'password=s3cret&username=alice'") {
		t.Errorf("Expected sorted form encoding, got:\n%s", got)
	}
}

func TestRender_NoBodyNoDataFlag(t *testing.T) {
	req := NewRequest("GET", "https://api.example.com/v1/me")
	if strings.Contains(req.Render(), "--data") {
		t.Error("Expected no --data for empty body")
	}
}

func TestRoundTrip(t *testing.T) {
	req := sampleRequest()
	rendered := req.Render()

	parsed, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Method != "POST" {
		t.Errorf("Method = %q", parsed.Method)
	}
	if parsed.BaseURL() != "https://api.example.com/v1/search" {
		t.Errorf("BaseURL = %q", parsed.BaseURL())
	}
	if parsed.QueryParams.Get("q") != "widgets" || parsed.QueryParams.Get("page") != "1" {
		t.Errorf("QueryParams = %v", parsed.QueryParams)
	}
	for _, name := range []string{"Authorization", "Content-Type", "X-Api-Key"} {
		want, _ := req.Headers.Get(name)
		got, ok := parsed.Headers.Get(name)
		if !ok || got != want {
			t.Errorf("Header %s = %q, want %q", name, got, want)
		}
	}
	if parsed.Body == nil || parsed.Body.Kind != BodyJSON {
		t.Fatalf("Expected JSON body, got %+v", parsed.Body)
	}
	tree, ok := parsed.Body.JSON.(map[string]interface{})
	if !ok || tree["query"] != "widgets" || tree["limit"] != float64(10) {
		t.Errorf("Body tree = %+v", parsed.Body.JSON)
	}

	// Rendering is a fixpoint: parse(render(r)) renders identically.
	if parsed.Render() != rendered {
		t.Errorf("Round-trip changed rendering:\n%s\nvs\n%s", rendered, parsed.Render())
	}
}

func TestRoundTrip_RawBodyWithQuotes(t *testing.T) {
	req := NewRequest("POST", "https://api.example.com/v1/notes")
	req.Headers.Add("Content-Type", "text/plain")
	req.Body = &Body{Kind: BodyRaw, Raw: "it's got quotes"}

	rendered := req.Render()
	parsed, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Body == nil || parsed.Body.Kind != BodyRaw || parsed.Body.Raw != "it's got quotes" {
		t.Errorf("Body = %+v", parsed.Body)
	}
	if parsed.Render() != rendered {
		t.Error("Round-trip changed rendering")
	}
}
