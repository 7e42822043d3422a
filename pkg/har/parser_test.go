package har

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harvest-ai/harvest/pkg/curl"
)

const captureFixture = `{
  "log": {
    "version": "1.2",
    "entries": [
      {
        "startedDateTime": "2025-01-15T10:00:00.000Z",
        "request": {
          "method": "GET",
          "url": "https://app.example.com/api/orders?status=open",
          "headers": [
            {"name": "Authorization", "value": "Bearer tok_live_1"},
            {"name": "Accept", "value": "application/json"},
            {"name": "User-Agent", "value": "Mozilla/5.0"},
            {"name": "Cookie", "value": "session_id=sess_abc123"},
            {"name": "X-Request-Id", "value": "req-1"}
          ],
          "queryString": [
            {"name": "status", "value": "open"},
            {"name": "page", "value": "1"}
          ],
          "cookies": [{"name": "session_id", "value": "sess_abc123"}]
        },
        "response": {
          "status": 200,
          "statusText": "OK",
          "headers": [{"name": "Content-Type", "value": "application/json; charset=utf-8"}],
          "content": {"mimeType": "application/json", "text": "{\"orders\":[{\"id\":7}]}"}
        }
      },
      {
        "startedDateTime": "2025-01-15T10:00:01.000Z",
        "request": {
          "method": "OPTIONS",
          "url": "https://app.example.com/api/orders",
          "headers": []
        },
        "response": {"status": 204, "statusText": "No Content"}
      },
      {
        "startedDateTime": "2025-01-15T10:00:02.000Z",
        "request": {
          "method": "GET",
          "url": "https://www.google-analytics.com/collect?v=1",
          "headers": []
        },
        "response": {"status": 200, "statusText": "OK"}
      },
      {
        "startedDateTime": "2025-01-15T10:00:03.000Z",
        "request": {
          "method": "GET",
          "url": "https://app.example.com/static/app.js",
          "headers": []
        },
        "response": {
          "status": 200,
          "statusText": "OK",
          "headers": [{"name": "Content-Type", "value": "application/javascript"}]
        }
      },
      {
        "startedDateTime": "2025-01-15T10:00:04.000Z",
        "request": {
          "method": "POST",
          "url": "https://app.example.com/api/orders",
          "headers": [
            {"name": "Content-Type", "value": "application/json"},
            {"name": "Cookie", "value": "session_id=sess_abc123"}
          ],
          "postData": {"mimeType": "application/json", "text": "{\"item\":\"widget\"}"}
        },
        "response": {
          "status": 201,
          "statusText": "Created",
          "headers": [{"name": "Content-Type", "value": "application/json"}],
          "content": {"mimeType": "application/json", "text": "{\"id\":99}"}
        }
      },
      {
        "startedDateTime": "2025-01-15T10:00:05.000Z",
        "request": {
          "method": "GET",
          "url": "https://app.example.com/login",
          "headers": []
        },
        "response": {
          "status": 200,
          "statusText": "OK",
          "cookies": [{"name": "csrf_token", "value": "csrf_xyz789", "domain": ".example.com", "path": "/"}],
          "content": {"mimeType": "text/html", "text": "<html><body>login</body></html>"}
        }
      }
    ]
  }
}`

func TestParseBytes(t *testing.T) {
	parsed, err := ParseBytes([]byte(captureFixture), Options{})
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}

	if got := len(parsed.Requests); got != 3 {
		t.Fatalf("len(Requests) = %d, want 3", got)
	}

	first := parsed.Requests[0]
	if first.Method != "GET" || first.URL != "https://app.example.com/api/orders?status=open" {
		t.Errorf("first request = %s %s", first.Method, first.URL)
	}
	if !first.Headers.Has("Authorization") {
		t.Error("Authorization header was dropped")
	}
	if !first.Headers.Has("Cookie") {
		t.Error("Cookie header was dropped")
	}
	if !first.Headers.Has("X-Request-Id") {
		t.Error("X-Request-Id header was dropped")
	}
	if first.Headers.Has("Accept") {
		t.Error("Accept header survived filtering")
	}
	if first.Headers.Has("User-Agent") {
		t.Error("User-Agent header survived filtering")
	}

	if got := first.QueryParams["status"]; len(got) != 1 || got[0] != "open" {
		t.Errorf("QueryParams[status] = %v, want [open]", got)
	}
	if got := first.QueryParams["page"]; len(got) != 1 || got[0] != "1" {
		t.Errorf("QueryParams[page] = %v, want [1]", got)
	}

	if first.Response == nil || first.Response.Status != 200 {
		t.Fatalf("first response = %+v", first.Response)
	}
	if !first.Response.IsJSON() {
		t.Error("first response should be JSON")
	}

	post := parsed.Requests[1]
	if post.Method != "POST" {
		t.Fatalf("second kept request method = %s, want POST", post.Method)
	}
	if post.Body == nil || post.Body.Kind != curl.BodyJSON {
		t.Fatalf("POST body = %+v, want structured JSON", post.Body)
	}

	login := parsed.Requests[2]
	if login.URL != "https://app.example.com/login" {
		t.Fatalf("third kept request = %s", login.URL)
	}
	if ct := login.Response.ContentType(); ct != "text/html" {
		t.Errorf("login response content type = %q, want text/html from content.mimeType", ct)
	}
}

func TestParseBytes_Cookies(t *testing.T) {
	parsed, err := ParseBytes([]byte(captureFixture), Options{})
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}

	if got := parsed.Cookies.Len(); got != 2 {
		t.Fatalf("cookie jar size = %d, want 2", got)
	}
	if entry, ok := parsed.Cookies.Get("session_id"); !ok || entry.Value != "sess_abc123" {
		t.Errorf("session_id = %+v, %v", entry, ok)
	}
	entry, ok := parsed.Cookies.Get("csrf_token")
	if !ok || entry.Value != "csrf_xyz789" {
		t.Fatalf("csrf_token = %+v, %v", entry, ok)
	}
	if entry.Domain != ".example.com" || entry.Path != "/" {
		t.Errorf("csrf_token attributes = %+v", entry)
	}
}

func TestParseBytes_Report(t *testing.T) {
	parsed, err := ParseBytes([]byte(captureFixture), Options{})
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}

	counts := parsed.Report.Counts
	if counts.TotalEntries != 6 {
		t.Errorf("TotalEntries = %d, want 6", counts.TotalEntries)
	}
	if counts.Relevant != 3 {
		t.Errorf("Relevant = %d, want 3", counts.Relevant)
	}
	if counts.APIRequests != 2 {
		t.Errorf("APIRequests = %d, want 2", counts.APIRequests)
	}
	if counts.ModifyingRequests != 1 {
		t.Errorf("ModifyingRequests = %d, want 1", counts.ModifyingRequests)
	}
	if counts.ResponsesWithContent != 3 {
		t.Errorf("ResponsesWithContent = %d, want 3", counts.ResponsesWithContent)
	}
	if counts.AuthRequests != 2 {
		t.Errorf("AuthRequests = %d, want 2", counts.AuthRequests)
	}
	if counts.TokenRequests != 1 {
		t.Errorf("TokenRequests = %d, want 1", counts.TokenRequests)
	}
	if counts.AuthErrors != 0 {
		t.Errorf("AuthErrors = %d, want 0", counts.AuthErrors)
	}

	if parsed.Report.Quality != QualityGood {
		t.Errorf("Quality = %s, want %s", parsed.Report.Quality, QualityGood)
	}
	if !parsed.Report.Auth.HasCookies {
		t.Error("report should note cookies")
	}
	if !parsed.Report.Auth.HasAuthHeaders {
		t.Error("report should note auth headers")
	}
}

func TestParseBytes_Summaries(t *testing.T) {
	parsed, err := ParseBytes([]byte(captureFixture), Options{})
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}

	if got := len(parsed.Summaries); got != 3 {
		t.Fatalf("len(Summaries) = %d, want 3", got)
	}

	first := parsed.Summaries[0]
	if first.Method != "POST" || !first.IsAPI() {
		t.Errorf("first summary = %+v, want the POST API call ranked first", first)
	}
	second := parsed.Summaries[1]
	if second.Method != "GET" || !second.IsAPI() {
		t.Errorf("second summary = %+v, want the GET API call", second)
	}
	last := parsed.Summaries[2]
	if last.URL != "https://app.example.com/login" || last.IsAPI() {
		t.Errorf("last summary = %+v, want the login page", last)
	}
}

func TestParseBytes_InvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not_json", "not a har file"},
		{"empty_object", "{}"},
		{"log_without_entries", `{"log": {"version": "1.2"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.data), Options{})
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("ParseBytes(%q) error = %v, want ErrInvalidFormat", tt.data, err)
			}
		})
	}
}

func TestParseBytes_EmptyEntries(t *testing.T) {
	parsed, err := ParseBytes([]byte(`{"log": {"entries": []}}`), Options{})
	if err != nil {
		t.Fatalf("ParseBytes() error = %v, an explicit empty list is a valid capture", err)
	}
	if len(parsed.Requests) != 0 {
		t.Errorf("len(Requests) = %d, want 0", len(parsed.Requests))
	}
	if parsed.Report.Quality != QualityEmpty {
		t.Errorf("Quality = %s, want %s", parsed.Report.Quality, QualityEmpty)
	}
}

func TestParse_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.har")
	if err := os.WriteFile(path, []byte(captureFixture), 0o600); err != nil {
		t.Fatal(err)
	}

	parsed, err := Parse(path, Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed.Requests) != 3 {
		t.Errorf("len(Requests) = %d, want 3", len(parsed.Requests))
	}
}

func TestParse_MissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.har"), Options{})
	if err == nil {
		t.Fatal("Parse() expected an error for a missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Parse() error = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestBuildBody(t *testing.T) {
	tests := []struct {
		name     string
		postData *postData
		wantKind curl.BodyKind
		wantNil  bool
	}{
		{"nil", nil, 0, true},
		{"empty", &postData{}, 0, true},
		{"json_text", &postData{MimeType: "application/json", Text: `{"a":1}`}, curl.BodyJSON, false},
		{"raw_text", &postData{MimeType: "text/plain", Text: "hello world"}, curl.BodyRaw, false},
		{"form_params", &postData{
			MimeType: "application/x-www-form-urlencoded",
			Params:   []nameValue{{Name: "user", Value: "alice"}, {Name: "pass", Value: "s3cret"}},
		}, curl.BodyForm, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := buildBody(tt.postData)
			if tt.wantNil {
				if body != nil {
					t.Fatalf("buildBody() = %+v, want nil", body)
				}
				return
			}
			if body == nil || body.Kind != tt.wantKind {
				t.Fatalf("buildBody() = %+v, want kind %d", body, tt.wantKind)
			}
		})
	}
}

func TestNormalizeEntry_QueryUnion(t *testing.T) {
	e := entry{
		Request: entryRequest{
			Method: "GET",
			URL:    "https://app.example.com/api/items?limit=10",
			QueryString: []nameValue{
				{Name: "limit", Value: "10"},
				{Name: "limit", Value: "20"},
				{Name: "offset", Value: "5"},
			},
		},
	}
	req := normalizeEntry(e)

	if got := req.QueryParams["limit"]; len(got) != 2 || got[0] != "10" || got[1] != "20" {
		t.Errorf("QueryParams[limit] = %v, want exact duplicates collapsed but distinct values kept", got)
	}
	if got := req.QueryParams["offset"]; len(got) != 1 || got[0] != "5" {
		t.Errorf("QueryParams[offset] = %v, want [5]", got)
	}
}
