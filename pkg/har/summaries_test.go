package har

import (
	"testing"

	"github.com/harvest-ai/harvest/pkg/curl"
)

func summaryRequest(method, url, responseType string) *curl.Request {
	req := curl.NewRequest(method, url)
	switch responseType {
	case "json":
		req.Response = respondWith("application/json")
		req.Response.BodyText = `{"ok":true}`
	case "html":
		req.Response = respondWith("text/html")
		req.Response.BodyText = "<html></html>"
	case "js":
		req.Response = respondWith("application/javascript")
	case "none":
	}
	return req
}

func TestBuildSummaries_Dedupe(t *testing.T) {
	requests := []*curl.Request{
		summaryRequest("GET", "https://app.example.com/api/orders", "json"),
		summaryRequest("GET", "https://app.example.com/api/orders", "json"),
		summaryRequest("POST", "https://app.example.com/api/orders", "json"),
	}

	summaries := BuildSummaries(requests)
	if len(summaries) != 2 {
		t.Fatalf("len(summaries) = %d, want 2 after dedupe by method and URL", len(summaries))
	}
}

func TestBuildSummaries_Ranking(t *testing.T) {
	requests := []*curl.Request{
		summaryRequest("GET", "https://app.example.com/home", "html"),
		summaryRequest("GET", "https://app.example.com/api/orders", "json"),
		summaryRequest("DELETE", "https://app.example.com/api/orders/7", "json"),
		summaryRequest("POST", "https://app.example.com/api/orders", "json"),
		summaryRequest("PUT", "https://app.example.com/api/orders/7", "json"),
		summaryRequest("POST", "https://app.example.com/feedback", "html"),
	}

	summaries := BuildSummaries(requests)

	got := make([]string, len(summaries))
	for i, s := range summaries {
		got[i] = s.Method + " " + s.URL
	}
	want := []string{
		"POST https://app.example.com/api/orders",
		"PUT https://app.example.com/api/orders/7",
		"DELETE https://app.example.com/api/orders/7",
		"GET https://app.example.com/api/orders",
		"POST https://app.example.com/feedback",
		"GET https://app.example.com/home",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("summaries[%d] = %s, want %s (full order %v)", i, got[i], want[i], got)
		}
	}
}

func TestBuildSummaries_StableWithinRank(t *testing.T) {
	requests := []*curl.Request{
		summaryRequest("GET", "https://app.example.com/api/first", "json"),
		summaryRequest("GET", "https://app.example.com/api/second", "json"),
		summaryRequest("GET", "https://app.example.com/api/third", "json"),
	}

	summaries := BuildSummaries(requests)

	for i, want := range []string{"first", "second", "third"} {
		if got := summaries[i].URL; got != "https://app.example.com/api/"+want {
			t.Errorf("summaries[%d].URL = %s, capture order should break ties", i, got)
		}
	}
}

func TestClassifyRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *curl.Request
		want string
	}{
		{"api_by_url", summaryRequest("GET", "https://x.example.com/api/a", "none"), RequestTypeAPI},
		{"api_by_json_response", summaryRequest("GET", "https://x.example.com/data", "json"), RequestTypeAPI},
		{"script_asset", summaryRequest("GET", "https://x.example.com/bundle.js", "none"), RequestTypeAsset},
		{"asset_by_content_type", summaryRequest("GET", "https://x.example.com/bundle", "js"), RequestTypeAsset},
		{"page", summaryRequest("GET", "https://x.example.com/home", "html"), RequestTypePage},
		{"other", summaryRequest("GET", "https://x.example.com/ping", "none"), RequestTypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyRequest(tt.req); got != tt.want {
				t.Errorf("classifyRequest() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyResponse(t *testing.T) {
	plainText := respondWith("text/plain")
	plainText.BodyText = "pong"
	binary := respondWith("application/octet-stream")

	tests := []struct {
		name string
		resp *curl.Response
		want string
	}{
		{"nil", nil, ResponseTypeNone},
		{"json", summaryRequest("GET", "https://x/", "json").Response, ResponseTypeJSON},
		{"html", summaryRequest("GET", "https://x/", "html").Response, ResponseTypeHTML},
		{"text", plainText, ResponseTypeText},
		{"binary", binary, ResponseTypeBinary},
		{"empty", curl.NewResponse(204, "No Content"), ResponseTypeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyResponse(tt.resp); got != tt.want {
				t.Errorf("classifyResponse() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMethodRank(t *testing.T) {
	order := []string{"POST", "PUT", "DELETE", "GET", "PATCH"}
	for i := 1; i < len(order); i++ {
		if methodRank(order[i-1]) >= methodRank(order[i]) {
			t.Errorf("methodRank(%s) should come before methodRank(%s)", order[i-1], order[i])
		}
	}
}
