package testutils

import (
	"encoding/json"
	"net/http"
	"sort"
)

// Entry describes one captured exchange for Capture. Zero-value
// response fields default to a 200 application/json reply.
type Entry struct {
	Method   string
	URL      string
	Headers  map[string]string
	BodyJSON string
	Status   int
	RespType string
	RespBody string
}

// Capture renders entries as a HAR 1.2 document.
func Capture(entries ...Entry) []byte {
	type nameValue struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	type wireEntry struct {
		Request  map[string]interface{} `json:"request"`
		Response map[string]interface{} `json:"response"`
	}

	wire := make([]wireEntry, 0, len(entries))
	for _, e := range entries {
		names := make([]string, 0, len(e.Headers))
		for name := range e.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		headers := make([]nameValue, 0, len(names))
		for _, name := range names {
			headers = append(headers, nameValue{Name: name, Value: e.Headers[name]})
		}

		request := map[string]interface{}{
			"method":  e.Method,
			"url":     e.URL,
			"headers": headers,
		}
		if e.BodyJSON != "" {
			request["postData"] = map[string]string{
				"mimeType": "application/json",
				"text":     e.BodyJSON,
			}
		}

		status := e.Status
		if status == 0 {
			status = 200
		}
		respType := e.RespType
		if respType == "" {
			respType = "application/json"
		}
		response := map[string]interface{}{
			"status":     status,
			"statusText": http.StatusText(status),
			"headers":    []nameValue{{Name: "Content-Type", Value: respType}},
			"content": map[string]string{
				"mimeType": respType,
				"text":     e.RespBody,
			},
		}

		wire = append(wire, wireEntry{Request: request, Response: response})
	}

	doc := map[string]interface{}{
		"log": map[string]interface{}{
			"version": "1.2",
			"entries": wire,
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

// LoginSearchDownloadCapture returns a three-step capture: a login
// that issues an access token, a search that spends it, and a download
// that needs both the token and the searched document id.
func LoginSearchDownloadCapture() []byte {
	return Capture(
		Entry{
			Method:   "POST",
			URL:      "https://x/api/auth/login",
			Headers:  map[string]string{"Content-Type": "application/json"},
			BodyJSON: `{"username":"u","password":"p"}`,
			RespBody: `{"access_token":"tok_abc"}`,
		},
		Entry{
			Method:   "GET",
			URL:      "https://x/api/search?query=documents&limit=10",
			Headers:  map[string]string{"Authorization": "Bearer tok_abc"},
			RespBody: `{"doc_id":"d_123"}`,
		},
		Entry{
			Method:   "GET",
			URL:      "https://x/api/documents/download?document_id=d_123&format=pdf",
			Headers:  map[string]string{"Authorization": "Bearer tok_abc"},
			RespType: "application/pdf",
			RespBody: "%PDF-1.4",
		},
	)
}

// CookieAuthCapture returns a single protected request whose auth
// material lives entirely in cookies.
func CookieAuthCapture() []byte {
	return Capture(Entry{
		Method:   "GET",
		URL:      "https://x/api/protected/data",
		Headers:  map[string]string{"Cookie": "session_id=sess_abc123; csrf_token=csrf_xyz789"},
		RespBody: `{"data":[]}`,
	})
}

// CookieAuthBundle returns the cookie file matching CookieAuthCapture.
func CookieAuthBundle() []byte {
	return []byte(`{"session_id":{"value":"sess_abc123"},"csrf_token":{"value":"csrf_xyz789"}}`)
}
