package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/har"
	"github.com/harvest-ai/harvest/pkg/llms"
	"github.com/harvest-ai/harvest/pkg/session"
	"github.com/harvest-ai/harvest/pkg/testutils"
)

func newTestServer(t *testing.T, provider llms.Provider) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.OutputDir = filepath.Join(t.TempDir(), "output")
	manager := session.NewManager(testutils.NewLLMClient(provider), cfg)
	srv, err := New(Options{Config: cfg, Manager: manager})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

// cookieAuthProvider scripts the model for the cookie-authenticated
// capture: the protected request realizes the prompt, and both its
// dynamic parts trace to cookies.
func cookieAuthProvider() *testutils.ScriptedProvider {
	p := &testutils.ScriptedProvider{}
	p.CallFn = func(call int, fn llms.FunctionDef) (*llms.FunctionCall, error) {
		switch fn.Name {
		case "identify_end_url":
			return &llms.FunctionCall{Name: fn.Name, Arguments: json.RawMessage(`{"url":"https://x/api/protected/data"}`)}, nil
		case "identify_dynamic_parts":
			return &llms.FunctionCall{Name: fn.Name, Arguments: json.RawMessage(`{"dynamic_parts":["sess_abc123","csrf_xyz789"]}`)}, nil
		}
		return nil, fmt.Errorf("unexpected function %s", fn.Name)
	}
	return p
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrorBody      `json:"error"`
}

func do(t *testing.T, srv *Server, method, path string, body interface{}) (int, testEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid envelope %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func writeCapture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &testutils.ScriptedProvider{})

	status, env := do(t, srv, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("healthz = %d %+v", status, env)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, cookieAuthProvider())

	status, env := do(t, srv, http.MethodPost, "/sessions", createSessionRequest{
		HarPath:    writeCapture(t, "capture.har", testutils.CookieAuthCapture()),
		Prompt:     "Fetch protected data",
		CookiePath: writeCapture(t, "cookies.json", testutils.CookieAuthBundle()),
	})
	if status != http.StatusCreated {
		t.Fatalf("create = %d %+v", status, env)
	}
	var created struct {
		Session session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(env.Result, &created); err != nil {
		t.Fatal(err)
	}
	id := created.Session.ID
	if created.Session.State != session.StateAwaitingWorkflowSelection {
		t.Fatalf("state = %s, want %s", created.Session.State, session.StateAwaitingWorkflowSelection)
	}

	status, env = do(t, srv, http.MethodPost, "/sessions/"+id+"/workflow", nil)
	if status != http.StatusOK {
		t.Fatalf("workflow = %d %+v", status, env.Error)
	}

	var snap session.Snapshot
	for i := 0; i < 10; i++ {
		if err := json.Unmarshal(env.Result, &snap); err != nil {
			t.Fatal(err)
		}
		if snap.State != session.StateProcessingDependencies {
			break
		}
		status, env = do(t, srv, http.MethodPost, "/sessions/"+id+"/process", nil)
		if status != http.StatusOK {
			t.Fatalf("process = %d %+v", status, env.Error)
		}
	}
	if snap.State != session.StateReadyForCodeGen {
		t.Fatalf("state after processing = %s, want %s", snap.State, session.StateReadyForCodeGen)
	}

	status, env = do(t, srv, http.MethodGet, "/sessions/"+id+"/complete", nil)
	if status != http.StatusOK {
		t.Fatalf("complete = %d %+v", status, env.Error)
	}
	var report struct {
		CanGenerateCode bool `json:"can_generate_code"`
	}
	if err := json.Unmarshal(env.Result, &report); err != nil {
		t.Fatal(err)
	}
	if !report.CanGenerateCode {
		t.Fatalf("can_generate_code = false: %s", env.Result)
	}

	status, env = do(t, srv, http.MethodPost, "/sessions/"+id+"/generate", nil)
	if status != http.StatusOK {
		t.Fatalf("generate = %d %+v", status, env.Error)
	}
	var generated struct {
		Path string `json:"path"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(env.Result, &generated); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(generated.Code, "async function") {
		t.Errorf("generated code looks wrong:\n%s", generated.Code)
	}
	if _, err := os.Stat(generated.Path); err != nil {
		t.Errorf("generated file not on disk: %v", err)
	}

	status, env = do(t, srv, http.MethodDelete, "/sessions/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("delete = %d %+v", status, env.Error)
	}
	if status, _ = do(t, srv, http.MethodGet, "/sessions/"+id, nil); status != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", status)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	srv := newTestServer(t, &testutils.ScriptedProvider{})

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", rec.Code)
	}

	status, env := do(t, srv, http.MethodPost, "/sessions", createSessionRequest{Prompt: "x"})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != CodeInvalidRequest {
		t.Errorf("missing har_path = %d %+v, want 400 %s", status, env.Error, CodeInvalidRequest)
	}

	status, env = do(t, srv, http.MethodPost, "/sessions", createSessionRequest{HarPath: "/tmp/x.har"})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != CodeInvalidRequest {
		t.Errorf("missing prompt = %d %+v, want 400 %s", status, env.Error, CodeInvalidRequest)
	}
}

func TestCreateSessionEmptyCapture(t *testing.T) {
	srv := newTestServer(t, &testutils.ScriptedProvider{})

	status, env := do(t, srv, http.MethodPost, "/sessions", createSessionRequest{
		HarPath: writeCapture(t, "empty.har", testutils.Capture()),
		Prompt:  "anything",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("empty capture = %d %+v", status, env)
	}
	if env.Error == nil || env.Error.Code != CodeEmptyHar {
		t.Fatalf("error = %+v, want code %s", env.Error, CodeEmptyHar)
	}
	if len(env.Error.Recommendations) == 0 {
		t.Error("empty capture should come with recommendations")
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t, &testutils.ScriptedProvider{})

	for _, path := range []string{
		"/sessions/ghost",
		"/sessions/ghost/complete",
		"/sessions/ghost/requests",
	} {
		status, env := do(t, srv, http.MethodGet, path, nil)
		if status != http.StatusNotFound || env.Error == nil || env.Error.Code != CodeSessionNotFound {
			t.Errorf("GET %s = %d %+v, want 404 %s", path, status, env.Error, CodeSessionNotFound)
		}
	}
}

func TestGenerateBeforeReadyConflicts(t *testing.T) {
	srv := newTestServer(t, cookieAuthProvider())

	_, env := do(t, srv, http.MethodPost, "/sessions", createSessionRequest{
		HarPath: writeCapture(t, "capture.har", testutils.CookieAuthCapture()),
		Prompt:  "Fetch protected data",
	})
	var created struct {
		Session session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(env.Result, &created); err != nil {
		t.Fatal(err)
	}

	status, env := do(t, srv, http.MethodPost, "/sessions/"+created.Session.ID+"/generate", nil)
	if status != http.StatusConflict || env.Error == nil || env.Error.Code != CodeInvalidTransition {
		t.Fatalf("generate from %s = %d %+v, want 409 %s",
			session.StateAwaitingWorkflowSelection, status, env.Error, CodeInvalidTransition)
	}
}

func TestRequestsListing(t *testing.T) {
	srv := newTestServer(t, &testutils.ScriptedProvider{})

	_, env := do(t, srv, http.MethodPost, "/sessions", createSessionRequest{
		HarPath: writeCapture(t, "capture.har", testutils.LoginSearchDownloadCapture()),
		Prompt:  "Download documents",
	})
	var created struct {
		Session session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(env.Result, &created); err != nil {
		t.Fatal(err)
	}

	status, env := do(t, srv, http.MethodGet, "/sessions/"+created.Session.ID+"/requests", nil)
	if status != http.StatusOK {
		t.Fatalf("requests = %d %+v", status, env.Error)
	}
	var listing struct {
		Count    int              `json:"count"`
		Requests []requestSummary `json:"requests"`
	}
	if err := json.Unmarshal(env.Result, &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 3 {
		t.Fatalf("count = %d, want 3 captured requests", listing.Count)
	}
	if listing.Requests[0].Method == "" || listing.Requests[0].URL == "" {
		t.Errorf("summary missing fields: %+v", listing.Requests[0])
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err        error
		wantCode   string
		wantStatus int
	}{
		{har.ErrInvalidFormat, CodeInvalidHarFormat, http.StatusBadRequest},
		{har.ErrEmptyHar, CodeEmptyHar, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", har.ErrEmptyHar), CodeEmptyHar, http.StatusBadRequest},
		{session.ErrSessionNotFound, CodeSessionNotFound, http.StatusNotFound},
		{session.ErrAtCapacity, CodeSessionAtCapacity, http.StatusTooManyRequests},
		{llms.ErrNoProviderConfigured, CodeNoProvider, http.StatusInternalServerError},
		{llms.ErrMissingAPIKey, CodeMissingAPIKey, http.StatusInternalServerError},
		{&llms.TimeoutError{Provider: "openai"}, CodeLlmTimeout, http.StatusGatewayTimeout},
		{&llms.APIError{Provider: "openai", StatusCode: 500}, CodeProviderAPIRejected, http.StatusBadGateway},
		{&session.InvalidTransitionError{}, CodeInvalidTransition, http.StatusConflict},
		{fmt.Errorf("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		body := ClassifyError(tt.err)
		if body.Code != tt.wantCode {
			t.Errorf("ClassifyError(%v).Code = %s, want %s", tt.err, body.Code, tt.wantCode)
		}
		if got := httpStatus(body.Code); got != tt.wantStatus {
			t.Errorf("httpStatus(%s) = %d, want %d", body.Code, got, tt.wantStatus)
		}
	}

	unauth := ClassifyError(&llms.APIError{Provider: "openai", StatusCode: 401})
	if len(unauth.Recommendations) == 0 {
		t.Error("401 from the provider should recommend key setup")
	}
}

func TestEnvelopeShape(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, session.ErrSessionNotFound)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Success || env.Error == nil || env.Error.Message == "" {
		t.Errorf("error envelope = %+v", env)
	}
}
