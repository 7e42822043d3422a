package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harvest-ai/harvest/pkg/session"
)

// createSessionRequest starts a session from files on the server's
// filesystem. InputVariables may pre-declare known values so they are
// bound instead of traced.
type createSessionRequest struct {
	HarPath        string            `json:"har_path"`
	Prompt         string            `json:"prompt"`
	CookiePath     string            `json:"cookie_path,omitempty"`
	InputVariables map[string]string `json:"input_variables,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.HarPath == "" {
		writeBadRequest(w, "har_path is required")
		return
	}
	if req.Prompt == "" {
		writeBadRequest(w, "prompt is required")
		return
	}

	sess, err := s.manager.Create(r.Context(), session.StartSession{
		HarPath:        req.HarPath,
		Prompt:         req.Prompt,
		CookiePath:     req.CookiePath,
		InputVariables: req.InputVariables,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, http.StatusCreated, map[string]interface{}{
		"session": sess.Snapshot(),
		"report":  sess.Report(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.manager.List()
	snapshots := make([]session.Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		snapshots = append(snapshots, sess.Snapshot())
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"count":    len(snapshots),
		"sessions": snapshots,
	})
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	cleared := s.manager.ClearAll(r.Context())
	writeResult(w, http.StatusOK, map[string]interface{}{"cleared": cleared})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (s *Server) handleIdentifyWorkflow(w http.ResponseWriter, r *http.Request) {
	s.dispatchEvent(w, r, session.IdentifyWorkflow{})
}

func (s *Server) handleProcessNext(w http.ResponseWriter, r *http.Request) {
	s.dispatchEvent(w, r, session.ProcessNextNode{})
}

// addVariableRequest declares one user-supplied value.
type addVariableRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *Server) handleAddVariable(w http.ResponseWriter, r *http.Request) {
	var req addVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}
	s.dispatchEvent(w, r, session.AddInputVariable{Name: req.Name, Value: req.Value})
}

// dispatchEvent applies one event to the addressed session and returns
// the updated snapshot.
func (s *Server) dispatchEvent(w http.ResponseWriter, r *http.Request, ev session.Event) {
	sess, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Handle(r.Context(), ev); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.AnalyzeCompletionState(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, report)
}

func (s *Server) handleBlockers(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.AnalyzeCompletionState(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"can_generate_code": report.CanGenerateCode,
		"blockers":          report.Blockers,
		"recommendations":   report.Recommendations,
	})
}

func (s *Server) handleUnresolved(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	unresolved := sess.Unresolved()
	writeResult(w, http.StatusOK, map[string]interface{}{
		"count":      len(unresolved),
		"unresolved": unresolved,
	})
}

// requestSummary is one captured request in listing form.
type requestSummary struct {
	Index  int    `json:"index"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	requests := sess.Requests()
	summaries := make([]requestSummary, 0, len(requests))
	for i, req := range requests {
		summaries = append(summaries, requestSummary{Index: i, Method: req.Method, URL: req.URL})
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"count":    len(summaries),
		"requests": summaries,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	graph, err := sess.GraphJSON()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(graph)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	logs := sess.Logs()
	writeResult(w, http.StatusOK, map[string]interface{}{
		"count": len(logs),
		"logs":  logs,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	code, path, err := s.manager.GenerateCode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"path": path,
		"code": code,
	})
}
