package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harvest-ai/harvest/pkg/analysis"
	"github.com/harvest-ai/harvest/pkg/curl"
	"github.com/harvest-ai/harvest/pkg/dag"
	"github.com/harvest-ai/harvest/pkg/emitter"
	"github.com/harvest-ai/harvest/pkg/har"
)

// start parses the capture, merges any cookie bundle, and leaves the
// session waiting for workflow selection.
func (s *Session) start(ev StartSession) error {
	s.mu.Lock()
	s.prompt = ev.Prompt
	for name, value := range ev.InputVariables {
		s.inputVars[name] = value
	}
	s.mu.Unlock()

	s.setState(StateParsingHar)
	s.logf("info", "Parsing capture %s", ev.HarPath)

	parsed, err := har.Parse(ev.HarPath, har.Options{})
	if err != nil {
		return err
	}
	if len(parsed.Requests) == 0 {
		return har.ErrEmptyHar
	}

	jar := parsed.Cookies
	if ev.CookiePath != "" {
		bundle, err := har.LoadCookieFile(ev.CookiePath)
		if err != nil {
			return err
		}
		jar.Merge(bundle)
		s.logf("info", "Merged cookie bundle %s", ev.CookiePath)
	}

	s.mu.Lock()
	s.parsed = parsed
	s.jar = jar
	s.mu.Unlock()

	s.logf("info", "Capture quality %s: %d of %d entries relevant",
		parsed.Report.Quality, parsed.Report.Counts.Relevant, parsed.Report.Counts.TotalEntries)
	for _, issue := range parsed.Report.Issues {
		s.logf("warn", "Capture issue: %s", issue)
	}

	s.setState(StateAwaitingWorkflowSelection)
	return nil
}

// identifyWorkflow asks the model which captured request fulfills the
// prompt, seeds the graph with it as the master node, and enters the
// processing loop.
func (s *Session) identifyWorkflow(ctx context.Context) error {
	summary, err := s.analysis.Workflow.Identify(ctx, s.parsed.Summaries, s.prompt)
	if err != nil {
		return err
	}

	var master *curl.Request
	for _, req := range s.parsed.Requests {
		if req.Method == summary.Method && req.URL == summary.URL {
			master = req
			break
		}
	}
	if master == nil {
		return fmt.Errorf("identified workflow %s %s has no captured request", summary.Method, summary.URL)
	}

	s.mu.Lock()
	id, err := s.graph.AddNode(dag.NodeSpec{Type: dag.NodeMasterCurl, Request: master})
	if err == nil {
		s.queue = append(s.queue, id)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logf("info", "Workflow target %s %s (%s)", summary.Method, summary.URL, id)
	s.setState(StateProcessingDependencies)
	return nil
}

// processNextNode analyzes one queued node: renders it, identifies
// its dynamic parts, binds declared input variables, traces the rest
// to producers, and records the resulting nodes and edges. An empty
// queue over a complete graph ends the loop. A pending cancel aborts
// between the model calls.
func (s *Session) processNextNode(ctx context.Context) error {
	id, ok := s.popQueue()
	if !ok {
		s.mu.Lock()
		s.complete = s.graph.IsComplete()
		complete := s.complete
		nodes, edges := s.graph.Len(), len(s.graph.Edges())
		s.mu.Unlock()

		if !complete {
			s.logf("warn", "Queue is empty but the graph has unresolved dependencies")
			return nil
		}
		s.logf("info", "Analysis complete: %d nodes, %d edges", nodes, edges)
		s.setState(StateReadyForCodeGen)
		return nil
	}

	node, ok := s.graph.GetNode(id)
	if !ok {
		return fmt.Errorf("queued node %s is not in the graph", id)
	}
	curlText := node.Request.Render()
	s.logf("info", "Analyzing %s: %s %s", id, node.Request.Method, node.Request.URL)

	if node.Request.IsScript() {
		s.logf("info", "Node %s is a script fetch, nothing to resolve", id)
		return s.patchNode(id, dag.NodePatch{DynamicParts: []string{}})
	}

	if err := s.checkCancelled(); err != nil {
		return err
	}
	parts, err := s.analysis.Classifier.Classify(ctx, curlText, s.inputVars)
	if err != nil {
		return err
	}

	if err := s.checkCancelled(); err != nil {
		return err
	}
	bound, remaining, err := s.analysis.Binder.Bind(ctx, curlText, s.inputVars, parts)
	if err != nil {
		return err
	}

	patch := dag.NodePatch{DynamicParts: remaining}
	if remaining == nil {
		patch.DynamicParts = []string{}
	}
	if len(bound) > 0 {
		patch.InputVariables = bound
		s.logf("info", "Node %s binds input variables: %s", id, joinKeys(bound))
	}
	if err := s.patchNode(id, patch); err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}

	s.logf("info", "Node %s consumes %d dynamic parts: %s", id, len(remaining), strings.Join(remaining, ", "))

	if err := s.checkCancelled(); err != nil {
		return err
	}
	prov, err := s.analysis.Finder.Find(ctx, remaining, s.parsed.Requests, s.jar, node.Request)
	if err != nil {
		return err
	}
	s.recordProvenance(id, prov)

	return s.patchNode(id, dag.NodePatch{DynamicParts: []string{}})
}

// recordProvenance turns a provenance result into producer nodes and
// labeled edges. New request producers are queued for their own
// analysis; cookie and not_found producers are leaves.
func (s *Session) recordProvenance(consumerID string, prov *analysis.Provenance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dep := range prov.CookieDependencies {
		var producerID string
		if existing := s.graph.FindCookieNode(dep.CookieName); existing != nil {
			producerID = existing.ID
			if err := s.graph.AddExtractedParts(producerID, dep.Part); err != nil {
				s.logf("error", "Cookie node %s: %v", producerID, err)
				continue
			}
		} else {
			id, err := s.graph.AddNode(dag.NodeSpec{
				Type:           dag.NodeCookie,
				Key:            dep.CookieName,
				Value:          dep.Value,
				ExtractedParts: []string{dep.Part},
			})
			if err != nil {
				s.logf("error", "Cookie node for %s: %v", dep.CookieName, err)
				continue
			}
			producerID = id
			s.logf("info", "Cookie %s supplies %q (%s)", dep.CookieName, dep.Part, producerID)
		}
		s.addEdge(producerID, consumerID, dep.Part)
	}

	for _, dep := range prov.RequestDependencies {
		var producerID string
		queued := false
		if existing := s.graph.FindRequestNode(dep.Request.Method, dep.Request.URL); existing != nil {
			producerID = existing.ID
			if err := s.graph.AddExtractedParts(producerID, dep.Part); err != nil {
				s.logf("error", "Producer node %s: %v", producerID, err)
				continue
			}
		} else {
			id, err := s.graph.AddNode(dag.NodeSpec{
				Type:           dag.NodeCurl,
				Request:        dep.Request,
				ExtractedParts: []string{dep.Part},
			})
			if err != nil {
				s.logf("error", "Producer node for %s %s: %v", dep.Request.Method, dep.Request.URL, err)
				continue
			}
			producerID = id
			s.queue = append(s.queue, id)
			queued = true
		}
		s.addEdge(producerID, consumerID, dep.Part)
		if queued {
			s.logf("info", "Queued dependency %s: %s %s", producerID, dep.Request.Method, dep.Request.URL)
		}
	}

	for _, part := range prov.NotFoundParts {
		var producerID string
		if existing := s.graph.FindNotFoundNode(part); existing != nil {
			producerID = existing.ID
		} else {
			id, err := s.graph.AddNode(dag.NodeSpec{
				Type:           dag.NodeNotFound,
				Key:            part,
				ExtractedParts: []string{part},
			})
			if err != nil {
				s.logf("error", "Placeholder node for %q: %v", part, err)
				continue
			}
			producerID = id
		}
		s.addEdge(producerID, consumerID, part)
		s.logf("warn", "No producer found for %q", part)
	}
}

// addEdge records one dependency edge. A rejected edge is an internal
// consistency problem: it is logged and skipped, analysis continues.
// Callers hold s.mu.
func (s *Session) addEdge(from, to, label string) {
	err := s.graph.AddEdge(from, to, label)
	if err == nil {
		return
	}
	var cycle *dag.CycleError
	if errors.As(err, &cycle) {
		s.logf("error", "Internal consistency error: %v", err)
		slog.Error("Edge would close a cycle, skipped", "session", s.ID, "error", err)
		return
	}
	s.logf("error", "Edge %s -> %s (%q) rejected: %v", from, to, label, err)
	slog.Error("Edge rejected", "session", s.ID, "from", from, "to", to, "label", label, "error", err)
}

func (s *Session) addInputVariable(ev AddInputVariable) {
	s.mu.Lock()
	s.inputVars[ev.Name] = ev.Value
	s.mu.Unlock()
	s.logf("info", "Input variable %s declared", ev.Name)
}

// forceComplete drops the remaining queue and jumps to the code
// generation state. The cached completeness flag is set even when the
// graph still has unresolved work; AnalyzeCompletion re-syncs it.
func (s *Session) forceComplete() {
	s.mu.Lock()
	s.complete = true
	s.queue = nil
	s.mu.Unlock()
	s.logf("warn", "Completion forced, skipping remaining analysis")
	s.setState(StateReadyForCodeGen)
}

func (s *Session) generateCode() error {
	text, err := s.emitter.Emit(emitter.Input{
		SessionID:   s.ID,
		Prompt:      s.prompt,
		Graph:       s.graph,
		GeneratedAt: s.CreatedAt,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.generated = text
	s.mu.Unlock()

	s.logf("info", "Generated %d bytes of client code", len(text))
	s.setState(StateCodeGenerated)
	return nil
}

func (s *Session) popQueue() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	return id, true
}

func (s *Session) patchNode(id string, patch dag.NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.UpdateNode(id, patch)
}

func joinKeys(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
