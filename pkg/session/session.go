package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harvest-ai/harvest/pkg/analysis"
	"github.com/harvest-ai/harvest/pkg/curl"
	"github.com/harvest-ai/harvest/pkg/dag"
	"github.com/harvest-ai/harvest/pkg/emitter"
	"github.com/harvest-ai/harvest/pkg/har"
	"github.com/harvest-ai/harvest/pkg/llms"
)

// Analysis bundles the model-driven steps a session runs. Every
// component is stateless, so one bundle is shared by all sessions.
type Analysis struct {
	Workflow   *analysis.WorkflowIdentifier
	Classifier *analysis.Classifier
	Binder     *analysis.Binder
	Finder     *analysis.Finder
}

// NewAnalysis builds the bundle on a shared LLM client.
func NewAnalysis(client *llms.Client) *Analysis {
	return &Analysis{
		Workflow:   analysis.NewWorkflowIdentifier(client),
		Classifier: analysis.NewClassifier(client),
		Binder:     analysis.NewBinder(client),
		Finder:     analysis.NewFinder(client),
	}
}

// Session drives one capture through analysis to generated code. It
// is an event-driven state machine: callers submit events through
// Handle, which applies them one at a time in arrival order.
//
// Two locks split the work. eventMu serializes event handling and is
// held for the full duration of an event, model calls included. mu
// guards the observable fields and is only held for field access, so
// status reads never wait on an in-flight event.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// CreatedAt is when the session was created. It also anchors the
	// timestamp of generated output, keeping repeated generation
	// byte-identical.
	CreatedAt time.Time

	analysis *Analysis
	emitter  *emitter.Emitter

	eventMu sync.Mutex

	// cancelRequested makes a Cancel visible to the in-flight event
	// before the Cancel itself can win eventMu. processNextNode checks
	// it between model calls and aborts with errCancelled.
	cancelRequested atomic.Bool

	mu           sync.RWMutex
	state        State
	prompt       string
	parsed       *har.ParsedHAR
	jar          *har.CookieJar
	graph        *dag.DAG
	queue        []string
	inputVars    map[string]string
	logs         *logRing
	generated    string
	complete     bool
	err          error
	lastActivity time.Time
	terminalAt   time.Time
}

func newSession(a *Analysis, em *emitter.Emitter) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		analysis:     a,
		emitter:      em,
		state:        StateInitializing,
		graph:        dag.New(),
		inputVars:    make(map[string]string),
		logs:         newLogRing(),
		lastActivity: now,
	}
}

// Handle applies one event and returns the error the event produced,
// if any. Any error other than an InvalidTransitionError also moves
// the session to failed. Concurrent calls serialize on the session; a
// Cancel submitted during a long-running event is flagged before it
// queues, so the in-flight event aborts at its next model-call
// boundary instead of running to completion first.
func (s *Session) Handle(ctx context.Context, ev Event) error {
	if _, ok := ev.(Cancel); ok {
		s.cancelRequested.Store(true)
	}

	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.touch()

	switch ev := ev.(type) {
	case Cancel:
		s.cancel()
		return nil
	case Fail:
		s.fail(ev.Err)
		return nil
	}

	if !eventAllowed(s.State(), ev.Kind()) {
		return &InvalidTransitionError{State: s.State(), Event: ev.Kind()}
	}

	var err error
	switch ev := ev.(type) {
	case StartSession:
		err = s.start(ev)
	case IdentifyWorkflow:
		err = s.identifyWorkflow(ctx)
	case ProcessNextNode:
		err = s.processNextNode(ctx)
	case AddInputVariable:
		s.addInputVariable(ev)
	case ForceComplete:
		s.forceComplete()
	case GenerateCode:
		err = s.generateCode()
	default:
		err = fmt.Errorf("unhandled event kind %s", ev.Kind())
	}
	if err != nil {
		if errors.Is(err, errCancelled) {
			s.cancel()
			return nil
		}
		s.fail(err)
	}
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that moved the session to failed, or nil.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// GeneratedCode returns the generated program once the session
// reached codeGenerated.
func (s *Session) GeneratedCode() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generated, s.state == StateCodeGenerated
}

// LastActivity returns the time of the most recent event.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// TerminalAt returns when the session entered a terminal state, or
// the zero time if it has not.
func (s *Session) TerminalAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminalAt
}

// Logs returns the retained activity log, oldest first.
func (s *Session) Logs() []LogEntry {
	return s.logs.snapshot()
}

// Requests returns the capture's relevant requests in capture order,
// or nil before the capture is parsed.
func (s *Session) Requests() []*curl.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.parsed == nil {
		return nil
	}
	out := make([]*curl.Request, len(s.parsed.Requests))
	copy(out, s.parsed.Requests)
	return out
}

// Report returns the capture validation report, or nil before the
// capture is parsed.
func (s *Session) Report() *har.ValidationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.parsed == nil {
		return nil
	}
	return s.parsed.Report
}

// InputVariables returns a copy of the declared input variables.
func (s *Session) InputVariables() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.inputVars))
	for k, v := range s.inputVars {
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time view of a session for status reporting.
type Snapshot struct {
	ID             string            `json:"id"`
	State          State             `json:"state"`
	Prompt         string            `json:"prompt,omitempty"`
	NodeCount      int               `json:"node_count"`
	EdgeCount      int               `json:"edge_count"`
	QueueDepth     int               `json:"queue_depth"`
	Complete       bool              `json:"complete"`
	InputVariables map[string]string `json:"input_variables,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivity   time.Time         `json:"last_activity"`
	Error          string            `json:"error,omitempty"`
}

// Snapshot captures the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:           s.ID,
		State:        s.state,
		Prompt:       s.prompt,
		NodeCount:    s.graph.Len(),
		EdgeCount:    len(s.graph.Edges()),
		QueueDepth:   len(s.queue),
		Complete:     s.complete,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
	if len(s.inputVars) > 0 {
		snap.InputVariables = make(map[string]string, len(s.inputVars))
		for k, v := range s.inputVars {
			snap.InputVariables[k] = v
		}
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// AnalyzeCompletion reports whether code generation can proceed and
// re-syncs the cached completeness flag with the graph, so a forced
// completion no longer masks unresolved work.
func (s *Session) AnalyzeCompletion() *dag.CompletionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := s.graph.AnalyzeCompletion(s.queue)
	s.complete = report.Diagnostics.DagComplete
	return report
}

// Unresolved returns the ids of nodes that still consume dynamic
// parts, in insertion order.
func (s *Session) Unresolved() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, node := range s.graph.GetAllNodes() {
		if len(node.DynamicParts) > 0 {
			ids = append(ids, node.ID)
		}
	}
	return ids
}

// GraphJSON exports the dependency graph.
func (s *Session) GraphJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.MarshalJSON()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	if next.IsTerminal() {
		s.terminalAt = time.Now()
	}
	s.mu.Unlock()

	s.logf("debug", "State %s -> %s", prev, next)
	slog.Debug("Session state changed", "session", s.ID, "from", prev, "to", next)
}

// errCancelled aborts an in-flight event once a Cancel has been
// submitted. Handle turns it into the cancelled state, not a failure.
var errCancelled = errors.New("session cancelled")

func (s *Session) checkCancelled() error {
	if s.cancelRequested.Load() {
		return errCancelled
	}
	return nil
}

func (s *Session) cancel() {
	if s.State().IsTerminal() {
		return
	}
	s.setState(StateCancelled)
	s.logf("info", "Session cancelled")
}

func (s *Session) fail(err error) {
	if s.State().IsTerminal() {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.setState(StateFailed)
	s.logf("error", "Session failed: %v", err)
	slog.Error("Session failed", "session", s.ID, "error", err)
}

func (s *Session) logf(level, format string, args ...any) {
	s.logs.add(level, fmt.Sprintf(format, args...))
}
