// Package emitter renders a completed dependency graph into a
// standalone client program. The walk itself is language-neutral: it
// builds a structured plan (one function per request node in
// dependency order, parameters from incoming edges, extraction paths
// located in captured responses, and a main entry point) and hands
// the plan to a rendering backend. Output is deterministic: emitting
// the same graph twice yields identical bytes.
package emitter

import (
	"fmt"
	"strings"
	"time"

	"github.com/harvest-ai/harvest/pkg/dag"
)

// Input is everything one emission needs.
type Input struct {
	SessionID string
	Prompt    string
	Graph     *dag.DAG

	// GeneratedAt anchors the single Generated header. Callers pass
	// a fixed time so repeated emissions stay byte-identical.
	GeneratedAt time.Time
}

// Backend renders a plan into source text for one target language.
type Backend interface {
	Name() string
	Extension() string
	Render(plan *Plan) (string, error)
}

// AnalysisIncompleteError rejects emission over a graph that still
// has unresolved work. Report carries the full completion analysis.
type AnalysisIncompleteError struct {
	Report *dag.CompletionReport
}

func (e *AnalysisIncompleteError) Error() string {
	kinds := make([]string, 0, len(e.Report.Blockers))
	for _, b := range e.Report.Blockers {
		kinds = append(kinds, string(b.Kind))
	}
	return fmt.Sprintf("analysis incomplete, cannot generate code: %s", strings.Join(kinds, ", "))
}

// Emitter turns completed graphs into programs via a backend.
type Emitter struct {
	backend Backend
}

// New builds an emitter over the given backend.
func New(backend Backend) *Emitter {
	return &Emitter{backend: backend}
}

// Extension returns the backend's file extension, dot included.
func (e *Emitter) Extension() string {
	return e.backend.Extension()
}

// Emit renders the graph. It fails with an AnalysisIncompleteError
// when the graph has no master node, unresolved dynamic parts, or
// dependencies that could not be traced.
func (e *Emitter) Emit(in Input) (string, error) {
	if report := in.Graph.AnalyzeCompletion(nil); !report.CanGenerateCode {
		return "", &AnalysisIncompleteError{Report: report}
	}
	plan, err := BuildPlan(in)
	if err != nil {
		return "", err
	}
	return e.backend.Render(plan)
}
