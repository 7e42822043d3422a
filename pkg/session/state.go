package session

import "fmt"

// State is a session's position in its lifecycle.
type State string

const (
	// StateInitializing is the state of a freshly created session
	// that has not received its capture yet.
	StateInitializing State = "initializing"

	// StateParsingHar covers capture loading and validation.
	StateParsingHar State = "parsingHar"

	// StateAwaitingWorkflowSelection means the capture is loaded and
	// the target request has not been chosen yet.
	StateAwaitingWorkflowSelection State = "awaitingWorkflowSelection"

	// StateProcessingDependencies is the analysis loop: nodes are
	// popped from the queue and traced one event at a time.
	StateProcessingDependencies State = "processingDependencies"

	// StateReadyForCodeGen means the graph is complete and code can
	// be generated.
	StateReadyForCodeGen State = "readyForCodeGen"

	// StateCodeGenerated is the terminal success state.
	StateCodeGenerated State = "codeGenerated"

	// StateFailed is the terminal error state.
	StateFailed State = "failed"

	// StateCancelled is the terminal state of an abandoned session.
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the session accepts no further events.
func (s State) IsTerminal() bool {
	switch s {
	case StateCodeGenerated, StateFailed, StateCancelled:
		return true
	}
	return false
}

// EventKind tags session events.
type EventKind string

const (
	KindStartSession     EventKind = "START_SESSION"
	KindIdentifyWorkflow EventKind = "IDENTIFY_WORKFLOW"
	KindProcessNextNode  EventKind = "PROCESS_NEXT_NODE"
	KindAddInputVariable EventKind = "ADD_INPUT_VARIABLE"
	KindForceComplete    EventKind = "FORCE_COMPLETE"
	KindGenerateCode     EventKind = "GENERATE_CODE"
	KindCancel           EventKind = "CANCEL"
	KindFail             EventKind = "FAIL"
)

// Event is a request to advance a session. Implementations are the
// typed event structs in this package.
type Event interface {
	Kind() EventKind
}

// StartSession loads a capture and primes the session.
type StartSession struct {
	HarPath        string
	Prompt         string
	CookiePath     string
	InputVariables map[string]string
}

func (StartSession) Kind() EventKind { return KindStartSession }

// IdentifyWorkflow asks the model to pick the target request and
// seeds the graph with the master node.
type IdentifyWorkflow struct{}

func (IdentifyWorkflow) Kind() EventKind { return KindIdentifyWorkflow }

// ProcessNextNode analyzes one queued node.
type ProcessNextNode struct{}

func (ProcessNextNode) Kind() EventKind { return KindProcessNextNode }

// AddInputVariable declares a user-supplied value; matching parts are
// bound instead of traced from then on.
type AddInputVariable struct {
	Name  string
	Value string
}

func (AddInputVariable) Kind() EventKind { return KindAddInputVariable }

// ForceComplete marks the session ready for code generation without
// finishing analysis. Debugging aid; the graph may be unresolved.
type ForceComplete struct{}

func (ForceComplete) Kind() EventKind { return KindForceComplete }

// GenerateCode renders the completed graph into a client program.
type GenerateCode struct{}

func (GenerateCode) Kind() EventKind { return KindGenerateCode }

// Cancel abandons the session. Accepted in every state; applied after
// any in-flight event finishes.
type Cancel struct{}

func (Cancel) Kind() EventKind { return KindCancel }

// Fail records an external error and moves the session to failed.
type Fail struct {
	Err error
}

func (Fail) Kind() EventKind { return KindFail }

// allowedEvents lists the events each state accepts. Cancel and Fail
// are handled separately: they are accepted from every non-terminal
// state.
var allowedEvents = map[State][]EventKind{
	StateInitializing:              {KindStartSession},
	StateParsingHar:                {},
	StateAwaitingWorkflowSelection: {KindIdentifyWorkflow, KindAddInputVariable},
	StateProcessingDependencies:    {KindProcessNextNode, KindAddInputVariable, KindForceComplete},
	StateReadyForCodeGen:           {KindGenerateCode},
	StateCodeGenerated:             {},
	StateFailed:                    {},
	StateCancelled:                 {},
}

func eventAllowed(state State, kind EventKind) bool {
	for _, k := range allowedEvents[state] {
		if k == kind {
			return true
		}
	}
	return false
}

// InvalidTransitionError rejects an event the current state does not
// accept. The session is left unchanged.
type InvalidTransitionError struct {
	State State
	Event EventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %s is not valid in state %s", e.Event, e.State)
}
