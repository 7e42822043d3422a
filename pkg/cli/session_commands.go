package cli

import (
	"context"
	"encoding/json"
	"fmt"
)

// SessionCmd groups the session lifecycle operations. All of them run
// in client mode against a serving harvest instance.
type SessionCmd struct {
	Start    SessionStartCmd    `cmd:"" help:"Create a session from a capture and a prompt."`
	Status   SessionStatusCmd   `cmd:"" help:"Show a session's state and graph counters."`
	List     SessionListCmd     `cmd:"" help:"List sessions."`
	Delete   SessionDeleteCmd   `cmd:"" help:"Delete a session."`
	Requests SessionRequestsCmd `cmd:"" help:"List the captured requests a session holds."`
	Var      SessionVarCmd      `cmd:"" help:"Declare an input variable on a session."`
}

type SessionStartCmd struct {
	ClientFlags `embed:"" prefix:""`

	Har     string            `arg:"" help:"HAR capture path (on the server's filesystem)." placeholder:"HAR"`
	Prompt  string            `arg:"" help:"Natural-language description of the workflow." placeholder:"PROMPT"`
	Cookies string            `help:"Cookie bundle path to merge into the capture's jar." placeholder:"PATH"`
	Var     map[string]string `help:"Input variables as name=value pairs." mapsep:","`
}

func (c *SessionStartCmd) Run() error {
	result, err := NewClient(c.Server).CreateSession(context.Background(), CreateSessionRequest{
		HarPath:        c.Har,
		Prompt:         c.Prompt,
		CookiePath:     c.Cookies,
		InputVariables: c.Var,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

type SessionStatusCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
}

func (c *SessionStatusCmd) Run() error {
	result, err := NewClient(c.Server).GetSession(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

type SessionListCmd struct {
	ClientFlags `embed:"" prefix:""`
}

func (c *SessionListCmd) Run() error {
	result, err := NewClient(c.Server).ListSessions(context.Background())
	if err != nil {
		return err
	}
	return printJSON(result)
}

type SessionDeleteCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
}

func (c *SessionDeleteCmd) Run() error {
	result, err := NewClient(c.Server).DeleteSession(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

type SessionRequestsCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
}

func (c *SessionRequestsCmd) Run() error {
	result, err := NewClient(c.Server).Requests(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

type SessionVarCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID    string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
	Name  string `arg:"" help:"Variable name." placeholder:"NAME"`
	Value string `arg:"" help:"Variable value as captured." placeholder:"VALUE"`
}

func (c *SessionVarCmd) Run() error {
	result, err := NewClient(c.Server).AddVariable(context.Background(), c.ID, c.Name, c.Value)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// ProcessCmd advances dependency analysis.
type ProcessCmd struct {
	Next       ProcessNextCmd       `cmd:"" help:"Identify the workflow if needed, then analyze one node."`
	Complete   ProcessCompleteCmd   `cmd:"" help:"Report whether code generation can proceed."`
	Unresolved ProcessUnresolvedCmd `cmd:"" help:"List node IDs with unresolved dynamic parts."`
	Blockers   ProcessBlockersCmd   `cmd:"" help:"List what blocks code generation."`
}

type ProcessNextCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID  string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
	All bool   `help:"Keep processing until the session leaves the analysis loop."`
}

// maxProcessSteps bounds --all so a server bug cannot spin the client
// forever.
const maxProcessSteps = 200

func (c *ProcessNextCmd) Run() error {
	ctx := context.Background()
	client := NewClient(c.Server)

	result, err := client.GetSession(ctx, c.ID)
	if err != nil {
		return err
	}
	state, err := snapshotState(result)
	if err != nil {
		return err
	}

	// A fresh session needs the workflow identified before nodes exist.
	if state == "awaitingWorkflowSelection" {
		if result, err = client.IdentifyWorkflow(ctx, c.ID); err != nil {
			return err
		}
		if state, err = snapshotState(result); err != nil {
			return err
		}
		if !c.All {
			return printJSON(result)
		}
	}

	steps := 1
	if c.All {
		steps = maxProcessSteps
	}
	for i := 0; i < steps && state == "processingDependencies"; i++ {
		if result, err = client.ProcessNext(ctx, c.ID); err != nil {
			return err
		}
		if state, err = snapshotState(result); err != nil {
			return err
		}
	}
	return printJSON(result)
}

func snapshotState(raw json.RawMessage) (string, error) {
	var snap struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return "", fmt.Errorf("unexpected session payload: %w", err)
	}
	if snap.State == "" {
		// Creation responses nest the snapshot.
		var nested struct {
			Session struct {
				State string `json:"state"`
			} `json:"session"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil {
			return nested.Session.State, nil
		}
	}
	return snap.State, nil
}

type ProcessCompleteCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
}

func (c *ProcessCompleteCmd) Run() error {
	result, err := NewClient(c.Server).Completion(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

type ProcessUnresolvedCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
}

func (c *ProcessUnresolvedCmd) Run() error {
	result, err := NewClient(c.Server).Unresolved(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

type ProcessBlockersCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
}

func (c *ProcessBlockersCmd) Run() error {
	result, err := NewClient(c.Server).Blockers(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// GenerateCmd renders the client program for a completed session.
type GenerateCmd struct {
	ClientFlags `embed:"" prefix:""`

	ID string `arg:"" help:"Session ID." placeholder:"SESSION_ID"`
}

func (c *GenerateCmd) Run() error {
	result, err := NewClient(c.Server).Generate(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(result)
}
