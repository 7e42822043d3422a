package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/harvest-ai/harvest/pkg/emitter"
	"github.com/harvest-ai/harvest/pkg/llms"
	"github.com/harvest-ai/harvest/pkg/session"
)

// RunCmd analyzes one capture end to end in-process: create a session,
// identify the workflow, trace every dependency, and write the client
// program. It is the single-shot alternative to serve plus the session
// commands.
type RunCmd struct {
	Har     string            `arg:"" help:"HAR capture path." type:"path" placeholder:"HAR"`
	Prompt  string            `arg:"" help:"Natural-language description of the workflow." placeholder:"PROMPT"`
	Cookies string            `help:"Cookie bundle path to merge into the capture's jar." type:"path" placeholder:"PATH"`
	Var     map[string]string `help:"Input variables as name=value pairs." mapsep:","`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := cli.LoadConfig(false, nil)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Stop()
	}

	client, err := llms.NewClientFromSettings(&cfg.LLM)
	if err != nil {
		return err
	}
	defer client.Close()

	manager := session.NewManager(client, cfg)

	sess, err := manager.Create(ctx, session.StartSession{
		HarPath:        c.Har,
		Prompt:         c.Prompt,
		CookiePath:     c.Cookies,
		InputVariables: c.Var,
	})
	if err != nil {
		return err
	}

	if err := sess.Handle(ctx, session.IdentifyWorkflow{}); err != nil {
		return err
	}
	for i := 0; i < maxProcessSteps && sess.State() == session.StateProcessingDependencies; i++ {
		if err := sess.Handle(ctx, session.ProcessNextNode{}); err != nil {
			return err
		}
	}

	report := sess.AnalyzeCompletion()
	if !report.CanGenerateCode {
		return &emitter.AnalysisIncompleteError{Report: report}
	}

	_, path, err := manager.GenerateCode(ctx, sess.ID)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"session":    sess.Snapshot(),
		"completion": report,
		"path":       path,
	})
}
