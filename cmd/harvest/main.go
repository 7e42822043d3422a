// Command harvest analyzes browser HAR captures: it identifies the
// request a natural-language prompt describes, traces where every
// dynamic value in that request comes from, and generates a standalone
// client program for the workflow.
//
// Usage:
//
//	harvest serve --config config.yaml
//	harvest run capture.har "Download the latest invoice"
//	harvest session start capture.har "Download the latest invoice"
//	harvest process next <session-id> --all
package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/harvest-ai/harvest/pkg/cli"
	"github.com/harvest-ai/harvest/pkg/config"
)

func main() {
	_ = config.LoadEnvFiles()

	root := cli.CLI{}
	ctx := kong.Parse(&root,
		kong.Name("harvest"),
		kong.Description("harvest - HAR capture analyzer and client generator"),
		kong.UsageOnError(),
	)

	cleanup, err := root.InitLogger()
	if err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	if err := ctx.Run(&root); err != nil {
		cli.PrintError(os.Stderr, err)
		cleanup()
		os.Exit(1)
	}
}
