package cli

import (
	harvest "github.com/harvest-ai/harvest"
)

// VersionCmd prints build and version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	return printJSON(harvest.GetVersion())
}
