package cli

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/harvest-ai/harvest/pkg/config"
)

// ValidateCmd loads a configuration document, runs strict structural
// validation plus the semantic range checks, and reports the result.
type ValidateCmd struct {
	Path string `arg:"" help:"Configuration file path." type:"path" placeholder:"PATH"`

	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	_ = config.LoadEnvFiles()

	configType, err := config.ParseConfigType(cli.ConfigType)
	if err != nil {
		return err
	}
	cfg, loader, err := config.LoadConfigWithLoader(config.LoaderOptions{
		Type:      configType,
		Path:      c.Path,
		Endpoints: splitEndpoints(cli.ConfigEndpoints),
	})
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	defer loader.Stop()

	if c.PrintConfig {
		expanded, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render expanded config: %w", err)
		}
		return printJSON(map[string]interface{}{
			"valid":  true,
			"path":   c.Path,
			"config": string(expanded),
		})
	}
	return printJSON(map[string]interface{}{"valid": true, "path": c.Path})
}
