package cli

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/harvest-ai/harvest/pkg/config"
)

// SchemaCmd emits the JSON Schema of the configuration document, for
// editor completion and config tooling.
type SchemaCmd struct {
	Compact bool `help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://harvest-ai.github.io/schemas/config.json"
	schema.Title = "Harvest Configuration Schema"
	schema.Description = "Configuration schema for the harvest capture analyzer"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	var (
		data []byte
		err  error
	)
	if c.Compact {
		data, err = json.Marshal(schema)
	} else {
		data, err = json.MarshalIndent(schema, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}
