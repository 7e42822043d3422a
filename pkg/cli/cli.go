// Package cli implements the harvest command set. Commands print one
// compact JSON document on success and a JSON error object with a
// symbolic code, message and recommendations on failure, so both the
// terminal and scripts consume the same contract as the HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/logger"
)

// CLI is the harvest command grammar.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the analysis API server."`
	Run      RunCmd      `cmd:"" help:"Analyze a capture end to end and generate a client."`
	Session  SessionCmd  `cmd:"" help:"Session operations against a running server."`
	Process  ProcessCmd  `cmd:"" help:"Advance a session's dependency analysis."`
	Generate GenerateCmd `cmd:"" help:"Generate the client program for a session."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Emit the configuration JSON Schema."`
	Watch    WatchCmd    `cmd:"" help:"Watch a directory for new captures and validate them."`

	Config          string `short:"c" help:"Configuration path (file path, or key in a backend store)." placeholder:"PATH"`
	ConfigType      string `help:"Configuration backend type." enum:"file,consul,etcd,zookeeper" default:"file"`
	ConfigEndpoints string `help:"Comma-separated backend endpoints (e.g. localhost:8500 for consul)." placeholder:"ENDPOINTS"`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)." default:"simple"`
}

// InitLogger configures slog from the global flags. The returned
// cleanup closes the log file, when one is used.
func (cli *CLI) InitLogger() (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, cli.LogFormat)
	return cleanup, nil
}

// LoadConfig resolves the effective configuration: the configured
// document when -c is given, otherwise defaults layered with HARVEST_*
// variables. The loader is nil in the environment-only case.
func (cli *CLI) LoadConfig(watch bool, onChange func(*config.Config) error) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		cfg, err := config.FromEnvironment()
		return cfg, nil, err
	}

	configType, err := config.ParseConfigType(cli.ConfigType)
	if err != nil {
		return nil, nil, err
	}
	cfg, loader, err := config.LoadConfigWithLoader(config.LoaderOptions{
		Type:      configType,
		Path:      cli.Config,
		Endpoints: splitEndpoints(cli.ConfigEndpoints),
		Watch:     watch,
		OnChange:  onChange,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}
