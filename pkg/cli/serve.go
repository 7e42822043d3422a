package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/llms"
	"github.com/harvest-ai/harvest/pkg/memwatch"
	"github.com/harvest-ai/harvest/pkg/observability"
	"github.com/harvest-ai/harvest/pkg/server"
	"github.com/harvest-ai/harvest/pkg/session"
)

// ServeCmd runs the analysis API server until interrupted.
type ServeCmd struct {
	Host  string `help:"Listen address (overrides config)." placeholder:"HOST"`
	Port  int    `help:"Listen port (overrides config)." default:"0"`
	Watch bool   `help:"Watch the config document and log changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := cli.LoadConfig(c.Watch, func(next *config.Config) error {
		// The listener and session manager are built once; a changed
		// document takes effect on restart.
		slog.Info("Configuration changed; restart to apply", "source", cli.Config)
		return nil
	})
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Stop()
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	snapshot := config.NewSnapshot()
	if err := snapshot.Initialize(cfg); err != nil {
		return err
	}
	cfg = snapshot.MustConfig()

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	client, err := llms.NewClientFromSettings(&cfg.LLM)
	if err != nil {
		return err
	}
	defer client.Close()

	manager := session.NewManager(client, cfg)
	manager.Start(ctx)
	defer manager.Close()

	monitor := memwatch.New(cfg.Memory, memwatch.WithCleanup(manager.Sweep))
	monitor.Start(ctx)
	defer monitor.Close()

	srv, err := server.New(server.Options{
		Config:        cfg,
		Manager:       manager,
		Observability: obs,
	})
	if err != nil {
		return err
	}

	slog.Info("Analysis server starting",
		"address", cfg.Server.Address(),
		"provider", client.Provider().Name(),
		"model", client.Provider().ModelName())
	return srv.Start(ctx)
}
