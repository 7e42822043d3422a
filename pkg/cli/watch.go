package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/harvest-ai/harvest/pkg/har"
)

// WatchCmd watches a directory for new or rewritten captures and
// prints a validation report for each, one JSON document per line.
type WatchCmd struct {
	Dir string `arg:"" optional:"" help:"Directory to watch (defaults to the configured har dir)." type:"path" placeholder:"DIR"`
}

func (c *WatchCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := c.Dir
	if dir == "" {
		cfg, loader, err := cli.LoadConfig(false, nil)
		if err != nil {
			return err
		}
		if loader != nil {
			loader.Stop()
		}
		dir = cfg.Paths.HarDir
	}

	watcher, err := har.NewWatcher(har.WatcherConfig{Dir: dir})
	if err != nil {
		return err
	}
	events, err := watcher.Start(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			slog.Warn("Watcher stop failed", "error", err)
		}
	}()

	slog.Info("Watching for captures", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				slog.Error("Watcher error", "error", ev.Err)
				continue
			}
			c.report(ev.Path)
		}
	}
}

// report validates one capture and prints its quality summary. A bad
// capture is reported, not fatal; the watch keeps running.
func (c *WatchCmd) report(path string) {
	parsed, err := har.Parse(path, har.Options{})
	if err != nil {
		PrintError(stdout, err)
		return
	}
	_ = printJSON(map[string]interface{}{
		"path":   path,
		"report": parsed.Report,
	})
}
