package har

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = 500 * time.Millisecond

// CaptureEvent reports a new or rewritten HAR file, or a watcher
// failure.
type CaptureEvent struct {
	Path string
	Err  error
}

// WatcherConfig configures capture directory watching.
type WatcherConfig struct {
	// Dir is the directory to watch for .har files.
	Dir string

	// DebounceDelay coalesces the event bursts browsers produce while
	// still writing a capture (default 500ms).
	DebounceDelay time.Duration
}

// Watcher emits an event for each HAR file created or rewritten in a
// directory. Events for the same path are debounced so a capture is
// announced once, after writing settles.
type Watcher struct {
	watcher       *fsnotify.Watcher
	dir           string
	eventChan     chan CaptureEvent
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
	isWatching    bool
	debounceDelay time.Duration
	loopDone      chan struct{}
}

// NewWatcher creates a watcher for the configured directory.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watcher requires a directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounce := cfg.DebounceDelay
	if debounce == 0 {
		debounce = defaultDebounceDelay
	}

	return &Watcher{
		watcher:       watcher,
		dir:           cfg.Dir,
		eventChan:     make(chan CaptureEvent, 16),
		debounceDelay: debounce,
	}, nil
}

// Start begins watching and returns the event channel. The channel is
// closed by Stop.
func (w *Watcher) Start(ctx context.Context) (<-chan CaptureEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isWatching {
		return w.eventChan, nil
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isWatching = true
	w.loopDone = make(chan struct{})

	go w.watchEvents()

	slog.Info("Watching for HAR captures", "dir", w.dir)
	return w.eventChan, nil
}

// Stop stops watching and closes the event channel.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isWatching {
		return nil
	}
	w.isWatching = false

	w.cancel()
	err := w.watcher.Close()
	<-w.loopDone
	close(w.eventChan)

	slog.Info("Stopped watching for HAR captures", "dir", w.dir)
	return err
}

// watchEvents coalesces bursts of filesystem events and emits one
// capture event per settled path. All sends happen on this goroutine
// so closing the channel in Stop is safe.
func (w *Watcher) watchEvents() {
	defer close(w.loopDone)

	pending := make(map[string]struct{})
	var pendingMu sync.Mutex
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	flushChan := make(chan struct{}, 1)
	requestFlush := func() {
		select {
		case flushChan <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-flushChan:
			pendingMu.Lock()
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			pending = make(map[string]struct{})
			pendingMu.Unlock()

			sort.Strings(paths)
			for _, path := range paths {
				select {
				case w.eventChan <- CaptureEvent{Path: path}:
				case <-w.ctx.Done():
					return
				}
			}

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".har") {
				continue
			}

			pendingMu.Lock()
			pending[event.Name] = struct{}{}
			pendingMu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounceDelay, requestFlush)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("HAR watcher error", "dir", w.dir, "error", err)
			select {
			case w.eventChan <- CaptureEvent{Err: err}:
			case <-w.ctx.Done():
				return
			}
		}
	}
}
