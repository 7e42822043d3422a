package har

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestNewWatcher_RequiresDir(t *testing.T) {
	if _, err := NewWatcher(WatcherConfig{}); err == nil {
		t.Fatal("NewWatcher() expected an error without a directory")
	}
}

func TestWatcher_EmitsHarCreations(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	watcher, err := NewWatcher(WatcherConfig{Dir: dir, DebounceDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	events, err := watcher.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	}()

	harPath := filepath.Join(dir, "capture.har")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(harPath, []byte(`{"log":{"entries":[]}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("event error = %v", ev.Err)
		}
		if ev.Path != harPath {
			t.Fatalf("event path = %s, want %s", ev.Path, harPath)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the capture event")
	}

	// the .txt write never produces an event
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	watcher, err := NewWatcher(WatcherConfig{Dir: dir, DebounceDelay: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	events, err := watcher.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer watcher.Stop()

	harPath := filepath.Join(dir, "capture.har")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(harPath, []byte(`{"log":{"entries":[]}}`), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case ev := <-events:
		if ev.Path != harPath {
			t.Fatalf("event path = %s, want %s", ev.Path, harPath)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the debounced event")
	}
}

func TestWatcher_StopClosesChannel(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	watcher, err := NewWatcher(WatcherConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	events, err := watcher.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Start is idempotent while watching
	again, err := watcher.Start(context.Background())
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if again != events {
		t.Fatal("second Start() returned a different channel")
	}

	if err := watcher.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, open := <-events; open {
		t.Fatal("event channel still open after Stop")
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
