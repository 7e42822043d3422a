package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"trace aliases debug", "trace", slog.LevelDebug, false},
		{"debug", "debug", slog.LevelDebug, false},
		{"info", "info", slog.LevelInfo, false},
		{"empty defaults to info", "", slog.LevelInfo, false},
		{"warn", "warn", slog.LevelWarn, false},
		{"warning alias", "warning", slog.LevelWarn, false},
		{"error", "error", slog.LevelError, false},
		{"fatal aliases error", "fatal", slog.LevelError, false},
		{"mixed case", "INFO", slog.LevelInfo, false},
		{"padded", "  debug  ", slog.LevelDebug, false},
		{"unknown", "loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

type captureWriter struct {
	lines []string
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.lines = append(w.lines, string(p))
	return len(p), nil
}

func TestTextHandlerSimpleFormat(t *testing.T) {
	w := &captureWriter{}
	h := &textHandler{
		handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		writer:  w,
	}
	w.lines = nil

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "session created", 0)
	rec.AddAttrs(slog.String("session_id", "abc"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(w.lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(w.lines))
	}
	got := w.lines[0]
	if got != "INFO session created session_id=abc\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestTextHandlerVerboseIncludesTimestamp(t *testing.T) {
	w := &captureWriter{}
	h := &textHandler{
		handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		writer:  w,
		verbose: true,
	}
	w.lines = nil

	ts := time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC)
	rec := slog.NewRecord(ts, slog.LevelWarn, "slow provider", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := w.lines[0]
	if !strings.HasPrefix(got, "2025/03/01 12:30:45 WARN") {
		t.Errorf("expected timestamp and WARN prefix, got %q", got)
	}
}

func TestModuleFilterDropsThirdPartyAboveDebug(t *testing.T) {
	w := &captureWriter{}
	inner := &textHandler{
		handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		writer:  w,
	}
	h := &moduleFilterHandler{handler: inner, minLevel: slog.LevelInfo}

	// PC of zero means the caller cannot be attributed to this module,
	// which is how records from libraries without source info arrive.
	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "third party noise", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(w.lines) != 0 {
		t.Errorf("expected third-party record to be dropped, got %v", w.lines)
	}
}

func TestModuleFilterAllowsEverythingAtDebug(t *testing.T) {
	w := &captureWriter{}
	inner := &textHandler{
		handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		writer:  w,
	}
	h := &moduleFilterHandler{handler: inner, minLevel: slog.LevelDebug}

	rec := slog.NewRecord(time.Now(), slog.LevelDebug, "anything goes", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(w.lines) != 1 {
		t.Errorf("expected record to pass at debug, got %d lines", len(w.lines))
	}
}

func TestModuleFilterRespectsMinLevel(t *testing.T) {
	h := &moduleFilterHandler{
		handler:  slog.NewTextHandler(&captureWriter{}, &slog.HandlerOptions{Level: slog.LevelDebug}),
		minLevel: slog.LevelWarn,
	}
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled when min level is warn")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled when min level is warn")
	}
}
