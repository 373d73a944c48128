package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// resetLogger resets the logger to default state for test isolation
func resetLogger() {
	Init(Options{})
}

func TestInit_Levels(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		logged []string
		hidden []string
	}{
		{"default", Options{}, []string{"info", "warn", "error"}, []string{"debug"}},
		{"debug", Options{Debug: true}, []string{"debug", "info", "warn", "error"}, nil},
		{"quiet", Options{Quiet: true}, []string{"error"}, []string{"debug", "info", "warn"}},
		{"quiet_overrides_debug", Options{Debug: true, Quiet: true}, []string{"error"}, []string{"debug", "info"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.opts.Output = buf
			Init(tt.opts)
			defer resetLogger()

			Debug("msg-debug")
			Info("msg-info")
			Warn("msg-warn")
			Error("msg-error")

			out := buf.String()
			for _, l := range tt.logged {
				if !strings.Contains(out, "msg-"+l) {
					t.Errorf("expected %s message to be logged", l)
				}
			}
			for _, l := range tt.hidden {
				if strings.Contains(out, "msg-"+l) {
					t.Errorf("expected %s message to be suppressed", l)
				}
			}
		})
	}
}

func TestInit_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("question ingested", "key", "abc123")

	out := buf.String()
	if !strings.Contains(out, `"msg":"question ingested"`) {
		t.Errorf("expected JSON msg field, got %q", out)
	}
	if !strings.Contains(out, `"key":"abc123"`) {
		t.Errorf("expected JSON attribute, got %q", out)
	}
}

func TestInit_CustomLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	custom := slog.New(slog.NewTextHandler(buf, nil))
	Init(Options{Logger: custom, Quiet: true})
	defer resetLogger()

	Info("from custom")
	if !strings.Contains(buf.String(), "from custom") {
		t.Error("custom logger should override other options")
	}
}

func TestWith_ReturnsLoggerWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	With("source", "MKSAP_19").Info("scoped")

	out := buf.String()
	if !strings.Contains(out, "source=MKSAP_19") || !strings.Contains(out, "scoped") {
		t.Errorf("expected scoped attrs in output, got %q", out)
	}
}

func TestContextVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	ctx := context.Background()
	DebugContext(ctx, "ctx-debug")
	InfoContext(ctx, "ctx-info")
	WarnContext(ctx, "ctx-warn")
	ErrorContext(ctx, "ctx-error")

	for _, want := range []string{"ctx-debug", "ctx-info", "ctx-warn", "ctx-error"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestInit_ExtraHandlers(t *testing.T) {
	console := &bytes.Buffer{}
	sink := &bytes.Buffer{}
	warnOnly := slog.NewTextHandler(sink, &slog.HandlerOptions{Level: slog.LevelWarn})

	Init(Options{Output: console, Handlers: []slog.Handler{warnOnly}})
	defer resetLogger()

	Info("to console only")
	With("file", "a.json").Warn("to both")

	if !strings.Contains(console.String(), "to console only") || !strings.Contains(console.String(), "to both") {
		t.Errorf("console missing records: %q", console.String())
	}
	if strings.Contains(sink.String(), "to console only") {
		t.Error("extra handler received a record below its level")
	}
	if !strings.Contains(sink.String(), "to both") || !strings.Contains(sink.String(), "file=a.json") {
		t.Errorf("extra handler missing warn record with attrs: %q", sink.String())
	}
}

func TestFanout_Enabled(t *testing.T) {
	h := Fanout(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled")
	}
	if !h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected warn to be enabled")
	}
}
