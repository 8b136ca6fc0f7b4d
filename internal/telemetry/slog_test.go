package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ParseLevel
// ---------------------------------------------------------------------------

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// NewLogger
// ---------------------------------------------------------------------------

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", "info")
	logger.Info("recorded", "action", "resize")

	var obj map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &obj); err != nil {
		t.Fatalf("output is not JSON: %v\noutput: %s", err, buf.String())
	}
	if obj["msg"] != "recorded" {
		t.Errorf("msg = %v, want recorded", obj["msg"])
	}
	if obj["action"] != "resize" {
		t.Errorf("action = %v, want resize", obj["action"])
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", "info")
	logger.Info("recorded", "action", "reboot")

	out := buf.String()
	if !strings.Contains(out, "msg=recorded") || !strings.Contains(out, "action=reboot") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestSetupLogger_DoesNotPanic(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			SetupLogger(format, level)
		}
	}
	SetupLogger("text", "error")
}
