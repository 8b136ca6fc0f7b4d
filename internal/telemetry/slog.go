package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog default from the logging config.
// Everything else in the service logs through slog.Info/Warn/Error.
func SetupLogger(format, level string) {
	logger := NewLogger(os.Stdout, format, level)
	slog.SetDefault(logger)
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}

// NewLogger builds a logger writing to w. format "json" selects the JSON
// handler, anything else the text handler.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug/info/warn/error (case-insensitive) to a slog level,
// defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
