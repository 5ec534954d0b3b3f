package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

// Init initializes the global slog logger. level is one of
// "debug", "info", "warn", "error"; format is "text" or "json".
// The sink can be overridden via MAVENPROXY_LOG_SINK (e.g.
// "file:/var/log/mavenproxy.log") for tests and production.
func Init(level, format string) {
	sink := os.Getenv("MAVENPROXY_LOG_SINK")
	lv := parseLevel(level)

	var w *os.File = os.Stdout
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			w = f
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		}
	}

	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		Log = slog.New(slog.NewJSONHandler(w, opts))
	default:
		Log = slog.New(slog.NewTextHandler(w, opts))
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Channel returns a logger scoped to a named channel ("download",
// "access", "error"). Records carry the channel name so sinks can split
// streams without parsing messages.
func Channel(name string) *slog.Logger {
	if Log == nil {
		Init("", "")
	}
	return Log.With("channel", name)
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
