// Package log provides structured logging for parley.
// It wraps slog so every binary and package shares one handler.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
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

// Init initializes the global logger with the specified level.
// JSON output is used when GO_ENV=production, text otherwise.
func Init(level string) {
	format := "text"
	if os.Getenv("GO_ENV") == "production" {
		format = "json"
	}
	InitWithFormat(level, format)
}

// InitWithFormat initializes the global logger with an explicit
// format ("json" or "text") writing to stderr.
func InitWithFormat(level, format string) {
	Setup(os.Stderr, level, format)
}

// Setup installs a logger writing to w. It replaces any previous logger
// and sets it as the slog default.
func Setup(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)

	mu.Lock()
	logger = l
	mu.Unlock()

	slog.SetDefault(l)
	return l
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info")
		mu.Lock()
		l = logger
		mu.Unlock()
	}
	return l
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a logger tagged with component=name, deriving from
// base when it is non-nil.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = L()
	}
	return base.With("component", name)
}
