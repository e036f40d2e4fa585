// Package logging provides structured logging for calmirror using slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level aliases for convenience.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	defaultLogger *slog.Logger
	defaultOnce   sync.Once
)

// Options configures the logger behavior.
type Options struct {
	// Level sets the minimum log level. Defaults to LevelInfo.
	Level slog.Level
	// Output sets the output destination. Defaults to os.Stderr.
	Output io.Writer
	// JSON enables JSON output format. Defaults to false (text format).
	JSON bool
	// AddSource includes source file and line in log output.
	AddSource bool
}

// DefaultOptions returns options suitable for CLI usage.
func DefaultOptions() Options {
	return Options{
		Level:     LevelInfo,
		Output:    os.Stderr,
		JSON:      false,
		AddSource: false,
	}
}

// ParseLevel maps a config level name (debug, info, warn, error) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a new logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelError + 1}))
}

// Default returns the default logger, creating it if necessary.
// The default logger writes text output to stderr at Info level.
func Default() *slog.Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(DefaultOptions())
	})
	return defaultLogger
}

// SetDefault sets the default logger and also sets it as slog's default.
// This also ensures the sync.Once is triggered so Default() won't override the logger.
func SetDefault(logger *slog.Logger) {
	defaultOnce.Do(func() {})
	defaultLogger = logger
	slog.SetDefault(logger)
}

// Timer logs the elapsed time of an operation at debug level when the
// returned func is called:
//
//	defer logging.Timer(logger, "sync_rule")()
func Timer(logger *slog.Logger, op string) func() {
	if logger == nil {
		logger = Default()
	}
	start := time.Now()
	return func() {
		logger.Debug("operation finished", Operation(op), slog.Duration(KeyDuration, time.Since(start)))
	}
}

// Common attribute keys for consistent logging across the codebase.
const (
	// KeyRule identifies a sync rule by id.
	KeyRule = "rule"
	// KeyCalendar identifies a calendar by label or id.
	KeyCalendar = "calendar"
	// KeyTarget identifies a destination calendar label within a rule.
	KeyTarget = "target"
	// KeyEvent identifies a remote event id.
	KeyEvent = "event"
	// KeyAccount identifies a configured account.
	KeyAccount = "account"
	// KeyOperation identifies the operation being performed.
	KeyOperation = "operation"
	// KeyCount provides a count of items.
	KeyCount = "count"
	// KeyError attaches an error value.
	KeyError = "error"
	// KeyDuration records operation duration.
	KeyDuration = "duration"
)

// Rule returns a slog attribute for a sync rule id.
func Rule(id string) slog.Attr {
	return slog.String(KeyRule, id)
}

// Calendar returns a slog attribute for a calendar.
func Calendar(ref string) slog.Attr {
	return slog.String(KeyCalendar, ref)
}

// Target returns a slog attribute for a destination calendar label.
func Target(label string) slog.Attr {
	return slog.String(KeyTarget, label)
}

// Event returns a slog attribute for a remote event id.
func Event(id string) slog.Attr {
	return slog.String(KeyEvent, id)
}

// Account returns a slog attribute for an account name.
func Account(name string) slog.Attr {
	return slog.String(KeyAccount, name)
}

// Operation returns a slog attribute for operation logging.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Err returns a slog attribute for error logging.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// Count returns a slog attribute for item counts.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}
