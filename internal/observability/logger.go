// Package observability provides the structured logger shared by the import
// pipeline and the CLI.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the fields every import run carries.
type Logger struct {
	zl zerolog.Logger
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	ServiceName string
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg LogConfig) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var zl zerolog.Logger
	if cfg.Format == "json" {
		zl = zerolog.New(output)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.TimeOnly,
		})
	}

	zl = zl.Level(ParseLevel(cfg.Level)).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()

	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything. Used by tests and as the
// fallback when a component is built without a logger.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// WithOperation returns a logger tagged with a pipeline stage.
func (l *Logger) WithOperation(op string) *Logger {
	return &Logger{zl: l.zl.With().Str("operation", op).Logger()}
}

// WithDocument returns a logger tagged with the document being processed.
func (l *Logger) WithDocument(path string) *Logger {
	return &Logger{zl: l.zl.With().Str("document", path).Logger()}
}

// WithRunID returns a logger tagged with the run identifier.
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{zl: l.zl.With().Str("run_id", id).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug() *LogEvent {
	return &LogEvent{evt: l.zl.Debug()}
}

// Info logs an info message.
func (l *Logger) Info() *LogEvent {
	return &LogEvent{evt: l.zl.Info()}
}

// Warn logs a warning message.
func (l *Logger) Warn() *LogEvent {
	return &LogEvent{evt: l.zl.Warn()}
}

// Error logs an error message.
func (l *Logger) Error() *LogEvent {
	return &LogEvent{evt: l.zl.Error()}
}

// LogEvent represents a log event being built.
type LogEvent struct {
	evt *zerolog.Event
}

// Str adds a string field.
func (e *LogEvent) Str(key, val string) *LogEvent {
	e.evt = e.evt.Str(key, val)
	return e
}

// Strs adds a string slice field.
func (e *LogEvent) Strs(key string, val []string) *LogEvent {
	e.evt = e.evt.Strs(key, val)
	return e
}

// Int adds an int field.
func (e *LogEvent) Int(key string, val int) *LogEvent {
	e.evt = e.evt.Int(key, val)
	return e
}

// Dur adds a duration field.
func (e *LogEvent) Dur(key string, val time.Duration) *LogEvent {
	e.evt = e.evt.Dur(key, val)
	return e
}

// Err adds an error field.
func (e *LogEvent) Err(err error) *LogEvent {
	e.evt = e.evt.Err(err)
	return e
}

// Msg sends the log event with a message.
func (e *LogEvent) Msg(msg string) {
	e.evt.Msg(msg)
}

// Msgf sends the log event with a formatted message.
func (e *LogEvent) Msgf(format string, args ...interface{}) {
	e.evt.Msgf(format, args...)
}

// ParseLevel converts a string level to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
