// Package logger wraps zerolog behind a small nil-safe API. A nil *Logger
// discards everything, so library types can hold one without caring whether
// logging was ever configured.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a new Logger.
type Options struct {
	// Level names the minimum level to emit ("debug", "info", "warn", ...).
	// Empty selects info.
	Level string
	// HumanReadable switches from JSON lines to the console format.
	HumanReadable bool
	// Writer receives the output. Defaults to stderr.
	Writer io.Writer
}

// Logger emits structured log entries.
type Logger struct {
	base zerolog.Logger
}

// New builds a Logger from opts. It fails only on an unknown level name.
func New(opts Options) (*Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, err
		}
	}

	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	if opts.HumanReadable {
		dest := out
		out = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = dest
			cw.TimeFormat = time.RFC3339
		})
	}

	base := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{base: base}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// WithFields returns a child logger that stamps every entry with fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{base: l.base.With().Fields(fields).Logger()}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(name string) *Logger {
	return l.WithFields(map[string]any{"component": name})
}

// at opens an event at the given level. The returned event is nil for a nil
// logger or a filtered level; zerolog event methods no-op on nil.
func (l *Logger) at(level zerolog.Level) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.base.WithLevel(level)
}

// Info writes an info entry.
func (l *Logger) Info(msg string) { l.at(zerolog.InfoLevel).Msg(msg) }

// Infof writes a formatted info entry.
func (l *Logger) Infof(format string, args ...any) {
	l.at(zerolog.InfoLevel).Msgf(format, args...)
}

// Debug writes a debug entry.
func (l *Logger) Debug(msg string) { l.at(zerolog.DebugLevel).Msg(msg) }

// Debugf writes a formatted debug entry.
func (l *Logger) Debugf(format string, args ...any) {
	l.at(zerolog.DebugLevel).Msgf(format, args...)
}

// Warn writes a warning entry.
func (l *Logger) Warn(msg string) { l.at(zerolog.WarnLevel).Msg(msg) }

// Warnf writes a formatted warning entry.
func (l *Logger) Warnf(format string, args ...any) {
	l.at(zerolog.WarnLevel).Msgf(format, args...)
}

// Error writes an error entry carrying err when it is non-nil.
func (l *Logger) Error(err error, msg string) {
	l.at(zerolog.ErrorLevel).Err(err).Msg(msg)
}
