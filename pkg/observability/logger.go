package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var slogLevels = map[LogLevel]slog.Level{
	DebugLevel: slog.LevelDebug,
	InfoLevel:  slog.LevelInfo,
	WarnLevel:  slog.LevelWarn,
	ErrorLevel: slog.LevelError,
}

// Logger is a structured JSON logger. Field chaining returns copies,
// so a Logger may be shared across goroutines.
type Logger struct {
	s *slog.Logger
}

// NewLogger creates a JSON logger writing to output at the given level.
// A nil output defaults to stdout.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	lv, ok := slogLevels[level]
	if !ok {
		lv = slog.LevelInfo
	}
	h := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: lv})
	return &Logger{s: slog.New(h)}
}

// WithField returns a logger that includes the given field on every message
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{s: l.s.With(key, value)}
}

// WithFields returns a logger that includes all given fields on every message
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{s: l.s.With(args...)}
}

// WithError returns a logger carrying the error as a field. Nil errors
// return the receiver unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) { l.s.Debug(message) }
func (l *Logger) Info(message string)  { l.s.Info(message) }
func (l *Logger) Warn(message string)  { l.s.Warn(message) }
func (l *Logger) Error(message string) { l.s.Error(message) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.s.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.s.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.s.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.s.Error(fmt.Sprintf(format, args...))
}
